package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/0xPuncker/batch-registry/internal/registration"
	jobsconfig "github.com/0xPuncker/batch-registry/pkg/config"
	"github.com/0xPuncker/batch-registry/pkg/types"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "registry server base URL")
	name := flag.String("name", "debug-client", "application name")
	host := flag.String("host", "localhost", "application host")
	port := flag.Int("port", 9090, "application port")
	contextPath := flag.String("context-path", "", "application context path")
	status := flag.String("status", "", "status to report (UP, DOWN, UNKNOWN)")
	jobsFile := flag.String("jobs-file", "", "validate a jobs YAML file and exit")
	flag.Parse()

	if *jobsFile != "" {
		checkJobsFile(*jobsFile)
		return
	}

	app := &types.ClientApplication{
		Name:        *name,
		Host:        *host,
		Port:        *port,
		ContextPath: *contextPath,
		Status:      types.ApplicationStatus(*status),
	}

	if err := registration.Validate(app); err != nil {
		fmt.Printf("Local validation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Local id: %s\n", registration.GenerateID(app))

	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	body, err := json.Marshal(app)
	if err != nil {
		fmt.Printf("Marshal error: %v\n", err)
		os.Exit(1)
	}

	resp, err := client.Post(*server+"/api/v1/applications", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Printf("POST request error: %v\n", err)
		os.Exit(1)
	}
	printResponse("POST", resp)

	lookup := fmt.Sprintf("%s/api/v1/applications/id?name=%s", *server, url.QueryEscape(*name))
	resp, err = client.Get(lookup)
	if err != nil {
		fmt.Printf("GET request error: %v\n", err)
		os.Exit(1)
	}
	printResponse("GET", resp)
}

func printResponse(method string, resp *http.Response) {
	defer resp.Body.Close()

	fmt.Printf("%s Status: %d\n", method, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Read body error: %v\n", err)
		return
	}
	fmt.Printf("Response body: %s\n", body)
}

func checkJobsFile(path string) {
	file, err := jobsconfig.LoadJobsFile(path)
	if err != nil {
		fmt.Printf("Invalid jobs file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Jobs file %s: %d configurations, %d enabled\n", path, len(file.Jobs), len(file.EnabledJobs()))
	for _, job := range file.Jobs {
		fmt.Printf("  %s -> %s (%s)\n", job.ID, job.JobName, job.TriggerType)
	}
}
