package types

import (
	"fmt"
	"strings"
	"time"
)

// ApplicationStatus is the liveness state reported for a client application.
// The zero value means the registration did not carry a status.
type ApplicationStatus string

const (
	StatusUp      ApplicationStatus = "UP"
	StatusDown    ApplicationStatus = "DOWN"
	StatusUnknown ApplicationStatus = "UNKNOWN"
)

func (s ApplicationStatus) IsSet() bool {
	return s != ""
}

// ClientApplication represents a batch client that announced itself to the server.
type ClientApplication struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Protocol    string            `json:"protocol,omitempty"`
	Host        string            `json:"host"`
	Port        int               `json:"port"`
	ContextPath string            `json:"context_path,omitempty"`
	HealthURL   string            `json:"health_url,omitempty"`
	Status      ApplicationStatus `json:"status,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	LastSeen    time.Time         `json:"last_seen"`
}

// Clone returns a deep copy so that events and callers never share the stored record.
func (a *ClientApplication) Clone() *ClientApplication {
	if a == nil {
		return nil
	}
	c := *a
	if a.Metadata != nil {
		c.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func (a *ClientApplication) Scheme() string {
	if a.Protocol == "" {
		return "http"
	}
	return strings.ToLower(a.Protocol)
}

func (a *ClientApplication) BaseURL() string {
	base := fmt.Sprintf("%s://%s:%d", a.Scheme(), strings.ToLower(a.Host), a.Port)
	if path := strings.Trim(a.ContextPath, "/"); path != "" {
		base += "/" + path
	}
	return base
}

func (a *ClientApplication) HealthEndpoint() string {
	if a.HealthURL != "" {
		return a.HealthURL
	}
	return a.BaseURL() + "/health"
}

func (a *ClientApplication) String() string {
	return fmt.Sprintf("%s[%s %s %s]", a.Name, a.ID, a.BaseURL(), a.Status)
}
