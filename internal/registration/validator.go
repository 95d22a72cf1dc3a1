package registration

import (
	"net/url"
	"strings"

	"github.com/0xPuncker/batch-registry/pkg/types"
)

var supportedProtocols = map[string]bool{
	"http":  true,
	"https": true,
}

func Validate(app *types.ClientApplication) error {
	if app == nil {
		return &ValidationError{Field: "application", Reason: "is required"}
	}
	if strings.TrimSpace(app.Host) == "" {
		return &ValidationError{Field: "host", Reason: "is required"}
	}
	if strings.ContainsAny(app.Host, "/: ") {
		return &ValidationError{Field: "host", Reason: "must be a bare host name"}
	}
	if app.Port < 1 || app.Port > 65535 {
		return &ValidationError{Field: "port", Reason: "must be between 1 and 65535"}
	}
	if !supportedProtocols[app.Scheme()] {
		return &ValidationError{Field: "protocol", Reason: "must be http or https"}
	}
	if app.HealthURL != "" {
		u, err := url.Parse(app.HealthURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &ValidationError{Field: "health_url", Reason: "must be an absolute URL"}
		}
	}
	switch app.Status {
	case "", types.StatusUp, types.StatusDown, types.StatusUnknown:
	default:
		return &ValidationError{Field: "status", Reason: "must be UP, DOWN or UNKNOWN"}
	}
	return nil
}

// CheckApplicationID fails when the derived id is empty, which means the
// connection attributes could not identify an endpoint.
func CheckApplicationID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "id", Reason: "could not be derived from the connection attributes"}
	}
	return nil
}
