package registration

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/0xPuncker/batch-registry/pkg/types"
)

const idLength = 16

// GenerateID derives the application id from its connection attributes only,
// so repeated heartbeats from one endpoint always resolve to the same id.
// An application without a host yields an empty id.
func GenerateID(app *types.ClientApplication) string {
	if app == nil {
		return ""
	}

	host := strings.ToLower(strings.TrimSpace(app.Host))
	if host == "" {
		return ""
	}

	endpoint := fmt.Sprintf("%s://%s:%d/%s",
		app.Scheme(),
		host,
		app.Port,
		strings.Trim(strings.TrimSpace(app.ContextPath), "/"),
	)

	sum := sha256.Sum256([]byte(endpoint))
	return hex.EncodeToString(sum[:])[:idLength]
}
