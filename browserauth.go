// Package browserauth obtains an OAuth 2.0 access token on behalf of a user
// who only has a browser. It starts a transient local HTTP server on one of a
// fixed set of loopback ports, sends the user's browser to the provider's
// authorization endpoint and captures the credential the provider redirects
// back with. It supports the Authorization Code Grant with PKCE and the
// Implicit Grant.
package browserauth

import (
	"encoding/hex"
	"log"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

// DefaultPorts are the loopback ports the local server binds to.
// These (arbitrary) ports need to be registered as valid redirect urls
// in the oauth provider you're using.
var DefaultPorts = []int{12731, 32492, 56909}

// Config for a flow.
type Config struct {
	// ClientID is the application's ID registered with the provider.
	ClientID string
	// AuthURL is the provider's authorization endpoint.
	// It may already carry query parameters; flow parameters are appended.
	AuthURL string
	// TokenURL is the provider's token endpoint.
	// Required for GetToken, unused by GetTokenImplicitly.
	TokenURL string
	// Scopes specifies optional requested permissions.
	Scopes []string

	// Candidate ports which the local server binds to, tried in order.
	// Default to DefaultPorts.
	LocalServerPorts []int
	// Response HTML body on authorization completed.
	// Default to DefaultLocalServerSuccessHTML.
	LocalServerSuccessHTML string
	// Middleware for the local server. Default to none.
	LocalServerMiddleware func(h http.Handler) http.Handler
	// A channel to send its URL when the local server is ready. Default to none.
	LocalServerReadyChan chan<- string
	// Skip opening the browser if it is true.
	SkipOpenBrowser bool
	// Logger function for debug and warnings. Default to log.Printf.
	Logf func(format string, v ...interface{})
}

func (c *Config) populateDefaults() {
	if len(c.LocalServerPorts) == 0 {
		c.LocalServerPorts = DefaultPorts
	}
	if c.LocalServerSuccessHTML == "" {
		c.LocalServerSuccessHTML = DefaultLocalServerSuccessHTML
	}
	if c.LocalServerMiddleware == nil {
		c.LocalServerMiddleware = func(h http.Handler) http.Handler { return h }
	}
	if c.Logf == nil {
		c.Logf = log.Printf
	}
}

// newOAuth2State returns a state parameter to protect from CSRF attacks.
// See https://tools.ietf.org/html/rfc6749#section-10.12
func newOAuth2State() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", xerrors.Errorf("could not initialize the random source: %w", err)
	}
	return hex.EncodeToString(u[:]), nil
}
