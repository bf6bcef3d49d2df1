package browserauth

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/xerrors"
)

// GetTokenImplicitly performs the Implicit Grant and returns a token got
// from the provider.
// See https://tools.ietf.org/html/rfc6749#section-4.2
//
// This does the following steps:
//
//  1. Start a local server at one of the candidate ports.
//  2. Open the browser and navigate it to the local server.
//  3. Wait for the user authorization.
//  4. Receive a token in the URL fragment of the redirect.
//  5. Post the fragment via JavaScript to a local endpoint.
//  6. Return the token.
//
// It blocks until the in-browser steps finish or ctx is done.
func GetTokenImplicitly(ctx context.Context, c Config) (*oauth2.Token, error) {
	c.populateDefaults()
	l, err := newLocalhostListener(c.LocalServerPorts)
	if err != nil {
		return nil, xerrors.Errorf("could not start a local server: %w", err)
	}
	defer l.Close()
	redirectURI := l.URL.String() + "/redirect"

	state, err := newOAuth2State()
	if err != nil {
		return nil, xerrors.Errorf("could not generate a state parameter: %w", err)
	}
	authURL, err := finishAuthURL(c.AuthURL, implicitParams(&c, redirectURI, state))
	if err != nil {
		return nil, err
	}

	s := newSession(authURL, state, &c)
	resp, err := s.run(ctx, &c, l, &implicitHandler{s: s})
	if err != nil {
		return nil, xerrors.Errorf("error while authorization: %w", err)
	}
	if resp.err != nil {
		return nil, xerrors.Errorf("authorization error: %w", resp.err)
	}
	return resp.token, nil
}

// Parameters of the authorization request.
// See https://tools.ietf.org/html/rfc6749#section-4.2.1
func implicitParams(c *Config, redirectURI, state string) url.Values {
	v := url.Values{}
	v.Set("client_id", c.ClientID)
	v.Set("redirect_uri", redirectURI)
	v.Set("response_type", "token")
	v.Set("state", state)
	if len(c.Scopes) > 0 {
		v.Set("scope", strings.Join(c.Scopes, " "))
	}
	return v
}

type implicitHandler struct {
	s *session
}

func (h *implicitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == "GET" && r.URL.Path == "/":
		writeHTML(w, redirectWithAuthJSONHTML)
	case r.Method == "GET" && r.URL.Path == "/auth_detail.json":
		h.s.serveAuthDetail(w)
	case r.Method == "GET" && r.URL.Path == "/redirect":
		// The token is in the URL fragment, which never reaches a server.
		// Serve a page which posts it back to /save_auth.
		writeHTML(w, saveAuthHTML)
	case r.Method == "POST" && r.URL.Path == "/save_auth":
		h.handleSaveAuth(w, r)
	default:
		h.s.logf("route not found: %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	}
}

// handleSaveAuth handles the authorization response posted back by the
// redirect page, as a query string in the fragment's shape.
// See https://tools.ietf.org/html/rfc6749#section-4.2.2
func (h *implicitHandler) handleSaveAuth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		h.s.fail(w, xerrors.Errorf("authorization error from the provider: %s %s", errCode, q.Get("error_description")))
		return
	}
	accessToken := q.Get("access_token")
	if accessToken == "" {
		h.s.fail(w, xerrors.New("no token found in the authorization response"))
		return
	}
	tokenType := q.Get("token_type")
	if tokenType == "" {
		h.s.fail(w, xerrors.New("no token type found in the authorization response"))
		return
	}
	expiresIn := q.Get("expires_in")
	if expiresIn == "" {
		h.s.fail(w, xerrors.New("no expiry found in the authorization response"))
		return
	}
	expiresInSeconds, err := strconv.ParseInt(expiresIn, 10, 64)
	if err != nil {
		h.s.fail(w, xerrors.Errorf("could not parse the expiry as an integer: %w", err))
		return
	}
	state := q.Get("state")
	if state == "" {
		h.s.fail(w, xerrors.New("no state found in the authorization response"))
		return
	}
	if state != h.s.state {
		h.s.fail(w, xerrors.Errorf("mismatched auth states after redirect (wants %s but got %s)", h.s.state, state))
		return
	}
	token, err := newBearerToken(accessToken, tokenType, expiresInSeconds)
	if err != nil {
		h.s.fail(w, err)
		return
	}
	if token.Expiry.Sub(now()) < minTokenValidity {
		h.s.logf(minTokenValidityWarning)
	}
	h.s.complete(&authorizationResponse{token: token})
	if err := writeJSON(w, ""); err != nil {
		h.s.logf("could not write the response body: %s", err)
	}
}
