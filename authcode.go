package browserauth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/Marwes/browserauth/oauth2params"
	"golang.org/x/oauth2"
	"golang.org/x/xerrors"
)

// GetToken performs the Authorization Code Grant with PKCE and returns a
// token got from the provider.
// See https://tools.ietf.org/html/rfc6749#section-4.1
// and https://tools.ietf.org/html/rfc7636
//
// This does the following steps:
//
//  1. Start a local server at one of the candidate ports.
//  2. Open the browser and navigate it to the local server.
//  3. Wait for the user authorization.
//  4. Receive an authorization code via the redirect.
//  5. Exchange the code and the PKCE verifier for a token.
//  6. Return the token.
//
// It blocks until the provider redirects the browser back or ctx is done.
func GetToken(ctx context.Context, c Config) (*oauth2.Token, error) {
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
	pkce, err := oauth2params.New()
	if err != nil {
		return nil, xerrors.Errorf("could not generate a PKCE parameter: %w", err)
	}
	authURL, err := finishAuthURL(c.AuthURL, authCodeParams(&c, redirectURI, state, pkce))
	if err != nil {
		return nil, err
	}

	s := newSession(authURL, state, &c)
	resp, err := s.run(ctx, &c, l, &authCodeHandler{s: s})
	if err != nil {
		return nil, xerrors.Errorf("error while authorization: %w", err)
	}
	if resp.err != nil {
		return nil, xerrors.Errorf("authorization error: %w", resp.err)
	}

	s.logf("authorization code received, requesting a token")
	token, err := exchangeCode(ctx, &c, resp.code, pkce.CodeVerifier, redirectURI)
	if err != nil {
		return nil, xerrors.Errorf("could not convert the authorization code into a token: %w", err)
	}
	if token.Expiry.Sub(now()) < minTokenValidity {
		s.logf(minTokenValidityWarning)
	}
	return token, nil
}

// Parameters of the authorization request.
// See https://tools.ietf.org/html/rfc7636#section-4.3
func authCodeParams(c *Config, redirectURI, state string, pkce oauth2params.PKCE) url.Values {
	v := url.Values{}
	v.Set("client_id", c.ClientID)
	v.Set("code_challenge", pkce.CodeChallenge)
	v.Set("code_challenge_method", pkce.CodeChallengeMethod)
	v.Set("redirect_uri", redirectURI)
	v.Set("response_type", "code")
	v.Set("state", state)
	if len(c.Scopes) > 0 {
		v.Set("scope", strings.Join(c.Scopes, " "))
	}
	return v
}

type authCodeHandler struct {
	s *session
}

func (h *authCodeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == "GET" && r.URL.Path == "/":
		writeHTML(w, redirectWithAuthJSONHTML)
	case r.Method == "GET" && r.URL.Path == "/auth_detail.json":
		h.s.serveAuthDetail(w)
	case r.Method == "GET" && r.URL.Path == "/redirect":
		h.handleRedirect(w, r)
	default:
		h.s.logf("route not found: %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	}
}

// handleRedirect handles the authorization response.
// See https://tools.ietf.org/html/rfc6749#section-4.1.2
func (h *authCodeHandler) handleRedirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		h.s.fail(w, xerrors.Errorf("authorization error from the provider: %s %s", errCode, q.Get("error_description")))
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" {
		h.s.fail(w, xerrors.New("no code found in the authorization response"))
		return
	}
	if state == "" {
		h.s.fail(w, xerrors.New("no state found in the authorization response"))
		return
	}
	if state != h.s.state {
		h.s.fail(w, xerrors.Errorf("mismatched auth states after redirect (wants %s but got %s)", h.s.state, state))
		return
	}
	h.s.complete(&authorizationResponse{code: code})
	writeHTML(w, h.s.successHTML)
}

// Token request and response bodies.
// See https://tools.ietf.org/html/rfc7636#section-4.5
// and https://tools.ietf.org/html/rfc6749#section-5.1
type tokenRequest struct {
	ClientID     string `json:"client_id"`
	CodeVerifier string `json:"code_verifier"`
	Code         string `json:"code"`
	GrantType    string `json:"grant_type"`
	RedirectURI  string `json:"redirect_uri"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"` // technically optional in RFC 6749
}

// exchangeCode sends the authorization code and the PKCE verifier to the
// token endpoint. The endpoint takes a JSON body, not a form.
func exchangeCode(ctx context.Context, c *Config, code, codeVerifier, redirectURI string) (*oauth2.Token, error) {
	body, err := json.Marshal(tokenRequest{
		ClientID:     c.ClientID,
		CodeVerifier: codeVerifier,
		Code:         code,
		GrantType:    "authorization_code",
		RedirectURI:  redirectURI,
	})
	if err != nil {
		return nil, xerrors.Errorf("could not encode the token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.TokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, xerrors.Errorf("could not create a token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("could not send the code to %s: %w", c.TokenURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, xerrors.Errorf("sending the code to %s failed, HTTP error: %d", c.TokenURL, resp.StatusCode)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, xerrors.Errorf("could not parse the token response as JSON: %w", err)
	}
	return newBearerToken(tr.AccessToken, tr.TokenType, tr.ExpiresIn)
}
