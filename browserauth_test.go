package browserauth_test

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"

	"golang.org/x/xerrors"
)

// freeLocalPort finds a port which is free right now. There is a small window
// between closing the probe listener and the flow binding the real one, which
// is acceptable in tests.
func freeLocalPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("could not listen: %s", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func loggingMiddleware(t *testing.T) func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Logf("localServer: %s %s", r.Method, r.URL)
			h.ServeHTTP(w, r)
		})
	}
}

func httpGet(url string) (int, string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, "", xerrors.Errorf("could not send a request: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", xerrors.Errorf("could not read the response body: %w", err)
	}
	return resp.StatusCode, string(b), nil
}

func httpPost(url string) (int, string, error) {
	resp, err := http.Post(url, "", nil)
	if err != nil {
		return 0, "", xerrors.Errorf("could not send a request: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", xerrors.Errorf("could not read the response body: %w", err)
	}
	return resp.StatusCode, string(b), nil
}

// fetchAuthDetail performs the steps of the index page script: fetch the
// authorization URL from the local server.
func fetchAuthDetail(localURL string) (string, error) {
	status, body, err := httpGet(localURL + "/auth_detail.json")
	if err != nil {
		return "", err
	}
	if status != 200 {
		return "", xerrors.Errorf("auth_detail.json status wants 200 but was %d", status)
	}
	var authURL string
	if err := json.Unmarshal([]byte(body), &authURL); err != nil {
		return "", xerrors.Errorf("could not decode the auth detail: %w", err)
	}
	return authURL, nil
}

// authorizationRequest represents an authorization request described as:
// https://tools.ietf.org/html/rfc6749#section-4.1.1
type authorizationRequest struct {
	state       string
	redirectURI string
	raw         url.Values
}

// exchangeRequest represents the JSON body of a token request described as:
// https://tools.ietf.org/html/rfc7636#section-4.5
type exchangeRequest struct {
	ClientID     string `json:"client_id"`
	CodeVerifier string `json:"code_verifier"`
	Code         string `json:"code"`
	GrantType    string `json:"grant_type"`
	RedirectURI  string `json:"redirect_uri"`
}

// authServerHandler is a stub of the OAuth 2.0 authorization server.
type authServerHandler struct {
	t *testing.T

	// This should return a URL with query parameters of authorization response.
	// See https://tools.ietf.org/html/rfc6749#section-4.1.2
	NewAuthorizationResponse func(r authorizationRequest) string

	// This should return a JSON body of access token response or error response.
	// See https://tools.ietf.org/html/rfc6749#section-5.1
	NewTokenResponse func(r exchangeRequest) (int, string)
}

func (h *authServerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.t.Logf("authServer: %s %s", r.Method, r.RequestURI)
	if err := h.serveHTTP(w, r); err != nil {
		h.t.Errorf("authServerHandler error: %s", err)
		http.Error(w, err.Error(), 500)
	}
}

func (h *authServerHandler) serveHTTP(w http.ResponseWriter, r *http.Request) error {
	switch {
	case r.Method == "GET" && r.URL.Path == "/auth":
		q := r.URL.Query()
		state, redirectURI := q.Get("state"), q.Get("redirect_uri")
		if q.Get("client_id") == "" {
			return xerrors.New("client_id is missing")
		}
		if state == "" {
			return xerrors.New("state is missing")
		}
		if redirectURI == "" {
			return xerrors.New("redirect_uri is missing")
		}
		to := h.NewAuthorizationResponse(authorizationRequest{
			state:       state,
			redirectURI: redirectURI,
			raw:         q,
		})
		http.Redirect(w, r, to, 302)

	case r.Method == "POST" && r.URL.Path == "/token":
		var req exchangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return xerrors.Errorf("could not decode the token request body: %w", err)
		}
		if req.Code == "" {
			return xerrors.New("code is missing")
		}
		if req.RedirectURI == "" {
			return xerrors.New("redirect_uri is missing")
		}
		status, b := h.NewTokenResponse(req)
		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(status)
		if _, err := w.Write([]byte(b)); err != nil {
			return xerrors.Errorf("error while writing response body: %w", err)
		}

	default:
		http.NotFound(w, r)
	}
	return nil
}

func assertPathNotFound(t *testing.T, localURL, path string) {
	t.Helper()
	status, _, err := httpGet(localURL + path)
	if err != nil {
		t.Errorf("could not send a request: %s", err)
		return
	}
	if status != 404 {
		t.Errorf("%s status wants 404 but was %d", path, status)
	}
}
