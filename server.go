package browserauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Marwes/browserauth/internal/oneshot"
	"github.com/int128/listener"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// now returns the current time. Overridden in tests.
var now = time.Now

// If a token is valid for under this amount of time, warn the user.
const minTokenValidity = 2 * 24 * time.Hour

const minTokenValidityWarning = "token retrieved expires in under two days"

type authorizationResponse struct {
	code  string        // non-empty for the authorization code grant
	token *oauth2.Token // non-nil for the implicit grant
	err   error         // non-nil if the authorization failed
}

// session is the state shared between one flow invocation and its local
// server handler. It lives for the duration of exactly one flow.
type session struct {
	authURL     string // URL of the provider's consent page, with all parameters
	state       string // expected value of the state parameter
	successHTML string
	logf        func(format string, v ...interface{})

	respCh   chan *authorizationResponse
	shutdown *oneshot.Signal
}

func newSession(authURL, state string, c *Config) *session {
	return &session{
		authURL:     authURL,
		state:       state,
		successHTML: c.LocalServerSuccessHTML,
		logf:        c.Logf,
		respCh:      make(chan *authorizationResponse, 1),
		shutdown:    oneshot.NewSignal(),
	}
}

// complete delivers the response and stops the local server.
// The response is pushed strictly before the shutdown signal fires, so that
// the flow never observes a stopped server without a response available.
// Completing an already completed session panics.
func (s *session) complete(resp *authorizationResponse) {
	select {
	case s.respCh <- resp:
	default:
		panic("browserauth: authorization response delivered twice")
	}
	s.shutdown.Fire()
}

// fail renders the error to the browser and terminates the flow with it.
// The raw error text only ever renders on localhost, to the user who
// initiated the flow.
func (s *session) fail(w http.ResponseWriter, err error) {
	s.logf("error while handling a request on the local server: %s", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
	s.complete(&authorizationResponse{err: err})
}

func (s *session) serveAuthDetail(w http.ResponseWriter) {
	if err := writeJSON(w, s.authURL); err != nil {
		s.logf("could not write the response body: %s", err)
	}
}

// run serves requests on the listener until the shutdown signal fires or the
// context is done, then returns the authorization response.
func (s *session) run(ctx context.Context, c *Config, l *listener.Listener, h http.Handler) (*authorizationResponse, error) {
	server := http.Server{Handler: c.LocalServerMiddleware(h)}
	serveDone := make(chan struct{})
	var eg errgroup.Group
	eg.Go(func() error {
		select {
		case <-s.shutdown.Done():
			if err := server.Shutdown(ctx); err != nil {
				return xerrors.Errorf("could not shutdown the local server: %w", err)
			}
			return nil
		case <-ctx.Done():
			if err := server.Shutdown(context.Background()); err != nil {
				return xerrors.Errorf("could not shutdown the local server: %w", err)
			}
			return xerrors.Errorf("context done while waiting for authorization response: %w", ctx.Err())
		case <-serveDone:
			// The listener died on its own; the serve goroutine carries
			// the error and there is nothing left to shut down.
			return nil
		}
	})
	eg.Go(func() error {
		defer close(serveDone)
		if err := server.Serve(l); err != nil && err != http.ErrServerClosed {
			return xerrors.Errorf("could not start the local server: %w", err)
		}
		return nil
	})

	localURL := l.URL.String()
	s.logf("Please visit %s in your browser", localURL)
	if c.LocalServerReadyChan != nil {
		c.LocalServerReadyChan <- localURL
	}
	if !c.SkipOpenBrowser {
		if err := browser.OpenURL(localURL); err != nil {
			s.logf("could not open the browser: %s", err)
		}
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	select {
	case resp := <-s.respCh:
		return resp, nil
	default:
		panic("browserauth: server stopped but authorization response not available")
	}
}

// finishAuthURL appends the flow parameters to the authorization endpoint
// URL, keeping any query parameters it already carries.
func finishAuthURL(authURL string, params url.Values) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", xerrors.Errorf("could not parse the authorization endpoint URL: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// newBearerToken validates the token type and computes the absolute expiry
// as soon as the response is parsed, to avoid clock drift from request
// latency.
func newBearerToken(accessToken, tokenType string, expiresIn int64) (*oauth2.Token, error) {
	if !strings.EqualFold(tokenType, "bearer") {
		return nil, xerrors.Errorf("token type in the response is not bearer but %q", tokenType)
	}
	return &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   tokenType,
		Expiry:      now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Add("Content-Type", "text/html")
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, data interface{}) error {
	w.Header().Add("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return xerrors.Errorf("could not encode the response as JSON: %w", err)
	}
	return nil
}
