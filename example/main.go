package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Marwes/browserauth"
	"github.com/pkg/browser"
	"golang.org/x/sync/errgroup"
)

func init() {
	log.SetFlags(log.Lshortfile | log.Lmicroseconds)
}

type cmdOptions struct {
	authURL  string
	tokenURL string
	clientID string
	scopes   string
	implicit bool
}

func main() {
	var o cmdOptions
	flag.StringVar(&o.authURL, "auth-url", "", "Authorization endpoint of the provider")
	flag.StringVar(&o.tokenURL, "token-url", "", "Token endpoint of the provider (code grant only)")
	flag.StringVar(&o.clientID, "client-id", "", "OAuth Client ID")
	flag.StringVar(&o.scopes, "scopes", "", "Scopes to request, comma separated (optional)")
	flag.BoolVar(&o.implicit, "implicit", false, "Use the implicit grant instead of the code grant")
	flag.Parse()
	if o.clientID == "" || o.authURL == "" || (!o.implicit && o.tokenURL == "") {
		log.Printf("You need to set the oauth2 client credentials registered with your provider.")
		flag.PrintDefaults()
		os.Exit(1)
		return
	}

	ready := make(chan string, 1)
	defer close(ready)
	cfg := browserauth.Config{
		ClientID:             o.clientID,
		AuthURL:              o.authURL,
		TokenURL:             o.tokenURL,
		LocalServerReadyChan: ready,
		SkipOpenBrowser:      true,
		Logf:                 log.Printf,
	}
	if o.scopes != "" {
		cfg.Scopes = strings.Split(o.scopes, ",")
	}

	ctx := context.Background()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		select {
		case url := <-ready:
			log.Printf("Open %s", url)
			if err := browser.OpenURL(url); err != nil {
				log.Printf("could not open the browser: %s", err)
			}
			return nil
		case <-ctx.Done():
			return fmt.Errorf("context done while waiting for authorization: %w", ctx.Err())
		}
	})
	eg.Go(func() error {
		getToken := browserauth.GetToken
		if o.implicit {
			getToken = browserauth.GetTokenImplicitly
		}
		token, err := getToken(ctx, cfg)
		if err != nil {
			return fmt.Errorf("could not get a token: %w", err)
		}
		log.Printf("You got a valid token until %s", token.Expiry)
		return nil
	})
	if err := eg.Wait(); err != nil {
		log.Fatalf("authorization error: %s", err)
	}
}
