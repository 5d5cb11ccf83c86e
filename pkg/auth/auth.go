// Package auth issues Microsoft Graph bearer tokens via the OAuth2 client
// credentials flow.
package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/envforge/envforge/pkg/config"
)

const (
	tokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	graphScope     = "https://graph.microsoft.com/.default"
)

// TokenSource returns a caching, auto-refreshing token source for the
// application identity in creds. Tokens are fetched lazily on first use.
func TokenSource(ctx context.Context, creds config.Credentials) oauth2.TokenSource {
	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     fmt.Sprintf(tokenURLFormat, creds.TenantID),
		Scopes:       []string{graphScope},
	}
	return cfg.TokenSource(ctx)
}
