package apiservice

import (
	"context"

	"github.com/recrovit/rgfclient/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenSource returns the bearer token source described by cfg, or nil when
// no authentication is configured. Client credentials tokens are fetched
// lazily and refreshed before they expire.
func TokenSource(ctx context.Context, cfg *config.Auth) oauth2.TokenSource {
	switch {
	case cfg.AccessToken != "":
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
	case cfg.TokenURL != "":
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		return cc.TokenSource(ctx)
	default:
		return nil
	}
}
