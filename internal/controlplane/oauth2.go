package controlplane

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// tokenExpiryGuard is applied before a cached token's expiry: a token is
// refreshed 60 seconds early rather than right at expiry, matching
// ory_auth.py's _is_token_valid buffer.
const tokenExpiryGuard = 60 * time.Second

// tokenCache caches a single OAuth2 client-credentials access token,
// refreshing it via golang.org/x/oauth2/clientcredentials and guarding
// concurrent refreshes with a single-flight group so at most one refresh
// request is in flight at any instant (replacing the Python asyncio.Lock
// 1:1).
type tokenCache struct {
	cc clientcredentials.Config
	sf singleflight.Group

	mu     sync.Mutex
	cached *oauth2.Token
}

func newTokenCache(tokenURL, clientID, clientSecret, scope string) *tokenCache {
	return &tokenCache{
		cc: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       splitScope(scope),
			AuthStyle:    oauth2.AuthStyleInHeader, // client_secret_basic, per ory_auth.py
		},
	}
}

// accessToken returns a valid access token, refreshing it if the cached
// one is absent or within tokenExpiryGuard of expiry.
func (t *tokenCache) accessToken(ctx context.Context) (string, error) {
	if tok := t.validCached(); tok != "" {
		return tok, nil
	}

	v, err, _ := t.sf.Do("refresh", func() (any, error) {
		if tok := t.validCached(); tok != "" {
			return tok, nil
		}
		tok, err := t.cc.Token(ctx)
		if err != nil {
			return nil, err
		}
		t.mu.Lock()
		t.cached = tok
		t.mu.Unlock()
		return tok.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (t *tokenCache) validCached() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cached == nil {
		return ""
	}
	if time.Now().After(t.cached.Expiry.Add(-tokenExpiryGuard)) {
		return ""
	}
	return t.cached.AccessToken
}

func splitScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}
