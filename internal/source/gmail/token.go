package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/nhle/mail-autoreply/internal/source"
)

// tokenFile is the authorized-user file written by the Google OAuth
// installed-app flow. Both the google-auth ("token") and x/oauth2
// ("access_token") spellings are accepted.
type tokenFile struct {
	Token        string   `json:"token"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
	Expiry       string   `json:"expiry"`
}

// loadTokenSource reads path and returns a refreshing token source.
func loadTokenSource(ctx context.Context, path string) (oauth2.TokenSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &source.CredentialError{
				Provider: source.ProviderGmail,
				Message:  fmt.Sprintf("token file %s not found; authorize the account first", path),
			}
		}
		return nil, fmt.Errorf("reading token file %s: %w", path, err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, &source.CredentialError{
			Provider: source.ProviderGmail,
			Message:  fmt.Sprintf("token file %s is not valid JSON: %v", path, err),
		}
	}

	access := tf.Token
	if access == "" {
		access = tf.AccessToken
	}
	if access == "" && tf.RefreshToken == "" {
		return nil, &source.CredentialError{
			Provider: source.ProviderGmail,
			Message:  fmt.Sprintf("token file %s holds no token", path),
		}
	}

	scopes := tf.Scopes
	if len(scopes) == 0 {
		scopes = []string{gmailapi.GmailModifyScope}
	}

	conf := &oauth2.Config{
		ClientID:     tf.ClientID,
		ClientSecret: tf.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}
	if tf.TokenURI != "" {
		conf.Endpoint.TokenURL = tf.TokenURI
	}

	tok := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: tf.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       parseExpiry(tf.Expiry),
	}
	if access == "" {
		// Force a refresh on first use.
		tok.Expiry = time.Unix(1, 0)
	}

	return conf.TokenSource(ctx, tok), nil
}

// parseExpiry accepts RFC 3339 and the zone-less microsecond form older
// google-auth releases write. Unparsable values yield the zero time, which
// oauth2 treats as non-expiring.
func parseExpiry(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
