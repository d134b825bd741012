package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/nhle/mail-autoreply/internal/ai"
	"github.com/nhle/mail-autoreply/internal/autoreply"
	"github.com/nhle/mail-autoreply/internal/credential"
	"github.com/nhle/mail-autoreply/internal/logging"
	"github.com/nhle/mail-autoreply/internal/model"
	"github.com/nhle/mail-autoreply/internal/notify"
	"github.com/nhle/mail-autoreply/internal/source"
	"github.com/nhle/mail-autoreply/internal/source/email"
	"github.com/nhle/mail-autoreply/internal/source/gmail"
	"github.com/nhle/mail-autoreply/internal/store"
)

// newOpener returns the mailbox opener for the configured provider.
// Credentials are resolved when a cycle opens the mailbox, so a missing
// secret surfaces as a cycle error rather than a startup failure.
func newOpener(cfg *model.AppConfig) source.Opener {
	if cfg.Mail.Provider == model.ProviderIMAP {
		c := cfg.Mail.IMAP
		return email.NewOpener(email.Config{
			IMAPHost: c.Host,
			IMAPPort: c.Port,
			SMTPHost: c.SMTPHost,
			SMTPPort: c.SMTPPort,
			Username: c.Username,
			TLS:      c.TLS,
		}, func() (string, error) {
			return credential.Lookup(credential.IMAPPassword)
		})
	}
	return gmail.NewOpener(cfg.Mail.Gmail.TokenFile, cfg.Mail.Gmail.RequestsPerSecond)
}

// newSummarizer returns nil when no API key is available; the cycle then
// uses the placeholder summary.
func newSummarizer(cfg *model.AppConfig) autoreply.Summarizer {
	key, err := credential.Lookup(credential.GroqAPIKey)
	if err != nil && !errors.Is(err, credential.ErrNotFound) {
		logging.LogWarning("summarizer_key", err, nil)
	}

	client, err := ai.New(key, cfg.Summarizer)
	if err != nil {
		if !errors.Is(err, ai.ErrUnavailable) {
			logging.LogWarning("summarizer_init", err, nil)
		}
		return nil
	}
	return client
}

// newLineClient builds the LINE client. LINE_USER_ID from the environment
// or keyring wins over notifier.user_id.
func newLineClient(cfg *model.AppConfig) *notify.LineClient {
	token, _ := credential.Lookup(credential.LineChannelAccessToken)
	userID, err := credential.Lookup(credential.LineUserID)
	if err != nil {
		userID = cfg.Notifier.UserID
	}
	return notify.NewLineClient(token, userID, cfg.Notifier.Endpoint)
}

// newNotifier returns nil when LINE is not configured.
func newNotifier(cfg *model.AppConfig) autoreply.Notifier {
	c := newLineClient(cfg)
	if !c.Configured() {
		logging.LogEvent("notifier_disabled", logrus.Fields{"reason": notify.ErrNotConfigured.Error()})
		return nil
	}
	return c
}

// openStore opens the activity archive, creating its directory.
func openStore(cfg *model.AppConfig) (*store.SQLiteStore, error) {
	path := cfg.Store.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	return store.NewSQLiteStore(path)
}
