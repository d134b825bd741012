package email

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/mail-autoreply/internal/source"
)

// PasswordFunc resolves the mailbox password at open time.
type PasswordFunc func() (string, error)

// Opener connects to an IMAP mailbox once per cycle.
type Opener struct {
	cfg      Config
	password PasswordFunc
}

// NewOpener returns an Opener for cfg.
func NewOpener(cfg Config, password PasswordFunc) *Opener {
	return &Opener{cfg: cfg, password: password}
}

// Open resolves the password, logs in and selects INBOX.
func (o *Opener) Open(ctx context.Context) (source.Gateway, error) {
	if o.cfg.IMAPHost == "" || o.cfg.Username == "" {
		return nil, &source.CredentialError{
			Provider: source.ProviderIMAP,
			Message:  "IMAP host and username are not configured",
		}
	}

	password, err := o.password()
	if err != nil || password == "" {
		return nil, &source.CredentialError{
			Provider: source.ProviderIMAP,
			Message:  fmt.Sprintf("no password stored for %s", o.cfg.Username),
		}
	}

	client, err := NewIMAPClient(
		o.cfg.IMAPHost, o.cfg.IMAPPort, o.cfg.Username, password, o.cfg.TLS,
	).Connect(ctx)
	if err != nil {
		return nil, err
	}

	smtpHost := o.cfg.SMTPHost
	if smtpHost == "" {
		smtpHost = o.cfg.IMAPHost
	}

	return &Gateway{
		client: client,
		from:   o.cfg.Username,
		smtp: SMTPConfig{
			Host:     smtpHost,
			Port:     o.cfg.SMTPPort,
			Username: o.cfg.Username,
			Password: password,
			TLS:      o.cfg.TLS,
		},
	}, nil
}

// Gateway implements source.Gateway over one IMAP session plus SMTP
// submission.
type Gateway struct {
	client *imapclient.Client
	smtp   SMTPConfig
	from   string
}

// ListUnread returns up to max unseen INBOX UIDs, newest first.
func (g *Gateway) ListUnread(_ context.Context, max int) ([]string, error) {
	uids, err := searchUnseen(g.client)
	if err != nil {
		return nil, err
	}
	return newestFirst(uids, max), nil
}

// Get fetches and parses one message.
func (g *Gateway) Get(_ context.Context, id string) (*source.Message, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}

	raw, err := fetchRaw(g.client, uid)
	if err != nil {
		return nil, err
	}

	return parseRawMessage(id, raw)
}

// Send decodes the composed message and submits it over SMTP.
func (g *Gateway) Send(_ context.Context, reply source.OutgoingReply) error {
	raw, err := base64.URLEncoding.DecodeString(reply.Raw)
	if err != nil {
		return fmt.Errorf("decoding composed reply: %w", err)
	}

	return sendSMTP(g.smtp, g.from, []string{reply.To}, withFrom(raw, g.from))
}

// MarkRead sets \Seen.
func (g *Gateway) MarkRead(_ context.Context, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	if err := addSeen(g.client, uid); err != nil {
		return fmt.Errorf("marking %s read: %w", id, err)
	}
	return nil
}

// Close logs out.
func (g *Gateway) Close() error {
	return g.client.Logout().Wait()
}
