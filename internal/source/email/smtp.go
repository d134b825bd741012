package email

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// sendSMTP authenticates with PLAIN and submits msg. Implicit TLS is used
// when cfg.TLS is set, STARTTLS otherwise.
func sendSMTP(cfg SMTPConfig, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	tlsConfig := &tls.Config{ServerName: cfg.Host}

	var client *smtp.Client
	var err error
	if cfg.TLS {
		client, err = smtp.DialTLS(addr, tlsConfig)
	} else {
		client, err = smtp.DialStartTLS(addr, tlsConfig)
	}
	if err != nil {
		return fmt.Errorf("dialing SMTP %s: %w", addr, err)
	}
	defer client.Close()

	auth := sasl.NewPlainClient("", cfg.Username, cfg.Password)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth: %w", err)
	}

	if err := client.SendMail(from, to, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("SMTP send: %w", err)
	}

	return client.Quit()
}
