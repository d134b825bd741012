package autoreply

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/nhle/mail-autoreply/internal/source"
)

// ReplyTemplate is the operator's canned reply.
type ReplyTemplate struct {
	// Subject overrides the derived "Re: ..." subject when non-empty.
	Subject string
	Body    string

	// Attachment is sent only when both fields are set.
	Attachment     []byte
	AttachmentName string
}

// HasAttachment reports whether the template carries a complete attachment.
func (t ReplyTemplate) HasAttachment() bool {
	return len(t.Attachment) > 0 && t.AttachmentName != ""
}

// Original identifies the message being answered.
type Original struct {
	From      string
	Subject   string
	ThreadID  string
	MessageID string
}

// ReplyAddress extracts the bare address from a From header. A header
// that does not parse yields "" unless it is itself a bare address.
func ReplyAddress(from string) string {
	addr, err := mail.ParseAddress(from)
	if err == nil {
		return addr.Address
	}
	from = strings.TrimSpace(from)
	if i := strings.LastIndexByte(from, '<'); i >= 0 {
		if j := strings.IndexByte(from[i:], '>'); j > 0 {
			return strings.TrimSpace(from[i+1 : i+j])
		}
	}
	if strings.Contains(from, "@") && !strings.ContainsAny(from, " <>\"") {
		return from
	}
	return ""
}

// ReplySubject resolves the reply subject.
func ReplySubject(original, override string) string {
	if override != "" {
		return override
	}
	if strings.HasPrefix(original, "Re:") {
		return original
	}
	return "Re: " + original
}

// Compose builds the reply to orig from tmpl.
func Compose(orig Original, tmpl ReplyTemplate) (source.OutgoingReply, error) {
	to := ReplyAddress(orig.From)

	m := gomail.NewMessage()
	if to != "" {
		m.SetAddressHeader("To", to, "")
	}
	m.SetHeader("Subject", ReplySubject(orig.Subject, tmpl.Subject))
	m.SetHeader("In-Reply-To", orig.MessageID)
	m.SetHeader("References", orig.MessageID)
	m.SetBody("text/plain", tmpl.Body)

	if tmpl.HasAttachment() {
		data := tmpl.Attachment
		name := tmpl.AttachmentName
		m.Attach(name,
			gomail.SetHeader(map[string][]string{
				"Content-Type":        {mediaType("application/pdf", "name", name)},
				"Content-Disposition": {mediaType("attachment", "filename", name)},
			}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		)
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return source.OutgoingReply{}, fmt.Errorf("composing reply: %w", err)
	}

	return source.OutgoingReply{
		To:       to,
		Raw:      base64.URLEncoding.EncodeToString(buf.Bytes()),
		ThreadID: orig.ThreadID,
	}, nil
}

// mediaType formats "typ; param=value", falling back to RFC 2231 encoding
// for non-ASCII values.
func mediaType(typ, param, value string) string {
	if v := mime.FormatMediaType(typ, map[string]string{param: value}); v != "" {
		return v
	}
	return typ
}
