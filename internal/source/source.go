package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider identifies the mailbox backend behind a Gateway.
type Provider string

const (
	ProviderGmail Provider = "gmail"
	ProviderIMAP  Provider = "imap"
)

// CredentialError indicates that the mailbox credential is missing, unreadable
// or was refused. A cycle that hits it aborts without touching loop state.
type CredentialError struct {
	Provider Provider
	Message  string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential error (%s): %s", e.Provider, e.Message)
}

// IsCredentialError reports whether err (or any error in its chain) is a
// CredentialError.
func IsCredentialError(err error) bool {
	var credErr *CredentialError
	return errors.As(err, &credErr)
}

// Header is one message header field.
type Header struct {
	Name  string
	Value string
}

// Part is a node of a message's MIME tree. Leaf data is base64url encoded,
// the way the Gmail API returns it; gateways for other providers encode
// decoded leaf bodies the same way.
type Part struct {
	MimeType string
	Data     string
	Parts    []Part
}

// Message is a fetched inbox message.
type Message struct {
	ID       string
	ThreadID string
	Headers  []Header
	Payload  Part
}

// Header returns the value of the first header named name, matched case
// insensitively, and whether it was present.
func (m Message) Header(name string) (string, bool) {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// OutgoingReply is a composed message ready for transport: Raw is the
// base64url encoded RFC 5322 message.
type OutgoingReply struct {
	To       string
	Raw      string
	ThreadID string
}

// Gateway is a live mailbox session.
type Gateway interface {
	// ListUnread returns up to max unread message IDs, newest first.
	ListUnread(ctx context.Context, max int) ([]string, error)

	// Get fetches a full message without changing its read state.
	Get(ctx context.Context, id string) (*Message, error)

	// Send delivers a composed reply.
	Send(ctx context.Context, reply OutgoingReply) error

	// MarkRead removes the unread designation from a message.
	MarkRead(ctx context.Context, id string) error

	// Close releases the session.
	Close() error
}

// Opener acquires a Gateway for one cycle. It returns a CredentialError
// when no usable credential is stored.
type Opener interface {
	Open(ctx context.Context) (Gateway, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (Gateway, error)

// Open calls f(ctx).
func (f OpenerFunc) Open(ctx context.Context) (Gateway, error) {
	return f(ctx)
}
