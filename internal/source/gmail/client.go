package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nhle/mail-autoreply/internal/source"
)

const (
	userID      = "me"
	unreadQuery = "is:unread"
	unreadLabel = "UNREAD"
)

// Opener creates Gmail API gateways from an OAuth token file. All gateways
// opened from the same Opener share one request limiter.
type Opener struct {
	tokenFile string
	limiter   *rate.Limiter
	options   []option.ClientOption
}

// NewOpener returns an Opener reading tokenFile and pacing API calls at
// rps requests per second. Extra client options are appended after the
// token source, so an option.WithHTTPClient overrides authentication.
func NewOpener(tokenFile string, rps float64, opts ...option.ClientOption) *Opener {
	if rps <= 0 {
		rps = 5
	}
	return &Opener{
		tokenFile: tokenFile,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		options:   opts,
	}
}

// Open loads the token file and builds a Gmail service.
func (o *Opener) Open(ctx context.Context) (source.Gateway, error) {
	ts, err := loadTokenSource(ctx, o.tokenFile)
	if err != nil {
		return nil, err
	}

	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, o.options...)
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return &Gateway{svc: svc, limiter: o.limiter}, nil
}

// Gateway implements source.Gateway over the Gmail REST API.
type Gateway struct {
	svc     *gmailapi.Service
	limiter *rate.Limiter
}

// ListUnread returns up to max unread message IDs, newest first.
func (g *Gateway) ListUnread(ctx context.Context, max int) ([]string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := g.svc.Users.Messages.List(userID).
		Q(unreadQuery).
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapAPIError("listing unread messages", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// Get fetches the full message payload.
func (g *Gateway) Get(ctx context.Context, id string) (*source.Message, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	msg, err := g.svc.Users.Messages.Get(userID, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapAPIError(fmt.Sprintf("getting message %s", id), err)
	}

	out := &source.Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			out.Headers = append(out.Headers, source.Header{Name: h.Name, Value: h.Value})
		}
		out.Payload = convertPart(msg.Payload)
	}
	return out, nil
}

// Send delivers a composed reply into the original thread.
func (g *Gateway) Send(ctx context.Context, reply source.OutgoingReply) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := g.svc.Users.Messages.Send(userID, &gmailapi.Message{
		Raw:      reply.Raw,
		ThreadId: reply.ThreadID,
	}).Context(ctx).Do()
	if err != nil {
		return wrapAPIError("sending reply", err)
	}
	return nil
}

// MarkRead removes the UNREAD label.
func (g *Gateway) MarkRead(ctx context.Context, id string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := g.svc.Users.Messages.Modify(userID, id, &gmailapi.ModifyMessageRequest{
		RemoveLabelIds: []string{unreadLabel},
	}).Context(ctx).Do()
	if err != nil {
		return wrapAPIError(fmt.Sprintf("marking %s read", id), err)
	}
	return nil
}

// Close is a no-op; the service holds no connection of its own.
func (g *Gateway) Close() error { return nil }

func convertPart(p *gmailapi.MessagePart) source.Part {
	if p == nil {
		return source.Part{}
	}
	out := source.Part{MimeType: p.MimeType}
	if p.Body != nil {
		out.Data = p.Body.Data
	}
	for _, c := range p.Parts {
		out.Parts = append(out.Parts, convertPart(c))
	}
	return out
}

// wrapAPIError turns 401 responses and refused token refreshes into
// CredentialErrors.
func wrapAPIError(op string, err error) error {
	var refreshErr *oauth2.RetrieveError
	if errors.As(err, &refreshErr) {
		return &source.CredentialError{
			Provider: source.ProviderGmail,
			Message:  fmt.Sprintf("%s: refreshing token: %v", op, refreshErr),
		}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return &source.CredentialError{
			Provider: source.ProviderGmail,
			Message:  fmt.Sprintf("%s: %s", op, apiErr.Message),
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
