package autoreply

import "context"

// Summary placeholders.
const (
	UnavailableSummary = "（要約不可）"
	failedSummaryFmt   = "AIエラー: "
)

// Summarizer produces a short synopsis of a message body.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// SummaryStatus tells how a Summary was produced.
type SummaryStatus int

const (
	SummaryOK SummaryStatus = iota
	// SummaryUnavailable means no summarizer is configured or there was
	// nothing to summarize.
	SummaryUnavailable
	// SummaryFailed means the summarizer returned an error.
	SummaryFailed
)

// Summary is the text placed in the notification.
type Summary struct {
	Text   string
	Status SummaryStatus
}

// Summarize runs s over text. It never fails: a missing summarizer or
// empty text yields the placeholder and an error is embedded in the text.
func Summarize(ctx context.Context, s Summarizer, text string) Summary {
	if s == nil || text == "" {
		return Summary{Text: UnavailableSummary, Status: SummaryUnavailable}
	}
	out, err := s.Summarize(ctx, text)
	if err != nil {
		return Summary{Text: failedSummaryFmt + err.Error(), Status: SummaryFailed}
	}
	return Summary{Text: out, Status: SummaryOK}
}
