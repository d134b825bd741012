package autoreply

import "strings"

// spamKeywords mark automated senders.
var spamKeywords = []string{
	"no-reply",
	"noreply",
	"mailer-daemon",
	"google",
	"amazon",
	"rakuten",
	"unknown",
}

// ShouldSkip reports whether a message from sender is skipped. It only
// ever returns true when the filter is enabled.
func ShouldSkip(sender string, filterEnabled bool) bool {
	if !filterEnabled {
		return false
	}
	s := strings.ToLower(sender)
	for _, kw := range spamKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
