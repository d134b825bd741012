package autoreply

import (
	"encoding/base64"
	"strings"

	"github.com/nhle/mail-autoreply/internal/source"
)

// ExtractBody concatenates the decoded text of every text/plain leaf of p
// in traversal order. A payload without sub-parts is decoded whatever its
// type. Leaves that fail to decode contribute nothing, and invalid UTF-8
// is replaced rather than rejected.
func ExtractBody(p source.Part) string {
	if len(p.Parts) == 0 {
		if p.Data == "" {
			return ""
		}
		return decodeData(p.Data)
	}
	var b strings.Builder
	collectPlain(p, &b)
	return b.String()
}

func collectPlain(p source.Part, b *strings.Builder) {
	if len(p.Parts) > 0 {
		for _, child := range p.Parts {
			collectPlain(child, b)
		}
		return
	}
	if !isPlainText(p.MimeType) || p.Data == "" {
		return
	}
	b.WriteString(decodeData(p.Data))
}

func isPlainText(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == "text/plain"
}

// decodeData decodes base64url with or without padding.
func decodeData(data string) string {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return strings.ToValidUTF8(string(raw), "�")
}
