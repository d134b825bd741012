package autoreply

import (
	"encoding/base64"
	"testing"

	"github.com/nalgeon/be"

	"github.com/nhle/mail-autoreply/internal/source"
)

func enc(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestExtractBodyNestedPlainLeaves(t *testing.T) {
	payload := source.Part{
		MimeType: "multipart/mixed",
		Parts: []source.Part{
			{
				MimeType: "multipart/alternative",
				Parts: []source.Part{
					{MimeType: "text/plain", Data: enc("Hello ")},
					{MimeType: "text/html", Data: enc("<b>Hello</b>")},
				},
			},
			{MimeType: "text/plain; charset=UTF-8", Data: enc("World")},
			{MimeType: "application/pdf", Data: enc("%PDF")},
		},
	}
	be.Equal(t, ExtractBody(payload), "Hello World")
}

func TestExtractBodyHTMLOnly(t *testing.T) {
	payload := source.Part{
		MimeType: "multipart/alternative",
		Parts:    []source.Part{{MimeType: "text/html", Data: enc("<p>hi</p>")}},
	}
	be.Equal(t, ExtractBody(payload), "")
}

func TestExtractBodySinglePart(t *testing.T) {
	be.Equal(t, ExtractBody(source.Part{MimeType: "text/plain", Data: enc("本文です")}), "本文です")
	be.Equal(t, ExtractBody(source.Part{MimeType: "text/html", Data: enc("<p>Please call me</p>")}), "<p>Please call me</p>")
	be.Equal(t, ExtractBody(source.Part{Data: enc("untyped")}), "untyped")
	be.Equal(t, ExtractBody(source.Part{MimeType: "text/plain"}), "")
}

func TestExtractBodyUnpaddedData(t *testing.T) {
	data := base64.RawURLEncoding.EncodeToString([]byte("ab"))
	be.Equal(t, ExtractBody(source.Part{MimeType: "text/plain", Data: data}), "ab")
}

func TestExtractBodyMalformedLeafIsSkipped(t *testing.T) {
	payload := source.Part{
		MimeType: "multipart/mixed",
		Parts: []source.Part{
			{MimeType: "text/plain", Data: "!!not base64!!"},
			{MimeType: "text/plain", Data: enc("ok")},
		},
	}
	be.Equal(t, ExtractBody(payload), "ok")
}

func TestExtractBodyInvalidUTF8(t *testing.T) {
	data := base64.URLEncoding.EncodeToString([]byte{'a', 0xff, 'b'})
	be.Equal(t, ExtractBody(source.Part{MimeType: "text/plain", Data: data}), "a�b")
}
