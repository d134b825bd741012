package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"

	"github.com/nhle/mail-autoreply/internal/source"
)

// parseRawMessage turns an RFC 5322 message into the gateway message form:
// decoded headers and a Part tree whose leaves carry their decoded body,
// base64url encoded.
func parseRawMessage(id string, raw []byte) (*source.Message, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("parsing message %s: %w", id, err)
	}

	msg := &source.Message{ID: id}

	fields := entity.Header.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		msg.Headers = append(msg.Headers, source.Header{
			Name:  fields.Key(),
			Value: value,
		})
	}

	msg.Payload = toPart(entity)
	return msg, nil
}

func toPart(e *message.Entity) source.Part {
	mediaType, _, err := e.Header.ContentType()
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}
	part := source.Part{MimeType: strings.ToLower(mediaType)}

	if mr := e.MultipartReader(); mr != nil {
		for {
			child, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) {
				break
			}
			part.Parts = append(part.Parts, toPart(child))
		}
		return part
	}

	body, err := io.ReadAll(e.Body)
	if err != nil && len(body) == 0 {
		return part
	}
	part.Data = base64.URLEncoding.EncodeToString(body)
	return part
}

// withFrom prefixes a composed message with a From header when it lacks
// one. Gmail fills From itself; SMTP servers do not.
func withFrom(raw []byte, from string) []byte {
	end := bytes.Index(raw, []byte("\r\n\r\n"))
	if end < 0 {
		end = len(raw)
	}
	for _, line := range strings.Split(string(raw[:end]), "\r\n") {
		if strings.HasPrefix(strings.ToLower(line), "from:") {
			return raw
		}
	}

	var b bytes.Buffer
	b.WriteString("From: " + from + "\r\n")
	b.Write(raw)
	return b.Bytes()
}
