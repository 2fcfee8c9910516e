package extract

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message"
)

const (
	mediaPlain = "text/plain"
	mediaHTML  = "text/html"
)

// Part is one leaf of a parsed message.
type Part struct {
	ContentType string
	Charset     string
	Attachment  bool
	// Payload is the transfer-decoded body. Attachments are not read.
	Payload []byte
}

// Message is the structure of a raw email: its leaf parts in structural order.
type Message struct {
	Multipart bool
	Parts     []Part
}

// Parse reads the MIME structure of raw. It never fails: an unreadable header turns
// the whole input into a single text/plain part, and a broken multipart body keeps the
// parts read before the damage.
func Parse(raw []byte) *Message {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return &Message{Parts: []Part{{ContentType: mediaPlain, Payload: raw}}}
	}

	mediaType, _, _ := entity.Header.ContentType()
	if !strings.HasPrefix(strings.ToLower(mediaType), "multipart/") {
		return &Message{Parts: []Part{readPart(entity, err)}}
	}

	msg := &Message{Multipart: true}
	_ = entity.Walk(func(path []int, part *message.Entity, err error) error {
		if path == nil {
			return nil
		}
		t, _, _ := part.Header.ContentType()
		if strings.HasPrefix(strings.ToLower(t), "multipart/") {
			return nil
		}
		msg.Parts = append(msg.Parts, readPart(part, err))
		return nil
	})

	return msg
}

// ExtractBody selects the body text of msg. For multipart messages the first text/plain
// part wins, wherever it sits; only when there is none is the first text/html part
// converted to plain text. Attachments are skipped. A single-part message is decoded as
// is. Returns "" when nothing qualifies.
func (d *Decoder) ExtractBody(msg *Message) string {
	if msg == nil || len(msg.Parts) == 0 {
		return ""
	}

	if !msg.Multipart {
		p := msg.Parts[0]
		return d.Decode(p.Payload, p.Charset)
	}

	var html *Part
	for i := range msg.Parts {
		p := &msg.Parts[i]
		if p.Attachment {
			continue
		}
		switch p.ContentType {
		case mediaPlain:
			return d.Decode(p.Payload, p.Charset)
		case mediaHTML:
			if html == nil {
				html = p
			}
		}
	}

	if html != nil {
		return HTMLToText(d.Decode(html.Payload, html.Charset))
	}
	return ""
}

func readPart(entity *message.Entity, readErr error) Part {
	mediaType, params, err := entity.Header.ContentType()
	if err != nil || mediaType == "" {
		mediaType = mediaPlain
	}

	p := Part{
		ContentType: strings.ToLower(mediaType),
		Charset:     params["charset"],
		Attachment:  isAttachment(entity.Header),
	}

	// Without a registered message.CharsetReader the body keeps its declared charset and
	// go-message reports it as unknown. If a reader is registered the body arrives as UTF-8.
	if p.Charset != "" && readErr == nil && !isUTF8Label(p.Charset) {
		p.Charset = "utf-8"
	}

	if p.Attachment {
		return p
	}

	payload, err := io.ReadAll(entity.Body)
	if err != nil && len(payload) == 0 {
		return p
	}
	p.Payload = payload
	return p
}

func isAttachment(h message.Header) bool {
	disp, _, err := h.ContentDisposition()
	if err == nil {
		return strings.EqualFold(disp, "attachment")
	}
	return strings.Contains(strings.ToLower(h.Get("Content-Disposition")), "attachment")
}

func isUTF8Label(charset string) bool {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "utf-8", "us-ascii":
		return true
	}
	return false
}
