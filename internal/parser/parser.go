// Package parser provides RFC 5322 email message parsing with MIME multipart
// support and RFC 2047 header decoding.
package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"

	"github.com/shineum/mail-to-chat/internal/email"
)

// ErrMalformedMessage reports a blob that is not a structurally valid message.
var ErrMalformedMessage = errors.New("malformed message")

// maxDepth bounds multipart nesting. Deeper entities are not inspected.
const maxDepth = 16

// Message is a message whose header block has been read and decoded. The
// body is not inspected until Email is called.
type Message struct {
	From    string
	To      string
	Subject string

	header textproto.Header
	body   []byte
}

// ReadHeader reads the header block of a raw RFC 5322 message and decodes
// its From, To and Subject fields. It fails with ErrMalformedMessage when the
// header block cannot be read.
func ReadHeader(raw []byte) (*Message, error) {
	if !hasHeaderSeparator(raw) {
		return nil, fmt.Errorf("%w: missing header/body separator", ErrMalformedMessage)
	}

	br := bufio.NewReader(bytes.NewReader(raw))
	header, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read message body: %v", ErrMalformedMessage, err)
	}

	return &Message{
		From:    DecodeHeader(header.Get("From")),
		To:      firstRecipient(header.Get("To")),
		Subject: DecodeHeader(header.Get("Subject")),
		header:  header,
		body:    body,
	}, nil
}

// Email walks the MIME tree of the message and returns the parsed Email.
//
// The body is the first text/plain part in document order. Without one, the
// first decodable text/* part is used (HTML is flattened to text), and
// without that the body is empty. The whole tree is read so that a
// truncated multipart structure is reported as ErrMalformedMessage rather
// than producing a partial result.
func (m *Message) Email() (*email.Email, error) {
	w := &bodyWalker{}
	if err := w.visit(m.header, m.body, 0); err != nil {
		return nil, err
	}

	return &email.Email{
		From:    m.From,
		To:      m.To,
		Subject: m.Subject,
		Body:    w.body(),
	}, nil
}

// Parse parses a raw RFC 5322 message into an Email. It is ReadHeader
// followed by Email.
func Parse(raw []byte) (*email.Email, error) {
	m, err := ReadHeader(raw)
	if err != nil {
		return nil, err
	}
	return m.Email()
}

// hasHeaderSeparator reports whether raw contains the blank line that ends
// the header block. An empty header block is allowed.
func hasHeaderSeparator(raw []byte) bool {
	if bytes.HasPrefix(raw, []byte("\r\n")) || bytes.HasPrefix(raw, []byte("\n")) {
		return true
	}
	return bytes.Contains(raw, []byte("\n\n")) || bytes.Contains(raw, []byte("\n\r\n"))
}

// bodyWalker records the first plain-text part and the first other textual
// part while walking a MIME tree.
type bodyWalker struct {
	plain         string
	plainFound    bool
	fallback      string
	fallbackFound bool
}

func (w *bodyWalker) body() string {
	if w.plainFound {
		return w.plain
	}
	return w.fallback
}

func (w *bodyWalker) visit(h textproto.Header, raw []byte, depth int) error {
	mediaType, params := contentType(h)

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("%w: %s entity missing boundary", ErrMalformedMessage, mediaType)
		}
		if depth >= maxDepth {
			slog.Warn("multipart nesting too deep, skipping entity", "depth", depth)
			return nil
		}
		return w.visitMultipart(raw, boundary, depth)
	}

	if !strings.HasPrefix(mediaType, "text/") {
		return nil
	}

	isPlain := mediaType == "text/plain"
	if (isPlain && w.plainFound) || (!isPlain && w.fallbackFound) {
		return nil
	}

	text, ok := decodeText(h, raw)
	if !ok {
		return nil
	}

	switch {
	case isPlain:
		w.plain, w.plainFound = text, true
	case mediaType == "text/html":
		w.fallback, w.fallbackFound = htmlToText(text), true
	default:
		w.fallback, w.fallbackFound = text, true
	}
	return nil
}

// visitMultipart reads every part of a multipart body, recursing into each.
// Parts are read from raw bytes so that structural truncation is told apart
// from a part whose transfer encoding fails to decode.
func (w *bodyWalker) visitMultipart(raw []byte, boundary string, depth int) error {
	mr := textproto.NewMultipartReader(bytes.NewReader(raw), boundary)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}

		content, err := io.ReadAll(part)
		if err != nil {
			return fmt.Errorf("%w: truncated multipart body: %v", ErrMalformedMessage, err)
		}

		if err := w.visit(part.Header, content, depth+1); err != nil {
			return err
		}
	}
}

// contentType returns the media type and parameters of an entity.
// A missing or unparseable Content-Type is treated as text/plain.
func contentType(h textproto.Header) (string, map[string]string) {
	raw := h.Get("Content-Type")
	if raw == "" {
		return "text/plain", nil
	}

	mh := message.Header{Header: h}
	mediaType, params, err := mh.ContentType()
	if err != nil {
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", raw,
			"error", err,
		)
		return "text/plain", nil
	}
	return mediaType, params
}

// decodeText undoes the transfer encoding and converts the declared charset
// to UTF-8. Unknown charsets fall back to UTF-8 with invalid bytes replaced.
// It reports false when the content cannot be decoded at all.
func decodeText(h textproto.Header, raw []byte) (string, bool) {
	entity, err := message.New(message.Header{Header: h}, bytes.NewReader(raw))
	if err != nil {
		switch {
		case message.IsUnknownCharset(err):
			slog.Warn("unknown charset, decoding as UTF-8", "error", err)
		case message.IsUnknownEncoding(err):
			slog.Warn("unknown transfer encoding, using raw content", "error", err)
		default:
			slog.Warn("failed to read MIME part, skipping", "error", err)
			return "", false
		}
	}

	content, err := io.ReadAll(entity.Body)
	if err != nil {
		slog.Warn("failed to decode MIME part, skipping",
			"content_type", h.Get("Content-Type"),
			"error", err,
		)
		return "", false
	}

	return strings.ToValidUTF8(string(content), replacementChar), true
}
