package parser

import (
	"io"
	"log/slog"
	"mime"
	"net/mail"
	"strings"

	"github.com/emersion/go-message/charset"
)

// replacementChar stands in for bytes that are invalid under the declared charset.
const replacementChar = "\uFFFD"

// wordDecoder decodes RFC 2047 encoded-words. Its charset reader never fails,
// so a single unsupported segment cannot abort a whole header.
var wordDecoder = &mime.WordDecoder{CharsetReader: lenientCharsetReader}

// addressParser shares wordDecoder so display names decode the same way
// as every other header.
var addressParser = &mail.AddressParser{WordDecoder: wordDecoder}

// DecodeHeader decodes a raw header value that may contain zero or more
// encoded-word segments into a single UTF-8 string.
//
// Segments are decoded in order and concatenated. Whitespace between two
// adjacent encoded-words is dropped; plain text passes through unchanged.
// Bytes that are invalid under a segment's charset, or segments with an
// unsupported charset, come out as U+FFFD instead of failing.
func DecodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		slog.Warn("failed to decode header, keeping raw value", "error", err)
		decoded = value
	}
	return strings.ToValidUTF8(decoded, replacementChar)
}

// lenientCharsetReader converts from the given charset to UTF-8. Unknown
// charsets pass the bytes through untouched; DecodeHeader later replaces
// anything that is not valid UTF-8.
func lenientCharsetReader(label string, input io.Reader) (io.Reader, error) {
	r, err := charset.Reader(label, input)
	if err != nil {
		slog.Debug("unsupported header charset, decoding as UTF-8",
			"charset", label,
			"error", err,
		)
		return input, nil
	}
	return r, nil
}

// firstRecipient returns the bare address of the first entry of a To header.
// If the header is not a valid address list, the decoded value is returned
// as-is and left for the router to reject.
func firstRecipient(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	addresses, err := addressParser.ParseList(raw)
	if err == nil && len(addresses) > 0 {
		return addresses[0].Address
	}

	slog.Debug("failed to parse To header as address list", "error", err)
	return strings.TrimSpace(DecodeHeader(raw))
}
