// Package trigger decodes object-store notifications into message locations.
package trigger

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"

	"github.com/shineum/mail-to-chat/internal/email"
)

// ErrEmptyEvent is returned for a notification without records.
var ErrEmptyEvent = errors.New("event has no records")

// FromS3Event returns one location per record, in record order. Object keys
// in S3 notifications are form-encoded and are decoded here.
func FromS3Event(event events.S3Event) ([]email.Location, error) {
	if len(event.Records) == 0 {
		return nil, ErrEmptyEvent
	}

	locs := make([]email.Location, 0, len(event.Records))
	for i, rec := range event.Records {
		key := rec.S3.Object.URLDecodedKey
		if key == "" {
			decoded, err := url.QueryUnescape(rec.S3.Object.Key)
			if err != nil {
				return nil, fmt.Errorf("record %d: failed to decode key %q: %w", i, rec.S3.Object.Key, err)
			}
			key = decoded
		}

		bucket := rec.S3.Bucket.Name
		if bucket == "" || key == "" {
			return nil, fmt.Errorf("record %d: missing bucket or key", i)
		}
		locs = append(locs, email.Location{Bucket: bucket, Key: key})
	}
	return locs, nil
}
