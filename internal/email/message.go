// Package email defines the core email data model used throughout the pipeline.
package email

import "fmt"

// Location names a stored raw message in the object store.
type Location struct {
	Bucket string
	Key    string
}

// String returns the location as an s3:// style URI.
func (l Location) String() string {
	return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Key)
}

// RawMessage is the undecoded message blob fetched for a single run.
type RawMessage struct {
	Location Location
	Data     []byte
}

// Email represents a parsed email message.
// Subject and Body never contain unresolved encoded-words.
type Email struct {
	// From is the decoded From header, display name included.
	From string
	// To is the first recipient address from the To header.
	To      string
	Subject string
	// Body is the plain-text representation of the message body.
	Body string
}
