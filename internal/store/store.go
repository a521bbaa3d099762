// Package store reads raw message blobs from an object store.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/shineum/mail-to-chat/internal/email"
)

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Reader fetches the raw message stored at a location.
type Reader interface {
	Get(ctx context.Context, loc email.Location) ([]byte, error)
}

// GetObjectAPI is the interface for the S3 GetObject operation.
// Used for testing with mock implementations.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 reads objects from Amazon S3.
type S3 struct {
	client GetObjectAPI
}

// NewS3 creates an S3 reader from a loaded AWS config.
func NewS3(cfg aws.Config) *S3 {
	return &S3{client: s3.NewFromConfig(cfg)}
}

// NewS3WithClient creates an S3 reader with a custom client, used for testing.
func NewS3WithClient(client GetObjectAPI) *S3 {
	return &S3{client: client}
}

// Get downloads the object at loc.
func (s *S3) Get(ctx context.Context, loc email.Location) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrObjectNotFound, loc, err)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", loc, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", loc, err)
	}
	return data, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}

// File reads messages from the local filesystem. The location key is the
// file path; the bucket is ignored.
type File struct{}

// Get reads the file named by loc.Key.
func (File) Get(_ context.Context, loc email.Location) ([]byte, error) {
	data, err := os.ReadFile(loc.Key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, loc.Key)
		}
		return nil, fmt.Errorf("failed to read %s: %w", loc.Key, err)
	}
	return data, nil
}
