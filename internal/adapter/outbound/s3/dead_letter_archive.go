package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/uniedit/payflow/internal/port/outbound"
)

const defaultArchivePrefix = "dead-letters"

// ObjectPutter is the subset of *s3.Client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// DeadLetterArchive stores raw payloads of dead-lettered webhook events.
type DeadLetterArchive struct {
	client ObjectPutter
	bucket string
	prefix string
	now    func() time.Time
}

// NewDeadLetterArchive creates a dead-letter archive writing to bucket.
func NewDeadLetterArchive(client ObjectPutter, bucket, prefix string) *DeadLetterArchive {
	if prefix == "" {
		prefix = defaultArchivePrefix
	}
	return &DeadLetterArchive{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// Archive writes payload to <prefix>/<provider>/<yyyy>/<mm>/<dd>/<event id>.
func (a *DeadLetterArchive) Archive(ctx context.Context, provider, externalEventID string, payload []byte) (string, error) {
	key := path.Join(
		a.prefix,
		url.PathEscape(provider),
		a.now().UTC().Format("2006/01/02"),
		url.PathEscape(externalEventID),
	)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"provider": provider,
			"event-id": externalEventID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive dead letter %s/%s: %w", provider, externalEventID, err)
	}
	return key, nil
}

// Compile-time check
var _ outbound.DeadLetterArchivePort = (*DeadLetterArchive)(nil)
