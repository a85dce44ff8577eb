// Package remote adapts an S3 object to the io.ReaderAt a mapbuffer Reader
// needs, so a buffer can be opened directly against a remote object store
// without downloading it first. Only the byte ranges a lookup or
// iteration step actually touches (the header, the index, and the
// individual value slices) are ever fetched.
package remote

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Object is an io.ReaderAt backed by ranged GetObject calls against a
// single bucket/key. It does not cache; callers that expect many
// overlapping reads (e.g. mapbuffer's Reader after ensureIndex) already
// avoid re-fetching the same ranges on their own.
type S3Object struct {
	client s3iface.S3API
	bucket string
	key    string
	size   int64
	ctx    context.Context
}

// NewS3Object opens sess against bucket/key and fetches the object's
// current size via HeadObject.
func NewS3Object(ctx context.Context, sess *session.Session, bucket, key string) (*S3Object, error) {
	client := s3.New(sess)
	head, err := client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("remote: head s3://%s/%s: %w", bucket, key, err)
	}
	return &S3Object{
		client: client,
		bucket: bucket,
		key:    key,
		size:   aws.Int64Value(head.ContentLength),
		ctx:    ctx,
	}, nil
}

// Size returns the object's content length, as reported by HeadObject at
// construction time.
func (o *S3Object) Size() int64 { return o.size }

// ReadAt fetches len(p) bytes starting at off via a ranged GetObject call,
// satisfying io.ReaderAt. A range that runs past the end of the object is
// clamped to it, and the short read is reported with io.EOF.
func (o *S3Object) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off >= o.size {
		return 0, io.EOF
	}
	end := off + int64(len(p)) - 1
	if end >= o.size {
		end = o.size - 1
	}
	rng := fmt.Sprintf("bytes=%d-%d", off, end)

	out, err := o.client.GetObjectWithContext(o.ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
		Range:  aws.String(rng),
	})
	if err != nil {
		return 0, fmt.Errorf("remote: get s3://%s/%s range %s: %w", o.bucket, o.key, rng, err)
	}
	defer out.Body.Close()

	n, err := io.ReadFull(out.Body, p[:end-off+1])
	if err != nil && err != io.ErrUnexpectedEOF {
		return n, err
	}
	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}
