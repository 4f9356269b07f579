package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// maxObjectSize bounds a single report download.
const maxObjectSize = 8 << 20

// Reader implements domain.BlobReader for archived batch reports.
type Reader struct {
	client  *s3.Client
	bucket  string
	maxSize int64
}

func NewReader(c *Client) *Reader {
	return &Reader{client: c.S3(), bucket: c.Bucket(), maxSize: maxObjectSize}
}

// Get opens the object at key. The caller closes the body. A missing key
// yields domain.ErrNotFound; an object over the size bound is refused
// before its body is read.
func (r *Reader) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("s3blob: get %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: get %s: %w", key, err)
	}
	if size := aws.ToInt64(out.ContentLength); size > r.maxSize {
		out.Body.Close()
		return nil, fmt.Errorf("s3blob: get %s: object is %d bytes, limit %d", key, size, r.maxSize)
	}
	return out.Body, nil
}

// isMissing recognises a missing object across AWS and S3-compatible
// stores, which differ in how they report it.
func isMissing(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

var _ domain.BlobReader = (*Reader)(nil)
