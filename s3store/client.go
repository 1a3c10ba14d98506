// Package s3store wraps the AWS SDK v2 S3 client: put, get, list, and the
// multipart primitives the staging store's Streamed mode drives.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"s3sink/sinkerr"
)

// Client is a thin bucket-scoped wrapper over *s3.Client (no prefix —
// prefixing is the naming package's job here, not the store's).
type Client struct {
	api      *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// New builds a Client over an already-configured *s3.Client. Credential
// chains, custom endpoints, and vhost-bucket addressing are resolved by the
// caller when constructing api; this type treats AWS auth as an external
// collaborator.
func New(api *s3.Client, bucket string) *Client {
	return &Client{
		api:      api,
		uploader: manager.NewUploader(api),
		bucket:   bucket,
	}
}

// Put uploads data as a single object at key, used by BuildLocal commits.
func (c *Client) Put(ctx context.Context, key string, data io.Reader) error {
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, data); err != nil {
		return fmt.Errorf("buffering object %q: %w", key, err)
	}
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return classifyAndWrap(fmt.Sprintf("putting object %q", key), err)
	}
	return nil
}

// UploadStream uploads data at key via the multipart manager, used by
// Streamed commits; it accepts a streaming reader rather than requiring the
// whole object to be buffered first.
func (c *Client) UploadStream(ctx context.Context, key string, data io.Reader) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		return classifyAndWrap(fmt.Sprintf("streaming object %q", key), err)
	}
	return nil
}

// classifyAndWrap tags a raw store error with the retriable/fatal sentinel
// the task's error policy dispatches on, via sinkerr.Classify, while
// keeping the original error visible through %v for logging.
func classifyAndWrap(context string, err error) error {
	sentinel := sinkerr.ErrStoreFatal
	if sinkerr.Classify(err) == sinkerr.Retriable {
		sentinel = sinkerr.ErrStoreTransient
	}
	return fmt.Errorf("%s: %w: %v", context, sentinel, err)
}

// Get retrieves the named object's body. Offset recovery only needs
// key-derived offsets, so this exists mainly for completeness/testability.
func (c *Client) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting object %q: %w", key, err)
	}
	return out.Body, nil
}

// List lists every object key under prefix, paging through the full
// result set.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing objects under %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

// Bucket returns the bucket this client is scoped to.
func (c *Client) Bucket() string { return c.bucket }
