// internal/common/aws/s3.go
package aws

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client the uploader needs.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Client struct {
	client        S3API
	bucket        string
	publicBaseURL string
}

func NewS3Client(ctx context.Context, region, bucket, publicBaseURL string) (*S3Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewS3ClientWithAPI(s3.NewFromConfig(cfg), region, bucket, publicBaseURL), nil
}

// NewS3ClientWithAPI wraps an existing client. With no publicBaseURL,
// objects resolve to the bucket's virtual-hosted URL.
func NewS3ClientWithAPI(api S3API, region, bucket, publicBaseURL string) *S3Client {
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &S3Client{client: api, bucket: bucket, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Upload stores body under key and returns the URL it can be fetched from.
func (c *S3Client) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      awssdk.String(c.bucket),
		Key:         awssdk.String(key),
		Body:        body,
		ContentType: awssdk.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return c.ObjectURL(key), nil
}

// ObjectURL escapes each key segment but keeps the slashes.
func (c *S3Client) ObjectURL(key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return c.publicBaseURL + "/" + strings.Join(segs, "/")
}
