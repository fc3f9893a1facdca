package aws

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if params.Body != nil {
		b, _ := io.ReadAll(params.Body)
		f.body = string(b)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Client_Upload(t *testing.T) {
	api := &fakeS3{}
	client := NewS3ClientWithAPI(api, "us-west-2", "portal-uploads", "https://cdn.example.com/")

	url, err := client.Upload(context.Background(), "applicants/u 1/resume.pdf", "application/pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/applicants/u%201/resume.pdf", url)
	assert.Equal(t, "portal-uploads", *api.input.Bucket)
	assert.Equal(t, "applicants/u 1/resume.pdf", *api.input.Key)
	assert.Equal(t, "application/pdf", *api.input.ContentType)
	assert.Equal(t, "%PDF", api.body)
}

func TestS3Client_DefaultURLAndFailure(t *testing.T) {
	api := &fakeS3{err: errors.New("access denied")}
	client := NewS3ClientWithAPI(api, "us-west-2", "portal-uploads", "")

	assert.Equal(t, "https://portal-uploads.s3.us-west-2.amazonaws.com/a/b.pdf", client.ObjectURL("a/b.pdf"))

	_, err := client.Upload(context.Background(), "a/b.pdf", "application/pdf", strings.NewReader(""))
	assert.ErrorContains(t, err, "access denied")
}
