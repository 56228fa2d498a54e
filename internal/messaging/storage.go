// internal/messaging/storage.go

package messaging

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// MediaResolver turns a stored file key into a URL clients can fetch.
type MediaResolver interface {
	SignedURL(fileKey string) (string, error)
}

// S3MediaResolver presigns GET requests against one bucket.
type S3MediaResolver struct {
	s3Client   *s3.S3
	bucketName string
	expiry     time.Duration
}

// NewS3MediaResolver creates a resolver whose URLs stay valid for expiry
func NewS3MediaResolver(awsSession *session.Session, bucketName string, expiry time.Duration) *S3MediaResolver {
	return &S3MediaResolver{
		s3Client:   s3.New(awsSession),
		bucketName: bucketName,
		expiry:     expiry,
	}
}

// SignedURL signs locally; no request is sent to S3.
func (r *S3MediaResolver) SignedURL(fileKey string) (string, error) {
	req, _ := r.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(r.bucketName),
		Key:    aws.String(fileKey),
	})

	url, err := req.Presign(r.expiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", fileKey, err)
	}
	return url, nil
}

// withFileURL returns a copy of media whose metadata carries file_url.
// A nil resolver leaves media untouched.
func withFileURL(resolver MediaResolver, media *Media) (*Media, error) {
	if media == nil || resolver == nil {
		return media, nil
	}

	url, err := resolver.SignedURL(media.FileKey)
	if err != nil {
		return media, err
	}

	signed := *media
	signed.Metadata = make(map[string]interface{}, len(media.Metadata)+1)
	for k, v := range media.Metadata {
		signed.Metadata[k] = v
	}
	signed.Metadata["file_url"] = url
	return &signed, nil
}
