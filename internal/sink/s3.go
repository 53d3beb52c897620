package sink

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// newS3Client builds a client for AWS or an S3-compatible endpoint. Custom
// endpoints default to path-style addressing.
func newS3Client(creds Credentials) (*s3.Client, error) {
	if creds.S3KeyID == "" || creds.S3Secret == "" {
		return nil, fmt.Errorf("S3 key id and secret are required")
	}
	region := creds.S3Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(creds.S3KeyID, creds.S3Secret, ""),
	}
	if creds.S3Endpoint != "" {
		opts.BaseEndpoint = aws.String("https://" + creds.S3Endpoint)
		opts.UsePathStyle = creds.S3URLStyle != "vhost"
	}
	return s3.New(opts), nil
}

func openS3(ctx context.Context, t Target, creds Credentials) (io.WriteCloser, error) {
	client, err := newS3Client(creds)
	if err != nil {
		return nil, err
	}
	return newSpool(func(f *os.File, size int64) error {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(t.Bucket),
			Key:           aws.String(t.Key),
			Body:          f,
			ContentLength: aws.Int64(size),
			ContentType:   aws.String(ContentType),
		})
		if err != nil {
			return fmt.Errorf("put object %s: %w", t, err)
		}
		return nil
	})
}
