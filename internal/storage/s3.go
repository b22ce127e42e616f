package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"kycverify/internal/evidence"
	"kycverify/pkg/platform/sentinel"
)

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 stores objects in one bucket, encrypted with KMS when a key is configured.
type S3 struct {
	client   S3API
	bucket   string
	kmsKeyID string
}

func NewS3(client S3API, bucket, kmsKeyID string) *S3 {
	return &S3{client: client, bucket: bucket, kmsKeyID: kmsKeyID}
}

func (s *S3) Put(ctx context.Context, key, contentType string, body []byte) (evidence.ObjectRef, error) {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}
	if s.kmsKeyID != "" {
		in.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		in.SSEKMSKeyId = aws.String(s.kmsKeyID)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return evidence.ObjectRef{}, fmt.Errorf("s3 put %s: %w", key, err)
	}
	return evidence.ObjectRef{Bucket: s.bucket, Key: key}, nil
}

func (s *S3) Get(ctx context.Context, ref evidence.ObjectRef) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get %s: %w", ref.Key, err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", ref.Key, err)
	}
	return body, nil
}
