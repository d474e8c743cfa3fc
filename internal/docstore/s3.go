package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
)

// projectTag is the URL-encoded S3 object tagging string for cost allocation.
const projectTag = "Project=lifeproof-docsum"

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ S3API = (*s3.Client)(nil)

// S3Store implements Store on Amazon S3.
type S3Store struct {
	client S3API
}

var _ Store = (*S3Store)(nil)

// NewS3Store wraps an S3 client.
func NewS3Store(client S3API) *S3Store {
	return &S3Store{client: client}
}

// Get downloads the whole object into memory. Inbound documents are bounded
// text files, so streaming to disk as the media pipeline does is not needed.
func (s *S3Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	start := time.Now()
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("S3 GetObject s3://%s/%s: %w", bucket, key, err)
	}
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	log.Debug().Str("bucket", bucket).Str("key", key).Int("bytes", len(body)).Dur("duration", time.Since(start)).Msg("Downloaded from S3")
	return body, nil
}

// Put uploads body with the given content type and the project cost tag.
func (s *S3Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	tagging := projectTag
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Tagging:     &tagging,
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject s3://%s/%s: %w", bucket, key, err)
	}
	log.Debug().Str("bucket", bucket).Str("key", key).Int("bytes", len(body)).Msg("Uploaded to S3")
	return nil
}

// List pages through ListObjectsV2 and returns every key under prefix.
func (s *S3Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &bucket,
		Prefix: &prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("S3 ListObjectsV2 s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	log.Debug().Str("bucket", bucket).Str("prefix", prefix).Int("count", len(keys)).Msg("Listed S3 prefix")
	return keys, nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
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
