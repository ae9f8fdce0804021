package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/recapd/recapd/internal/config"
)

// S3Store implements Store on any S3-compatible endpoint. A custom endpoint
// (MinIO and friends) switches the client to path-style addressing.
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
}

var _ Store = (*S3Store)(nil)

// NewS3 builds the gateway from configuration. Static credentials are used
// when provided; otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg config.Storage) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: default bucket is required")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, opts ...Option) error {
	bucket := applyOptions(s.bucket, opts)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("storage: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string, opts ...Option) (io.ReadCloser, error) {
	bucket := applyOptions(s.bucket, opts)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: get %s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

func (s *S3Store) Delete(ctx context.Context, key string, opts ...Option) error {
	bucket := applyOptions(s.bucket, opts)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil
		}
		return fmt.Errorf("storage: delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, prefix string, opts ...Option) ([]ObjectInfo, error) {
	bucket := applyOptions(s.bucket, opts)
	var infos []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list %s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			infos = append(infos, ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	return infos, nil
}

func (s *S3Store) PresignGet(ctx context.Context, key string, ttl time.Duration, opts ...Option) (string, error) {
	bucket := applyOptions(s.bucket, opts)
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("storage: presign get %s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}

func (s *S3Store) PresignPut(ctx context.Context, key string, ttl time.Duration, opts ...Option) (string, error) {
	bucket := applyOptions(s.bucket, opts)
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("storage: presign put %s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}
