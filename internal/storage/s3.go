// Package storage uploads captured face images to S3 compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kozaktomas/face-access/internal/config"
)

// ImageContentType is the content type every capture is stored with.
const ImageContentType = "image/jpeg"

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// putObjectAPI is the part of the S3 client the uploader uses.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores face images as <id>.jpeg in a single bucket.
type S3Uploader struct {
	client putObjectAPI
	cfg    config.StorageConfig
}

// NewS3Uploader builds a client for the configured endpoint. A custom endpoint
// (MinIO, Supabase storage) is addressed path-style.
func NewS3Uploader(ctx context.Context, cfg config.StorageConfig) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{client: client, cfg: cfg}, nil
}

// ObjectKey returns the storage key of an observed user's capture.
func ObjectKey(id string) string {
	return id + ".jpeg"
}

// UploadFaceImage stores the capture under the user's key, overwriting any previous
// one, and returns its public URL.
func (u *S3Uploader) UploadFaceImage(ctx context.Context, id string, data []byte) (string, error) {
	if id == "" {
		return "", errors.New("image id is required")
	}
	if len(data) == 0 {
		return "", errors.New("image data is empty")
	}

	key := ObjectKey(id)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(ImageContentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return u.cfg.ObjectURL(key), nil
}
