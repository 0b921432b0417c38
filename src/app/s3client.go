package app

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// ClientMinio is the subset of *minio.Client the object store needs.
type ClientMinio interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (info minio.UploadInfo, err error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// ObjectInfo describes one stored blob.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is durable blob storage addressed by key.
type ObjectStore interface {
	UploadFile(ctx context.Context, key string, object io.Reader, size int64, contentType string) error
	DeleteFile(ctx context.Context, key string) error
	ListFiles(ctx context.Context, prefix string) ([]ObjectInfo, error)
	PublicURL(key string) string
	Ping(ctx context.Context) error
}

type MinioS3Client struct {
	bucketName string
	publicURL  string
	client     ClientMinio
	log        logrus.FieldLogger
}

const defaultContentType = "application/octet-stream"

// NewMinioS3Client creates a new MinioS3Client instance.
func NewMinioS3Client(endpoint, accessKeyID, secretAccessKey, region, bucketName, publicURL string, useSSL bool, log logrus.FieldLogger) (*MinioS3Client, error) {
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for %s: %w", endpoint, err)
	}
	return NewMinioS3ClientWith(minioClient, bucketName, publicURL, log), nil
}

// NewMinioS3ClientWith wraps an existing client.
func NewMinioS3ClientWith(client ClientMinio, bucketName, publicURL string, log logrus.FieldLogger) *MinioS3Client {
	return &MinioS3Client{
		bucketName: bucketName,
		publicURL:  publicURL,
		client:     client,
		log:        log.WithField("bucket", bucketName),
	}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s3 *MinioS3Client) EnsureBucket(ctx context.Context, region string) error {
	exists, err := s3.client.BucketExists(ctx, s3.bucketName)
	if err != nil {
		return fmt.Errorf("can not check bucket %s: %w", s3.bucketName, err)
	}
	if exists {
		return nil
	}
	if err := s3.client.MakeBucket(ctx, s3.bucketName, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("can not create bucket %s: %w", s3.bucketName, err)
	}
	s3.log.Info("bucket created")
	return nil
}

func (s3 *MinioS3Client) ListFiles(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make([]ObjectInfo, 0)
	objectCh := s3.client.ListObjects(ctx, s3.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("can not list objects: %w", object.Err)
		}
		result = append(result, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}
	return result, nil
}

// UploadFile uploads a file to the bucket under key.
func (s3 *MinioS3Client) UploadFile(ctx context.Context, key string, object io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = defaultContentType
	}
	_, err := s3.client.PutObject(ctx,
		s3.bucketName,
		key,
		object,
		size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("can not put %s: %w", key, err)
	}
	s3.log.WithField("key", key).Debug("object stored")
	return nil
}

func (s3 *MinioS3Client) DeleteFile(ctx context.Context, key string) error {
	err := s3.client.RemoveObject(ctx, s3.bucketName, key, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("can not remove %s: %w", key, err)
	}
	s3.log.WithField("key", key).Debug("object removed")
	return nil
}

// PublicURL joins the public base address with key.
func (s3 *MinioS3Client) PublicURL(key string) string {
	return JoinPublicURL(s3.publicURL, key)
}

func (s3 *MinioS3Client) Ping(ctx context.Context) error {
	exists, err := s3.client.BucketExists(ctx, s3.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s3.bucketName)
	}
	return nil
}

// JoinPublicURL joins base and key with exactly one slash. A base without a
// scheme is treated as an https host.
func JoinPublicURL(base, key string) string {
	if base != "" && !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(key)
}
