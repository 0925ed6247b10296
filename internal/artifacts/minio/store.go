package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/krancour/secureimage/internal/artifacts"
	"github.com/krancour/secureimage/sdk/meta"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// client is the subset of *minio.Client used by the store.
type client interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(
		ctx context.Context,
		bucketName string,
		opts minio.MakeBucketOptions,
	) error
	PutObject(
		ctx context.Context,
		bucketName string,
		objectName string,
		reader io.Reader,
		objectSize int64,
		opts minio.PutObjectOptions,
	) (minio.UploadInfo, error)
	GetObject(
		ctx context.Context,
		bucketName string,
		objectName string,
		opts minio.GetObjectOptions,
	) (*minio.Object, error)
	StatObject(
		ctx context.Context,
		bucketName string,
		objectName string,
		opts minio.StatObjectOptions,
	) (minio.ObjectInfo, error)
	PresignedGetObject(
		ctx context.Context,
		bucketName string,
		objectName string,
		expires time.Duration,
		reqParams url.Values,
	) (*url.URL, error)
	RemoveObject(
		ctx context.Context,
		bucketName string,
		objectName string,
		opts minio.RemoveObjectOptions,
	) error
	ListObjects(
		ctx context.Context,
		bucketName string,
		opts minio.ListObjectsOptions,
	) <-chan minio.ObjectInfo
}

type store struct {
	client client
	bucket string
	region string
}

// NewStore returns an artifacts.Store backed by a MinIO or S3 bucket.
func NewStore(config Config) (artifacts.Store, error) {
	c, err := minio.New(
		config.Endpoint,
		&minio.Options{
			Creds: credentials.NewStaticV4(
				config.AccessKey,
				config.SecretKey,
				"",
			),
			Secure: config.UseSSL,
			Region: config.Region,
		},
	)
	if err != nil {
		return nil, errors.Wrapf(
			err,
			"error creating client for object storage at %s",
			config.Endpoint,
		)
	}
	return &store{
		client: c,
		bucket: config.Bucket,
		region: config.Region,
	}, nil
}

func (s *store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.Wrapf(err, "error checking for bucket %q", s.bucket)
	}
	if exists {
		return nil
	}
	if err = s.client.MakeBucket(
		ctx,
		s.bucket,
		minio.MakeBucketOptions{Region: s.region},
	); err != nil {
		return errors.Wrapf(err, "error creating bucket %q", s.bucket)
	}
	return nil
}

func (s *store) Put(
	ctx context.Context,
	name string,
	r io.Reader,
	size int64,
) (string, error) {
	info, err := s.client.PutObject(
		ctx,
		s.bucket,
		name,
		r,
		size,
		minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		},
	)
	if err != nil {
		return "", errors.Wrapf(err, "error uploading artifact %q", name)
	}
	return info.ETag, nil
}

func (s *store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	// GetObject defers any request until the object is read, so stat first to
	// surface a missing object as such.
	if _, err := s.Stat(ctx, name); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "error getting artifact %q", name)
	}
	return obj, nil
}

func (s *store) Stat(
	ctx context.Context,
	name string,
) (artifacts.ObjectInfo, error) {
	info, err := s.client.StatObject(
		ctx,
		s.bucket,
		name,
		minio.StatObjectOptions{},
	)
	if err != nil {
		if isNotFound(err) {
			return artifacts.ObjectInfo{}, &meta.ErrNotFound{
				Type: "Artifact",
				ID:   name,
			}
		}
		return artifacts.ObjectInfo{},
			errors.Wrapf(err, "error getting info for artifact %q", name)
	}
	return toObjectInfo(info), nil
}

func (s *store) PresignedURL(
	ctx context.Context,
	name string,
	ttl time.Duration,
	downloadName string,
) (string, error) {
	reqParams := url.Values{}
	if downloadName != "" {
		reqParams.Set(
			"response-content-disposition",
			fmt.Sprintf("attachment;filename=%s", downloadName),
		)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, name, ttl, reqParams)
	if err != nil {
		return "", errors.Wrapf(
			err,
			"error creating presigned URL for artifact %q",
			name,
		)
	}
	return u.String(), nil
}

func (s *store) Remove(ctx context.Context, name string) error {
	if err := s.client.RemoveObject(
		ctx,
		s.bucket,
		name,
		minio.RemoveObjectOptions{},
	); err != nil {
		return errors.Wrapf(err, "error removing artifact %q", name)
	}
	return nil
}

func (s *store) List(
	ctx context.Context,
	prefix string,
) ([]artifacts.ObjectInfo, error) {
	infos := []artifacts.ObjectInfo{}
	for info := range s.client.ListObjects(
		ctx,
		s.bucket,
		minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		},
	) {
		if info.Err != nil {
			return nil, errors.Wrapf(
				info.Err,
				"error listing artifacts in bucket %q",
				s.bucket,
			)
		}
		infos = append(infos, toObjectInfo(info))
	}
	return infos, nil
}

func toObjectInfo(info minio.ObjectInfo) artifacts.ObjectInfo {
	return artifacts.ObjectInfo{
		Name:         info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ETag:         info.ETag,
	}
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}
