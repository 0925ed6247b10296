package minio

import (
	"context"
	"errors"
	"io"
	"io/ioutil"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/krancour/secureimage/sdk/meta"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
)

const testBucket = "artifacts"

type fakeClient struct {
	buckets map[string]bool
	objects map[string]minio.ObjectInfo
	data    map[string][]byte
	params  url.Values
	listErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		buckets: map[string]bool{},
		objects: map[string]minio.ObjectInfo{},
		data:    map[string][]byte{},
	}
}

func (f *fakeClient) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeClient) MakeBucket(
	_ context.Context,
	bucket string,
	_ minio.MakeBucketOptions,
) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeClient) PutObject(
	_ context.Context,
	_ string,
	name string,
	reader io.Reader,
	_ int64,
	_ minio.PutObjectOptions,
) (minio.UploadInfo, error) {
	data, err := ioutil.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.data[name] = data
	f.objects[name] = minio.ObjectInfo{
		Key:          name,
		Size:         int64(len(data)),
		LastModified: time.Now(),
		ETag:         "etag-" + name,
	}
	return minio.UploadInfo{Key: name, ETag: "etag-" + name}, nil
}

func (f *fakeClient) GetObject(
	context.Context,
	string,
	string,
	minio.GetObjectOptions,
) (*minio.Object, error) {
	return nil, nil
}

func (f *fakeClient) StatObject(
	_ context.Context,
	_ string,
	name string,
	_ minio.StatObjectOptions,
) (minio.ObjectInfo, error) {
	info, ok := f.objects[name]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{
			Code:       "NoSuchKey",
			StatusCode: 404,
		}
	}
	return info, nil
}

func (f *fakeClient) PresignedGetObject(
	_ context.Context,
	bucket string,
	name string,
	_ time.Duration,
	params url.Values,
) (*url.URL, error) {
	f.params = params
	return url.Parse("https://minio.example.com/" + bucket + "/" + name)
}

func (f *fakeClient) RemoveObject(
	_ context.Context,
	_ string,
	name string,
	_ minio.RemoveObjectOptions,
) error {
	delete(f.objects, name)
	delete(f.data, name)
	return nil
}

func (f *fakeClient) ListObjects(
	context.Context,
	string,
	minio.ListObjectsOptions,
) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(f.objects)+1)
	if f.listErr != nil {
		ch <- minio.ObjectInfo{Err: f.listErr}
	}
	for _, info := range f.objects {
		ch <- info
	}
	close(ch)
	return ch
}

func TestEnsureBucket(t *testing.T) {
	client := newFakeClient()
	s := &store{client: client, bucket: testBucket}
	require.NoError(t, s.EnsureBucket(context.Background()))
	require.True(t, client.buckets[testBucket])
	// Idempotent
	require.NoError(t, s.EnsureBucket(context.Background()))
}

func TestPutAndStat(t *testing.T) {
	client := newFakeClient()
	s := &store{client: client, bucket: testBucket}
	etag, err := s.Put(
		context.Background(),
		"job-1/app.apk",
		strings.NewReader("apk"),
		3,
	)
	require.NoError(t, err)
	require.Equal(t, "etag-job-1/app.apk", etag)
	info, err := s.Stat(context.Background(), "job-1/app.apk")
	require.NoError(t, err)
	require.Equal(t, "job-1/app.apk", info.Name)
	require.Equal(t, int64(3), info.Size)
}

func TestStatNotFound(t *testing.T) {
	s := &store{client: newFakeClient(), bucket: testBucket}
	_, err := s.Stat(context.Background(), "job-1/missing.apk")
	require.Error(t, err)
	require.IsType(t, &meta.ErrNotFound{}, err)
	_, err = s.Get(context.Background(), "job-1/missing.apk")
	require.IsType(t, &meta.ErrNotFound{}, err)
}

func TestPresignedURL(t *testing.T) {
	client := newFakeClient()
	s := &store{client: client, bucket: testBucket}
	u, err := s.PresignedURL(
		context.Background(),
		"job-1/app.ipa",
		15*time.Minute,
		"app-signed.ipa",
	)
	require.NoError(t, err)
	require.Equal(t, "https://minio.example.com/artifacts/job-1/app.ipa", u)
	require.Equal(
		t,
		"attachment;filename=app-signed.ipa",
		client.params.Get("response-content-disposition"),
	)
}

func TestListAndRemove(t *testing.T) {
	client := newFakeClient()
	s := &store{client: client, bucket: testBucket}
	_, err := s.Put(context.Background(), "job-1/a", strings.NewReader("a"), 1)
	require.NoError(t, err)
	infos, err := s.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.NoError(t, s.Remove(context.Background(), "job-1/a"))
	infos, err = s.List(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, infos)

	client.listErr = errors.New("connection reset")
	_, err = s.List(context.Background(), "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection reset")
}
