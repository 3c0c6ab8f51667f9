package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/minio/minio-go/v7"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]map[string]string
	statErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, metadata: map[string]map[string]string{}}
}

func (f *fakeObjects) StatObject(_ context.Context, _, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statErr != nil {
		return minio.ObjectInfo{}, f.statErr
	}
	data, ok := f.objects[key]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"}
	}
	return minio.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeObjects) PutObject(_ context.Context, _, key string, reader io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.metadata[key] = opts.UserMetadata
	return minio.UploadInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeObjects) PresignedGetObject(_ context.Context, bucket, key string, expires time.Duration, _ url.Values) (*url.URL, error) {
	return &url.URL{
		Scheme:   "https",
		Host:     "s3.local",
		Path:     "/" + bucket + "/" + key,
		RawQuery: "X-Amz-Expires=" + expires.String(),
	}, nil
}

func TestContentID(t *testing.T) {
	id, err := ContentID([]byte("golden"))
	require.NoError(t, err)

	parsed, err := cid.Decode(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), parsed.Version())
	assert.Equal(t, uint64(cid.Raw), parsed.Type())

	again, err := ContentID([]byte("golden"))
	require.NoError(t, err)
	assert.Equal(t, id, again)

	other, err := ContentID([]byte("golden!"))
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestPublishCreatesThenUpdates(t *testing.T) {
	logger, hook := test.NewNullLogger()
	objects := newFakeObjects()
	client := newClient(objects, Config{Bucket: "pim-assets", PublicBaseURL: "https://cdn.example.com/"}, logger)

	first, err := client.PublishRecord(context.Background(), "golden/SER 1.jpg", []byte{1, 2, 3}, "image/jpeg")
	require.NoError(t, err)
	assert.False(t, first.Updated)
	assert.Equal(t, "https://cdn.example.com/pim-assets/golden/SER%201.jpg", first.URL)
	assert.Equal(t, first.ContentID, objects.metadata["golden/SER 1.jpg"][MetadataContentID])
	assert.Equal(t, "created golden record", hook.LastEntry().Message)

	second, err := client.PublishRecord(context.Background(), "golden/SER 1.jpg", []byte{4, 5}, "image/jpeg")
	require.NoError(t, err)
	assert.True(t, second.Updated)
	assert.NotEqual(t, first.ContentID, second.ContentID)
	assert.Equal(t, []byte{4, 5}, objects.objects["golden/SER 1.jpg"])
	assert.Equal(t, "updated golden record", hook.LastEntry().Message)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
}

func TestPublishPresignsWithoutBaseURL(t *testing.T) {
	logger, _ := test.NewNullLogger()
	client := newClient(newFakeObjects(), Config{Bucket: "pim-assets", PresignGetTTL: time.Hour}, logger)

	link, err := client.Publish(context.Background(), "/golden/SER-2.jpg", bytes.Repeat([]byte{7}, 16), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://s3.local/pim-assets/golden/SER-2.jpg?X-Amz-Expires=1h0m0s", link)
}

func TestPublishErrors(t *testing.T) {
	logger, _ := test.NewNullLogger()
	objects := newFakeObjects()
	client := newClient(objects, Config{Bucket: "pim-assets"}, logger)

	_, err := client.Publish(context.Background(), "  ", []byte{1}, "image/jpeg")
	require.Error(t, err)

	objects.statErr = errors.New("connection refused")
	_, err = client.Publish(context.Background(), "golden/x.jpg", []byte{1}, "image/jpeg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, objects.objects)
}
