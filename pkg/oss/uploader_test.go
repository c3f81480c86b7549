package oss

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxo/tsv-export/pkg/config"
	"github.com/fluxo/tsv-export/pkg/logger"
)

type fakeBucket struct {
	objectBucket
	objects map[string]bool
	signErr error
}

func (b *fakeBucket) PutObjectFromFile(objectKey, filePath string, options ...oss.Option) error {
	b.objects[objectKey] = true
	return nil
}

func (b *fakeBucket) SignURL(objectKey string, method oss.HTTPMethod, expiredInSec int64, options ...oss.Option) (string, error) {
	if b.signErr != nil {
		return "", b.signErr
	}
	return "https://bucket.example.com/" + objectKey, nil
}

func (b *fakeBucket) DeleteObject(objectKey string, options ...oss.Option) error {
	delete(b.objects, objectKey)
	return nil
}

func newTestUploader(t *testing.T, b *fakeBucket) (*Uploader, string) {
	t.Helper()
	localPath := filepath.Join(t.TempDir(), "abc_users.tsv")
	require.NoError(t, os.WriteFile(localPath, []byte("id\tname\n1\talice"), 0644))

	u := &Uploader{
		bucket: b,
		config: &config.OSSConfig{KeyPrefix: "exports", PartSize: 1 << 20, SignedURLExpiry: time.Hour},
		logger: logger.Nop(),
		now:    func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) },
	}
	return u, localPath
}

func TestUpload(t *testing.T) {
	b := &fakeBucket{objects: map[string]bool{}}
	u, localPath := newTestUploader(t, b)

	result, err := u.Upload(context.Background(), "abc", localPath)
	require.NoError(t, err)
	assert.Equal(t, "exports/2026/03/09/abc_users.tsv", result.ObjectKey)
	assert.Equal(t, "https://bucket.example.com/exports/2026/03/09/abc_users.tsv", result.SignedURL)
	assert.EqualValues(t, 15, result.Size)
	assert.True(t, b.objects[result.ObjectKey])
}

func TestUpload_SignFailureDeletesObject(t *testing.T) {
	b := &fakeBucket{objects: map[string]bool{}, signErr: errors.New("no credentials")}
	u, localPath := newTestUploader(t, b)

	_, err := u.Upload(context.Background(), "abc", localPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, b.signErr)
	assert.Empty(t, b.objects)
}

func TestPartRanges(t *testing.T) {
	assert.Empty(t, partRanges(0, 10))
	assert.Equal(t, []partRange{{0, 10}}, partRanges(10, 10))
	assert.Equal(t, []partRange{{0, 10}, {10, 10}, {20, 5}}, partRanges(25, 10))
}

func TestObjectKey(t *testing.T) {
	u := &Uploader{
		config: &config.OSSConfig{KeyPrefix: "exports"},
		now:    func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) },
	}
	assert.Equal(t, "exports/2026/03/09/abc_users.tsv", u.objectKey("/tmp/tsv-export/abc_users.tsv"))

	u.config.KeyPrefix = ""
	assert.Equal(t, "2026/03/09/abc_users.tsv", u.objectKey("abc_users.tsv"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/tab-separated-values", contentType("a.TSV"))
	assert.Contains(t, contentType("a.xlsx"), "spreadsheetml")
	assert.Equal(t, "application/octet-stream", contentType("a.bin"))
}
