package oss

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/fluxo/tsv-export/pkg/config"
	"github.com/fluxo/tsv-export/pkg/logger"
)

// objectBucket is the subset of *oss.Bucket the uploader uses
type objectBucket interface {
	PutObjectFromFile(objectKey, filePath string, options ...oss.Option) error
	InitiateMultipartUpload(objectKey string, options ...oss.Option) (oss.InitiateMultipartUploadResult, error)
	UploadPartFromFile(imur oss.InitiateMultipartUploadResult, filePath string, startPosition, partSize int64, partNumber int, options ...oss.Option) (oss.UploadPart, error)
	CompleteMultipartUpload(imur oss.InitiateMultipartUploadResult, parts []oss.UploadPart, options ...oss.Option) (oss.CompleteMultipartUploadResult, error)
	AbortMultipartUpload(imur oss.InitiateMultipartUploadResult, options ...oss.Option) error
	SignURL(objectKey string, method oss.HTTPMethod, expiredInSec int64, options ...oss.Option) (string, error)
	DeleteObject(objectKey string, options ...oss.Option) error
}

// Uploader handles file uploads to Alibaba Cloud OSS
type Uploader struct {
	bucket objectBucket
	config *config.OSSConfig
	logger *logger.Logger
	now    func() time.Time
}

// UploadResult contains the result of an upload operation
type UploadResult struct {
	ObjectKey  string
	SignedURL  string
	Size       int64
	UploadTime time.Duration
}

// NewUploader creates a new OSS uploader
func NewUploader(cfg *config.OSSConfig, log *logger.Logger) (*Uploader, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret,
		oss.Timeout(30, int64(cfg.UploadTimeout.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	b, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to get OSS bucket: %w", err)
	}

	return &Uploader{
		bucket: b,
		config: cfg,
		logger: log,
		now:    time.Now,
	}, nil
}

// Upload uploads a file to OSS, retrying with a linear back-off until the
// attempts run out or ctx is done.
func (u *Uploader) Upload(ctx context.Context, taskID string, localPath string) (*UploadResult, error) {
	startTime := time.Now()

	fileInfo, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	objectKey := u.objectKey(localPath)
	options := []oss.Option{oss.ContentType(contentType(localPath))}

	contextLogger := u.logger.WithContext(ctx).WithTaskID(taskID).WithComponent("oss_uploader")
	contextLogger.LogUploadStarted(
		"Starting OSS upload",
		logger.Fields{
			"object_key": objectKey,
			"file_size":  fileInfo.Size(),
			"local_path": localPath,
		},
	)

	attempts := u.config.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			waitTime := time.Duration(attempt) * time.Second
			contextLogger.LogWarn(
				"UploadRetry",
				fmt.Sprintf("Retrying upload (attempt %d/%d)", attempt+1, attempts),
				logger.Fields{"wait_time": waitTime.String(), "error": lastErr.Error()},
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(waitTime):
			}
		}

		if fileInfo.Size() > u.config.PartSize {
			lastErr = u.multiPartUpload(localPath, objectKey, fileInfo.Size(), options, contextLogger)
		} else {
			lastErr = u.bucket.PutObjectFromFile(objectKey, localPath, options...)
		}

		if lastErr == nil {
			break
		}
	}

	if lastErr != nil {
		contextLogger.LogUploadFailed(
			"OSS upload failed after retries",
			"UPLOAD_ERROR",
			lastErr.Error(),
			logger.Fields{"object_key": objectKey, "attempts": attempts},
		)
		return nil, fmt.Errorf("failed to upload after %d attempts: %w", attempts, lastErr)
	}

	signedURL, err := u.bucket.SignURL(objectKey, oss.HTTPGet, int64(u.config.SignedURLExpiry.Seconds()))
	if err != nil {
		// an object nobody can fetch is not kept
		if delErr := u.bucket.DeleteObject(objectKey); delErr != nil {
			contextLogger.LogWarn("OrphanDeleteError", "Failed to delete unsigned object", logger.Fields{
				"object_key": objectKey,
				"error":      delErr.Error(),
			})
		}
		return nil, fmt.Errorf("failed to sign URL: %w", err)
	}

	duration := time.Since(startTime)
	contextLogger.LogUploadCompleted(
		"OSS upload completed successfully",
		duration.Milliseconds(),
		logger.Fields{"object_key": objectKey, "file_size": fileInfo.Size()},
	)

	return &UploadResult{
		ObjectKey:  objectKey,
		SignedURL:  signedURL,
		Size:       fileInfo.Size(),
		UploadTime: duration,
	}, nil
}

// multiPartUpload uploads a file in PartSize chunks
func (u *Uploader) multiPartUpload(localPath, objectKey string, size int64, options []oss.Option, contextLogger *logger.ContextLogger) error {
	imur, err := u.bucket.InitiateMultipartUpload(objectKey, options...)
	if err != nil {
		return fmt.Errorf("failed to initiate multi-part upload: %w", err)
	}

	ranges := partRanges(size, u.config.PartSize)
	parts := make([]oss.UploadPart, 0, len(ranges))
	for i, r := range ranges {
		partNum := i + 1
		part, err := u.bucket.UploadPartFromFile(imur, localPath, r.offset, r.size, partNum)
		if err != nil {
			u.bucket.AbortMultipartUpload(imur)
			return fmt.Errorf("failed to upload part %d: %w", partNum, err)
		}
		parts = append(parts, part)

		contextLogger.LogDebug(
			"PartUploaded",
			fmt.Sprintf("Uploaded part %d/%d", partNum, len(ranges)),
			logger.Fields{"part_number": partNum, "part_size": r.size},
		)
	}

	if _, err := u.bucket.CompleteMultipartUpload(imur, parts); err != nil {
		u.bucket.AbortMultipartUpload(imur)
		return fmt.Errorf("failed to complete multi-part upload: %w", err)
	}
	return nil
}

type partRange struct {
	offset, size int64
}

// partRanges splits size bytes into chunks of at most partSize
func partRanges(size, partSize int64) []partRange {
	var ranges []partRange
	for offset := int64(0); offset < size; offset += partSize {
		n := partSize
		if offset+n > size {
			n = size - offset
		}
		ranges = append(ranges, partRange{offset: offset, size: n})
	}
	return ranges
}

// objectKey places the file under <prefix>/YYYY/MM/DD/<name>
func (u *Uploader) objectKey(localPath string) string {
	return path.Join(u.config.KeyPrefix, u.now().Format("2006/01/02"), filepath.Base(localPath))
}

func contentType(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".tsv", ".tab":
		return "text/tab-separated-values"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// Close cleans up resources
func (u *Uploader) Close() error {
	return nil
}
