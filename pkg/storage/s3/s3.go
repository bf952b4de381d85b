package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/elastic-io/mindb"

	"s3repo/internal/errs"
	"s3repo/internal/utils"
	"s3repo/pkg/storage"
)

func init() {
	storage.Register(storage.S3, func(cfg storage.Config) (storage.Storage, error) {
		s, err := NewMinDBStorage(cfg.Path, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

const (
	aclMetadataKey = "x-amz-acl"
	pageSize       = 1000
)

// MinDBStorage stores objects in an embedded S3-style bucket.
type MinDBStorage struct {
	db     *mindb.DB
	bucket string
}

// NewMinDBStorage 创建新的 MinDB 存储实例，桶不存在时创建
func NewMinDBStorage(dbPath, bucket string) (*MinDBStorage, error) {
	if dbPath == "" {
		return nil, errs.Configuration("mindb storage path is required")
	}
	if bucket == "" {
		return nil, errs.Configuration("bucket is required")
	}
	db, err := mindb.New(dbPath)
	if err != nil {
		return nil, errs.TransientStore("failed to open mindb at "+dbPath, err)
	}

	exists, err := db.BucketExists(bucket)
	if err != nil {
		db.Close()
		return nil, errs.TransientStore("failed to check bucket "+bucket, err)
	}
	if !exists {
		if err := db.CreateBucket(bucket); err != nil {
			db.Close()
			return nil, errs.TransientStore("failed to create bucket "+bucket, err)
		}
	}

	return &MinDBStorage{db: db, bucket: bucket}, nil
}

func (m *MinDBStorage) Put(ctx context.Context, localPath string, key string, visibility storage.Visibility) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return errs.TransientStore("failed to read "+localPath, err)
	}

	now := time.Now()
	objectData := &mindb.ObjectData{
		Key:         storage.NormalizeKey(key),
		Data:        data,
		Size:        int64(len(data)),
		ContentType: utils.ContentType(key),
		Metadata: map[string]string{
			aclMetadataKey: string(visibility),
			"upload-time":  now.UTC().Format(time.RFC3339),
		},
		LastModified: now,
	}
	if err := m.db.PutObject(m.bucket, objectData); err != nil {
		return errs.TransientStore("failed to put "+key, err)
	}
	return nil
}

func (m *MinDBStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, _, err := m.getObject(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MinDBStorage) Stat(ctx context.Context, key string) (storage.FileInfo, error) {
	data, modTime, err := m.getObject(ctx, key)
	if err != nil {
		return storage.FileInfo{}, err
	}
	sum := sha256.Sum256(data)
	return storage.FileInfo{
		Name:    storage.NormalizeKey(key),
		Size:    int64(len(data)),
		ModTime: modTime,
		SHA256:  hex.EncodeToString(sum[:]),
	}, nil
}

// getObject tells absence apart from failure by listing the exact key, so
// no error strings from mindb are inspected.
func (m *MinDBStorage) getObject(ctx context.Context, key string) ([]byte, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, time.Time{}, err
	}
	objectData, err := m.db.GetObject(m.bucket, storage.NormalizeKey(key))
	if err == nil {
		return objectData.Data, objectData.LastModified, nil
	}
	exists, existsErr := m.Exists(ctx, key)
	if existsErr == nil && !exists {
		return nil, time.Time{}, errs.NotFound("object not found: " + key)
	}
	return nil, time.Time{}, errs.TransientStore("failed to get "+key, err)
}

func (m *MinDBStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.db.DeleteObject(m.bucket, storage.NormalizeKey(key)); err != nil {
		exists, existsErr := m.Exists(ctx, key)
		if existsErr == nil && !exists {
			return nil
		}
		return errs.TransientStore("failed to delete "+key, err)
	}
	return nil
}

// List pages through every object under prefix in key order.
func (m *MinDBStorage) List(ctx context.Context, prefix string) ([]storage.FileInfo, error) {
	prefix = storage.NormalizeKey(prefix)
	result := []storage.FileInfo{}
	var marker string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		objects, _, err := m.db.ListObjects(m.bucket, prefix, marker, "", pageSize)
		if err != nil {
			return nil, errs.TransientStore("failed to list "+prefix, err)
		}
		for _, obj := range objects {
			if !strings.HasPrefix(obj.Key, prefix) || strings.HasSuffix(obj.Key, "/") {
				continue
			}
			result = append(result, storage.FileInfo{
				Name:    obj.Key,
				Size:    obj.Size,
				ModTime: obj.LastModified,
			})
		}
		if len(objects) < pageSize {
			break
		}
		marker = objects[len(objects)-1].Key
	}
	return result, nil
}

func (m *MinDBStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	normalized := storage.NormalizeKey(key)
	objects, _, err := m.db.ListObjects(m.bucket, normalized, "", "", 1)
	if err != nil {
		return false, errs.TransientStore("failed to check "+key, err)
	}
	return len(objects) > 0 && objects[0].Key == normalized, nil
}

func (m *MinDBStorage) GetPath(key string) string {
	return fmt.Sprintf("s3://%s/%s", m.bucket, storage.NormalizeKey(key))
}

// Close 关闭数据库连接
func (m *MinDBStorage) Close() error {
	return m.db.Close()
}
