package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"s3repo/internal/errs"
	"s3repo/pkg/storage"
)

func init() {
	storage.Register(storage.Local, func(cfg storage.Config) (storage.Storage, error) {
		ls, err := NewLocalStorage(filepath.Join(cfg.Path, cfg.Bucket), zap.NewNop().Sugar())
		if err != nil {
			return nil, err
		}
		return ls, nil
	})
}

// LocalStorage keeps objects as files below basePath. Visibility maps to the
// file mode.
type LocalStorage struct {
	basePath string
	log      *zap.SugaredLogger
}

func NewLocalStorage(basePath string, log *zap.SugaredLogger) (*LocalStorage, error) {
	if basePath == "" {
		return nil, errs.Configuration("local storage path is required")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errs.TransientStore("failed to create storage root", err)
	}
	return &LocalStorage{basePath: basePath, log: log}, nil
}

func (l *LocalStorage) Put(ctx context.Context, localPath string, key string, visibility storage.Visibility) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := l.resolvePath(key)
	if err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return errs.TransientStore("failed to open "+localPath, err)
	}
	defer src.Close()

	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return errs.TransientStore("failed to create directory for "+key, err)
	}

	// 先写临时文件再改名，读者不会看到写了一半的对象
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".put-*")
	if err != nil {
		return errs.TransientStore("failed to create temp file for "+key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return errs.TransientStore("failed to write "+key, err)
	}
	if err := tmp.Chmod(modeFor(visibility)); err != nil {
		tmp.Close()
		return errs.TransientStore("failed to set mode on "+key, err)
	}
	if err := tmp.Close(); err != nil {
		return errs.TransientStore("failed to write "+key, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return errs.TransientStore("failed to publish "+key, err)
	}
	l.log.Debugf("stored %s (%s)", key, visibility)
	return nil
}

func (l *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := l.resolvePath(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound("object not found: " + key)
		}
		return nil, errs.TransientStore("failed to open "+key, err)
	}
	return file, nil
}

func (l *LocalStorage) Stat(ctx context.Context, key string) (storage.FileInfo, error) {
	reader, err := l.Get(ctx, key)
	if err != nil {
		return storage.FileInfo{}, err
	}
	defer reader.Close()

	file := reader.(*os.File)
	info, err := file.Stat()
	if err != nil {
		return storage.FileInfo{}, errs.TransientStore("failed to stat "+key, err)
	}
	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return storage.FileInfo{}, errs.TransientStore("failed to hash "+key, err)
	}
	return storage.FileInfo{
		Name:    storage.NormalizeKey(key),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		SHA256:  hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	fullPath, err := l.resolvePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return errs.TransientStore("failed to delete "+key, err)
	}
	return nil
}

// List returns every object whose key starts with prefix, sorted by key.
func (l *LocalStorage) List(ctx context.Context, prefix string) ([]storage.FileInfo, error) {
	prefix = storage.NormalizeKey(prefix)
	root := l.basePath
	// 前缀可能只是文件名的一部分，从它所在的目录开始遍历
	if dir := filepath.Dir(filepath.FromSlash(prefix)); dir != "." {
		root = filepath.Join(l.basePath, dir)
	}

	// 如果路径不存在，返回空列表而不是错误
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return []storage.FileInfo{}, nil
	}

	files := []storage.FileInfo{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, storage.FileInfo{
			Name:    key,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, errs.TransientStore("failed to list "+prefix, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (l *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	fullPath, err := l.resolvePath(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errs.TransientStore("failed to stat "+key, err)
	}
	return !info.IsDir(), nil
}

func (l *LocalStorage) GetPath(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(storage.NormalizeKey(key)))
}

// resolvePath maps a key below basePath and rejects keys escaping it.
func (l *LocalStorage) resolvePath(key string) (string, error) {
	fullPath := l.GetPath(key)
	rel, err := filepath.Rel(l.basePath, fullPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", errs.Configuration("invalid object key: " + key)
	}
	return fullPath, nil
}

func modeFor(v storage.Visibility) os.FileMode {
	if v == storage.Private {
		return 0600
	}
	return 0644
}
