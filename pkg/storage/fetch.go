package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"s3repo/internal/errs"
)

// Fetch downloads key into localPath, creating parent directories.
func Fetch(ctx context.Context, s Storage, key string, localPath string) error {
	reader, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return errs.TransientStore("failed to create fetch directory", err)
	}
	file, err := os.Create(localPath)
	if err != nil {
		return errs.TransientStore("failed to create fetch target", err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return errs.TransientStore("failed to download "+key, err)
	}
	if err := file.Close(); err != nil {
		return errs.TransientStore("failed to write "+localPath, err)
	}
	return nil
}
