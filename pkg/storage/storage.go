package storage

import (
	"context"
	"io"
	"time"
)

// Visibility is the access control applied to an uploaded object.
type Visibility string

const (
	Private    Visibility = "private"
	PublicRead Visibility = "public-read"
)

// Storage is a flat key/value blob store. Keys use forward slashes and never
// start with one.
//
// Get and Stat report an absent key with an errs.KindNotFound error; every
// other failure is errs.KindTransientStore.
type Storage interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, localPath string, key string, visibility Visibility) error
	Stat(ctx context.Context, key string) (FileInfo, error)
	List(ctx context.Context, prefix string) ([]FileInfo, error)
	Delete(ctx context.Context, key string) error
	GetPath(key string) string
}

type FileInfo struct {
	Name    string // full key
	Size    int64
	ModTime time.Time
	SHA256  string // hex digest, set by Stat
}
