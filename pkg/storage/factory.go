package storage

import (
	"fmt"
	"sort"
)

type StorageType string

const (
	Local StorageType = "local"
	S3    StorageType = "s3"
)

// Config locates a store. Path is the local root directory (local) or the
// database directory (s3); Bucket names the bucket inside it.
type Config struct {
	Path   string
	Bucket string
}

type storageFn func(Config) (Storage, error)

var factory = make(map[StorageType]storageFn)

func Register(st StorageType, fn storageFn) {
	if _, ok := factory[st]; ok {
		return
	}
	factory[st] = fn
}

func Create(st StorageType, cfg Config) (Storage, error) {
	if fn, ok := factory[st]; ok {
		return fn(cfg)
	}
	return nil, fmt.Errorf("unsupported storage type: %s", st)
}

// Types lists the registered storage types.
func Types() []string {
	var out []string
	for st := range factory {
		out = append(out, string(st))
	}
	sort.Strings(out)
	return out
}
