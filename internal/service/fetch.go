package service

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"s3repo/internal/errs"
	"s3repo/internal/types"
	"s3repo/pkg/repo"
	"s3repo/pkg/repo/rpm"
	"s3repo/pkg/storage"
)

// fetchIndex downloads repomd.xml of the repository at prefix and the
// listings it references into dir, then loads them.
func fetchIndex(ctx context.Context, store storage.Storage, gen repo.Generator, dir string, prefix string) (*repo.PackageIndex, *types.Repomd, error) {
	repomdPath := filepath.Join(dir, repo.RepomdFile)
	if err := storage.Fetch(ctx, store, storage.Join(prefix, repo.RepodataDir, repo.RepomdFile), repomdPath); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(repomdPath)
	if err != nil {
		return nil, nil, errs.TransientStore("failed to open fetched repomd.xml", err)
	}
	repomd, err := rpm.ReadRepomd(f)
	f.Close()
	if err != nil {
		return nil, nil, err
	}

	for _, href := range repomd.Hrefs("primary", "filelists", "other") {
		dest := filepath.Join(dir, path.Base(href))
		if err := storage.Fetch(ctx, store, storage.Join(prefix, href), dest); err != nil {
			if errs.IsNotFound(err) {
				// 索引引用了不存在的文件，远端处于不一致状态
				return nil, nil, errs.TransientStore("repomd.xml references a missing file: "+href, err)
			}
			return nil, nil, err
		}
	}
	index, err := gen.LoadIndex(ctx, dir)
	if err != nil {
		return nil, nil, err
	}
	return index, repomd, nil
}
