package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"s3repo/internal/errs"
	"s3repo/pkg/repo"
	"s3repo/pkg/repo/rpm"
	"s3repo/pkg/storage"
	"s3repo/pkg/storage/local"
)

const (
	DefaultStagingDir = "./repodata-staging"
	DefaultOutputDir  = "./repodata-out"
)

type RegenerateOptions struct {
	StagingDir string
	OutputDir  string
	Checksum   string
	Sign       bool
	PublishKey bool
}

// Regenerate rebuilds repodata from the index files in a local staging
// directory and writes the result to a local output directory. It never
// touches the object store, which makes it the recovery path when the
// remote index is damaged.
func (c *Coordinator) Regenerate(ctx context.Context, opts RegenerateOptions) (repo.SyncResult, error) {
	if opts.StagingDir == "" {
		opts.StagingDir = DefaultStagingDir
	}
	if opts.OutputDir == "" {
		opts.OutputDir = DefaultOutputDir
	}
	if opts.Sign && c.signer == nil {
		return repo.SyncResult{}, errs.Configuration("signing requested but no signer is configured")
	}
	checksum, err := rpm.NormalizeChecksum(opts.Checksum)
	if err != nil {
		return repo.SyncResult{}, err
	}

	staging := opts.StagingDir
	if _, err := os.Stat(filepath.Join(staging, repo.RepomdFile)); os.IsNotExist(err) {
		staging = filepath.Join(staging, repo.RepodataDir)
	}
	index, err := c.gen.LoadIndex(ctx, staging)
	if err != nil {
		return repo.SyncResult{}, err
	}
	c.log.Infof("loaded %d packages from %s", index.Len(), staging)

	ws, err := os.MkdirTemp(c.WorkDir, "s3repo-regen-")
	if err != nil {
		return repo.SyncResult{}, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(ws)

	if _, err := repo.NewPublisher(c.gen, c.log).Render(ctx, index, ws, checksum); err != nil {
		return repo.SyncResult{}, err
	}
	if opts.Sign {
		if err := c.sign(ctx, filepath.Join(ws, repo.RepodataDir), opts.PublishKey); err != nil {
			return repo.SyncResult{}, err
		}
	}

	out, err := local.NewLocalStorage(opts.OutputDir, c.log)
	if err != nil {
		return repo.SyncResult{}, err
	}
	previous := previousRepodata(opts.OutputDir, c.log)
	syncer := repo.NewSyncer(out, c.workers, c.log)
	// the output directory may hold anything, only replace the old repodata
	syncer.Prune = func(key string) bool { return previous[key] }
	result, err := syncer.Sync(ctx, filepath.Join(ws, repo.RepodataDir), "", storage.PublicRead)
	if err != nil {
		return result, err
	}
	c.log.Infof("wrote regenerated repodata to %s", opts.OutputDir)
	return result, nil
}

// previousRepodata lists the files of the repodata already in dir: its
// repomd.xml, the data files that repomd.xml references, the signature and
// the public key.
func previousRepodata(dir string, log *zap.SugaredLogger) map[string]bool {
	f, err := os.Open(filepath.Join(dir, repo.RepomdFile))
	if err != nil {
		return nil
	}
	defer f.Close()
	repomd, err := rpm.ReadRepomd(f)
	if err != nil {
		log.Warnf("ignoring unreadable %s in %s: %s", repo.RepomdFile, dir, errs.Message(err))
		return nil
	}
	files := map[string]bool{
		repo.RepomdFile:    true,
		repo.SignatureFile: true,
		repo.PublicKeyFile: true,
	}
	for _, href := range repomd.Hrefs() {
		files[path.Base(href)] = true
	}
	return files
}
