package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"go.uber.org/zap"

	"s3repo/internal/errs"
	"s3repo/internal/metrics"
	"s3repo/pkg/repo"
	"s3repo/pkg/repo/rpm"
	"s3repo/pkg/sign"
	"s3repo/pkg/storage"
)

type State string

const (
	StateChecking          State = "CHECKING"
	StateBootstrapping     State = "BOOTSTRAPPING"
	StateMerging           State = "MERGING"
	StateGenerating        State = "GENERATING"
	StateSigning           State = "SIGNING"
	StateUploadingPackages State = "UPLOADING_PACKAGES"
	StateSyncingMetadata   State = "SYNCING_METADATA"
	StateDone              State = "DONE"
	StateFailed            State = "FAILED"
)

// BatchItem is one package file of an update. Evict removes the package
// from the index instead of adding it.
type BatchItem struct {
	Path  string
	Evict bool
}

type Options struct {
	Checksum   string
	Visibility storage.Visibility
	Sign       bool
	PublishKey bool
}

type Batch struct {
	Items   []BatchItem
	Options Options
}

type Report struct {
	States       []State
	Bootstrapped bool
	Packages     int
	Uploaded     int
	Sync         repo.SyncResult
}

// Coordinator runs repository update transactions against one store.
type Coordinator struct {
	store   storage.Storage
	gen     repo.Generator
	signer  sign.Signer
	workers int
	// WorkDir is the parent of per-run workspaces; empty means os.TempDir.
	WorkDir string
	// OnState is called on every state transition.
	OnState func(State)
	log     *zap.SugaredLogger
}

func NewCoordinator(store storage.Storage, gen repo.Generator, signer sign.Signer, workers int, log *zap.SugaredLogger) *Coordinator {
	if workers <= 0 {
		workers = 4
	}
	return &Coordinator{store: store, gen: gen, signer: signer, workers: workers, log: log}
}

type run struct {
	c      *Coordinator
	report Report
	state  State
}

func (r *run) enter(s State) {
	r.state = s
	r.report.States = append(r.report.States, s)
	r.c.log.Infof("state %s", s)
	if r.c.OnState != nil {
		r.c.OnState(s)
	}
}

// Update merges batch into the repository at prefix and republishes it.
// Packages are uploaded before the index changes and the index files are
// replaced upload-first, so readers see either the old or the new
// repository. The workspace is removed on every exit path.
func (c *Coordinator) Update(ctx context.Context, prefix string, batch Batch) (Report, error) {
	r := &run{c: c}
	prefix = storage.NormalizeKey(prefix)

	if batch.Options.Sign && c.signer == nil {
		return r.report, errs.Configuration("signing requested but no signer is configured")
	}
	checksum, err := rpm.NormalizeChecksum(batch.Options.Checksum)
	if err != nil {
		return r.report, err
	}
	batch.Options.Checksum = checksum
	if batch.Options.Visibility == "" {
		batch.Options.Visibility = storage.PublicRead
	}

	ws, err := os.MkdirTemp(c.WorkDir, "s3repo-")
	if err != nil {
		return r.report, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(ws)

	if err := r.update(ctx, ws, prefix, batch); err != nil {
		failed := r.state
		r.enter(StateFailed)
		c.log.Errorf("update of %s failed in state %s: %s", prefix, failed, errs.Message(err))
		return r.report, fmt.Errorf("%s: %w", failed, err)
	}
	r.enter(StateDone)
	return r.report, nil
}

func (r *run) update(ctx context.Context, ws string, prefix string, batch Batch) error {
	c := r.c
	opts := batch.Options

	r.enter(StateChecking)
	exists, err := c.store.Exists(ctx, storage.Join(prefix, repo.RepodataDir, repo.RepomdFile))
	if err != nil {
		return err
	}
	if !exists {
		r.enter(StateBootstrapping)
		if err := c.bootstrap(ctx, filepath.Join(ws, "bootstrap"), prefix, opts); err != nil {
			return err
		}
		r.report.Bootstrapped = true
	}

	r.enter(StateMerging)
	current, _, err := fetchIndex(ctx, c.store, c.gen, filepath.Join(ws, "current", repo.RepodataDir), prefix)
	if err != nil {
		return err
	}
	changes := make([]repo.Change, 0, len(batch.Items))
	for _, item := range batch.Items {
		entry, err := c.gen.ReadPackage(ctx, item.Path, opts.Checksum)
		if err != nil {
			return err
		}
		changes = append(changes, repo.Change{Entry: entry, Evict: item.Evict})
	}
	merged := repo.Merge(current, changes)
	if err := repo.CheckLocations(merged); err != nil {
		return err
	}
	r.report.Packages = merged.Len()
	c.log.Infof("merged %d changes into %d packages (was %d)", len(changes), merged.Len(), current.Len())

	r.enter(StateGenerating)
	out := filepath.Join(ws, "out")
	if _, err := repo.NewPublisher(c.gen, c.log).Render(ctx, merged, out, opts.Checksum); err != nil {
		return err
	}

	if opts.Sign {
		r.enter(StateSigning)
		if err := c.sign(ctx, filepath.Join(out, repo.RepodataDir), opts.PublishKey); err != nil {
			return err
		}
	}

	r.enter(StateUploadingPackages)
	uploads := packageUploads(prefix, batch.Items, changes, merged)
	if err := c.uploadPackages(ctx, uploads, opts.Visibility); err != nil {
		return err
	}
	r.report.Uploaded = len(uploads)

	r.enter(StateSyncingMetadata)
	result, err := repo.NewSyncer(c.store, c.workers, c.log).
		Sync(ctx, filepath.Join(out, repo.RepodataDir), storage.Join(prefix, repo.RepodataDir), opts.Visibility)
	if err != nil {
		return err
	}
	r.report.Sync = result
	return nil
}

// bootstrap publishes an empty index so the rest of the run can treat the
// repository as existing.
func (c *Coordinator) bootstrap(ctx context.Context, dir string, prefix string, opts Options) error {
	c.log.Infof("no repository at %s, bootstrapping an empty one", prefix)
	if _, err := repo.NewPublisher(c.gen, c.log).Render(ctx, repo.NewPackageIndex(), dir, opts.Checksum); err != nil {
		return err
	}
	if opts.Sign {
		if err := c.sign(ctx, filepath.Join(dir, repo.RepodataDir), opts.PublishKey); err != nil {
			return err
		}
	}
	_, err := repo.NewSyncer(c.store, c.workers, c.log).
		Sync(ctx, filepath.Join(dir, repo.RepodataDir), storage.Join(prefix, repo.RepodataDir), opts.Visibility)
	return err
}

func (c *Coordinator) sign(ctx context.Context, repodata string, publishKey bool) error {
	if _, err := c.signer.Sign(ctx, filepath.Join(repodata, repo.RepomdFile)); err != nil {
		return err
	}
	if publishKey {
		if err := c.signer.ExportPublicKey(ctx, filepath.Join(repodata, repo.PublicKeyFile)); err != nil {
			return err
		}
	}
	return nil
}

type uploadTask struct {
	localPath string
	key       string
}

// packageUploads lists the batch files that end up in merged. Items
// replaced or evicted by a later item of the same batch are not uploaded.
func packageUploads(prefix string, items []BatchItem, changes []repo.Change, merged *repo.PackageIndex) []uploadTask {
	seen := make(map[string]bool, len(items))
	var tasks []uploadTask
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Evict {
			continue
		}
		entry := changes[i].Entry
		current, ok := merged.Get(entry.Identity)
		if !ok || current.Location != entry.Location || current.Checksum != entry.Checksum {
			continue
		}
		key := storage.Join(prefix, entry.Location)
		if seen[key] {
			continue
		}
		seen[key] = true
		tasks = append(tasks, uploadTask{localPath: items[i].Path, key: key})
	}
	slices.Reverse(tasks)
	return tasks
}

func (c *Coordinator) uploadPackages(ctx context.Context, tasks []uploadTask, visibility storage.Visibility) error {
	if len(tasks) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerCount := c.workers
	if workerCount > len(tasks) {
		workerCount = len(tasks)
	}
	queue := make(chan uploadTask, len(tasks))
	for _, t := range tasks {
		queue <- t
	}
	close(queue)

	results := make(chan error, len(tasks))
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				if ctx.Err() != nil {
					results <- ctx.Err()
					continue
				}
				err := c.store.Put(ctx, t.localPath, t.key, visibility)
				if err == nil {
					metrics.IncrementUploads()
					c.log.Infof("uploaded package %s", t.key)
				} else {
					metrics.IncrementErrors()
				}
				results <- err
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for err := range results {
		if err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	return firstErr
}
