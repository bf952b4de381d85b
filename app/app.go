package app

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"s3repo/internal/api"
	"s3repo/internal/cache"
	"s3repo/internal/config"
	"s3repo/internal/errs"
	"s3repo/internal/log"
	"s3repo/internal/metrics"
	"s3repo/internal/service"
	"s3repo/internal/utils"
	"s3repo/pkg/repo"
	"s3repo/pkg/sign"
	"s3repo/pkg/storage"
)

const Name = "s3repo"

// Exit statuses.
const (
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitSigning       = 3
)

type runFunc func(ctx context.Context, c *cli.Context, cfg *config.Config, logger *zap.SugaredLogger) error

// action loads configuration and logging, cancels the context on SIGINT or
// SIGTERM and maps failures to exit statuses.
func action(name string, run runFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.LoadConfig(c.GlobalString("config"))
		if err != nil {
			return cli.NewExitError(err.Error(), ExitCode(err))
		}
		applyFlags(c, cfg)

		logger, err := log.Init(cfg.Log, cfg.LogLevel)
		if err != nil {
			return cli.NewExitError(err.Error(), ExitCode(err))
		}
		defer log.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := run(ctx, c, cfg, logger); err != nil {
			logger.Errorf("%s failed: %v", name, err)
			msg := ""
			if cfg.Log != "" {
				// 日志写入文件时仍在终端提示错误
				msg = err.Error()
			}
			return cli.NewExitError(msg, ExitCode(err))
		}
		return nil
	}
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch errs.KindOf(err) {
	case errs.KindSigning:
		return ExitSigning
	case errs.KindConfiguration:
		return ExitConfiguration
	default:
		return ExitFailure
	}
}

// applyFlags overrides configuration file values with explicitly set flags.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.GlobalIsSet("log") {
		cfg.Log = c.GlobalString("log")
	}
	if c.GlobalIsSet("log-level") {
		cfg.LogLevel = c.GlobalString("log-level")
	}
	if c.GlobalBool("debug") {
		cfg.LogLevel = "debug"
	}

	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setInt := func(name string, dst *int) {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}
	setBool := func(name string, dst *bool) {
		if c.IsSet(name) {
			*dst = c.Bool(name)
		}
	}

	setString("storage", &cfg.Storage.Type)
	setString("storage-path", &cfg.Storage.Path)
	setString("bucket", &cfg.Storage.Bucket)
	setString("path", &cfg.Repo.Path)
	setInt("retries", &cfg.Storage.Retries)
	setInt("retry-delay-ms", &cfg.Storage.RetryDelayMs)

	if c.IsSet("arch") {
		cfg.Repo.Arches = utils.SplitList(c.StringSlice("arch")...)
	}
	setString("checksum", &cfg.Repo.Checksum)
	setString("visibility", &cfg.Repo.Visibility)
	setInt("workers", &cfg.Repo.Workers)
	setString("generator", &cfg.Repo.Generator)

	setBool("sign", &cfg.Sign.Enabled)
	setString("sign-backend", &cfg.Sign.Backend)
	setString("key-id", &cfg.Sign.KeyID)
	setString("key-file", &cfg.Sign.KeyFile)
	setString("passphrase-env", &cfg.Sign.PassphraseEnv)
	setBool("publish-key", &cfg.Sign.PublishKey)

	setString("staging", &cfg.Regenerate.Staging)
	setString("output", &cfg.Regenerate.Output)

	setString("listen", &cfg.Serve.Listen)
	if c.IsSet("cache-ttl") {
		cfg.Serve.Cache.TTL = c.String("cache-ttl")
		cfg.Serve.Cache.Enabled = cfg.Serve.Cache.TTL != "0" && cfg.Serve.Cache.TTL != "0s"
	}
}

// openStore creates the configured store behind the retrying decorator.
// The returned func releases it.
func openStore(cfg *config.Config, logger *zap.SugaredLogger) (storage.Storage, func(), error) {
	inner, err := storage.Create(storage.StorageType(cfg.Storage.Type), storage.Config{
		Path:   cfg.Storage.Path,
		Bucket: cfg.Storage.Bucket,
	})
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if closer, ok := inner.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.Warnf("close storage: %v", err)
			}
		}
	}
	return storage.NewRetrying(inner, cfg.Storage.Retries, cfg.Storage.RetryDelayMs, logger), release, nil
}

func newSigner(cfg *config.Config, logger *zap.SugaredLogger) (sign.Signer, error) {
	if !cfg.Sign.Enabled {
		return nil, nil
	}
	return sign.New(sign.Options{
		Backend:    sign.Backend(cfg.Sign.Backend),
		KeyID:      cfg.Sign.KeyID,
		KeyFile:    cfg.Sign.KeyFile,
		Passphrase: cfg.Passphrase(),
		GPGBinary:  cfg.Sign.GPGBinary,
		Log:        logger,
	})
}

// packageSource fetches packages of the repository at prefix for
// generators that rescan package files.
func packageSource(store storage.Storage, prefix string) repo.PackageSource {
	return func(ctx context.Context, location string, dest string) error {
		return storage.Fetch(ctx, store, storage.Join(prefix, location), dest)
	}
}

var Update = action("update", func(ctx context.Context, c *cli.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var items []service.BatchItem
	for _, f := range c.Args() {
		items = append(items, service.BatchItem{Path: f, Evict: c.Bool("delete")})
	}
	for _, f := range c.StringSlice("evict") {
		items = append(items, service.BatchItem{Path: f, Evict: true})
	}

	signer, err := newSigner(cfg, logger)
	if err != nil {
		return err
	}
	store, release, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	gen, err := repo.NewGenerator(repo.GeneratorType(cfg.Repo.Generator), repo.GeneratorOptions{
		Arches: cfg.Repo.Arches,
		Source: packageSource(store, cfg.Repo.Path),
		Log:    logger,
	})
	if err != nil {
		return errs.Configuration(err.Error())
	}

	before := metrics.GetMetrics()
	coordinator := service.NewCoordinator(store, gen, signer, cfg.Repo.Workers, logger)
	report, err := coordinator.Update(ctx, cfg.Repo.Path, service.Batch{
		Items: items,
		Options: service.Options{
			Checksum:   cfg.Repo.Checksum,
			Visibility: storage.Visibility(cfg.Repo.Visibility),
			Sign:       cfg.Sign.Enabled,
			PublishKey: cfg.Sign.PublishKey,
		},
	})
	if err != nil {
		return err
	}

	d := metrics.Diff(before, metrics.GetMetrics())
	logger.Infof("updated %s: %d packages indexed, %d uploaded, metadata %d uploaded %d skipped %d deleted, %d bytes written",
		store.GetPath(cfg.Repo.Path), report.Packages, report.Uploaded,
		report.Sync.Uploaded, report.Sync.Skipped, report.Sync.Deleted, d.UploadedBytes)
	return nil
})

var Regenerate = action("regenerate", func(ctx context.Context, c *cli.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	if err := cfg.ValidateSign(); err != nil {
		return err
	}
	signer, err := newSigner(cfg, logger)
	if err != nil {
		return err
	}
	gen, err := repo.NewGenerator(repo.Builtin, repo.GeneratorOptions{Log: logger})
	if err != nil {
		return err
	}

	// 不访问对象存储
	coordinator := service.NewCoordinator(nil, gen, signer, cfg.Repo.Workers, logger)
	result, err := coordinator.Regenerate(ctx, service.RegenerateOptions{
		StagingDir: cfg.Regenerate.Staging,
		OutputDir:  cfg.Regenerate.Output,
		Checksum:   cfg.Repo.Checksum,
		Sign:       cfg.Sign.Enabled,
		PublishKey: cfg.Sign.PublishKey,
	})
	if err != nil {
		return err
	}
	logger.Infof("regenerated %s: %d written, %d unchanged, %d removed",
		cfg.Regenerate.Output, result.Uploaded, result.Skipped, result.Deleted)
	return nil
})

var Serve = action("serve", func(ctx context.Context, c *cli.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ttl, err := cfg.CacheTTL()
	if err != nil {
		return err
	}
	store, release, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	gen, err := repo.NewGenerator(repo.Builtin, repo.GeneratorOptions{Log: logger})
	if err != nil {
		return err
	}
	memCache := cache.NewMemoryCache(time.Minute)
	defer memCache.Close()

	repoService := service.NewRepoService(store, gen, memCache, ttl, logger)
	h := api.NewAPI(repoService, cfg.Repo.Path, logger)

	server := &fasthttp.Server{
		Handler:      api.SetupRouter(h, cfg.Serve.Auth),
		Name:         Name,
		ReadTimeout:  time.Second * 60,
		WriteTimeout: time.Second * 60,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server starting on %s", cfg.Serve.Listen)
		errCh <- server.ListenAndServe(cfg.Serve.Listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return server.Shutdown()
	}
})
