package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"s3repo/internal/errs"
	"s3repo/internal/utils"
	"s3repo/pkg/repo"
	"s3repo/pkg/repo/rpm"
	"s3repo/pkg/sign"
	"s3repo/pkg/storage"
)

type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Repo       RepoConfig       `yaml:"repo"`
	Sign       SignConfig       `yaml:"sign"`
	Regenerate RegenerateConfig `yaml:"regenerate"`
	Serve      ServeConfig      `yaml:"serve"`
	Log        string           `yaml:"log"`
	LogLevel   string           `yaml:"log-level"`
}

type StorageConfig struct {
	Type         string `yaml:"type"` // local, s3
	Path         string `yaml:"path"`
	Bucket       string `yaml:"bucket"`
	Retries      int    `yaml:"retries"`
	RetryDelayMs int    `yaml:"retry-delay-ms"`
}

type RepoConfig struct {
	// Path 仓库在存储桶中的路径，如 el9/x86_64
	Path       string   `yaml:"path"`
	Checksum   string   `yaml:"checksum"`
	Arches     []string `yaml:"arches"`
	Visibility string   `yaml:"visibility"`
	Workers    int      `yaml:"workers"`
	Generator  string   `yaml:"generator"` // builtin, createrepo
}

type SignConfig struct {
	Enabled bool   `yaml:"enabled"`
	Backend string `yaml:"backend"` // openpgp, gpg
	KeyID   string `yaml:"key-id"`
	KeyFile string `yaml:"key-file"`
	// PassphraseEnv 保存密码的环境变量名，密码本身不写入配置文件
	PassphraseEnv string `yaml:"passphrase-env"`
	GPGBinary     string `yaml:"gpg-binary"`
	PublishKey    bool   `yaml:"publish-key"`
}

type RegenerateConfig struct {
	Staging string `yaml:"staging"`
	Output  string `yaml:"output"`
}

type ServeConfig struct {
	Listen string      `yaml:"listen"`
	Auth   AuthConfig  `yaml:"auth"`
	Cache  CacheConfig `yaml:"cache"`
}

type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	APIKey  string `yaml:"api-key"`
}

type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	TTL     string `yaml:"ttl"`
}

func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Type:         string(storage.Local),
			Path:         "./storage",
			Retries:      3,
			RetryDelayMs: 200,
		},
		Repo: RepoConfig{
			Checksum:   rpm.DefaultChecksum,
			Visibility: string(storage.PublicRead),
			Workers:    4,
			Generator:  string(repo.Builtin),
		},
		Sign: SignConfig{
			Backend:   string(sign.OpenPGP),
			GPGBinary: "gpg",
		},
		Regenerate: RegenerateConfig{
			Staging: "./repodata-staging",
			Output:  "./repodata-out",
		},
		Serve: ServeConfig{
			Listen: ":8080",
			Cache:  CacheConfig{Enabled: true, TTL: "30s"},
		},
		LogLevel: "info",
	}
}

// LoadConfig reads path over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Configuration(fmt.Sprintf("read config %s: %v", path, err))
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, errs.Configuration(fmt.Sprintf("parse config %s: %v", path, err))
	}
	return cfg, nil
}

// Validate checks the settings an update needs. It performs no I/O.
func (c *Config) Validate() error {
	if !contains(storage.Types(), c.Storage.Type) {
		return errs.Configuration(fmt.Sprintf("unknown storage type %q, want one of %v", c.Storage.Type, storage.Types()))
	}
	if c.Storage.Bucket == "" {
		return errs.Configuration("bucket is required")
	}
	if !utils.IsValidRepoName(c.Storage.Bucket) || strings.Contains(c.Storage.Bucket, "/") {
		return errs.Configuration("invalid bucket name: " + c.Storage.Bucket)
	}
	if c.Storage.Retries < 0 || c.Storage.RetryDelayMs < 0 {
		return errs.Configuration("retries and retry delay must not be negative")
	}
	// 空路径表示存储桶根目录
	if c.Repo.Path != "" && !utils.IsValidRepoName(c.Repo.Path) {
		return errs.Configuration("invalid repository path: " + c.Repo.Path)
	}
	if _, err := rpm.NormalizeChecksum(c.Repo.Checksum); err != nil {
		return err
	}
	switch storage.Visibility(c.Repo.Visibility) {
	case storage.Private, storage.PublicRead:
	default:
		return errs.Configuration("unknown visibility: " + c.Repo.Visibility)
	}
	if c.Repo.Workers < 1 {
		return errs.Configuration("workers must be at least 1")
	}
	if !contains(repo.GeneratorTypes(), c.Repo.Generator) {
		return errs.Configuration(fmt.Sprintf("unknown generator %q, want one of %v", c.Repo.Generator, repo.GeneratorTypes()))
	}
	return c.ValidateSign()
}

// ValidateSign checks the signing settings when signing is enabled.
func (c *Config) ValidateSign() error {
	if !c.Sign.Enabled {
		return nil
	}
	switch sign.Backend(c.Sign.Backend) {
	case sign.OpenPGP:
		if c.Sign.KeyFile == "" {
			return errs.Configuration("signing with openpgp requires a key file")
		}
	case sign.GPG:
		if c.Sign.KeyID == "" {
			return errs.Configuration("signing with gpg requires a key id")
		}
	default:
		return errs.Configuration("unknown signing backend: " + c.Sign.Backend)
	}
	return nil
}

// Passphrase reads the signing passphrase from the configured environment
// variable.
func (c *Config) Passphrase() string {
	if c.Sign.PassphraseEnv == "" {
		return ""
	}
	return os.Getenv(c.Sign.PassphraseEnv)
}

// CacheTTL is the serve cache lifetime, zero when caching is disabled.
func (c *Config) CacheTTL() (time.Duration, error) {
	if !c.Serve.Cache.Enabled {
		return 0, nil
	}
	ttl, err := time.ParseDuration(c.Serve.Cache.TTL)
	if err != nil {
		return 0, errs.Configuration("invalid cache ttl: " + c.Serve.Cache.TTL)
	}
	return ttl, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
