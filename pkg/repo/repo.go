package repo

import "context"

// Generator reads packages and reads and writes the repository index. It is
// the only component that understands PackageEntry.Metadata.
type Generator interface {
	// 读取单个包文件，生成索引条目
	ReadPackage(ctx context.Context, path string, checksum string) (PackageEntry, error)

	// 从 repodata 目录加载现有索引
	LoadIndex(ctx context.Context, repodataDir string) (*PackageIndex, error)

	// 将索引写入 outDir/repodata，返回生成的文件路径
	Render(ctx context.Context, entries []PackageEntry, outDir string, checksum string) ([]string, error)
}

// PackageSource copies the package stored at a repository-relative location
// to dest. Generators that rescan package files use it for packages that
// were not read in this run.
type PackageSource func(ctx context.Context, location string, dest string) error

const (
	RepodataDir = "repodata"
	RepomdFile  = "repomd.xml"
	// SignatureFile is the detached armored signature of repomd.xml.
	SignatureFile = "repomd.xml.asc"
	PublicKeyFile = "RPM-GPG-KEY"
)
