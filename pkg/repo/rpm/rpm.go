// Package rpm reads RPM packages and reads and writes yum repodata.
package rpm

import (
	"context"
	"encoding/xml"
	"path/filepath"
	"strconv"

	"github.com/cavaliergopher/rpm"
	"go.uber.org/zap"

	"s3repo/internal/errs"
	"s3repo/internal/types"
	"s3repo/pkg/repo"
)

func init() {
	repo.Register(repo.Builtin, func(opts repo.GeneratorOptions) repo.Generator {
		return NewGenerator(opts.Arches, opts.Log)
	})
}

// record is the opaque PackageEntry.Metadata of this generator: the three
// per-package elements of primary, filelists and other.
type record struct {
	XMLName xml.Name              `xml:"record"`
	Primary types.Package         `xml:"package"`
	Files   types.FilelistPackage `xml:"filelist"`
	Other   types.OtherPackage    `xml:"other"`
}

// Generator is the in-process repodata generator. Its output depends only on
// the index, so rendering the same index twice gives identical files.
type Generator struct {
	arches map[string]bool
	log    *zap.SugaredLogger
}

func NewGenerator(arches []string, log *zap.SugaredLogger) *Generator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	g := &Generator{log: log}
	if len(arches) > 0 {
		g.arches = make(map[string]bool, len(arches))
		for _, a := range arches {
			g.arches[a] = true
		}
	}
	return g
}

func (g *Generator) acceptsArch(arch string) bool {
	return g.arches == nil || g.arches[arch] || arch == "noarch"
}

// ReadPackage reads the RPM header of path and returns its index entry. The
// entry's location is the file's base name.
func (g *Generator) ReadPackage(ctx context.Context, path string, checksum string) (repo.PackageEntry, error) {
	if err := ctx.Err(); err != nil {
		return repo.PackageEntry{}, err
	}
	checksum, err := NormalizeChecksum(checksum)
	if err != nil {
		return repo.PackageEntry{}, err
	}

	pkg, err := rpm.Open(path)
	if err != nil {
		return repo.PackageEntry{}, errs.Generation("failed to read rpm header of "+path, err)
	}
	arch := pkg.Architecture()
	if pkg.SourceRPM() == "" {
		arch = "src"
	}
	if !g.acceptsArch(arch) {
		return repo.PackageEntry{}, errs.Generation("package "+filepath.Base(path)+" has unsupported architecture "+arch, nil)
	}

	digest, size, err := digestFile(path, checksum)
	if err != nil {
		return repo.PackageEntry{}, errs.Generation("failed to checksum "+path, err)
	}

	location := filepath.Base(path)
	buildTime := pkg.BuildTime().Unix()
	files := pkg.Files()
	primary := types.Package{
		Type:        "rpm",
		Name:        pkg.Name(),
		Arch:        arch,
		Version:     types.Version{Epoch: strconv.Itoa(pkg.Epoch()), Ver: pkg.Version(), Rel: pkg.Release()},
		Checksum:    types.Checksum{Type: checksum, Pkgid: "YES", Value: digest},
		Summary:     pkg.Summary(),
		Description: pkg.Description(),
		Packager:    pkg.Packager(),
		URL:         pkg.URL(),
		Time:        types.Time{File: buildTime, Build: buildTime},
		Size: types.Size{
			Package:   size,
			Installed: int64(pkg.Size()),
			Archive:   int64(pkg.ArchiveSize()),
		},
		Location: types.Location{Href: location},
		Format:   types.Format{Inner: formatXML(pkg, files)},
	}
	var fileList []types.FileEntry
	for _, f := range files {
		entry := types.FileEntry{Path: f.Name()}
		if f.Mode().IsDir() {
			entry.Type = "dir"
		}
		fileList = append(fileList, entry)
	}

	entry, err := NewEntry(primary, fileList)
	if err != nil {
		return repo.PackageEntry{}, err
	}
	g.log.Debugf("read %s as %s", location, entry.Identity)
	return entry, nil
}

// NewEntry builds an index entry from a primary.xml package element and the
// package's file list.
func NewEntry(primary types.Package, files []types.FileEntry) (repo.PackageEntry, error) {
	epoch := 0
	if primary.Version.Epoch != "" {
		n, err := strconv.Atoi(primary.Version.Epoch)
		if err != nil {
			return repo.PackageEntry{}, errs.Generation("invalid epoch for package "+primary.Name, err)
		}
		epoch = n
	}
	pkgid := primary.Checksum.Value
	rec := record{
		Primary: primary,
		Files: types.FilelistPackage{
			Pkgid:   pkgid,
			Name:    primary.Name,
			Arch:    primary.Arch,
			Version: primary.Version,
			Files:   files,
		},
		Other: types.OtherPackage{Pkgid: pkgid, Name: primary.Name, Arch: primary.Arch, Version: primary.Version},
	}
	meta, err := xml.Marshal(rec)
	if err != nil {
		return repo.PackageEntry{}, errs.Generation("failed to encode metadata of "+primary.Name, err)
	}
	return repo.PackageEntry{
		Identity: repo.PackageIdentity{
			Name:    primary.Name,
			Epoch:   epoch,
			Version: primary.Version.Ver,
			Release: primary.Version.Rel,
			Arch:    primary.Arch,
		},
		Location:  primary.Location.Href,
		Checksum:  repo.Checksum{Type: primary.Checksum.Type, Value: pkgid},
		Size:      primary.Size.Package,
		BuildTime: primary.Time.Build,
		Metadata:  meta,
	}, nil
}

func decodeRecord(e repo.PackageEntry) (record, error) {
	var rec record
	if err := xml.Unmarshal(e.Metadata, &rec); err != nil {
		return rec, errs.Generation("corrupt metadata for "+e.Identity.String(), err)
	}
	return rec, nil
}
