package rpm

import (
	"context"
	"encoding/xml"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"s3repo/internal/errs"
	"s3repo/internal/types"
	"s3repo/pkg/repo"
)

// ReadRepomd parses repodata/repomd.xml.
func ReadRepomd(r io.Reader) (*types.Repomd, error) {
	var repomd types.Repomd
	if err := xml.NewDecoder(r).Decode(&repomd); err != nil {
		return nil, errs.Generation("failed to parse repomd.xml", err)
	}
	return &repomd, nil
}

// LoadIndex rebuilds the package index from a repodata directory holding
// repomd.xml and the listings it references. filelists is optional; primary
// is not. other.xml carries nothing beyond what primary has, so it is not
// read.
func (g *Generator) LoadIndex(ctx context.Context, repodataDir string) (*repo.PackageIndex, error) {
	f, err := os.Open(filepath.Join(repodataDir, repo.RepomdFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound("repomd.xml not found in " + repodataDir)
		}
		return nil, errs.Generation("failed to open repomd.xml", err)
	}
	repomd, err := ReadRepomd(f)
	f.Close()
	if err != nil {
		return nil, err
	}

	primaryData, ok := repomd.Find("primary")
	if !ok {
		return nil, errs.Generation("repomd.xml has no primary data", nil)
	}
	var primary types.Metadata
	if err := readListing(repodataDir, primaryData.Location.Href, &primary); err != nil {
		return nil, err
	}

	fileLists := map[string]types.FilelistPackage{}
	if data, ok := repomd.Find("filelists"); ok {
		var doc types.Filelists
		if err := readListing(repodataDir, data.Location.Href, &doc); err != nil {
			return nil, err
		}
		for _, p := range doc.Packages {
			fileLists[p.Pkgid] = p
		}
	}
	index := repo.NewPackageIndex()
	for _, p := range primary.Packages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := NewEntry(p, fileLists[p.Checksum.Value].Files)
		if err != nil {
			return nil, err
		}
		index.Put(entry)
	}
	g.log.Debugf("loaded %d packages from %s", index.Len(), repodataDir)
	return index, nil
}

// readListing decodes a listing referenced by href. Listings are gzip
// compressed unless their name says otherwise.
func readListing(repodataDir, href string, v interface{}) error {
	p := filepath.Join(repodataDir, path.Base(href))
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.Generation("referenced metadata file is missing: "+href, err)
		}
		return errs.Generation("failed to open "+href, err)
	}
	defer f.Close()

	var r io.Reader = f
	if filepath.Ext(p) == ".gz" {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return errs.Generation("failed to decompress "+href, err)
		}
		defer zr.Close()
		r = zr
	}
	if err := xml.NewDecoder(r).Decode(v); err != nil {
		return errs.Generation("failed to parse "+href, err)
	}
	return nil
}
