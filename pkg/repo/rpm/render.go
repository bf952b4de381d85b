package rpm

import (
	"bytes"
	"context"
	"encoding/xml"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"s3repo/internal/errs"
	"s3repo/internal/types"
	"s3repo/pkg/repo"
)

// Render writes outDir/repodata/repomd.xml and the three compressed
// listings it references. Timestamps and the revision are the newest
// package build time, never the wall clock.
func (g *Generator) Render(ctx context.Context, entries []repo.PackageEntry, outDir string, checksum string) ([]string, error) {
	checksum, err := NormalizeChecksum(checksum)
	if err != nil {
		return nil, err
	}
	repodata := filepath.Join(outDir, repo.RepodataDir)
	if err := os.MkdirAll(repodata, 0755); err != nil {
		return nil, errs.Generation("failed to create "+repodata, err)
	}

	primary := types.Metadata{Xmlns: types.NamespaceCommon, XmlnsRpm: types.NamespaceRPM, Count: len(entries)}
	filelists := types.Filelists{Xmlns: types.NamespaceFilelists, Count: len(entries)}
	other := types.Otherdata{Xmlns: types.NamespaceOther, Count: len(entries)}

	var revision int64
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(e)
		if err != nil {
			return nil, err
		}
		// the entry is authoritative for where the package lives and what it hashes to
		rec.Primary.Checksum = types.Checksum{Type: e.Checksum.Type, Pkgid: "YES", Value: e.Checksum.Value}
		rec.Primary.Location = types.Location{Href: e.Location}
		rec.Primary.Size.Package = e.Size
		rec.Files.Pkgid = e.Checksum.Value
		rec.Other.Pkgid = e.Checksum.Value

		primary.Packages = append(primary.Packages, rec.Primary)
		filelists.Packages = append(filelists.Packages, rec.Files)
		other.Packages = append(other.Packages, rec.Other)
		if e.BuildTime > revision {
			revision = e.BuildTime
		}
	}

	repomd := types.Repomd{
		Xmlns:    types.NamespaceRepo,
		XmlnsRpm: types.NamespaceRPM,
		Revision: strconv.FormatInt(revision, 10),
	}
	var artifacts []string
	for _, doc := range []struct {
		name string
		v    interface{}
	}{
		{"primary", primary},
		{"filelists", filelists},
		{"other", other},
	} {
		data, path, err := writeListing(repodata, doc.name, doc.v, checksum, revision)
		if err != nil {
			return nil, err
		}
		repomd.Data = append(repomd.Data, data)
		artifacts = append(artifacts, path)
	}

	raw, err := encodeXML(repomd)
	if err != nil {
		return nil, errs.Generation("failed to encode repomd.xml", err)
	}
	repomdPath := filepath.Join(repodata, repo.RepomdFile)
	if err := os.WriteFile(repomdPath, raw, 0644); err != nil {
		return nil, errs.Generation("failed to write "+repomdPath, err)
	}
	artifacts = append(artifacts, repomdPath)
	g.log.Debugf("rendered %d packages at revision %d", len(entries), revision)
	return artifacts, nil
}

// writeListing writes <sum>-<name>.xml.gz and describes it for repomd.xml.
func writeListing(repodata, name string, v interface{}, checksum string, timestamp int64) (types.RepomdData, string, error) {
	raw, err := encodeXML(v)
	if err != nil {
		return types.RepomdData{}, "", errs.Generation("failed to encode "+name, err)
	}
	compressed, err := compress(raw)
	if err != nil {
		return types.RepomdData{}, "", errs.Generation("failed to compress "+name, err)
	}
	sum := digestBytes(compressed, checksum)
	file := sum + "-" + name + ".xml.gz"
	path := filepath.Join(repodata, file)
	if err := os.WriteFile(path, compressed, 0644); err != nil {
		return types.RepomdData{}, "", errs.Generation("failed to write "+path, err)
	}
	return types.RepomdData{
		Type:         name,
		Checksum:     types.Checksum{Type: checksum, Value: sum},
		OpenChecksum: types.Checksum{Type: checksum, Value: digestBytes(raw, checksum)},
		Location:     types.Location{Href: repo.RepodataDir + "/" + file},
		Timestamp:    timestamp,
		Size:         int64(len(compressed)),
		OpenSize:     int64(len(raw)),
	}, path, nil
}

func encodeXML(v interface{}) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	// no indentation: <format> bodies are copied verbatim
	if err := xml.NewEncoder(&b).Encode(v); err != nil {
		return nil, err
	}
	b.WriteString("\n")
	return b.Bytes(), nil
}

// compress gzips data with a zero header mtime so equal input gives equal
// output.
func compress(data []byte) ([]byte, error) {
	var b bytes.Buffer
	zw, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
