package rpm

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	"s3repo/internal/errs"
)

const DefaultChecksum = "sha256"

// NormalizeChecksum maps user input to the checksum type written into the
// metadata.
func NormalizeChecksum(checksum string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(checksum)) {
	case "", "sha256":
		return "sha256", nil
	case "sha", "sha1":
		return "sha1", nil
	case "sha384":
		return "sha384", nil
	case "sha512":
		return "sha512", nil
	default:
		return "", errs.Configuration("unsupported checksum type: " + checksum)
	}
}

func newHash(checksum string) hash.Hash {
	switch checksum {
	case "sha1":
		return sha1.New()
	case "sha384":
		return sha512.New384()
	case "sha512":
		return sha512.New()
	default:
		return sha256.New()
	}
}

func digestBytes(data []byte, checksum string) string {
	h := newHash(checksum)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func digestFile(path string, checksum string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()
	h := newHash(checksum)
	n, err := io.Copy(h, file)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
