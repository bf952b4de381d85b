package utils

import (
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/mailru/easyjson"
)

var segmentPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// 验证仓库路径
func IsValidRepoName(name string) bool {
	// 斜杠用于表示层级结构，如 el9/x86_64 或 fedora/40/updates
	if len(name) == 0 || len(name) > 256 {
		return false
	}

	// 不能以斜杠开头或结尾
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return false
	}

	for _, segment := range strings.Split(name, "/") {
		// 空段即连续的斜杠
		if len(segment) == 0 || len(segment) > 50 {
			return false
		}
		if segment == "." || segment == ".." {
			return false
		}
		if !segmentPattern.MatchString(segment) {
			return false
		}
	}

	return true
}

// SplitList splits a comma separated flag value, dropping blanks.
func SplitList(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ContentType 根据文件扩展名获取内容类型
func ContentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".xml"):
		return "application/xml"
	case strings.HasSuffix(key, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(key, ".asc"):
		return "application/pgp-signature"
	case strings.HasSuffix(key, ".rpm"):
		return "application/x-rpm"
	case path.Base(key) == "RPM-GPG-KEY":
		return "application/pgp-keys"
	default:
		return "application/octet-stream"
	}
}

func WriteTo(m easyjson.Marshaler, w io.Writer) (int64, error) {
	n, err := easyjson.MarshalToWriter(m, w)
	return int64(n), err
}
