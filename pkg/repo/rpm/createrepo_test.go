package rpm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"s3repo/internal/errs"
	"s3repo/pkg/repo"
)

func TestCreaterepoNeedsPackageFiles(t *testing.T) {
	c := NewCreaterepoGenerator(nil, nil, zap.NewNop().Sugar())

	_, err := c.Render(context.Background(), []repo.PackageEntry{testEntry(t, "foo", "1.0", 1)}, t.TempDir(), "sha256")
	require.Error(t, err)
	assert.True(t, errs.IsGeneration(err))
}

func TestCreaterepoPullsMissingPackagesFromSource(t *testing.T) {
	var requested []string
	source := func(ctx context.Context, location string, dest string) error {
		requested = append(requested, location)
		return errs.TransientStore("store unavailable", errors.New("503"))
	}
	c := NewCreaterepoGenerator(nil, source, zap.NewNop().Sugar())

	_, err := c.Render(context.Background(), []repo.PackageEntry{testEntry(t, "foo", "1.0", 1)}, t.TempDir(), "sha256")
	assert.True(t, errs.IsTransient(err))
	assert.Equal(t, []string{"foo-1.0-1.x86_64.rpm"}, requested)
}
