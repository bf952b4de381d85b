// Package pkg registers the storage backends and metadata generators with
// their factories.
package pkg

import (
	_ "s3repo/pkg/repo/rpm"
	_ "s3repo/pkg/storage/local"
	_ "s3repo/pkg/storage/s3"
)
