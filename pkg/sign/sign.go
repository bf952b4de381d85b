// Package sign produces detached armored signatures of repository metadata.
package sign

import (
	"context"

	"go.uber.org/zap"

	"s3repo/internal/errs"
)

// Signer signs files and exports the matching public key.
type Signer interface {
	// Sign writes path.asc and returns its path.
	Sign(ctx context.Context, path string) (string, error)
	// ExportPublicKey writes the armored public key to dest.
	ExportPublicKey(ctx context.Context, dest string) error
}

type Backend string

const (
	OpenPGP Backend = "openpgp"
	GPG     Backend = "gpg"
)

type Options struct {
	Backend    Backend
	KeyID      string
	KeyFile    string
	Passphrase string
	// GPGBinary overrides the gpg executable.
	GPGBinary string
	Log       *zap.SugaredLogger
}

func New(opts Options) (Signer, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	switch opts.Backend {
	case OpenPGP, "":
		if opts.KeyFile == "" {
			return nil, errs.Configuration("signing with openpgp requires a key file")
		}
		s, err := NewOpenPGPSigner(opts.KeyFile, opts.KeyID, opts.Passphrase, opts.Log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case GPG:
		if opts.KeyID == "" {
			return nil, errs.Configuration("signing with gpg requires a key id")
		}
		return NewGPGSigner(opts.GPGBinary, opts.KeyID, opts.Passphrase, opts.Log), nil
	default:
		return nil, errs.Configuration("unknown signing backend: " + string(opts.Backend))
	}
}

func signaturePath(path string) string {
	return path + ".asc"
}
