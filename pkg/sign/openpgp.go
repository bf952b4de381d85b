package sign

import (
	"context"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"go.uber.org/zap"

	"s3repo/internal/errs"
)

// OpenPGPSigner signs in-process with a key read from a key file.
type OpenPGPSigner struct {
	entity *openpgp.Entity
	log    *zap.SugaredLogger
}

// NewOpenPGPSigner loads the secret key matching keyID from keyFile. keyID
// may be a long or short key id, a fingerprint, or an email address; empty
// selects the first secret key.
func NewOpenPGPSigner(keyFile, keyID, passphrase string, log *zap.SugaredLogger) (*OpenPGPSigner, error) {
	f, err := os.Open(keyFile)
	if err != nil {
		return nil, errs.Signing("failed to open signing key "+keyFile, err)
	}
	defer f.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
			return nil, errs.Signing("failed to read signing key", err)
		}
		keyring, err = openpgp.ReadKeyRing(f)
		if err != nil {
			return nil, errs.Signing("failed to read signing key", err)
		}
	}

	entity := selectEntity(keyring, keyID)
	if entity == nil {
		return nil, errs.Signing("no secret key matching "+keyID+" in "+keyFile, nil)
	}
	if err := unlock(entity, passphrase); err != nil {
		return nil, err
	}

	log.Infof("signing with key %s", entity.PrimaryKey.KeyIdString())
	return &OpenPGPSigner{entity: entity, log: log}, nil
}

func selectEntity(keyring openpgp.EntityList, keyID string) *openpgp.Entity {
	want := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(keyID), "0x"))
	for _, e := range keyring {
		if e.PrivateKey == nil {
			continue
		}
		if want == "" {
			return e
		}
		fingerprint := strings.ToUpper(hex.EncodeToString(e.PrimaryKey.Fingerprint))
		if strings.ToUpper(e.PrimaryKey.KeyIdString()) == want ||
			strings.ToUpper(e.PrimaryKey.KeyIdShortString()) == want ||
			fingerprint == want {
			return e
		}
		for _, ident := range e.Identities {
			if ident.UserId != nil && strings.EqualFold(ident.UserId.Email, keyID) {
				return e
			}
		}
	}
	return nil
}

func unlock(entity *openpgp.Entity, passphrase string) error {
	if entity.PrivateKey.Encrypted {
		if passphrase == "" {
			return errs.Signing("signing key is encrypted and no passphrase was given", nil)
		}
		if err := entity.PrivateKey.Decrypt([]byte(passphrase)); err != nil {
			return errs.Signing("failed to unlock signing key", err)
		}
	}
	for _, sub := range entity.Subkeys {
		if sub.PrivateKey != nil && sub.PrivateKey.Encrypted && passphrase != "" {
			if err := sub.PrivateKey.Decrypt([]byte(passphrase)); err != nil {
				return errs.Signing("failed to unlock signing subkey", err)
			}
		}
	}
	return nil
}

func (s *OpenPGPSigner) Sign(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	in, err := os.Open(path)
	if err != nil {
		return "", errs.Signing("failed to open "+path, err)
	}
	defer in.Close()

	sigPath := signaturePath(path)
	out, err := os.Create(sigPath)
	if err != nil {
		return "", errs.Signing("failed to create "+sigPath, err)
	}
	if err := openpgp.ArmoredDetachSign(out, s.entity, in, nil); err != nil {
		out.Close()
		return "", errs.Signing("failed to sign "+path, err)
	}
	if err := out.Close(); err != nil {
		return "", errs.Signing("failed to write "+sigPath, err)
	}
	s.log.Debugf("signed %s", path)
	return sigPath, nil
}

func (s *OpenPGPSigner) ExportPublicKey(ctx context.Context, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return errs.Signing("failed to create "+dest, err)
	}
	wc, err := armor.Encode(out, openpgp.PublicKeyType, nil)
	if err != nil {
		out.Close()
		return errs.Signing("failed to armor public key", err)
	}
	if err := s.entity.Serialize(wc); err != nil {
		wc.Close()
		out.Close()
		return errs.Signing("failed to serialize public key", err)
	}
	if err := wc.Close(); err != nil {
		out.Close()
		return errs.Signing("failed to armor public key", err)
	}
	if err := out.Close(); err != nil {
		return errs.Signing("failed to write "+dest, err)
	}
	return nil
}
