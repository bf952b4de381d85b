package sign

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"s3repo/internal/errs"
)

func writeKey(t *testing.T, dir string) (*openpgp.Entity, string) {
	t.Helper()
	entity, err := openpgp.NewEntity("Repo Signer", "", "signer@example.com", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.SerializePrivate(w, nil))
	require.NoError(t, w.Close())

	keyFile := filepath.Join(dir, "signing.key")
	require.NoError(t, os.WriteFile(keyFile, buf.Bytes(), 0600))
	return entity, keyFile
}

func TestOpenPGPSignAndVerify(t *testing.T) {
	dir := t.TempDir()
	entity, keyFile := writeKey(t, dir)
	repomd := filepath.Join(dir, "repomd.xml")
	require.NoError(t, os.WriteFile(repomd, []byte("<repomd/>"), 0644))

	signer, err := New(Options{Backend: OpenPGP, KeyFile: keyFile, Log: zap.NewNop().Sugar()})
	require.NoError(t, err)

	sigPath, err := signer.Sign(context.Background(), repomd)
	require.NoError(t, err)
	assert.Equal(t, repomd+".asc", sigPath)

	sig, err := os.ReadFile(sigPath)
	require.NoError(t, err)
	assert.Contains(t, string(sig), "BEGIN PGP SIGNATURE")

	signed, err := os.Open(repomd)
	require.NoError(t, err)
	defer signed.Close()
	who, err := openpgp.CheckArmoredDetachedSignature(openpgp.EntityList{entity}, signed, bytes.NewReader(sig), nil)
	require.NoError(t, err)
	assert.Equal(t, entity.PrimaryKey.KeyId, who.PrimaryKey.KeyId)
}

func TestOpenPGPExportPublicKey(t *testing.T) {
	dir := t.TempDir()
	entity, keyFile := writeKey(t, dir)
	signer, err := NewOpenPGPSigner(keyFile, "", "", zap.NewNop().Sugar())
	require.NoError(t, err)

	dest := filepath.Join(dir, "RPM-GPG-KEY")
	require.NoError(t, signer.ExportPublicKey(context.Background(), dest))

	f, err := os.Open(dest)
	require.NoError(t, err)
	defer f.Close()
	keyring, err := openpgp.ReadArmoredKeyRing(f)
	require.NoError(t, err)
	require.Len(t, keyring, 1)
	assert.Nil(t, keyring[0].PrivateKey)
	assert.Equal(t, entity.PrimaryKey.KeyId, keyring[0].PrimaryKey.KeyId)
}

func TestOpenPGPSelectsKeyByID(t *testing.T) {
	dir := t.TempDir()
	entity, keyFile := writeKey(t, dir)

	for _, id := range []string{
		entity.PrimaryKey.KeyIdString(),
		"0x" + entity.PrimaryKey.KeyIdShortString(),
		"signer@example.com",
	} {
		_, err := NewOpenPGPSigner(keyFile, id, "", zap.NewNop().Sugar())
		assert.NoError(t, err, id)
	}

	_, err := NewOpenPGPSigner(keyFile, "DEADBEEF", "", zap.NewNop().Sugar())
	require.Error(t, err)
	assert.True(t, errs.IsSigning(err))
}

func TestOpenPGPMissingKeyFile(t *testing.T) {
	_, err := NewOpenPGPSigner(filepath.Join(t.TempDir(), "none.key"), "", "", zap.NewNop().Sugar())
	assert.True(t, errs.IsSigning(err))
}

func TestGPGFailureIsSigningError(t *testing.T) {
	dir := t.TempDir()
	repomd := filepath.Join(dir, "repomd.xml")
	require.NoError(t, os.WriteFile(repomd, []byte("<repomd/>"), 0644))

	signer := NewGPGSigner(filepath.Join(dir, "no-such-gpg"), "ABCDEF", "", zap.NewNop().Sugar())
	_, err := signer.Sign(context.Background(), repomd)
	require.Error(t, err)
	assert.True(t, errs.IsSigning(err))

	err = signer.ExportPublicKey(context.Background(), filepath.Join(dir, "RPM-GPG-KEY"))
	assert.True(t, errs.IsSigning(err))
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Backend: OpenPGP})
	assert.True(t, errs.IsConfiguration(err))

	_, err = New(Options{Backend: GPG})
	assert.True(t, errs.IsConfiguration(err))

	_, err = New(Options{Backend: "pkcs11"})
	assert.True(t, errs.IsConfiguration(err))

	s, err := New(Options{Backend: GPG, KeyID: "ABCDEF"})
	require.NoError(t, err)
	assert.IsType(t, &GPGSigner{}, s)
}
