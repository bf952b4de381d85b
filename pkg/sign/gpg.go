package sign

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"s3repo/internal/errs"
)

// GPGSigner signs through a gpg subprocess using the caller's keyring.
type GPGSigner struct {
	binary     string
	keyID      string
	passphrase string
	log        *zap.SugaredLogger
}

func NewGPGSigner(binary, keyID, passphrase string, log *zap.SugaredLogger) *GPGSigner {
	if binary == "" {
		binary = "gpg"
	}
	return &GPGSigner{binary: binary, keyID: keyID, passphrase: passphrase, log: log}
}

func (g *GPGSigner) Sign(ctx context.Context, path string) (string, error) {
	sigPath := signaturePath(path)
	args := []string{"--batch", "--yes", "--armor", "--detach-sign", "--local-user", g.keyID}
	if err := g.run(ctx, args, "--output", sigPath, path); err != nil {
		return "", errs.Signing("gpg failed to sign "+path, err)
	}
	g.log.Debugf("signed %s with gpg key %s", path, g.keyID)
	return sigPath, nil
}

func (g *GPGSigner) ExportPublicKey(ctx context.Context, dest string) error {
	args := []string{"--batch", "--yes", "--armor", "--output", dest}
	if err := g.run(ctx, args, "--export", g.keyID); err != nil {
		return errs.Signing("gpg failed to export key "+g.keyID, err)
	}
	return nil
}

// run appends the passphrase options, then tail, and runs gpg. stderr is
// folded into the returned error.
func (g *GPGSigner) run(ctx context.Context, args []string, tail ...string) error {
	var stdin *strings.Reader
	if g.passphrase != "" {
		args = append(args, "--pinentry-mode", "loopback", "--passphrase-fd", "0")
		stdin = strings.NewReader(g.passphrase)
	}
	args = append(args, tail...)

	cmd := exec.CommandContext(ctx, g.binary, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return errs.Signing(msg, err)
		}
		return err
	}
	return nil
}
