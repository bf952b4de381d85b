package cmd

import (
	"fmt"
	"log"
	"os"

	App "s3repo/app"
	_ "s3repo/pkg"

	"github.com/urfave/cli"
)

func Execute(name, usage, version, commit string) {
	app := cli.NewApp()
	app.Name = name
	app.Usage = usage
	app.Version = version
	if commit != "" {
		app.Version = fmt.Sprintf("%s (commit %s)", version, commit)
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "config, c",
			Usage: "Configuration file path",
		},
		&cli.StringFlag{
			Name:  "log",
			Usage: "Log file path, stderr when empty",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "update",
			Usage:     "Merge packages into a repository and republish its index",
			ArgsUsage: "[files...]",
			Flags:     append(append(storageFlags(), repoFlags()...), signFlags()...),
			Action:    App.Update,
		},
		{
			Name:   "regenerate",
			Usage:  "Rebuild repodata from a local staging directory without touching the store",
			Flags:  append(regenerateFlags(), signFlags()...),
			Action: App.Regenerate,
		},
		{
			Name:   "serve",
			Usage:  "Serve a published repository read-only over HTTP",
			Flags:  append(storageFlags(), serveFlags()...),
			Action: App.Serve,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage",
			Usage: "Storage type: local or s3",
		},
		&cli.StringFlag{
			Name:  "storage-path, s",
			Usage: "Storage root directory (local) or database directory (s3)",
		},
		&cli.StringFlag{
			Name:  "bucket, b",
			Usage: "Bucket holding the repository",
		},
		&cli.StringFlag{
			Name:  "path, p",
			Usage: "Repository path inside the bucket, e.g. el9/x86_64",
		},
		&cli.IntFlag{
			Name:  "retries",
			Usage: "Retries of failed store operations",
		},
		&cli.IntFlag{
			Name:  "retry-delay-ms",
			Usage: "Base delay between retries in milliseconds",
		},
	}
}

func repoFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "delete, d",
			Usage: "Remove the given packages from the index instead of adding them",
		},
		&cli.StringSliceFlag{
			Name:  "evict",
			Usage: "Remove the package in FILE from the index (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "arch",
			Usage: "Accepted architectures, comma separated (default: all)",
		},
		&cli.StringFlag{
			Name:  "checksum",
			Usage: "Checksum type: sha256, sha1, sha384, sha512",
		},
		&cli.StringFlag{
			Name:  "visibility",
			Usage: "Object visibility: public-read or private",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Parallel uploads",
		},
		&cli.StringFlag{
			Name:  "generator",
			Usage: "Metadata generator: builtin or createrepo",
		},
	}
}

func signFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "sign",
			Usage: "Sign repomd.xml with a detached armored signature",
		},
		&cli.StringFlag{
			Name:  "sign-backend",
			Usage: "Signing backend: openpgp or gpg",
		},
		&cli.StringFlag{
			Name:  "key-id",
			Usage: "Signing key id, fingerprint or email",
		},
		&cli.StringFlag{
			Name:  "key-file",
			Usage: "Armored secret key file (openpgp backend)",
		},
		&cli.StringFlag{
			Name:  "passphrase-env",
			Usage: "Environment variable holding the key passphrase",
		},
		&cli.BoolFlag{
			Name:  "publish-key",
			Usage: "Publish the public key as repodata/RPM-GPG-KEY",
		},
	}
}

func regenerateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "staging",
			Usage: "Directory holding the index to regenerate",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Directory receiving the regenerated repodata",
		},
		&cli.StringFlag{
			Name:  "checksum",
			Usage: "Checksum type: sha256, sha1, sha384, sha512",
		},
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "listen, l",
			Usage: "Listen address",
		},
		&cli.StringFlag{
			Name:  "cache-ttl",
			Usage: "Lifetime of cached index data, 0 disables the cache",
		},
	}
}
