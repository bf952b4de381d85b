package repo

import (
	"fmt"
	"strconv"
)

// PackageIdentity is the NEVRA tuple that identifies a package. Two packages
// with equal identities are the same package regardless of file name.
type PackageIdentity struct {
	Name    string
	Epoch   int
	Version string
	Release string
	Arch    string
}

// String renders name-[epoch:]version-release.arch.
func (id PackageIdentity) String() string {
	epoch := ""
	if id.Epoch != 0 {
		epoch = strconv.Itoa(id.Epoch) + ":"
	}
	return fmt.Sprintf("%s-%s%s-%s.%s", id.Name, epoch, id.Version, id.Release, id.Arch)
}

// Less orders identities by name, epoch, version, release and arch.
func (id PackageIdentity) Less(other PackageIdentity) bool {
	if id.Name != other.Name {
		return id.Name < other.Name
	}
	if id.Epoch != other.Epoch {
		return id.Epoch < other.Epoch
	}
	if id.Version != other.Version {
		return id.Version < other.Version
	}
	if id.Release != other.Release {
		return id.Release < other.Release
	}
	return id.Arch < other.Arch
}
