package repo

import (
	"fmt"

	"s3repo/internal/errs"
)

// Change is one incoming package. With Evict set the package is removed from
// the index instead of added.
type Change struct {
	Entry PackageEntry
	Evict bool
}

// Merge applies changes in order to a copy of current. For every change the
// entry with the same identity is dropped, then re-added unless the change
// evicts it. current is left untouched.
func Merge(current *PackageIndex, changes []Change) *PackageIndex {
	var merged *PackageIndex
	if current == nil {
		merged = NewPackageIndex()
	} else {
		merged = current.Clone()
	}
	for _, c := range changes {
		merged.Remove(c.Entry.Identity)
		if !c.Evict {
			merged.Put(c.Entry)
		}
	}
	return merged
}

// CheckLocations fails when two entries of idx are stored under the same
// location. Packages live at prefix/<location>, so one of the two blobs
// would be overwritten and its entry would advertise the wrong checksum.
func CheckLocations(idx *PackageIndex) error {
	seen := make(map[string]PackageIdentity, idx.Len())
	for _, e := range idx.Entries() {
		if other, ok := seen[e.Location]; ok {
			return errs.Generation(fmt.Sprintf("packages %s and %s share location %s", other, e.Identity, e.Location), nil)
		}
		seen[e.Location] = e.Identity
	}
	return nil
}
