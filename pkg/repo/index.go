package repo

import "sort"

type Checksum struct {
	Type  string
	Value string
}

// PackageEntry is one package as listed in the index. Location is relative
// to the repository root. Metadata is owned by the Generator that produced
// the entry and is not interpreted anywhere else.
type PackageEntry struct {
	Identity  PackageIdentity
	Location  string
	Checksum  Checksum
	Size      int64
	BuildTime int64
	Metadata  []byte
}

// PackageIndex holds at most one entry per identity.
type PackageIndex struct {
	entries map[PackageIdentity]PackageEntry
}

func NewPackageIndex(entries ...PackageEntry) *PackageIndex {
	idx := &PackageIndex{entries: make(map[PackageIdentity]PackageEntry, len(entries))}
	for _, e := range entries {
		idx.Put(e)
	}
	return idx
}

// Put inserts e, replacing any entry with the same identity.
func (idx *PackageIndex) Put(e PackageEntry) {
	idx.entries[e.Identity] = e
}

func (idx *PackageIndex) Remove(id PackageIdentity) {
	delete(idx.entries, id)
}

func (idx *PackageIndex) Get(id PackageIdentity) (PackageEntry, bool) {
	e, ok := idx.entries[id]
	return e, ok
}

func (idx *PackageIndex) Len() int {
	return len(idx.entries)
}

// Entries returns the entries sorted by identity.
func (idx *PackageIndex) Entries() []PackageEntry {
	out := make([]PackageEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity.Less(out[j].Identity) })
	return out
}

func (idx *PackageIndex) Clone() *PackageIndex {
	c := &PackageIndex{entries: make(map[PackageIdentity]PackageEntry, len(idx.entries))}
	for k, v := range idx.entries {
		c.entries[k] = v
	}
	return c
}
