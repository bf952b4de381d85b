package types

import "encoding/xml"

const (
	NamespaceCommon    = "http://linux.duke.edu/metadata/common"
	NamespaceRPM       = "http://linux.duke.edu/metadata/rpm"
	NamespaceRepo      = "http://linux.duke.edu/metadata/repo"
	NamespaceFilelists = "http://linux.duke.edu/metadata/filelists"
	NamespaceOther     = "http://linux.duke.edu/metadata/other"
)

// Repomd is repodata/repomd.xml.
type Repomd struct {
	XMLName  xml.Name     `xml:"repomd"`
	Xmlns    string       `xml:"xmlns,attr,omitempty"`
	XmlnsRpm string       `xml:"xmlns:rpm,attr,omitempty"`
	Revision string       `xml:"revision"`
	Data     []RepomdData `xml:"data"`
}

type RepomdData struct {
	Type         string   `xml:"type,attr"`
	Checksum     Checksum `xml:"checksum"`
	OpenChecksum Checksum `xml:"open-checksum"`
	Location     Location `xml:"location"`
	Timestamp    int64    `xml:"timestamp"`
	Size         int64    `xml:"size"`
	OpenSize     int64    `xml:"open-size"`
}

// Find returns the data record of the given type.
func (r *Repomd) Find(dataType string) (RepomdData, bool) {
	for _, d := range r.Data {
		if d.Type == dataType {
			return d, true
		}
	}
	return RepomdData{}, false
}

// Hrefs lists data file locations relative to the repository root. With no
// types given every data file is listed.
func (r *Repomd) Hrefs(dataTypes ...string) []string {
	want := make(map[string]bool, len(dataTypes))
	for _, t := range dataTypes {
		want[t] = true
	}
	var out []string
	for _, d := range r.Data {
		if len(want) == 0 || want[d.Type] {
			out = append(out, d.Location.Href)
		}
	}
	return out
}

// Metadata is primary.xml.
type Metadata struct {
	XMLName  xml.Name  `xml:"metadata"`
	Xmlns    string    `xml:"xmlns,attr,omitempty"`
	XmlnsRpm string    `xml:"xmlns:rpm,attr,omitempty"`
	Count    int       `xml:"packages,attr"`
	Packages []Package `xml:"package"`
}

type Package struct {
	Type        string   `xml:"type,attr"`
	Name        string   `xml:"name"`
	Arch        string   `xml:"arch"`
	Version     Version  `xml:"version"`
	Checksum    Checksum `xml:"checksum"`
	Summary     string   `xml:"summary"`
	Description string   `xml:"description"`
	Packager    string   `xml:"packager"`
	URL         string   `xml:"url"`
	Time        Time     `xml:"time"`
	Size        Size     `xml:"size"`
	Location    Location `xml:"location"`
	// Format keeps the rpm: namespaced block verbatim.
	Format Format `xml:"format"`
}

type Version struct {
	Epoch string `xml:"epoch,attr"`
	Ver   string `xml:"ver,attr"`
	Rel   string `xml:"rel,attr"`
}

type Checksum struct {
	Type  string `xml:"type,attr"`
	Pkgid string `xml:"pkgid,attr,omitempty"`
	Value string `xml:",chardata"`
}

type Location struct {
	Href string `xml:"href,attr"`
}

type Time struct {
	File  int64 `xml:"file,attr"`
	Build int64 `xml:"build,attr"`
}

type Size struct {
	Package   int64 `xml:"package,attr"`
	Installed int64 `xml:"installed,attr"`
	Archive   int64 `xml:"archive,attr"`
}

type Format struct {
	Inner []byte `xml:",innerxml"`
}

// Filelists is filelists.xml.
type Filelists struct {
	XMLName  xml.Name          `xml:"filelists"`
	Xmlns    string            `xml:"xmlns,attr,omitempty"`
	Count    int               `xml:"packages,attr"`
	Packages []FilelistPackage `xml:"package"`
}

type FilelistPackage struct {
	Pkgid   string      `xml:"pkgid,attr"`
	Name    string      `xml:"name,attr"`
	Arch    string      `xml:"arch,attr"`
	Version Version     `xml:"version"`
	Files   []FileEntry `xml:"file"`
}

type FileEntry struct {
	Type string `xml:"type,attr,omitempty"`
	Path string `xml:",chardata"`
}

// Otherdata is other.xml. Changelogs are not carried.
type Otherdata struct {
	XMLName  xml.Name       `xml:"otherdata"`
	Xmlns    string         `xml:"xmlns,attr,omitempty"`
	Count    int            `xml:"packages,attr"`
	Packages []OtherPackage `xml:"package"`
}

type OtherPackage struct {
	Pkgid   string  `xml:"pkgid,attr"`
	Name    string  `xml:"name,attr"`
	Arch    string  `xml:"arch,attr"`
	Version Version `xml:"version"`
}
