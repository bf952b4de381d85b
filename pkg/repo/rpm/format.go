package rpm

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/cavaliergopher/rpm"
)

// dependency sense flags from rpm's header
const (
	senseLess       = 0x02
	senseGreater    = 0x04
	senseEqual      = 0x08
	sensePrereq     = 0x40
	senseScriptPre  = 0x200
	senseScriptPost = 0x400
)

// formatXML renders the rpm: namespaced <format> body of a primary entry.
func formatXML(pkg *rpm.Package, files []rpm.FileInfo) []byte {
	var b bytes.Buffer
	textElem(&b, "rpm:license", pkg.License())
	textElem(&b, "rpm:vendor", pkg.Vendor())
	textElem(&b, "rpm:group", strings.Join(pkg.Groups(), ", "))
	textElem(&b, "rpm:buildhost", pkg.BuildHost())
	textElem(&b, "rpm:sourcerpm", pkg.SourceRPM())

	depsElem(&b, "rpm:provides", pkg.Provides())
	var requires []rpm.Dependency
	for _, dep := range pkg.Requires() {
		if strings.HasPrefix(dep.Name(), "rpmlib(") {
			continue
		}
		requires = append(requires, dep)
	}
	depsElem(&b, "rpm:requires", requires)
	depsElem(&b, "rpm:conflicts", pkg.Conflicts())
	depsElem(&b, "rpm:obsoletes", pkg.Obsoletes())

	for _, f := range files {
		if !isPrimaryFile(f.Name()) {
			continue
		}
		if f.Mode().IsDir() {
			b.WriteString(`<file type="dir">`)
		} else {
			b.WriteString(`<file>`)
		}
		escape(&b, f.Name())
		b.WriteString(`</file>`)
	}
	return b.Bytes()
}

// isPrimaryFile reports whether a path is listed in primary.xml in addition
// to filelists.xml, following createrepo's rule.
func isPrimaryFile(path string) bool {
	return strings.Contains(path, "bin/") ||
		strings.HasPrefix(path, "/etc/") ||
		path == "/usr/lib/sendmail"
}

func textElem(b *bytes.Buffer, name, value string) {
	if value == "" {
		b.WriteString("<" + name + "/>")
		return
	}
	b.WriteString("<" + name + ">")
	escape(b, value)
	b.WriteString("</" + name + ">")
}

func depsElem(b *bytes.Buffer, name string, deps []rpm.Dependency) {
	if len(deps) == 0 {
		return
	}
	seen := make(map[string]bool, len(deps))
	b.WriteString("<" + name + ">")
	for _, dep := range deps {
		entry := depEntry(dep)
		if seen[entry] {
			continue
		}
		seen[entry] = true
		b.WriteString(entry)
	}
	b.WriteString("</" + name + ">")
}

func depEntry(dep rpm.Dependency) string {
	var b bytes.Buffer
	b.WriteString(`<rpm:entry name="`)
	escape(&b, dep.Name())
	b.WriteString(`"`)
	if flags := senseFlags(dep.Flags()); flags != "" {
		b.WriteString(` flags="` + flags + `" epoch="` + strconv.Itoa(dep.Epoch()) + `"`)
		if v := dep.Version(); v != "" {
			b.WriteString(` ver="`)
			escape(&b, v)
			b.WriteString(`"`)
		}
		if r := dep.Release(); r != "" {
			b.WriteString(` rel="`)
			escape(&b, r)
			b.WriteString(`"`)
		}
	}
	if dep.Flags()&(sensePrereq|senseScriptPre|senseScriptPost) != 0 {
		b.WriteString(` pre="1"`)
	}
	b.WriteString(`/>`)
	return b.String()
}

func senseFlags(flags int) string {
	switch flags & (senseLess | senseGreater | senseEqual) {
	case senseEqual:
		return "EQ"
	case senseLess:
		return "LT"
	case senseGreater:
		return "GT"
	case senseLess | senseEqual:
		return "LE"
	case senseGreater | senseEqual:
		return "GE"
	default:
		return ""
	}
}

func escape(b *bytes.Buffer, s string) {
	// EscapeText only fails when the writer does
	_ = xml.EscapeText(b, []byte(s))
}
