package types

import (
	"io"

	"github.com/mailru/easyjson/jwriter"

	"s3repo/internal/utils"
)

// JSON bodies of the serve endpoints. The marshalers are written against
// jwriter directly in the shape easyjson generates.

type Status struct {
	Server  string `json:"server,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

func (r *Status) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	r.writeFields(w)
	w.RawByte('}')
}

// writeFields writes the fields without braces so that embedding types can
// inline them.
func (r *Status) writeFields(w *jwriter.Writer) {
	w.RawString(`"status":`)
	w.String(r.Status)
	if r.Server != "" {
		w.RawString(`,"server":`)
		w.String(r.Server)
	}
	if r.Message != "" {
		w.RawString(`,"message":`)
		w.String(r.Message)
	}
	if r.Code != 0 {
		w.RawString(`,"code":`)
		w.Int(r.Code)
	}
}

func (r *Status) MarshalJSON() ([]byte, error)       { return marshal(r) }
func (r *Status) WriteTo(w io.Writer) (int64, error) { return utils.WriteTo(r, w) }

type PackageInfo struct {
	Name     string `json:"name"`
	Epoch    int    `json:"epoch"`
	Version  string `json:"version"`
	Release  string `json:"release"`
	Arch     string `json:"arch"`
	Location string `json:"location"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

func (p *PackageInfo) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"name":`)
	w.String(p.Name)
	w.RawString(`,"epoch":`)
	w.Int(p.Epoch)
	w.RawString(`,"version":`)
	w.String(p.Version)
	w.RawString(`,"release":`)
	w.String(p.Release)
	w.RawString(`,"arch":`)
	w.String(p.Arch)
	w.RawString(`,"location":`)
	w.String(p.Location)
	w.RawString(`,"size":`)
	w.Int64(p.Size)
	w.RawString(`,"checksum":`)
	w.String(p.Checksum)
	w.RawByte('}')
}

type RepoInfo struct {
	Status    Status        `json:",inline"`
	Repo      string        `json:"repo"`
	Revision  string        `json:"revision"`
	Count     int           `json:"count"`
	TotalSize int64         `json:"total_size"`
	Packages  []PackageInfo `json:"packages"`
}

func (r *RepoInfo) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	r.Status.writeFields(w)
	w.RawString(`,"repo":`)
	w.String(r.Repo)
	w.RawString(`,"revision":`)
	w.String(r.Revision)
	w.RawString(`,"count":`)
	w.Int(r.Count)
	w.RawString(`,"total_size":`)
	w.Int64(r.TotalSize)
	w.RawString(`,"packages":`)
	w.RawByte('[')
	for i := range r.Packages {
		if i > 0 {
			w.RawByte(',')
		}
		r.Packages[i].MarshalEasyJSON(w)
	}
	w.RawByte(']')
	w.RawByte('}')
}

func (r *RepoInfo) MarshalJSON() ([]byte, error)       { return marshal(r) }
func (r *RepoInfo) WriteTo(w io.Writer) (int64, error) { return utils.WriteTo(r, w) }

type PackageChecksum struct {
	Status   Status `json:",inline"`
	Repo     string `json:"repo"`
	Filename string `json:"filename"`
	Type     string `json:"type"`
	Checksum string `json:"checksum"`
}

func (pc *PackageChecksum) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	pc.Status.writeFields(w)
	w.RawString(`,"repo":`)
	w.String(pc.Repo)
	w.RawString(`,"filename":`)
	w.String(pc.Filename)
	w.RawString(`,"type":`)
	w.String(pc.Type)
	w.RawString(`,"checksum":`)
	w.String(pc.Checksum)
	w.RawByte('}')
}

func (pc *PackageChecksum) MarshalJSON() ([]byte, error)       { return marshal(pc) }
func (pc *PackageChecksum) WriteTo(w io.Writer) (int64, error) { return utils.WriteTo(pc, w) }

type Metrics struct {
	Requests    Requests    `json:"requests"`
	Transfers   Transfers   `json:"transfers"`
	Performance Performance `json:"performance"`
	Memory      Memory      `json:"memory"`
}

type Requests struct {
	Total     int64 `json:"total"`
	Downloads int64 `json:"downloads"`
	Errors    int64 `json:"errors"`
	Active    int64 `json:"active"`
}

// Transfers counts object store writes made by this process.
type Transfers struct {
	Uploads int64 `json:"uploads"`
	Skipped int64 `json:"skipped"`
	Deletes int64 `json:"deletes"`
	Bytes   int64 `json:"bytes"`
}

type Performance struct {
	ResponseTimeMs int64 `json:"response_time_ms"`
	Goroutines     int   `json:"goroutines"`
}

type Memory struct {
	AllocMB      uint64 `json:"alloc_mb"`
	TotalAllocMB uint64 `json:"total_alloc_mb"`
	SysMB        uint64 `json:"sys_mb"`
	GCCycles     uint32 `json:"gc_cycles"`
}

func (r *Metrics) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"requests":{"total":`)
	w.Int64(r.Requests.Total)
	w.RawString(`,"downloads":`)
	w.Int64(r.Requests.Downloads)
	w.RawString(`,"errors":`)
	w.Int64(r.Requests.Errors)
	w.RawString(`,"active":`)
	w.Int64(r.Requests.Active)
	w.RawString(`},"transfers":{"uploads":`)
	w.Int64(r.Transfers.Uploads)
	w.RawString(`,"skipped":`)
	w.Int64(r.Transfers.Skipped)
	w.RawString(`,"deletes":`)
	w.Int64(r.Transfers.Deletes)
	w.RawString(`,"bytes":`)
	w.Int64(r.Transfers.Bytes)
	w.RawString(`},"performance":{"response_time_ms":`)
	w.Int64(r.Performance.ResponseTimeMs)
	w.RawString(`,"goroutines":`)
	w.Int(r.Performance.Goroutines)
	w.RawString(`},"memory":{"alloc_mb":`)
	w.Uint64(r.Memory.AllocMB)
	w.RawString(`,"total_alloc_mb":`)
	w.Uint64(r.Memory.TotalAllocMB)
	w.RawString(`,"sys_mb":`)
	w.Uint64(r.Memory.SysMB)
	w.RawString(`,"gc_cycles":`)
	w.Uint32(r.Memory.GCCycles)
	w.RawString(`}}`)
}

func (r *Metrics) MarshalJSON() ([]byte, error)       { return marshal(r) }
func (r *Metrics) WriteTo(w io.Writer) (int64, error) { return utils.WriteTo(r, w) }

type ReadyCheck struct {
	Status Status `json:"status"`
	Checks Checks `json:"checks"`
}

type Checks struct {
	Storage string `json:"storage"`
	Index   string `json:"index"`
}

func (r *ReadyCheck) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"status":`)
	r.Status.MarshalEasyJSON(w)
	w.RawString(`,"checks":{"storage":`)
	w.String(r.Checks.Storage)
	w.RawString(`,"index":`)
	w.String(r.Checks.Index)
	w.RawString(`}}`)
}

func (r *ReadyCheck) MarshalJSON() ([]byte, error)       { return marshal(r) }
func (r *ReadyCheck) WriteTo(w io.Writer) (int64, error) { return utils.WriteTo(r, w) }

type easyMarshaler interface {
	MarshalEasyJSON(w *jwriter.Writer)
}

func marshal(m easyMarshaler) ([]byte, error) {
	w := jwriter.Writer{}
	m.MarshalEasyJSON(&w)
	return w.BuildBytes()
}
