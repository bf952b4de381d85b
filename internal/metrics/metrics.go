package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics counts object store traffic of update runs and requests served by
// the read-only HTTP view.
type Metrics struct {
	RequestCount   int64
	UploadCount    int64
	SkippedCount   int64
	DeleteCount    int64
	DownloadCount  int64
	UploadedBytes  int64
	ErrorCount     int64
	ResponseTime   int64
	ActiveRequests int64
}

var GlobalMetrics = &Metrics{}

func IncrementRequests() {
	atomic.AddInt64(&GlobalMetrics.RequestCount, 1)
}

func IncrementUploads() {
	atomic.AddInt64(&GlobalMetrics.UploadCount, 1)
}

func IncrementSkipped() {
	atomic.AddInt64(&GlobalMetrics.SkippedCount, 1)
}

func IncrementDeletes() {
	atomic.AddInt64(&GlobalMetrics.DeleteCount, 1)
}

func IncrementDownloads() {
	atomic.AddInt64(&GlobalMetrics.DownloadCount, 1)
}

func AddBytes(n int64) {
	atomic.AddInt64(&GlobalMetrics.UploadedBytes, n)
}

func IncrementErrors() {
	atomic.AddInt64(&GlobalMetrics.ErrorCount, 1)
}

func RecordResponseTime(duration time.Duration) {
	atomic.StoreInt64(&GlobalMetrics.ResponseTime, duration.Milliseconds())
}

func IncrementActiveRequests() {
	atomic.AddInt64(&GlobalMetrics.ActiveRequests, 1)
}

func DecrementActiveRequests() {
	atomic.AddInt64(&GlobalMetrics.ActiveRequests, -1)
}

func GetMetrics() Metrics {
	return Metrics{
		RequestCount:   atomic.LoadInt64(&GlobalMetrics.RequestCount),
		UploadCount:    atomic.LoadInt64(&GlobalMetrics.UploadCount),
		SkippedCount:   atomic.LoadInt64(&GlobalMetrics.SkippedCount),
		DeleteCount:    atomic.LoadInt64(&GlobalMetrics.DeleteCount),
		DownloadCount:  atomic.LoadInt64(&GlobalMetrics.DownloadCount),
		UploadedBytes:  atomic.LoadInt64(&GlobalMetrics.UploadedBytes),
		ErrorCount:     atomic.LoadInt64(&GlobalMetrics.ErrorCount),
		ResponseTime:   atomic.LoadInt64(&GlobalMetrics.ResponseTime),
		ActiveRequests: atomic.LoadInt64(&GlobalMetrics.ActiveRequests),
	}
}

// Diff returns the counter growth from before to after.
func Diff(before, after Metrics) Metrics {
	return Metrics{
		RequestCount:  after.RequestCount - before.RequestCount,
		UploadCount:   after.UploadCount - before.UploadCount,
		SkippedCount:  after.SkippedCount - before.SkippedCount,
		DeleteCount:   after.DeleteCount - before.DeleteCount,
		DownloadCount: after.DownloadCount - before.DownloadCount,
		UploadedBytes: after.UploadedBytes - before.UploadedBytes,
		ErrorCount:    after.ErrorCount - before.ErrorCount,
	}
}
