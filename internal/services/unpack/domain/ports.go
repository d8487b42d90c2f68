package domain

import (
	"context"
	"io"
	"time"
)

// RunnerPort is the public port exposed by the module (what callers invoke)
type RunnerPort interface {
	Run(ctx context.Context, n Notification) (RunStats, error)
}

// SnapshotRepo fetches the per-project shard counts from the registry
type SnapshotRepo interface {
	ProjectShardCounts(ctx context.Context) (map[string]int, error)
}

// BlobStore is the object storage seam for source and output objects
type BlobStore interface {
	Get(ctx context.Context, ref BlobRef) (io.ReadCloser, error)
	Put(ctx context.Context, ref BlobRef, data []byte) error
}

// ReaderPort streams decoded records from one source blob
type ReaderPort interface {
	Next() (RawRecord, error)
	Close() error
	Stats() (lines, skipped int, bytes int64)
}

// ReaderFactory builds a ReaderPort over a compressed byte stream
type ReaderFactory interface {
	New(io.ReadCloser) (ReaderPort, error)
}

// NormalizerPort migrates and validates one raw record.
// ok=false means the record was discarded for the returned reason.
type NormalizerPort interface {
	Normalize(raw RawRecord, now time.Time) (Record, bool, string)
}

// RouterPort maps a history identifier onto one of a project's shards
type RouterPort interface {
	Route(snap ShardSnapshot, project, historyID string) ShardID
}

// SlicerPort groups one destination's records into window batches
type SlicerPort interface {
	Slice(dest Destination, recs []Record) []WindowBatch
}

// BatchWriter persists window batches and variant sets as compressed
// objects, reporting how many data objects each call produced
type BatchWriter interface {
	WriteBatch(ctx context.Context, b WindowBatch) (int, error)
	WriteVariants(ctx context.Context, dest Destination, recs []Record) (int, error)
}

// DispatcherPort issues the fire-and-forget downstream signal
type DispatcherPort interface {
	Dispatch(ev DispatchEvent)
}
