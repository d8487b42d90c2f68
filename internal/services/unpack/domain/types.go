// Package domain holds the core business logic and data structures for unpack
package domain

import (
	"sort"
	"strconv"
	"time"
)

// TimestampLayout is the canonical form every persisted timestamp is
// rewritten to: millisecond precision, UTC rendered as a trailing Z
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// RecordType tags the normalized record shape
type RecordType string

// The three record kinds the engine understands
const (
	TypeDecision RecordType = "decision"
	TypeRewards  RecordType = "rewards"
	TypeVariants RecordType = "variants"
)

// BlobRef identifies one source or output object in the blob store
type BlobRef struct {
	Bucket string `json:"bucket" validate:"required"`
	Key    string `json:"key"    validate:"required"`
}

// Notification is one triggering batch: every entry must carry a full
// location or the whole notification is rejected before any processing
type Notification struct {
	Records []BlobRef `json:"records" validate:"required,min=1,dive"`
}

// RawRecord is one decoded JSON object from the wire, shape unknown
type RawRecord map[string]any

// Record is a validated, migrated record ready for routing.
// Project is routing metadata only and never appears inside Body.
type Record struct {
	Project   string
	Type      RecordType
	HistoryID string // empty for variants
	Model     string // set for variants only
	Timestamp time.Time
	Body      map[string]any
}

// ShardID names one partition of a project's histories
type ShardID string

// FallbackShard receives records for projects with no configured shards
const FallbackShard ShardID = "shard-0"

// ShardSnapshot is the per-project shard view fetched once per run.
// It is immutable for the run's duration; the next run re-derives it so
// shard counts can grow without persisted per-identity state.
type ShardSnapshot struct {
	shards map[string][]ShardID
}

// NewShardSnapshot builds a snapshot from per-project shard counts
func NewShardSnapshot(counts map[string]int) ShardSnapshot {
	m := make(map[string][]ShardID, len(counts))
	for project, n := range counts {
		if n <= 0 {
			continue
		}
		ids := make([]ShardID, n)
		for i := 0; i < n; i++ {
			ids[i] = ShardID("shard-" + strconv.Itoa(i))
		}
		m[project] = ids
	}
	return ShardSnapshot{shards: m}
}

// ShardsFor returns the ordered shard list for a project, nil when unconfigured
func (s ShardSnapshot) ShardsFor(project string) []ShardID {
	return s.shards[project]
}

// Projects returns the configured project names in sorted order
func (s ShardSnapshot) Projects() []string {
	out := make([]string, 0, len(s.shards))
	for p := range s.shards {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Destination is the grouping key records accumulate under within one
// blob's pipeline: project+shard for decision/rewards, project+model
// for variants
type Destination struct {
	Project string
	Shard   ShardID
	Model   string
}

// Variants reports whether this destination bypasses shard/window logic
func (d Destination) Variants() bool { return d.Model != "" }

// WindowBatch is one non-overlapping time window of a shard's records,
// named by its earliest timestamp
type WindowBatch struct {
	Dest    Destination
	Start   time.Time
	Records []Record
}

// DispatchEvent is the one-way downstream signal issued after a
// successful run; delivery is at most once and never awaited
type DispatchEvent struct {
	RunID     string   `json:"run_id"`
	BlobCount int      `json:"blob_count"`
	Projects  []string `json:"projects,omitempty"`
}

// RunStats aggregates per-run counters; discards are reported here in
// aggregate, never per record
type RunStats struct {
	Blobs     int
	Records   int
	Discarded int
	Batches   int
	Files     int

	DiscardReasons map[string]int
}

// AddDiscard bumps the aggregate counter for one discard reason
func (s *RunStats) AddDiscard(reason string) { s.AddDiscardN(reason, 1) }

// AddDiscardN bumps a discard reason by n
func (s *RunStats) AddDiscardN(reason string, n int) {
	if n <= 0 {
		return
	}
	if s.DiscardReasons == nil {
		s.DiscardReasons = map[string]int{}
	}
	s.DiscardReasons[reason] += n
	s.Discarded += n
}

// Merge folds another stats bundle into this one
func (s *RunStats) Merge(o RunStats) {
	s.Blobs += o.Blobs
	s.Records += o.Records
	s.Discarded += o.Discarded
	s.Batches += o.Batches
	s.Files += o.Files
	for k, v := range o.DiscardReasons {
		if s.DiscardReasons == nil {
			s.DiscardReasons = map[string]int{}
		}
		s.DiscardReasons[k] += v
	}
}
