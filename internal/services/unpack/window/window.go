// Package window slices a destination's records into time-bounded batches
package window

import (
	"sort"
	"time"

	"histshard/internal/platform/logger"
	"histshard/internal/services/unpack/domain"
)

// Slicer groups records into batches whose timestamp span never exceeds
// the configured window. Batches are named by their earliest timestamp,
// not the processing time.
type Slicer struct {
	window time.Duration
	log    *logger.Logger
}

// New builds a slicer for the given window duration
func New(window time.Duration) *Slicer {
	return &Slicer{window: window, log: logger.Named("window")}
}

// Slice sorts the records most-recent-first, then repeatedly peels the
// contiguous suffix reachable from the earliest remaining timestamp.
// Every record lands in exactly one batch. More than one batch for a
// destination means delayed or queued client delivery, which is worth a
// warning but not an error.
func (s *Slicer) Slice(dest domain.Destination, recs []domain.Record) []domain.WindowBatch {
	if len(recs) == 0 {
		return nil
	}

	rem := make([]domain.Record, len(recs))
	copy(rem, recs)
	sort.SliceStable(rem, func(i, j int) bool {
		return rem[i].Timestamp.After(rem[j].Timestamp)
	})

	var out []domain.WindowBatch
	for len(rem) > 0 {
		earliest := rem[len(rem)-1].Timestamp
		cut := earliest.Add(s.window)

		i := len(rem) - 1
		for i >= 0 && !rem[i].Timestamp.After(cut) {
			i--
		}
		out = append(out, domain.WindowBatch{
			Dest:    dest,
			Start:   earliest,
			Records: rem[i+1:],
		})
		rem = rem[:i+1]
	}

	if len(out) > 1 {
		s.log.Warn().
			Str("project", dest.Project).
			Str("shard", string(dest.Shard)).
			Int("batches", len(out)).
			Msg("window: destination spans multiple windows")
	}
	return out
}
