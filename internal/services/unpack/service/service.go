// Package service provides the unpack batch orchestration
package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"histshard/internal/modkit/repokit"
	"histshard/internal/platform/logger"
	"histshard/internal/services/unpack/domain"
)

// Config holds configuration options for the unpack service
type Config struct {
	// Window bounds each batch's timestamp span; <=0 -> 30m
	Window time.Duration

	// BlobWorkers caps concurrent per-blob pipelines; <=0 -> 4
	BlobWorkers int
}

const (
	defaultWindow      = 30 * time.Minute
	defaultBlobWorkers = 4

	reasonMalformedLine = "malformed_json"
)

// Service implements the unpack runner
type Service struct {
	DB       repokit.TxRunner
	Binder   repokit.Binder[domain.SnapshotRepo] // binds q -> domain.SnapshotRepo
	Blobs    domain.BlobStore
	Reader   domain.ReaderFactory
	Norm     domain.NormalizerPort
	Router   domain.RouterPort
	Slicer   domain.SlicerPort
	Writer   domain.BatchWriter
	Dispatch domain.DispatcherPort
	Cfg      Config
}

// New constructs the unpack service
func New(
	db repokit.TxRunner,
	binder repokit.Binder[domain.SnapshotRepo],
	blobs domain.BlobStore,
	rf domain.ReaderFactory,
	n domain.NormalizerPort,
	router domain.RouterPort,
	slicer domain.SlicerPort,
	w domain.BatchWriter,
	dispatch domain.DispatcherPort,
	cfg Config,
) *Service {
	if db == nil {
		panic("unpack.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("unpack.Service requires a non nil SnapshotRepo binder")
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.BlobWorkers <= 0 {
		cfg.BlobWorkers = defaultBlobWorkers
	}
	return &Service{
		DB: db, Binder: binder,
		Blobs: blobs, Reader: rf,
		Norm: n, Router: router, Slicer: slicer,
		Writer: w, Dispatch: dispatch,
		Cfg: cfg,
	}
}

// Run implements domain.RunnerPort. One triggering batch is
// all-or-nothing: the first structural failure fails the whole run and
// leaves retry to the external trigger. Per-record discards never do.
func (s *Service) Run(ctx context.Context, n domain.Notification) (domain.RunStats, error) {
	var total domain.RunStats

	if err := domain.ValidateNotification(n); err != nil {
		return total, err
	}

	runID := uuid.NewString()
	ctx = logger.WithRun(ctx, runID, "")
	now := time.Now().UTC()

	// one immutable shard view for every blob in the run
	snap, err := s.fetchSnapshot(ctx)
	if err != nil {
		return total, err
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	projects := map[string]struct{}{}
	sem := make(chan struct{}, s.Cfg.BlobWorkers)

	for _, ref := range n.Records {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return total, ctx.Err()
		}
		wg.Add(1)
		go func(ref domain.BlobRef) {
			defer func() { <-sem; wg.Done() }()
			stats, seen, err := s.processBlob(ctx, ref, snap, now)
			mu.Lock()
			defer mu.Unlock()
			total.Merge(stats)
			for p := range seen {
				projects[p] = struct{}{}
			}
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}(ref)
	}
	wg.Wait()

	if firstErr != nil {
		logger.C(ctx).Error().Err(firstErr).Int("blobs", len(n.Records)).Msg("unpack: run failed")
		return total, firstErr
	}

	names := make([]string, 0, len(projects))
	for p := range projects {
		names = append(names, p)
	}
	sort.Strings(names)

	// one-way signal, never awaited
	s.Dispatch.Dispatch(domain.DispatchEvent{
		RunID:     runID,
		BlobCount: len(n.Records),
		Projects:  names,
	})

	logger.C(ctx).Info().
		Int("blobs", total.Blobs).
		Int("records", total.Records).
		Int("discarded", total.Discarded).
		Int("batches", total.Batches).
		Int("files", total.Files).
		Msg("unpack: run complete")
	return total, nil
}

// fetchSnapshot reads the registry once; the snapshot stays fixed for
// the run so every blob sees the same shard view
func (s *Service) fetchSnapshot(ctx context.Context) (domain.ShardSnapshot, error) {
	var counts map[string]int
	err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
		c, e := s.Binder.Bind(q).ProjectShardCounts(ctx)
		if e != nil {
			return e
		}
		counts = c
		return nil
	})
	if err != nil {
		return domain.ShardSnapshot{}, err
	}
	return domain.NewShardSnapshot(counts), nil
}

// processBlob runs one blob's pipeline: stream, normalize, group by
// destination, write. The grouping map is owned by this call and never
// shared.
func (s *Service) processBlob(
	ctx context.Context,
	ref domain.BlobRef,
	snap domain.ShardSnapshot,
	now time.Time,
) (stats domain.RunStats, projects map[string]struct{}, retErr error) {
	stats.Blobs = 1
	projects = map[string]struct{}{}

	rc, err := s.Blobs.Get(ctx, ref)
	if err != nil {
		return stats, projects, err
	}
	rd, err := s.Reader.New(rc)
	if err != nil {
		return stats, projects, err
	}
	defer func() {
		if cerr := rd.Close(); cerr != nil && retErr == nil {
			retErr = cerr
		}
	}()

	groups := map[domain.Destination][]domain.Record{}
	for {
		if err := ctx.Err(); err != nil {
			return stats, projects, err
		}
		raw, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, projects, err
		}

		rec, ok, reason := s.Norm.Normalize(raw, now)
		if !ok {
			stats.AddDiscard(reason)
			continue
		}
		stats.Records++
		projects[rec.Project] = struct{}{}

		var dest domain.Destination
		if rec.Type == domain.TypeVariants {
			dest = domain.Destination{Project: rec.Project, Model: rec.Model}
		} else {
			dest = domain.Destination{
				Project: rec.Project,
				Shard:   s.Router.Route(snap, rec.Project, rec.HistoryID),
			}
		}
		groups[dest] = append(groups[dest], rec)
	}

	_, skipped, _ := rd.Stats()
	stats.AddDiscardN(reasonMalformedLine, skipped)

	files, batches, err := s.writeGroups(ctx, groups)
	stats.Files += files
	stats.Batches += batches
	if err != nil {
		return stats, projects, err
	}
	return stats, projects, nil
}

// writeGroups fans destination writes out concurrently; the writer's
// shared limiter is the only backpressure
func (s *Service) writeGroups(ctx context.Context, groups map[domain.Destination][]domain.Record) (int, int, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		files    int
		batches  int
		firstErr error
	)
	for dest, recs := range groups {
		wg.Add(1)
		go func(dest domain.Destination, recs []domain.Record) {
			defer wg.Done()
			f, b, err := s.writeDest(ctx, dest, recs)
			mu.Lock()
			defer mu.Unlock()
			files += f
			batches += b
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}(dest, recs)
	}
	wg.Wait()
	return files, batches, firstErr
}

func (s *Service) writeDest(ctx context.Context, dest domain.Destination, recs []domain.Record) (int, int, error) {
	if dest.Variants() {
		f, err := s.Writer.WriteVariants(ctx, dest, recs)
		if err != nil {
			return f, 0, err
		}
		return f, 1, nil
	}

	files, batches := 0, 0
	for _, b := range s.Slicer.Slice(dest, recs) {
		f, err := s.Writer.WriteBatch(ctx, b)
		files += f
		if err != nil {
			return files, batches, err
		}
		batches++
	}
	return files, batches, nil
}
