// Package writekit encodes batches as gzip NDJSON and persists them
// under the configured path scheme
package writekit

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path"

	"github.com/google/uuid"

	perr "histshard/internal/platform/errors"
	"histshard/internal/platform/logger"
	"histshard/internal/services/unpack/domain"
)

// Scheme selects how output paths are derived
type Scheme string

// The two coexisting path schemes
const (
	SchemeKeyed    Scheme = "keyed"
	SchemeFragment Scheme = "fragment"
)

// fragment filenames are sha256 hex (64) + "-" + uuid (36) + ".jsonl.gz" (9)
const fragmentNameLen = 110

const (
	keyedStampLayout = "20060102T150405Z"

	defaultWriteConcurrency = 50
)

// Writer persists window batches and variant sets through the blob store.
// All writes in a run share one counting semaphore so fan-out cannot
// overwhelm the storage backend.
type Writer struct {
	blobs  domain.BlobStore
	bucket string
	scheme Scheme
	sem    chan struct{}
	log    *logger.Logger
}

// New builds a writer; concurrency <= 0 falls back to the default cap
func New(blobs domain.BlobStore, bucket string, scheme Scheme, concurrency int) *Writer {
	if concurrency <= 0 {
		concurrency = defaultWriteConcurrency
	}
	if scheme != SchemeKeyed {
		scheme = SchemeFragment
	}
	return &Writer{
		blobs:  blobs,
		bucket: bucket,
		scheme: scheme,
		sem:    make(chan struct{}, concurrency),
		log:    logger.Named("writekit"),
	}
}

// WriteBatch persists one window batch and returns the number of data
// objects written
func (w *Writer) WriteBatch(ctx context.Context, b domain.WindowBatch) (int, error) {
	if len(b.Records) == 0 {
		return 0, nil
	}
	if w.scheme == SchemeKeyed {
		return w.writeKeyed(ctx, b)
	}
	return w.writeFragments(ctx, b)
}

// writeKeyed derives the object key from project, shard, and window
// start, then writes a companion marker. The marker signals downstream
// consolidation that the key is ready; a failed marker write is only a
// warning since downstream re-scans are idempotent.
func (w *Writer) writeKeyed(ctx context.Context, b domain.WindowBatch) (int, error) {
	data, err := encodeNDJSON(b.Records)
	if err != nil {
		return 0, err
	}
	stamp := b.Start.UTC().Format(keyedStampLayout)
	key := path.Join("unpacked", b.Dest.Project, string(b.Dest.Shard), stamp+".jsonl.gz")
	if err := w.put(ctx, key, data); err != nil {
		return 0, err
	}

	marker := path.Join("markers", b.Dest.Project, string(b.Dest.Shard), stamp+".marker")
	if err := w.put(ctx, marker, nil); err != nil {
		w.log.Warn().Err(err).Str("key", marker).Msg("writekit: marker write failed")
	}
	return 1, nil
}

// writeFragments writes one uniquely named object per history in the
// batch, nested by digest prefix; per-identity consolidation is a
// separate offline pass, so re-running never collides with a prior
// attempt's files
func (w *Writer) writeFragments(ctx context.Context, b domain.WindowBatch) (int, error) {
	byHistory := map[string][]domain.Record{}
	order := make([]string, 0, 8)
	for _, r := range b.Records {
		if _, seen := byHistory[r.HistoryID]; !seen {
			order = append(order, r.HistoryID)
		}
		byHistory[r.HistoryID] = append(byHistory[r.HistoryID], r)
	}

	files := 0
	for _, historyID := range order {
		data, err := encodeNDJSON(byHistory[historyID])
		if err != nil {
			return files, err
		}
		key, err := fragmentKey(b.Dest, historyID, uuid.NewString())
		if err != nil {
			return files, err
		}
		if err := w.put(ctx, key, data); err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}

// WriteVariants persists one unwindowed object for a project+model set
func (w *Writer) WriteVariants(ctx context.Context, dest domain.Destination, recs []domain.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	data, err := encodeNDJSON(recs)
	if err != nil {
		return 0, err
	}
	key := path.Join("variants", dest.Project, dest.Model, uuid.NewString()+".jsonl.gz")
	if err := w.put(ctx, key, data); err != nil {
		return 0, err
	}
	return 1, nil
}

// put runs one write under the shared limiter
func (w *Writer) put(ctx context.Context, key string, data []byte) error {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-w.sem }()
	return w.blobs.Put(ctx, domain.BlobRef{Bucket: w.bucket, Key: key}, data)
}

// fragmentKey derives the nested fragment path for one history.
// The filename length is a hard internal invariant: any mismatch means
// the naming code itself is broken, so it fails the run rather than
// risking a silently wrong layout.
func fragmentKey(dest domain.Destination, historyID, suffix string) (string, error) {
	sum := sha256.Sum256([]byte(historyID))
	digest := hex.EncodeToString(sum[:])
	name := digest + "-" + suffix + ".jsonl.gz"
	if len(name) != fragmentNameLen {
		return "", perr.Invariantf("fragment filename %q has length %d, want %d", name, len(name), fragmentNameLen)
	}
	return path.Join("histories", dest.Project, string(dest.Shard), digest[0:2], digest[2:4], name), nil
}

// encodeNDJSON renders record bodies as gzip-compressed JSON lines
func encodeNDJSON(recs []domain.Record) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, r := range recs {
		line, err := json.Marshal(r.Body)
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeJSON, "batch record encode failed")
		}
		if _, err := gz.Write(append(line, '\n')); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeStorage, "batch compress failed")
		}
	}
	if err := gz.Close(); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeStorage, "batch compress close failed")
	}
	return buf.Bytes(), nil
}
