// Package ingest streams decoded records out of gzip NDJSON source blobs
package ingest

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"io"

	perr "histshard/internal/platform/errors"
	"histshard/internal/services/unpack/domain"
)

const (
	initScanBufSize  = 512 * 1024
	maxScanTokenSize = 32 * 1024 * 1024
)

// Reader decodes one record per line from a gzip stream.
// Lines that are not valid JSON objects are skipped and counted; a
// corrupt or truncated gzip stream is a hard error since a partial read
// could silently drop records.
type Reader struct {
	r       io.ReadCloser
	gz      *gzip.Reader
	sc      *bufio.Scanner
	err     error
	lines   int
	skipped int
	bytes   int64
}

// NewReader wraps a compressed stream; the source is closed on failure
func NewReader(r io.ReadCloser) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		_ = r.Close()
		return nil, perr.Wrap(err, perr.ErrorCodeCorruptSource, "not a gzip stream")
	}
	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, initScanBufSize), maxScanTokenSize)
	return &Reader{r: r, gz: gz, sc: sc}, nil
}

// Next returns the next decoded record; io.EOF when the stream is done
func (rd *Reader) Next() (domain.RawRecord, error) {
	if rd.err != nil {
		return nil, rd.err
	}
	for {
		if !rd.sc.Scan() {
			if err := rd.sc.Err(); err != nil {
				rd.err = perr.Wrap(err, perr.ErrorCodeCorruptSource, "source stream truncated")
				return nil, rd.err
			}
			rd.err = io.EOF
			return nil, io.EOF
		}
		line := rd.sc.Bytes()
		rd.bytes += int64(len(line) + 1) // include newline
		if len(line) == 0 {
			continue
		}

		var raw domain.RawRecord
		if err := json.Unmarshal(line, &raw); err != nil || raw == nil {
			rd.skipped++
			continue
		}
		rd.lines++
		return raw, nil
	}
}

// Close closes the gzip layer then the underlying source
func (rd *Reader) Close() error {
	var first error
	if rd.gz != nil {
		if err := rd.gz.Close(); err != nil {
			first = err
		}
	}
	if rd.r != nil {
		if err := rd.r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Stats reports decoded lines, skipped lines, and uncompressed bytes so far
func (rd *Reader) Stats() (lines, skipped int, bytes int64) {
	return rd.lines, rd.skipped, rd.bytes
}

// Factory builds Readers and satisfies the reader factory port
type Factory struct{}

// New wraps the stream in a Reader
func (Factory) New(r io.ReadCloser) (domain.ReaderPort, error) {
	rd, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	return rd, nil
}
