package ingest

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	perr "histshard/internal/platform/errors"
)

func gzipLines(t *testing.T, lines ...string) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, l := range lines {
		if _, err := gz.Write([]byte(l + "\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return io.NopCloser(&buf)
}

func TestNextDecodesAndSkipsMalformed(t *testing.T) {
	rd, err := NewReader(gzipLines(t,
		`{"type":"decision","history_id":"h1"}`,
		`not json at all`,
		``,
		`{"type":"rewards"}`,
	))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer func() { _ = rd.Close() }()

	first, err := rd.Next()
	if err != nil || first["history_id"] != "h1" {
		t.Fatalf("first = %v, %v", first, err)
	}
	second, err := rd.Next()
	if err != nil || second["type"] != "rewards" {
		t.Fatalf("second = %v, %v", second, err)
	}
	if _, err := rd.Next(); err != io.EOF {
		t.Fatalf("want EOF, got %v", err)
	}

	lines, skipped, bytes := rd.Stats()
	if lines != 2 || skipped != 1 {
		t.Fatalf("stats = %d lines, %d skipped", lines, skipped)
	}
	if bytes == 0 {
		t.Fatalf("bytes not counted")
	}
}

func TestNewReaderRejectsNonGzip(t *testing.T) {
	_, err := NewReader(io.NopCloser(bytes.NewReader([]byte("plain text"))))
	if err == nil {
		t.Fatalf("expected error")
	}
	if perr.CodeOf(err) != perr.ErrorCodeCorruptSource {
		t.Fatalf("code = %v", perr.CodeOf(err))
	}
}

func TestNextTruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte(`{"type":"decision"}` + "\n"))
	_ = gz.Close()
	// chop the gzip trailer off
	trunc := buf.Bytes()[:buf.Len()-6]

	rd, err := NewReader(io.NopCloser(bytes.NewReader(trunc)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer func() { _ = rd.Close() }()

	for {
		_, err = rd.Next()
		if err != nil {
			break
		}
	}
	if err == io.EOF {
		t.Fatalf("truncated stream must not end cleanly")
	}
	if perr.CodeOf(err) != perr.ErrorCodeCorruptSource {
		t.Fatalf("code = %v", perr.CodeOf(err))
	}
}
