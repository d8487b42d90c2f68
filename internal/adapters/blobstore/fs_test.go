package blobstore

import (
	"context"
	"io"
	"sync"
	"testing"

	perr "histshard/internal/platform/errors"
)

func TestPutCreatesMissingParentsAndGetRoundTrips(t *testing.T) {
	s := NewFS(t.TempDir())
	ctx := context.Background()

	// deep key whose parents do not exist yet
	key := "aa/bb/cc/object.jsonl.gz"
	if err := s.Put(ctx, "out", key, []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rc, err := s.Get(ctx, "out", key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(got) != "payload" {
		t.Fatalf("round trip = %q, %v", got, err)
	}
}

func TestGetMissingObject(t *testing.T) {
	s := NewFS(t.TempDir())
	_, err := s.Get(context.Background(), "out", "nope.gz")
	if err == nil {
		t.Fatalf("expected error")
	}
	if perr.CodeOf(err) != perr.ErrorCodeNotFound {
		t.Fatalf("code = %v", perr.CodeOf(err))
	}
}

func TestPutConcurrentWritersSameDir(t *testing.T) {
	// many writers racing to create the same parent chain must all succeed
	s := NewFS(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "shared/dir/file-" + string(rune('a'+i)) + ".gz"
			errs[i] = s.Put(ctx, "out", key, []byte{byte(i)})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d: %v", i, err)
		}
	}
}

func TestPutCancelledContext(t *testing.T) {
	s := NewFS(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Put(ctx, "out", "k", nil); err == nil {
		t.Fatalf("expected context error")
	}
}
