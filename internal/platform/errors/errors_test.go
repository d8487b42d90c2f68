package errors

import (
	stderrs "errors"
	"fmt"
	"testing"
)

func TestError_MessageAndWrap(t *testing.T) {
	base := stderrs.New("boom")
	err := Wrap(base, ErrorCodeStorage, "write failed")

	if got := err.Error(); got != "write failed: boom" {
		t.Fatalf("Error() = %q", got)
	}
	if !stderrs.Is(err, base) {
		t.Fatalf("wrapped cause lost")
	}
	if CodeOf(err) != ErrorCodeStorage {
		t.Fatalf("CodeOf = %v, want storage", CodeOf(err))
	}
}

func TestNilError_String(t *testing.T) {
	var e *Error
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("nil Error() = %q", got)
	}
}

func TestRoot_WalksChain(t *testing.T) {
	base := stderrs.New("root cause")
	mid := fmt.Errorf("mid: %w", base)
	top := Wrap(mid, ErrorCodeUnknown, "top")

	if Root(top) != base {
		t.Fatalf("Root = %v, want root cause", Root(top))
	}
	if Root(nil) != nil {
		t.Fatalf("Root(nil) != nil")
	}
}

func TestCodeOf_ForeignError(t *testing.T) {
	if CodeOf(stderrs.New("plain")) != ErrorCodeUnknown {
		t.Fatalf("foreign error should map to unknown")
	}
	if CodeOf(nil) != ErrorCodeUnknown {
		t.Fatalf("nil should map to unknown")
	}
}

func TestIsCode(t *testing.T) {
	err := Invariantf("filename length %d", 42)
	if !IsCode(err, ErrorCodeInvariant) {
		t.Fatalf("IsCode invariant = false")
	}
	if IsCode(err, ErrorCodeStorage) {
		t.Fatalf("IsCode wrong code = true")
	}
}

func TestWithFieldAndOp(t *testing.T) {
	err := Validationf("missing timestamp")
	err = WithField(err, "timestamp")
	err = WithOp(err, "normalize")

	e, ok := As(err)
	if !ok {
		t.Fatalf("As failed")
	}
	if e.Field() != "timestamp" || e.Op() != "normalize" {
		t.Fatalf("field/op = %q/%q", e.Field(), e.Op())
	}

	// copy-on-write must not touch the original
	orig := Validationf("x")
	_ = WithField(orig, "f")
	oe, _ := As(orig)
	if oe.Field() != "" {
		t.Fatalf("WithField mutated original")
	}

	// foreign errors pass through unchanged
	foreign := stderrs.New("foreign")
	if WithField(foreign, "f") != foreign {
		t.Fatalf("WithField should not wrap foreign errors")
	}
	if WithOp(foreign, "o") != foreign {
		t.Fatalf("WithOp should not wrap foreign errors")
	}
}

func TestWrapIf(t *testing.T) {
	if WrapIf(nil, ErrorCodeDB, "x") != nil {
		t.Fatalf("WrapIf(nil) != nil")
	}
	err := WrapIf(stderrs.New("y"), ErrorCodeDB, "x")
	if CodeOf(err) != ErrorCodeDB {
		t.Fatalf("WrapIf code = %v", CodeOf(err))
	}
}

func TestSugarConstructors(t *testing.T) {
	cases := []struct {
		err  error
		code ErrorCode
	}{
		{NotFoundf("a"), ErrorCodeNotFound},
		{InvalidArgf("b"), ErrorCodeInvalidArgument},
		{Validationf("c"), ErrorCodeValidation},
		{JSONErrf("d"), ErrorCodeJSON},
		{DBf("e"), ErrorCodeDB},
		{CorruptSourcef("f"), ErrorCodeCorruptSource},
		{Storagef("g"), ErrorCodeStorage},
		{Invariantf("h"), ErrorCodeInvariant},
		{Unavailablef("i"), ErrorCodeUnavailable},
		{Internalf("j"), ErrorCodeUnknown},
	}
	for i, c := range cases {
		if CodeOf(c.err) != c.code {
			t.Fatalf("case %d: code = %v, want %v", i, CodeOf(c.err), c.code)
		}
	}
}
