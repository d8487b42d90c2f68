package errors

import (
	"context"
	stderrs "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func pgErr(code string) error {
	return &pgconn.PgError{Code: code, Message: "pg says no"}
}

func TestExtractPgError(t *testing.T) {
	wrapped := Wrap(fmt.Errorf("outer: %w", pgErr(pgErrUniqueViolation)), ErrorCodeDB, "db op")
	pe, ok := ExtractPgError(wrapped)
	if !ok || pe.Code != pgErrUniqueViolation {
		t.Fatalf("ExtractPgError = %v, %v", pe, ok)
	}
	if _, ok := ExtractPgError(stderrs.New("plain")); ok {
		t.Fatalf("ExtractPgError on plain error = true")
	}
}

func TestDBErrorCode_Mapping(t *testing.T) {
	cases := []struct {
		state string
		want  ErrorCode
	}{
		{pgErrUniqueViolation, ErrorCodeDuplicateKey},
		{pgErrForeignKeyViolation, ErrorCodeInvalidArgument},
		{pgErrNotNullViolation, ErrorCodeValidation},
		{pgErrCheckViolation, ErrorCodeValidation},
		{pgErrStringDataRightTruncation, ErrorCodeInvalidArgument},
		{pgErrSerializationFailure, ErrorCodeDB},
		{pgErrCannotConnectNow, ErrorCodeUnavailable},
		{"99999", ErrorCodeDB},
	}
	for _, c := range cases {
		code, ok := DBErrorCode(pgErr(c.state))
		if !ok || code != c.want {
			t.Fatalf("DBErrorCode(%s) = %v, %v; want %v", c.state, code, ok, c.want)
		}
	}
	if _, ok := DBErrorCode(stderrs.New("not pg")); ok {
		t.Fatalf("DBErrorCode on non-pg error = true")
	}
}

func TestFromPostgres(t *testing.T) {
	if FromPostgres(nil, "x") != nil {
		t.Fatalf("FromPostgres(nil) != nil")
	}
	err := FromPostgres(pgErr(pgErrUniqueViolation), "insert shard row")
	if CodeOf(err) != ErrorCodeDuplicateKey {
		t.Fatalf("FromPostgres code = %v", CodeOf(err))
	}
	err = FromPostgresf(stderrs.New("weird"), "op %s", "fetch")
	if CodeOf(err) != ErrorCodeDB {
		t.Fatalf("FromPostgresf fallback code = %v", CodeOf(err))
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatalf("nil retryable")
	}
	if IsRetryable(context.Canceled) || IsRetryable(context.DeadlineExceeded) {
		t.Fatalf("local cancellation must not be retryable")
	}
	if !IsRetryable(pgErr(pgErrDeadlockDetected)) {
		t.Fatalf("deadlock should be retryable")
	}
	if IsRetryable(pgErr(pgErrUniqueViolation)) {
		t.Fatalf("duplicate key should not be retryable")
	}
	if !IsRetryable(stderrs.New("FATAL: commit unexpectedly resulted in rollback")) {
		t.Fatalf("commit rollback text should be retryable")
	}
	if IsRetryable(stderrs.New("syntax error at or near")) {
		t.Fatalf("plain error should not be retryable")
	}
}
