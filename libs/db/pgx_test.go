package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("insert booking: %w", &pgconn.PgError{Code: CodeExclusionViolation})
	if got := ErrorCode(wrapped); got != CodeExclusionViolation {
		t.Fatalf("expected %s, got %q", CodeExclusionViolation, got)
	}
	if got := ErrorCode(errors.New("plain")); got != "" {
		t.Fatalf("expected empty code, got %q", got)
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("load: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to be not found")
	}
	if IsNotFound(errors.New("other")) {
		t.Fatal("unexpected not found")
	}
}
