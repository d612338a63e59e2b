package vxerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOfExtractsWrappedCode(t *testing.T) {
	base := New(SnapshotNotFound, "no such snapshot")
	wrapped := fmt.Errorf("lookup failed: %w", base)

	if got := CodeOf(wrapped); got != SnapshotNotFound {
		t.Errorf("CodeOf = %v, want %v", got, SnapshotNotFound)
	}
}

func TestCodeOfDefaultsToInternalForForeignErrors(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != Internal {
		t.Errorf("CodeOf = %v, want %v", got, Internal)
	}
}

func TestCodeOfNilIsOK(t *testing.T) {
	if got := CodeOf(nil); got != OK {
		t.Errorf("CodeOf(nil) = %v, want %v", got, OK)
	}
}

func TestIs(t *testing.T) {
	err := Wrap(Busy, "snapshot in flight", errors.New("cause"))
	if !Is(err, Busy) {
		t.Error("expected Is(err, Busy) to be true")
	}
	if Is(err, Internal) {
		t.Error("expected Is(err, Internal) to be false")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(FileRead, "read chunk", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestCodeStringCoversEveryCode(t *testing.T) {
	codes := []Code{OK, Internal, IllegalParameters, SnapshotNotFound, SnapshotExist,
		SnapshotInvalid, NotNeedSnapshot, RaftNotFound, FileNotFoundReader, FileRead, Busy, NotSupported}
	seen := make(map[string]bool)
	for _, c := range codes {
		s := c.String()
		if s == "unknown" || s == "" {
			t.Errorf("Code %d has no readable String()", c)
		}
		if seen[s] {
			t.Errorf("Code %d shares its String() %q with another code", c, s)
		}
		seen[s] = true
	}
}
