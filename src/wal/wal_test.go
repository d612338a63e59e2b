package wal

import "testing"

func TestAppendRejectsOutOfOrder(t *testing.T) {
	l := NewMemLog()
	if err := l.Append(Entry{Index: 5}); err != nil {
		t.Fatalf("Append(5): %v", err)
	}
	if err := l.Append(Entry{Index: 5}); err == nil {
		t.Error("expected an error re-appending the same index")
	}
	if err := l.Append(Entry{Index: 3}); err == nil {
		t.Error("expected an error appending a lower index")
	}
}

func TestLastIndex(t *testing.T) {
	l := NewMemLog()
	if l.LastIndex() != 0 {
		t.Errorf("LastIndex on empty log = %d, want 0", l.LastIndex())
	}
	mustAppend(t, l, 1)
	mustAppend(t, l, 2)
	if l.LastIndex() != 2 {
		t.Errorf("LastIndex = %d, want 2", l.LastIndex())
	}
}

func mustAppend(t *testing.T, l *MemLog, index uint64) {
	t.Helper()
	if err := l.Append(Entry{Index: index, Command: Command{IndexID: 1, Kind: VectorAdd, ID: index}}); err != nil {
		t.Fatalf("Append(%d): %v", index, err)
	}
}

func TestEntriesRangeIsInclusive(t *testing.T) {
	l := NewMemLog()
	for i := uint64(1); i <= 5; i++ {
		mustAppend(t, l, i)
	}

	got, err := l.Entries(2, 4)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if got[0].Index != 2 || got[len(got)-1].Index != 4 {
		t.Errorf("got range [%d, %d], want [2, 4]", got[0].Index, got[len(got)-1].Index)
	}
}

func TestEntriesToZeroMeansThroughLast(t *testing.T) {
	l := NewMemLog()
	for i := uint64(1); i <= 3; i++ {
		mustAppend(t, l, i)
	}
	got, err := l.Entries(2, 0)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
}

func TestTruncateLogIndexDefaultsToZero(t *testing.T) {
	l := NewMemLog()
	if got := l.TruncateLogIndex(1); got != 0 {
		t.Errorf("TruncateLogIndex on an unset index = %d, want 0", got)
	}
	l.SetVectorIndexTruncateLogIndex(1, 42)
	if got := l.TruncateLogIndex(1); got != 42 {
		t.Errorf("TruncateLogIndex = %d, want 42", got)
	}
	if got := l.TruncateLogIndex(2); got != 0 {
		t.Errorf("TruncateLogIndex for an untouched index = %d, want 0", got)
	}
}
