package checkpoint

import (
	"os"
	"strings"
	"testing"
	"time"

	"storefront/internal/domain"
)

func TestFileStore_RoundTrip(t *testing.T) {
	s := NewFileStore(t.TempDir())

	empty, err := s.Load("gemini")
	if err != nil {
		t.Fatal(err)
	}
	if len(empty.ProcessedIDs) != 0 {
		t.Errorf("expected empty progress, got %v", empty.ProcessedIDs)
	}

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.Save("gemini", domain.Progress{ProcessedIDs: []int64{4, 9}, LastBatchIndex: 2, Timestamp: ts}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load("gemini")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.ProcessedIDs) != 2 || got.ProcessedIDs[1] != 9 || got.LastBatchIndex != 2 || !got.Timestamp.Equal(ts) {
		t.Errorf("unexpected progress %+v", got)
	}

	other, _ := s.Load("voyage")
	if len(other.ProcessedIDs) != 0 {
		t.Error("expected checkpoints to be per model")
	}
}

func TestFileStore_WireFormat(t *testing.T) {
	s := NewFileStore(t.TempDir())
	s.Save("voyage", domain.Progress{ProcessedIDs: []int64{1}})

	data, err := os.ReadFile(s.Path("voyage"))
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"processedIds"`, `"lastBatchIndex"`, `"timestamp"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("expected key %s in %s", key, data)
		}
	}
}

func TestFileStore_Reset(t *testing.T) {
	s := NewFileStore(t.TempDir())
	s.Save("voyage", domain.Progress{ProcessedIDs: []int64{1}})

	if err := s.Reset("voyage"); err != nil {
		t.Fatal(err)
	}
	if err := s.Reset("voyage"); err != nil {
		t.Errorf("expected reset of missing checkpoint to succeed, got %v", err)
	}
	p, _ := s.Load("voyage")
	if len(p.ProcessedIDs) != 0 {
		t.Error("expected progress to be cleared")
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	s := NewFileStore(t.TempDir())
	os.WriteFile(s.Path("voyage"), []byte("{not json"), 0644)
	if _, err := s.Load("voyage"); err == nil {
		t.Error("expected parse error")
	}
}
