package seed

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
)

func TestWriteFileCSV(t *testing.T) {
	events := fixedEvents(3)
	path, err := WriteFile(filepath.Join(t.TempDir(), "nested"), "events", "csv", events)
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if !filepath.IsAbs(path) || filepath.Base(path) != "events.csv" {
		t.Fatalf("path = %q", path)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = file.Close() }()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("len(records) = %d, want header plus 3", len(records))
	}
	if !reflect.DeepEqual(records[0], csvHeader) {
		t.Fatalf("header = %v", records[0])
	}
	if records[3][0] != "3" {
		t.Fatalf("last event_id = %q", records[3][0])
	}
}

func TestWriteFileParquet(t *testing.T) {
	events := fixedEvents(5)
	path, err := WriteFile(t.TempDir(), "events", "parquet", events)
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := parquet.ReadFile[Event](path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !reflect.DeepEqual(got, events) {
		t.Fatalf("rows = %+v, want %+v", got, events)
	}
}

func TestWriteFileRejectsUnknownFormat(t *testing.T) {
	if _, err := WriteFile(t.TempDir(), "events", "json", fixedEvents(1)); err == nil {
		t.Fatal("expected error for json format")
	}
}

func fixedEvents(n int) []Event {
	g := NewGenerator(1, 10)
	g.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return g.Events(n)
}
