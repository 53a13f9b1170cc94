package analytics

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/skyrelay/skyrelay/internal/json"
)

func TestWriteHistoryCSV(t *testing.T) {
	h := NewHistory()
	h.Push(testEvent("first", 200, 10, 5))
	h.Push(testEvent("second", 500, 0, 0))

	var buf bytes.Buffer
	if err := WriteHistoryCSV(&buf, h); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "id" || rows[0][6] != "status" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "first" || rows[2][0] != "second" {
		t.Errorf("rows out of order: %v", rows)
	}
	if rows[2][6] != "500" {
		t.Errorf("status column = %q, want 500", rows[2][6])
	}
}

func TestWriteAggregateJSON(t *testing.T) {
	agg := NewAggregate(time.Now())
	Apply(agg, testEvent("a", 200, 10, 5), time.Now())

	var buf bytes.Buffer
	if err := WriteAggregateJSON(&buf, agg); err != nil {
		t.Fatalf("write: %v", err)
	}

	var decoded Aggregate
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("exported aggregate is not valid JSON: %v", err)
	}
	if decoded.TotalRequests != 1 {
		t.Errorf("decoded export = %+v", decoded)
	}
	if !strings.Contains(buf.String(), `"totalRequests"`) {
		t.Errorf("export must use the document field names, got %s", buf.String())
	}
}

func TestExportHistoryFileGzip(t *testing.T) {
	h := NewHistory()
	h.Push(testEvent("a", 200, 1, 1))

	path := filepath.Join(t.TempDir(), "history.csv.gz")
	if err := ExportHistoryFile(path, h); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("exported file is not gzip: %v", err)
	}
	rows, err := csv.NewReader(zr).ReadAll()
	if err != nil {
		t.Fatalf("parse decompressed csv: %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "a" {
		t.Errorf("unexpected rows %v", rows)
	}
}

func TestExportAggregateFilePlain(t *testing.T) {
	agg := NewAggregate(time.Now())
	path := filepath.Join(t.TempDir(), "aggregate.json")
	if err := ExportAggregateFile(path, agg); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Aggregate
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("exported file is not valid JSON: %v", err)
	}
}
