package analytics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/skyrelay/skyrelay/internal/json"
)

var historyCSVHeader = []string{
	"id", "timestamp", "provider", "model", "method", "path",
	"status", "durationMs", "tokensIn", "tokensOut",
}

// WriteHistoryCSV writes the recent-request window as a delimited table,
// oldest first, matching the on-disk insertion order.
func WriteHistoryCSV(w io.Writer, h *History) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(historyCSVHeader); err != nil {
		return fmt.Errorf("analytics: write csv header: %w", err)
	}
	for _, ev := range h.Requests {
		row := []string{
			ev.ID,
			strconv.FormatInt(ev.Timestamp, 10),
			ev.Provider,
			ev.Model,
			ev.Method,
			ev.Path,
			strconv.Itoa(ev.Status),
			strconv.FormatInt(ev.DurationMs, 10),
			strconv.FormatInt(ev.TokensIn, 10),
			strconv.FormatInt(ev.TokensOut, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("analytics: write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAggregateJSON writes the aggregate as an indented JSON document.
func WriteAggregateJSON(w io.Writer, agg *Aggregate) error {
	data, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return fmt.Errorf("analytics: encode aggregate: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("analytics: write aggregate export: %w", err)
	}
	return nil
}

// ExportHistoryFile writes the history CSV to path. A ".gz" suffix selects
// gzip compression.
func ExportHistoryFile(path string, h *History) error {
	return exportFile(path, func(w io.Writer) error { return WriteHistoryCSV(w, h) })
}

// ExportAggregateFile writes the aggregate JSON to path. A ".gz" suffix
// selects gzip compression.
func ExportAggregateFile(path string, agg *Aggregate) error {
	return exportFile(path, func(w io.Writer) error { return WriteAggregateJSON(w, agg) })
}

func exportFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("analytics: create export file: %w", err)
	}

	var w io.Writer = f
	var zw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		zw = gzip.NewWriter(f)
		w = zw
	}
	if err := write(w); err != nil {
		_ = f.Close()
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			_ = f.Close()
			return fmt.Errorf("analytics: finalize gzip export: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("analytics: close export file: %w", err)
	}
	return nil
}
