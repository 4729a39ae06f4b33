package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"git.home.luguber.info/inful/metapipe/internal/dataset"
)

func readCSV(path string) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ingest: parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("ingest: %s has no header row", path)
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(h)
	}

	t := dataset.New(cols...)
	for i, rec := range records[1:] {
		cells := make([]dataset.Value, len(rec))
		for j, raw := range rec {
			cells[j] = dataset.Parse(raw)
		}
		if err := t.AppendRow(cells...); err != nil {
			return nil, fmt.Errorf("ingest: %s row %d: %w", path, i+2, err)
		}
	}
	return t, nil
}

// WriteCSV writes the table with a header row. Missing cells render as NA,
// matching what Read parses back to missing.
func WriteCSV(w io.Writer, t *dataset.Table) error {
	if t == nil {
		return fmt.Errorf("ingest: nil table")
	}
	cw := csv.NewWriter(w)
	cols := t.Columns()
	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("ingest: write header: %w", err)
	}
	rec := make([]string, len(cols))
	for i := 0; i < t.NumRows(); i++ {
		for j, col := range cols {
			rec[j] = t.Cell(i, col).String()
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("ingest: write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
