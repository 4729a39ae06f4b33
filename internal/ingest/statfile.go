package ingest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/kshedden/datareader"

	"git.home.luguber.info/inful/metapipe/internal/dataset"
)

// statReader is the slice of the datareader API shared by the Stata and SAS
// readers.
type statReader interface {
	ColumnNames() []string
	Read(int) ([]*datareader.Series, error)
}

const chunkRows = 1024

func readStata(path string) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	r, err := datareader.NewStataReader(f)
	if err != nil {
		return nil, fmt.Errorf("ingest: read stata file %s: %w", path, err)
	}
	return statTable(r, path)
}

func readSAS(path string) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	r, err := datareader.NewSAS7BDATReader(f)
	if err != nil {
		return nil, fmt.Errorf("ingest: read sas file %s: %w", path, err)
	}
	r.TrimStrings = true
	return statTable(r, path)
}

func statTable(r statReader, path string) (*dataset.Table, error) {
	names := r.ColumnNames()
	t := dataset.New(names...)
	for {
		chunk, err := r.Read(chunkRows)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("ingest: read %s: %w", path, err)
		}
		if len(chunk) == 0 || chunk[0].Length() == 0 {
			break
		}
		if err := appendChunk(t, names, chunk); err != nil {
			return nil, fmt.Errorf("ingest: %s: %w", path, err)
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	return t, nil
}

// appendChunk converts one chunk of column series into table rows. Numeric
// columns are upcast to float64 first so every width of int and float in the
// source file lands on the same cell kind.
func appendChunk(t *dataset.Table, names []string, chunk []*datareader.Series) error {
	if len(chunk) != len(names) {
		return fmt.Errorf("got %d columns, file declares %d", len(chunk), len(names))
	}
	n := chunk[0].Length()
	cols := make([][]dataset.Value, len(chunk))
	for j, s := range chunk {
		vals, err := seriesValues(s.UpcastNumeric(), n)
		if err != nil {
			return fmt.Errorf("column %s: %w", names[j], err)
		}
		cols[j] = vals
	}
	for i := 0; i < n; i++ {
		row := make([]dataset.Value, len(cols))
		for j := range cols {
			row[j] = cols[j][i]
		}
		if err := t.AppendRow(row...); err != nil {
			return err
		}
	}
	return nil
}

func seriesValues(s *datareader.Series, n int) ([]dataset.Value, error) {
	if s.Length() != n {
		return nil, fmt.Errorf("ragged column: %d values, want %d", s.Length(), n)
	}
	missing := s.Missing()
	masked := func(i int) bool { return missing != nil && missing[i] }
	out := make([]dataset.Value, n)
	switch data := s.Data().(type) {
	case []float64:
		for i, v := range data {
			if masked(i) || math.IsNaN(v) {
				out[i] = dataset.Missing()
			} else {
				out[i] = dataset.Float(v)
			}
		}
	case []string:
		for i, v := range data {
			if masked(i) {
				out[i] = dataset.Missing()
			} else {
				out[i] = dataset.Parse(v)
			}
		}
	case []time.Time:
		for i, v := range data {
			if masked(i) {
				out[i] = dataset.Missing()
			} else {
				out[i] = dataset.String(v.Format("2006-01-02"))
			}
		}
	default:
		return nil, fmt.Errorf("unsupported column type %T", data)
	}
	return out, nil
}
