// Package ingest reads tabular study data from disk into dataset tables.
// CSV is the primary interchange format; Stata and SAS binary files are
// supported so exports from statistical packages load without a conversion
// step.
package ingest

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/metapipe/internal/dataset"
	"git.home.luguber.info/inful/metapipe/internal/logfields"
)

// Format identifies a supported on-disk dataset format.
type Format uint8

const (
	// FormatAuto infers the format from the file extension.
	FormatAuto Format = iota
	FormatCSV
	FormatStata
	FormatSAS
)

// String returns the canonical spelling.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatStata:
		return "stata"
	case FormatSAS:
		return "sas"
	default:
		return "auto"
	}
}

// ParseFormat maps a raw format name onto a Format. The empty string means
// auto-detection.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return FormatAuto, nil
	case "csv":
		return FormatCSV, nil
	case "stata", "dta":
		return FormatStata, nil
	case "sas", "sas7bdat":
		return FormatSAS, nil
	}
	return FormatAuto, fmt.Errorf("ingest: unknown dataset format %q (valid: auto, csv, stata, sas)", raw)
}

// DetectFormat infers the format from the path's extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".dta":
		return FormatStata, nil
	case ".sas7bdat":
		return FormatSAS, nil
	}
	return FormatAuto, fmt.Errorf("ingest: cannot infer dataset format from %q, pass one explicitly", filepath.Base(path))
}

// Read loads the dataset at path. FormatAuto resolves the concrete reader
// from the file extension.
func Read(path string, format Format) (*dataset.Table, error) {
	if format == FormatAuto {
		detected, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		format = detected
	}

	var (
		t   *dataset.Table
		err error
	)
	switch format {
	case FormatCSV:
		t, err = readCSV(path)
	case FormatStata:
		t, err = readStata(path)
	case FormatSAS:
		t, err = readSAS(path)
	default:
		return nil, fmt.Errorf("ingest: unsupported dataset format %v", format)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("dataset loaded",
		logfields.Dataset(path),
		slog.String("format", format.String()),
		logfields.Rows(t.NumRows()),
		slog.Int("columns", t.NumCols()))
	return t, nil
}
