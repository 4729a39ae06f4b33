package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kshedden/datareader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/metapipe/internal/dataset"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		raw     string
		want    Format
		wantErr bool
	}{
		{raw: "", want: FormatAuto},
		{raw: "auto", want: FormatAuto},
		{raw: "csv", want: FormatCSV},
		{raw: " CSV ", want: FormatCSV},
		{raw: "dta", want: FormatStata},
		{raw: "stata", want: FormatStata},
		{raw: "sas", want: FormatSAS},
		{raw: "sas7bdat", want: FormatSAS},
		{raw: "parquet", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseFormat(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown dataset format")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{path: "trials.csv", want: FormatCSV},
		{path: "TRIALS.CSV", want: FormatCSV},
		{path: "data/depression.dta", want: FormatStata},
		{path: "export.sas7bdat", want: FormatSAS},
		{path: "notes.txt", wantErr: true},
		{path: "noextension", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			got, err := DetectFormat(tc.path)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSV(t *testing.T) {
	path := writeFile(t, "trials.csv",
		"study,mean_trt1,n_trt1,primary_outcome\n"+
			"Alda 2019,1.5,40,TRUE\n"+
			"Berg 2020,NA,38,false\n")

	tbl, err := Read(path, FormatAuto)
	require.NoError(t, err)

	assert.Equal(t, []string{"study", "mean_trt1", "n_trt1", "primary_outcome"}, tbl.Columns())
	require.Equal(t, 2, tbl.NumRows())

	assert.Equal(t, dataset.String("Alda 2019"), tbl.Cell(0, "study"))
	assert.Equal(t, dataset.Float(1.5), tbl.Cell(0, "mean_trt1"))
	assert.Equal(t, dataset.Int(40), tbl.Cell(0, "n_trt1"))
	assert.Equal(t, dataset.Bool(true), tbl.Cell(0, "primary_outcome"))
	assert.True(t, tbl.Cell(1, "mean_trt1").IsMissing())
	assert.Equal(t, dataset.Bool(false), tbl.Cell(1, "primary_outcome"))
}

func TestReadCSVStripsBOM(t *testing.T) {
	path := writeFile(t, "bom.csv", "\ufeffstudy,effect\nAlda 2019,0.4\n")

	tbl, err := Read(path, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, []string{"study", "effect"}, tbl.Columns())
}

func TestWriteCSVRoundTrip(t *testing.T) {
	tbl := dataset.New("study", "es", "primary_outcome")
	require.NoError(t, tbl.AppendRow(dataset.String("Alda 2019"), dataset.Float(0.35), dataset.Bool(true)))
	require.NoError(t, tbl.AppendRow(dataset.String("Berg 2020"), dataset.Missing(), dataset.Bool(false)))

	var buf strings.Builder
	require.NoError(t, WriteCSV(&buf, tbl))
	assert.Equal(t, "study,es,primary_outcome\nAlda 2019,0.35,TRUE\nBerg 2020,NA,FALSE\n", buf.String())

	path := writeFile(t, "out.csv", buf.String())
	back, err := Read(path, FormatCSV)
	require.NoError(t, err)
	assert.True(t, tbl.Equal(back))
}

func TestWriteCSVNilTable(t *testing.T) {
	var buf strings.Builder
	assert.Error(t, WriteCSV(&buf, nil))
}

func TestReadCSVErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Read(filepath.Join(t.TempDir(), "absent.csv"), FormatCSV)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open")
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, "empty.csv", "")
		_, err := Read(path, FormatCSV)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no header row")
	})

	t.Run("ragged row", func(t *testing.T) {
		path := writeFile(t, "ragged.csv", "study,effect\nAlda 2019,0.4,extra\n")
		_, err := Read(path, FormatCSV)
		require.Error(t, err)
	})

	t.Run("undetectable format", func(t *testing.T) {
		path := writeFile(t, "trials.bin", "xx")
		_, err := Read(path, FormatAuto)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot infer dataset format")
	})
}

func mustSeries(t *testing.T, name string, data interface{}, missing []bool) *datareader.Series {
	t.Helper()
	s, err := datareader.NewSeries(name, data, missing)
	require.NoError(t, err)
	return s
}

func TestAppendChunk(t *testing.T) {
	names := []string{"study", "effect", "n", "visit"}
	day := time.Date(2021, 3, 14, 0, 0, 0, 0, time.UTC)
	chunk := []*datareader.Series{
		mustSeries(t, "study", []string{"Alda 2019", "NA", "Cruz 2021"}, nil),
		mustSeries(t, "effect", []float64{0.4, 0.2, 0.9}, []bool{false, true, false}),
		mustSeries(t, "n", []int32{40, 38, 55}, nil),
		mustSeries(t, "visit", []time.Time{day, day, day}, []bool{false, false, true}),
	}

	tbl := dataset.New(names...)
	require.NoError(t, appendChunk(tbl, names, chunk))
	require.Equal(t, 3, tbl.NumRows())

	assert.Equal(t, dataset.String("Alda 2019"), tbl.Cell(0, "study"))
	assert.True(t, tbl.Cell(1, "study").IsMissing())
	assert.True(t, tbl.Cell(1, "effect").IsMissing())
	assert.Equal(t, dataset.Float(0.9), tbl.Cell(2, "effect"))
	assert.Equal(t, dataset.Float(38), tbl.Cell(1, "n"))
	assert.Equal(t, dataset.String("2021-03-14"), tbl.Cell(0, "visit"))
	assert.True(t, tbl.Cell(2, "visit").IsMissing())
}

func TestAppendChunkColumnMismatch(t *testing.T) {
	chunk := []*datareader.Series{mustSeries(t, "study", []string{"Alda 2019"}, nil)}
	err := appendChunk(dataset.New("study", "effect"), []string{"study", "effect"}, chunk)
	require.Error(t, err)
}
