// Package export writes check results as flat files for spreadsheets and
// CI artifacts.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/open3e-harness/metrics"
)

type record struct {
	ECU        string  `json:"ecu"`
	DID        int     `json:"did"`
	Transport  string  `json:"transport"`
	Passed     bool    `json:"passed"`
	Expected   string  `json:"expected"`
	Actual     string  `json:"actual,omitempty"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
	Time       string  `json:"time"`
}

func toRecord(r metrics.CheckResult) record {
	return record{
		ECU:        r.ECU,
		DID:        r.DID,
		Transport:  string(r.Transport),
		Passed:     r.Passed,
		Expected:   r.Expected,
		Actual:     r.Actual,
		Error:      r.Err,
		DurationMS: float64(r.Duration) / float64(time.Millisecond),
		Time:       r.Time.UTC().Format(time.RFC3339Nano),
	}
}

// Supported reports whether path has an extension WriteFile understands.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".json":
		return true
	}
	return false
}

// WriteFile writes res to path, choosing CSV or JSON from the extension.
func WriteFile(path string, res []metrics.CheckResult) (err error) {
	if !Supported(path) {
		return fmt.Errorf("export: unsupported file extension %q", filepath.Ext(path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return WriteCSV(f, res)
	}
	return WriteJSON(f, res)
}

// WriteJSON writes res to w as an indented JSON array.
func WriteJSON(w io.Writer, res []metrics.CheckResult) error {
	out := make([]record, len(res))
	for i, r := range res {
		out[i] = toRecord(r)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

var csvHeader = []string{"ecu", "did", "transport", "passed", "expected", "actual", "error", "duration_ms", "time"}

// WriteCSV writes res to w with a header row.
func WriteCSV(w io.Writer, res []metrics.CheckResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range res {
		rec := toRecord(r)
		row := []string{
			rec.ECU,
			strconv.Itoa(rec.DID),
			rec.Transport,
			strconv.FormatBool(rec.Passed),
			rec.Expected,
			rec.Actual,
			rec.Error,
			strconv.FormatFloat(rec.DurationMS, 'f', -1, 64),
			rec.Time,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
