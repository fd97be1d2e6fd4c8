// Package export writes run results as TXT or CSV.
//
// TXT holds the original input lines joined by newlines. CSV has the header
// username,status,original_line with an optional trailing platform column.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"social-checker/internal/aggregator"
	"social-checker/pkg/types"
)

// Bucket selects which results to export
type Bucket string

const (
	BucketLive      Bucket = "live"
	BucketSuspended Bucket = "suspended"
	BucketUnknown   Bucket = "unknown"
	BucketError     Bucket = "error"
	BucketAll       Bucket = "all"
)

// Buckets lists every bucket in file order
var Buckets = []Bucket{BucketLive, BucketSuspended, BucketUnknown, BucketError, BucketAll}

// ParseBucket validates a bucket name
func ParseBucket(s string) (Bucket, error) {
	b := Bucket(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Buckets {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown bucket %q", s)
}

// Format is the output encoding
type Format string

const (
	FormatTXT Format = "txt"
	FormatCSV Format = "csv"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTXT, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// ContentType returns the MIME type for f
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "text/plain"
}

// Options tune presentation only; the stored results are never changed
type Options struct {
	// IncludePlatform adds a platform column to CSV output
	IncludePlatform bool
	// FoldUnknown puts unknown results in the error bucket
	FoldUnknown bool
}

// Select returns the results of bucket b in completion order
func Select(snap aggregator.Snapshot, b Bucket, opts Options) []types.CheckResult {
	switch b {
	case BucketAll:
		return snap.All
	case BucketLive:
		return snap.Bucket(types.Live)
	case BucketSuspended:
		return snap.Bucket(types.Suspended)
	case BucketUnknown:
		if opts.FoldUnknown {
			return nil
		}
		return snap.Bucket(types.Unknown)
	case BucketError:
		if !opts.FoldUnknown {
			return snap.Bucket(types.Error)
		}
		var out []types.CheckResult
		for _, r := range snap.All {
			if r.Status != types.Live && r.Status != types.Suspended {
				out = append(out, r)
			}
		}
		return out
	}
	return nil
}

// WriteTXT writes the original lines joined by newlines
func WriteTXT(w io.Writer, results []types.CheckResult) error {
	bw := bufio.NewWriter(w)
	for i, r := range results {
		if i > 0 {
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString(r.Entry.RawLine); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteCSV writes results with a header row
func WriteCSV(w io.Writer, results []types.CheckResult, opts Options) error {
	cw := csv.NewWriter(w)

	header := []string{"username", "status", "original_line"}
	if opts.IncludePlatform {
		header = append(header, "platform")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		record := []string{r.Entry.Username, r.Status.String(), r.Entry.RawLine}
		if opts.IncludePlatform {
			record = append(record, r.Platform)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write encodes results in format f
func Write(w io.Writer, results []types.CheckResult, f Format, opts Options) error {
	switch f {
	case FormatTXT:
		return WriteTXT(w, results)
	case FormatCSV:
		return WriteCSV(w, results, opts)
	}
	return fmt.Errorf("unknown format %q", f)
}

// FileName returns the export file name for a bucket
func FileName(b Bucket, platform string, f Format) string {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if b == BucketAll {
		return fmt.Sprintf("all_results_%s.%s", platform, f)
	}
	return fmt.Sprintf("%s_accounts_%s.%s", b, platform, f)
}

// WriteFiles writes one file per non-empty bucket into dir, plus the
// all-results file, and returns the paths written
func WriteFiles(dir, platform string, snap aggregator.Snapshot, f Format, opts Options) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	var (
		paths []string
		errs  error
	)
	for _, b := range Buckets {
		results := Select(snap, b, opts)
		if len(results) == 0 && b != BucketAll {
			continue
		}
		path := filepath.Join(dir, FileName(b, platform, f))
		if err := writeFile(path, results, f, opts); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		paths = append(paths, path)
	}
	return paths, errs
}

func writeFile(path string, results []types.CheckResult, f Format, opts Options) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(file))
	return Write(file, results, f, opts)
}
