// Package flowstats persists per-flow results as CSV rows, one row per flow
// per run, appending to an existing results file across runs.
package flowstats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/jszwec/csvutil"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Record is one flow's outcome.
type Record struct {
	Timestamp       time.Time  `csv:"timestamp"`
	OfferedLoadMbps float64    `csv:"offeredLoad"`
	RunID           string     `csv:"runId"`
	Source          netip.Addr `csv:"sourceAddr"`
	Destination     netip.Addr `csv:"destAddr"`
	ThroughputMbps  float64    `csv:"throughputMbps"`
	DelaySeconds    float64    `csv:"delaySeconds"`
}

// Writer appends records to a CSV stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	csv    *csv.Writer
	enc    *csvutil.Encoder
	closer io.Closer
}

// NewWriter encodes records onto w. The header row is written before the
// first record when header is true.
func NewWriter(w io.Writer, header bool) *Writer {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	enc.AutoHeader = header
	return &Writer{csv: cw, enc: enc}
}

// Append opens path for appending, creating it when missing. The header row
// is only written when the file is empty.
func Append(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open flow stats %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat flow stats %q: %w", path, err)
	}
	w := NewWriter(f, info.Size() == 0)
	w.closer = f
	return w, nil
}

// Write encodes one record and flushes it.
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode flow stat: %w", err)
	}
	w.csv.Flush()
	return w.csv.Error()
}

// Close releases the underlying file, if Append opened one.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	err := w.csv.Error()
	if w.closer != nil {
		err = errors.Join(err, w.closer.Close())
		w.closer = nil
	}
	return err
}

// Read decodes every record from r, which must start with a header row.
func Read(r io.Reader) ([]Record, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read flow stats header: %w", err)
	}
	var out []Record
	for {
		var rec Record
		if err := dec.Decode(&rec); errors.Is(err, io.EOF) {
			return out, nil
		} else if err != nil {
			return nil, fmt.Errorf("decode flow stat: %w", err)
		}
		out = append(out, rec)
	}
}

// Summary condenses the records of one run.
type Summary struct {
	Flows               int
	TotalThroughputMbps float64
	MeanThroughputMbps  float64
	MeanDelaySeconds    float64
	MaxDelaySeconds     float64
}

// Summarize aggregates recs.
func Summarize(recs []Record) Summary {
	if len(recs) == 0 {
		return Summary{}
	}
	tput := make([]float64, len(recs))
	delay := make([]float64, len(recs))
	for i, r := range recs {
		tput[i] = r.ThroughputMbps
		delay[i] = r.DelaySeconds
	}
	return Summary{
		Flows:               len(recs),
		TotalThroughputMbps: floats.Sum(tput),
		MeanThroughputMbps:  stat.Mean(tput, nil),
		MeanDelaySeconds:    stat.Mean(delay, nil),
		MaxDelaySeconds:     floats.Max(delay),
	}
}
