package separate

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/roach88/sirad/internal/ingest"
	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/metrics"
	"github.com/roach88/sirad/internal/ssn"
	"github.com/roach88/sirad/internal/store"
)

// Stores are the three destination stores of the separator.
type Stores struct {
	Data *store.Store
	PII  *store.Store
	Link *store.Store
}

// Separator loads datasets into the Data, PII and Link stores.
//
// A Separator holds no per-dataset state; Load may be called concurrently
// for different datasets as long as each store serializes its own writes.
type Separator struct {
	stores  Stores
	key     []byte
	hasher  *ssn.Hasher
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Separator.
type Option func(*Separator)

// WithClock sets the source of import timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Separator) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Separator) {
		s.logger = l
	}
}

// WithMetrics records load counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Separator) {
		s.metrics = m
	}
}

// WithSSNHasher stores keyed digests instead of SSN digits.
func WithSSNHasher(h *ssn.Hasher) Option {
	return func(s *Separator) {
		s.hasher = h
	}
}

// New creates a Separator. salt keys the pii_id permutation.
func New(stores Stores, salt string, opts ...Option) (*Separator, error) {
	if stores.Data == nil || stores.PII == nil || stores.Link == nil {
		return nil, errors.New("separator: data, pii and link stores are required")
	}

	key := []byte(salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}

	s := &Separator{
		stores: stores,
		key:    key,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoadReport summarizes one dataset load.
type LoadReport struct {
	Dataset string `json:"dataset"`
	Read    int    `json:"read"`
	Loaded  int    `json:"loaded"`
	Dropped int    `json:"dropped"`

	// Failures lists why each dropped row was excluded.
	Failures []*ingest.RowError `json:"-"`

	// Lines[i] is the input line of record_id i+1.
	Lines []int `json:"-"`
}

// Recreate drops and recreates the dataset's tables with no rows.
func (s *Separator) Recreate(ctx context.Context, l ir.Layout) error {
	return s.write(ctx, l, nil)
}

// Load reads every row of src, separates it and rebuilds the dataset's tables.
//
// Rows that fail coercion are excluded and reported; the rest are numbered
// 1..n in input order. A missing layout column in the header or a store
// failure aborts the load.
func (s *Separator) Load(ctx context.Context, l ir.Layout, src ingest.RowSource) (LoadReport, error) {
	if err := l.Validate(); err != nil {
		return LoadReport{}, err
	}

	binder, err := ingest.Bind(l, src.Header())
	if err != nil {
		return LoadReport{}, fmt.Errorf("load %s: %w", l.Dataset, err)
	}

	report := LoadReport{Dataset: l.Dataset}
	var records []ir.Record

	for {
		if err := ctx.Err(); err != nil {
			return LoadReport{}, fmt.Errorf("load %s: %w", l.Dataset, err)
		}

		raw, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		report.Read++

		var rec ir.Record
		if err == nil {
			rec, err = binder.Coerce(raw)
		}

		var rowErr *ingest.RowError
		if errors.As(err, &rowErr) {
			report.Dropped++
			report.Failures = append(report.Failures, rowErr)
			s.logger.Warn("row dropped",
				"dataset", l.Dataset,
				"line", rowErr.Line,
				"field", rowErr.Field,
				"reason", rowErr.Reason)
			continue
		}
		if err != nil {
			return LoadReport{}, fmt.Errorf("load %s: read: %w", l.Dataset, err)
		}

		records = append(records, rec)
		report.Lines = append(report.Lines, raw.Line)
	}

	if err := s.write(ctx, l, records); err != nil {
		return LoadReport{}, err
	}

	report.Loaded = len(records)
	s.metrics.AddLoaded(l.Dataset, report.Loaded)
	s.metrics.AddDropped(l.Dataset, report.Dropped)

	s.logger.Info("dataset loaded",
		"dataset", l.Dataset,
		"read", report.Read,
		"loaded", report.Loaded,
		"dropped", report.Dropped,
		"pii", l.HasPII())

	return report, nil
}

// write separates records and replaces the dataset's tables in each store.
func (s *Separator) write(ctx context.Context, l ir.Layout, records []ir.Record) error {
	importDT := s.now().UTC().Format(time.RFC3339)
	piiIDs := s.permute(len(records))

	opts := SplitOptions{ImportDT: importDT, Hasher: s.hasher}
	var dataRows, piiRows, linkRows [][]any

	for i, rec := range records {
		split, err := Separate(int64(i+1), piiIDs[i], rec, l, opts)
		if err != nil {
			return fmt.Errorf("load %s: record %d: %w", l.Dataset, i+1, err)
		}
		dataRows = append(dataRows, split.Data.Params())
		if split.PII != nil {
			piiRows = append(piiRows, split.PII.Params())
			linkRows = append(linkRows, split.Link.Params())
		}
	}

	if err := s.stores.Data.Replace(ctx, DataTable(l), dataRows); err != nil {
		return fmt.Errorf("load %s: data store: %w", l.Dataset, err)
	}

	if !l.HasPII() {
		// Absence of a pii table means "no identifying attributes".
		if err := s.stores.PII.Drop(ctx, l.Dataset); err != nil {
			return fmt.Errorf("load %s: pii store: %w", l.Dataset, err)
		}
		if err := s.stores.Link.Drop(ctx, l.Dataset); err != nil {
			return fmt.Errorf("load %s: link store: %w", l.Dataset, err)
		}
		return nil
	}

	if err := s.stores.PII.Replace(ctx, PIITable(l), piiRows); err != nil {
		return fmt.Errorf("load %s: pii store: %w", l.Dataset, err)
	}
	if err := s.stores.Link.Replace(ctx, LinkTable(l), linkRows); err != nil {
		return fmt.Errorf("load %s: link store: %w", l.Dataset, err)
	}
	return nil
}

// permute returns pii ids for record ids 1..n: the rank of each record id
// under a keyed hash, so pii order is unrelated to record order.
func (s *Separator) permute(n int) []int64 {
	type keyed struct {
		recordIdx int
		sum       [32]byte
	}

	items := make([]keyed, n)
	var buf [8]byte
	for i := range items {
		mac, err := blake2b.New256(s.key)
		if err != nil {
			// Key length is bounded in New.
			panic(err)
		}
		binary.BigEndian.PutUint64(buf[:], uint64(i+1))
		mac.Write(buf[:])
		items[i].recordIdx = i
		copy(items[i].sum[:], mac.Sum(nil))
	}

	sort.Slice(items, func(a, b int) bool {
		if c := bytes.Compare(items[a].sum[:], items[b].sum[:]); c != 0 {
			return c < 0
		}
		return items[a].recordIdx < items[b].recordIdx
	})

	ids := make([]int64, n)
	for rank, it := range items {
		ids[it.recordIdx] = int64(rank + 1)
	}
	return ids
}
