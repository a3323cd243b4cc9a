// Command catalog-ingest loads gzipped JSON-lines catalog exports into the
// catalog_items table. When an item id appears in several files the file
// that sorts last wins.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/salon-pos/internal/domain/catalog"
	"github.com/xenking/salon-pos/internal/domain/line"
	"github.com/xenking/salon-pos/internal/repository"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	maxFiles      = 64
	maxLineBytes  = 1 << 20
	progressEvery = 100_000
)

// record is one line of a catalog export.
type record struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Kind   string          `json:"kind"`
	Price  decimal.Decimal `json:"price"`
	Taxes  json.RawMessage `json:"taxes"`
	Active *bool           `json:"active"`
}

func (r record) item() catalog.Item {
	return catalog.Item{ID: r.ID, Name: r.Name, Kind: line.Kind(r.Kind), Price: r.Price}
}

func parseRecord(raw []byte) (record, error) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, errors.Wrap(err, "decode")
	}
	switch {
	case r.ID == "":
		return r, errors.New("missing id")
	case !line.Kind(r.Kind).Valid():
		return r, errors.Errorf("item %s: invalid kind %q", r.ID, r.Kind)
	case r.Price.IsNegative():
		return r, errors.Errorf("item %s: negative price", r.ID)
	}
	return r, nil
}

type itemWriter interface {
	UpsertItem(ctx context.Context, it catalog.Item, taxConfig []byte) error
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalog exports")
	flag.StringVar(&pattern, "pattern", "*.jsonl.gz", "glob for export files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		lg.Fatal("Invalid pattern", zap.Error(err))
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		lg.Fatal("Connect to database", zap.Error(err))
	}
	defer pool.Close()

	stats, err := ingest(ctx, lg, files, repository.NewCatalogRepository(pool))
	if err != nil {
		lg.Fatal("Catalog ingest failed", zap.Error(err))
	}
	lg.Info("Catalog ingest completed",
		zap.Int64("written", stats.written),
		zap.Int64("skipped", stats.skipped),
		zap.Int64("shadowed", stats.shadowed),
	)
}

type ingestStats struct {
	written  int64
	skipped  int64
	shadowed int64
}

// ingest runs three passes over files: per-file bloom filters of item ids,
// exact detection of ids present in more than one file, then the write.
func ingest(ctx context.Context, lg *zap.Logger, files []string, w itemWriter) (ingestStats, error) {
	var stats ingestStats
	if len(files) == 0 {
		return stats, errors.New("no catalog files found")
	}
	if len(files) > maxFiles {
		return stats, errors.Errorf("too many files: %d (max %d)", len(files), maxFiles)
	}
	files = slices.Clone(files)
	slices.Sort(files)

	lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, err := buildFilters(ctx, lg, files)
	if err != nil {
		return stats, errors.Wrap(err, "build bloom filters")
	}

	lg.Info("Pass 2: finding ids shared across files")
	owners, err := findShared(ctx, files, filters)
	if err != nil {
		return stats, errors.Wrap(err, "find shared ids")
	}
	lg.Info("Shared ids found", zap.Int("count", len(owners)))

	lg.Info("Pass 3: writing items")
	var written, skipped, shadowed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			return streamGzFile(gctx, path, func(raw []byte) error {
				r, err := parseRecord(raw)
				if err != nil {
					skipped.Add(1)
					lg.Debug("Skipping record", zap.String("file", path), zap.Error(err))
					return nil
				}
				if owner, ok := owners[r.ID]; ok && owner != i {
					shadowed.Add(1)
					return nil
				}
				if r.Active != nil && !*r.Active {
					skipped.Add(1)
					return nil
				}
				if err := w.UpsertItem(gctx, r.item(), r.Taxes); err != nil {
					return err
				}
				if n := written.Add(1); n%progressEvery == 0 {
					lg.Info("Write progress", zap.Int64("written", n))
				}
				return nil
			})
		})
	}
	err = g.Wait()
	stats = ingestStats{written: written.Load(), skipped: skipped.Load(), shadowed: shadowed.Load()}
	return stats, err
}

func buildFilters(ctx context.Context, lg *zap.Logger, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count int
			if err := streamGzFile(ctx, path, func(raw []byte) error {
				if id := peekID(raw); id != "" {
					filter.AddString(id)
					count++
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "file %s", path)
			}
			lg.Info("Pass 1 complete", zap.String("file", path), zap.Int("ids", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findShared returns, for each id present in two or more files, the index of
// the last such file. Each file marks its own bit for ids another file's
// filter may hold; a false positive only ever marks one bit.
func findShared(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]int, error) {
	masks := make([]map[string]uint64, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]uint64)
			bit := uint64(1) << uint(i)
			err := streamGzFile(ctx, path, func(raw []byte) error {
				id := peekID(raw)
				if id == "" {
					return nil
				}
				for j, f := range filters {
					if j != i && f.TestString(id) {
						found[id] |= bit
						break
					}
				}
				return nil
			})
			masks[i] = found
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint64)
	for _, m := range masks {
		for id, mask := range m {
			merged[id] |= mask
		}
	}

	owners := make(map[string]int)
	for id, mask := range merged {
		if bits.OnesCount64(mask) >= 2 {
			owners[id] = 63 - bits.LeadingZeros64(mask)
		}
	}
	return owners, nil
}

// peekID extracts the id field without validating the rest of the record.
func peekID(raw []byte) string {
	var v struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v.ID
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-empty line.
func streamGzFile(ctx context.Context, path string, fn func(raw []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
