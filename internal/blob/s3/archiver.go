package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/corvales/nftmarketd/internal/domain"
)

// SettlementSource provides read access to settled listings for
// archival. The narrow interface keeps the archiver independent of the
// full listing store; the Postgres and memory stores both satisfy it.
type SettlementSource interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error)
}

// Archiver periodically snapshots settled listings to object storage as
// JSONL, partitioned by sale month. Each run uploads only listings sold
// since the previous run.
//
// Archival is read-only over the primary store; listings are never
// deleted.
type Archiver struct {
	writer domain.BlobWriter
	source SettlementSource
	logger *slog.Logger

	interval time.Duration
	lastRun  time.Time
}

// NewArchiver creates an Archiver that snapshots every interval.
func NewArchiver(writer domain.BlobWriter, source SettlementSource, interval time.Duration, logger *slog.Logger) *Archiver {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Archiver{
		writer:   writer,
		source:   source,
		logger:   logger.With(slog.String("component", "archiver")),
		interval: interval,
	}
}

// Run executes archive cycles on a ticker until the context is
// cancelled. A failed cycle is logged and retried on the next tick.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := a.ArchiveSettlements(ctx, time.Now().UTC())
			if err != nil {
				a.logger.ErrorContext(ctx, "archive cycle failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if count > 0 {
				a.logger.InfoContext(ctx, "archived settlements",
					slog.Int("count", count),
				)
			}
		}
	}
}

// ArchiveSettlements uploads listings sold since the previous cycle and
// before now, returning how many were written. An empty window uploads
// nothing.
func (a *Archiver) ArchiveSettlements(ctx context.Context, now time.Time) (int, error) {
	opts := domain.ListOpts{
		SoldOnly: true,
		Limit:    10000,
	}
	if !a.lastRun.IsZero() {
		since := a.lastRun
		opts.Since = &since
	}

	listings, err := a.source.List(ctx, opts)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements query: %w", err)
	}
	if len(listings) == 0 {
		a.lastRun = now
		return 0, nil
	}

	buf, err := marshalJSONL(listings)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements marshal: %w", err)
	}

	key := archiveKey(now)
	if err := a.writer.Write(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements upload: %w", err)
	}

	a.lastRun = now
	return len(listings), nil
}

// archiveKey builds the object key for a snapshot, partitioned by month
// with a timestamp suffix so cycles within the same month do not
// overwrite each other.
//
//	settlements/2025-09/20250901T120000Z.jsonl
func archiveKey(now time.Time) string {
	return fmt.Sprintf("settlements/%s/%s.jsonl",
		now.Format("2006-01"),
		now.Format("20060102T150405Z"),
	)
}

// marshalJSONL serializes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
