// Package migrate converts stored rows between a client's compressed and
// uncompressed physical tables and verifies the conversion is lossless. It
// is an offline batch pipeline: a crashed or interrupted run restarts from
// offset 0 with no duplication, because rows already present at the
// destination are skipped, and one bad row never aborts a batch.
package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/fofxtools/api-cache/internal/models"
	"github.com/fofxtools/api-cache/internal/store"
)

// Direction selects which physical variant is the source.
type Direction int

const (
	// Decompression moves rows from the compressed table to the
	// uncompressed one.
	Decompression Direction = iota
	// Compression is the mirrored pipeline, used among other things to
	// produce compressed fixtures from uncompressed data.
	Compression
)

func (d Direction) String() string {
	if d == Compression {
		return "compression"
	}
	return "decompression"
}

// ParseDirection maps the CLI names to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "decompress", "decompression":
		return Decompression, nil
	case "compress", "compression":
		return Compression, nil
	}
	return 0, fmt.Errorf("unknown direction %q (want compress or decompress)", s)
}

// Stats accumulates one conversion run.
type Stats struct {
	Total     int `json:"total_count"`
	Processed int `json:"processed_count"`
	Skipped   int `json:"skipped_count"`
	Errors    int `json:"error_count"`
}

func (s *Stats) add(o Stats) {
	s.Total += o.Total
	s.Processed += o.Processed
	s.Skipped += o.Skipped
	s.Errors += o.Errors
}

// ValidationStats accumulates one validation run.
type ValidationStats struct {
	Validated  int `json:"validated_count"`
	Mismatches int `json:"mismatch_count"`
	Errors     int `json:"error_count"`
}

func (s *ValidationStats) add(o ValidationStats) {
	s.Validated += o.Validated
	s.Mismatches += o.Mismatches
	s.Errors += o.Errors
}

const defaultBatchSize = 100

type Option func(*Converter)

// WithBatchSize overrides the default batch size used when a call passes
// batchSize <= 0.
func WithBatchSize(n int) Option {
	return func(c *Converter) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithCopyProcessingState copies processed_at/processed_status verbatim to
// the destination instead of resetting them. Processing state is specific to
// the physical row a downstream consumer read, so the default resets both.
func WithCopyProcessingState(copy bool) Option {
	return func(c *Converter) {
		c.copyProcessingState = copy
	}
}

// WithPacer bounds row throughput against the shared database. Zero or
// negative disables pacing.
func WithPacer(rowsPerSec int) Option {
	return func(c *Converter) {
		if rowsPerSec > 0 {
			c.pacer = rate.NewLimiter(rate.Limit(rowsPerSec), rowsPerSec)
		}
	}
}

// Converter runs one client's migration in one direction. It holds no
// cursor between calls: each batch is a pure function of the source rows in
// range and destination row existence.
type Converter struct {
	db                  *gorm.DB
	log                 *logrus.Entry
	client              string
	dir                 Direction
	src, dst            store.TableHandle
	batchSize           int
	copyProcessingState bool
	pacer               *rate.Limiter
}

func NewConverter(logger *logrus.Logger, db *gorm.DB, client string, dir Direction, opts ...Option) (*Converter, error) {
	src, err := store.NewTableHandle(client, dir == Decompression)
	if err != nil {
		return nil, err
	}

	c := &Converter{
		db:        db,
		client:    client,
		dir:       dir,
		src:       src,
		dst:       src.Sibling(),
		batchSize: defaultBatchSize,
		log: logger.WithFields(logrus.Fields{
			"component": "format_migrator",
			"client":    client,
			"direction": dir.String(),
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ConvertBatch reads up to batchSize source rows starting at offset,
// transforms each, and inserts the ones not already present at the
// destination. Rows that fail to transform or insert are logged and
// counted, not propagated.
func (c *Converter) ConvertBatch(ctx context.Context, batchSize, offset int) (Stats, error) {
	return c.convertBatch(ctx, c.runLog(), batchSize, offset)
}

// ConvertAll repeats ConvertBatch from offset 0 until a pass finds no
// candidate rows.
func (c *Converter) ConvertAll(ctx context.Context) (Stats, error) {
	log := c.runLog()
	start := time.Now()

	var total Stats
	offset := 0
	for {
		batch, err := c.convertBatch(ctx, log, c.batchSize, offset)
		if err != nil {
			return total, err
		}
		total.add(batch)
		if batch.Total == 0 {
			break
		}
		offset += batch.Total
	}

	log.WithFields(logrus.Fields{
		"total":     total.Total,
		"processed": total.Processed,
		"skipped":   total.Skipped,
		"errors":    total.Errors,
		"duration":  time.Since(start),
	}).Info("Conversion finished")
	return total, nil
}

// ValidateBatch verifies rows present in both tables within the batch range
// round-trip losslessly.
func (c *Converter) ValidateBatch(ctx context.Context, batchSize, offset int) (ValidationStats, error) {
	return c.validateBatch(ctx, c.runLog(), batchSize, offset)
}

// ValidateAll validates every row pair from offset 0.
func (c *Converter) ValidateAll(ctx context.Context) (ValidationStats, error) {
	log := c.runLog()
	start := time.Now()

	var total ValidationStats
	offset := 0
	for {
		read, batch, err := c.validatePage(ctx, log, c.batchSize, offset)
		if err != nil {
			return total, err
		}
		total.add(batch)
		if read == 0 {
			break
		}
		offset += read
	}

	log.WithFields(logrus.Fields{
		"validated":  total.Validated,
		"mismatches": total.Mismatches,
		"errors":     total.Errors,
		"duration":   time.Since(start),
	}).Info("Validation finished")
	return total, nil
}

func (c *Converter) runLog() *logrus.Entry {
	return c.log.WithField("run_id", uuid.NewString())
}

func (c *Converter) convertBatch(ctx context.Context, log *logrus.Entry, batchSize, offset int) (Stats, error) {
	if batchSize <= 0 {
		batchSize = c.batchSize
	}

	var stats Stats
	if c.dir == Decompression {
		var rows []models.CompressedResponseRecord
		err := c.pageSource(ctx, batchSize, offset, &rows)
		if err != nil {
			return stats, err
		}
		stats.Total = len(rows)
		for i := range rows {
			c.convertRow(ctx, log, rows[i].Key, &stats, func() (any, error) {
				return c.decompressRow(&rows[i])
			})
		}
		return stats, nil
	}

	var rows []models.ResponseRecord
	err := c.pageSource(ctx, batchSize, offset, &rows)
	if err != nil {
		return stats, err
	}
	stats.Total = len(rows)
	for i := range rows {
		c.convertRow(ctx, log, rows[i].Key, &stats, func() (any, error) {
			return c.compressRow(&rows[i])
		})
	}
	return stats, nil
}

func (c *Converter) pageSource(ctx context.Context, batchSize, offset int, dest any) error {
	err := c.db.WithContext(ctx).Table(c.src.Name()).
		Order("id").Limit(batchSize).Offset(offset).
		Find(dest).Error
	if err != nil {
		return fmt.Errorf("read batch from %s: %w", c.src.Name(), err)
	}
	return nil
}

// convertRow handles one source row: skip if the destination already has the
// key, otherwise transform and insert. Failures are counted, never fatal.
func (c *Converter) convertRow(ctx context.Context, log *logrus.Entry, key string, stats *Stats, transform func() (any, error)) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			stats.Errors++
			return
		}
	}

	exists, err := c.destinationHas(ctx, key)
	if err != nil {
		stats.Errors++
		log.WithFields(logrus.Fields{"key": key, "error": err}).Error("Destination lookup failed")
		return
	}
	if exists {
		stats.Skipped++
		return
	}

	converted, err := transform()
	if err != nil {
		stats.Errors++
		log.WithFields(logrus.Fields{"key": key, "error": err}).Error("Row conversion failed")
		return
	}

	if err := c.db.WithContext(ctx).Table(c.dst.Name()).Create(converted).Error; err != nil {
		stats.Errors++
		log.WithFields(logrus.Fields{"key": key, "error": err}).Error("Row insert failed")
		return
	}
	stats.Processed++
}

func (c *Converter) destinationHas(ctx context.Context, key string) (bool, error) {
	var n int64
	err := c.db.WithContext(ctx).Table(c.dst.Name()).Where("key = ?", key).Count(&n).Error
	return n > 0, err
}

// decompressRow restores a compressed row for insertion into the plain
// table. response_size is recomputed from the decompressed body, and the
// destination gets fresh bookkeeping timestamps.
func (c *Converter) decompressRow(row *models.CompressedResponseRecord) (*models.ResponseRecord, error) {
	plain, err := store.DecodeRecord(row)
	if err != nil {
		return nil, err
	}
	recomputeSize(plain)
	if !c.copyProcessingState {
		plain.ProcessedAt, plain.ProcessedStatus = nil, nil
	}
	plain.ID = 0
	plain.CreatedAt = time.Time{}
	plain.UpdatedAt = time.Time{}
	return plain, nil
}

// compressRow is the mirrored transform for the compression pipeline.
func (c *Converter) compressRow(row *models.ResponseRecord) (*models.CompressedResponseRecord, error) {
	recomputeSize(row)
	compressed, err := store.EncodeRecord(row)
	if err != nil {
		return nil, err
	}
	if !c.copyProcessingState {
		compressed.ProcessedAt, compressed.ProcessedStatus = nil, nil
	}
	compressed.ID = 0
	compressed.CreatedAt = time.Time{}
	compressed.UpdatedAt = time.Time{}
	return compressed, nil
}

func recomputeSize(r *models.ResponseRecord) {
	if r.ResponseBody == nil {
		r.ResponseSize = nil
		return
	}
	size := len(*r.ResponseBody)
	r.ResponseSize = &size
}
