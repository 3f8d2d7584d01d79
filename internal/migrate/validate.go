package migrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fofxtools/api-cache/internal/codec"
	"github.com/fofxtools/api-cache/internal/models"
)

// comparedColumns is the explicit allow-list of columns that must match
// exactly between a compressed row and its uncompressed counterpart. The
// header/body payloads and response_size have dedicated checks; bookkeeping
// timestamps and processing state are rewritten by migration and are not
// compared.
var comparedColumns = []string{
	"key",
	"client",
	"version",
	"endpoint",
	"base_url",
	"full_url",
	"method",
	"response_status_code",
	"response_time",
	"credits",
	"cost",
	"expires_at",
}

// payloadField pairs one header/body column across the two physical forms.
type payloadField struct {
	name       string
	compressed []byte
	plain      *string
}

func payloadFields(c *models.CompressedResponseRecord, p *models.ResponseRecord) []payloadField {
	return []payloadField{
		{"request_headers", c.RequestHeaders, p.RequestHeaders},
		{"request_body", c.RequestBody, p.RequestBody},
		{"response_headers", c.ResponseHeaders, p.ResponseHeaders},
		{"response_body", c.ResponseBody, p.ResponseBody},
	}
}

// validateField reports whether a stored compressed value restores to
// exactly the plain value. Both nil passes; one-sided nil fails. A value
// that cannot be decompressed returns an error, distinct from a mismatch.
func validateField(compressedValue []byte, plainValue *string, fieldLabel string) (bool, error) {
	if compressedValue == nil && plainValue == nil {
		return true, nil
	}
	if compressedValue == nil || plainValue == nil {
		return false, nil
	}
	restored, err := codec.DecompressIfNeeded(compressedValue)
	if err != nil {
		return false, fmt.Errorf("field %s: %w", fieldLabel, err)
	}
	return bytes.Equal(restored, []byte(*plainValue)), nil
}

// validateRow reports whether one row pair round-trips losslessly: every
// allow-listed column matches exactly, every payload field restores to its
// plain counterpart, and the uncompressed row's response_size equals its
// decompressed body length.
func validateRow(compressed *models.CompressedResponseRecord, plain *models.ResponseRecord) (bool, error) {
	if !scalarColumnsMatch(compressed, plain) {
		return false, nil
	}

	for _, f := range payloadFields(compressed, plain) {
		ok, err := validateField(f.compressed, f.plain, f.name)
		if err != nil || !ok {
			return ok, err
		}
	}

	if plain.ResponseBody != nil {
		if plain.ResponseSize == nil || *plain.ResponseSize != len(*plain.ResponseBody) {
			return false, nil
		}
	}
	return true, nil
}

func scalarColumnsMatch(c *models.CompressedResponseRecord, p *models.ResponseRecord) bool {
	// Mirrors comparedColumns; adding a column there means adding its
	// comparison here.
	switch {
	case c.Key != p.Key,
		c.Client != p.Client,
		!ptrEqual(c.Version, p.Version),
		c.Endpoint != p.Endpoint,
		!ptrEqual(c.BaseURL, p.BaseURL),
		!ptrEqual(c.FullURL, p.FullURL),
		!ptrEqual(c.Method, p.Method),
		!ptrEqual(c.ResponseStatus, p.ResponseStatus),
		!ptrEqual(c.ResponseTime, p.ResponseTime),
		!ptrEqual(c.Credits, p.Credits),
		!ptrEqual(c.Cost, p.Cost),
		!timePtrEqual(c.ExpiresAt, p.ExpiresAt):
		return false
	}
	return true
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (c *Converter) validateBatch(ctx context.Context, log *logrus.Entry, batchSize, offset int) (ValidationStats, error) {
	_, stats, err := c.validatePage(ctx, log, batchSize, offset)
	return stats, err
}

// validatePage validates one page of source rows against their destination
// counterparts, returning the number of source rows read so callers can
// advance the offset past pairs that were absent from the destination.
func (c *Converter) validatePage(ctx context.Context, log *logrus.Entry, batchSize, offset int) (int, ValidationStats, error) {
	if batchSize <= 0 {
		batchSize = c.batchSize
	}

	var stats ValidationStats
	if c.dir == Decompression {
		var rows []models.CompressedResponseRecord
		if err := c.pageSource(ctx, batchSize, offset, &rows); err != nil {
			return 0, stats, err
		}
		for i := range rows {
			plain, err := c.plainCounterpart(ctx, rows[i].Key)
			if err != nil {
				stats.Errors++
				log.WithFields(logrus.Fields{"key": rows[i].Key, "error": err}).Error("Counterpart lookup failed")
				continue
			}
			if plain == nil {
				continue // not yet migrated, nothing to validate
			}
			c.validatePair(log, &rows[i], plain, &stats)
		}
		return len(rows), stats, nil
	}

	var rows []models.ResponseRecord
	if err := c.pageSource(ctx, batchSize, offset, &rows); err != nil {
		return 0, stats, err
	}
	for i := range rows {
		compressed, err := c.compressedCounterpart(ctx, rows[i].Key)
		if err != nil {
			stats.Errors++
			log.WithFields(logrus.Fields{"key": rows[i].Key, "error": err}).Error("Counterpart lookup failed")
			continue
		}
		if compressed == nil {
			continue
		}
		c.validatePair(log, compressed, &rows[i], &stats)
	}
	return len(rows), stats, nil
}

func (c *Converter) validatePair(log *logrus.Entry, compressed *models.CompressedResponseRecord, plain *models.ResponseRecord, stats *ValidationStats) {
	ok, err := validateRow(compressed, plain)
	switch {
	case err != nil:
		stats.Errors++
		log.WithFields(logrus.Fields{"key": compressed.Key, "error": err}).Error("Row validation failed")
	case ok:
		stats.Validated++
	default:
		stats.Mismatches++
		log.WithField("key", compressed.Key).Warn("Row mismatch")
	}
}

func (c *Converter) plainCounterpart(ctx context.Context, key string) (*models.ResponseRecord, error) {
	var row models.ResponseRecord
	err := c.db.WithContext(ctx).Table(c.dst.Name()).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (c *Converter) compressedCounterpart(ctx context.Context, key string) (*models.CompressedResponseRecord, error) {
	var row models.CompressedResponseRecord
	err := c.db.WithContext(ctx).Table(c.dst.Name()).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
