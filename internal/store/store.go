// Package store owns the per-client response tables. Each client has two
// physical variants, compressed and uncompressed; rows are keyed by a
// request fingerprint, unique per table, with TTL-governed expiry. Expired
// rows are invisible to Get but stay in place until explicitly deleted.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fofxtools/api-cache/internal/codec"
	"github.com/fofxtools/api-cache/internal/models"
)

// Response carries the fields of one remote call to be cached. Endpoint and
// ResponseBody are required; everything else is optional observability and
// metering data stored verbatim.
type Response struct {
	Version         *string
	Endpoint        string
	BaseURL         *string
	FullURL         *string
	Method          *string
	RequestHeaders  *string
	RequestBody     *string
	ResponseHeaders *string
	ResponseBody    *string
	StatusCode      *int
	ResponseTime    *float64
	Credits         *float64
	Cost            *float64
}

type Store struct {
	db  *gorm.DB
	log *logrus.Entry
}

func New(logger *logrus.Logger, db *gorm.DB) *Store {
	return &Store{
		db:  db,
		log: logger.WithField("component", "response_store"),
	}
}

// DB exposes the underlying handle for collaborators that page over tables
// directly, such as the format migrator.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// EnsureTables creates or migrates both physical variants for a client.
func (s *Store) EnsureTables(client string) error {
	plain, err := NewTableHandle(client, false)
	if err != nil {
		return err
	}
	if err := s.db.Table(plain.Name()).AutoMigrate(&models.ResponseRecord{}); err != nil {
		return fmt.Errorf("migrate %s: %w", plain.Name(), err)
	}
	compressed := plain.Sibling()
	if err := s.db.Table(compressed.Name()).AutoMigrate(&models.CompressedResponseRecord{}); err != nil {
		return fmt.Errorf("migrate %s: %w", compressed.Name(), err)
	}
	return nil
}

// Store upserts one cached response by key. A second call with the same key
// replaces the row's payload and timestamps; concurrent writers for the same
// fingerprint resolve as last-writer-wins. ttlSeconds nil means no expiry.
func (s *Store) Store(ctx context.Context, h TableHandle, key string, resp *Response, ttlSeconds *int) error {
	if resp == nil || resp.Endpoint == "" {
		return &ValidationError{Field: "endpoint", Reason: "required"}
	}
	if resp.ResponseBody == nil {
		return &ValidationError{Field: "response_body", Reason: "required"}
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if ttlSeconds != nil {
		t := now.Add(time.Duration(*ttlSeconds) * time.Second)
		expiresAt = &t
	}

	size := len(*resp.ResponseBody)
	record := models.ResponseRecord{
		Key:             key,
		Client:          h.Client,
		Version:         resp.Version,
		Endpoint:        resp.Endpoint,
		BaseURL:         resp.BaseURL,
		FullURL:         resp.FullURL,
		Method:          resp.Method,
		RequestHeaders:  resp.RequestHeaders,
		RequestBody:     resp.RequestBody,
		ResponseHeaders: resp.ResponseHeaders,
		ResponseBody:    resp.ResponseBody,
		ResponseStatus:  resp.StatusCode,
		ResponseSize:    &size,
		ResponseTime:    resp.ResponseTime,
		Credits:         resp.Credits,
		Cost:            resp.Cost,
		ExpiresAt:       expiresAt,
	}

	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}

	var err error
	if h.Compressed {
		var compressed *models.CompressedResponseRecord
		compressed, err = EncodeRecord(&record)
		if err == nil {
			err = s.db.WithContext(ctx).Table(h.Name()).Clauses(upsert).Create(compressed).Error
		}
	} else {
		err = s.db.WithContext(ctx).Table(h.Name()).Clauses(upsert).Create(&record).Error
	}
	if err != nil {
		return fmt.Errorf("store response for client %s: %w", h.Client, err)
	}

	cacheStoresTotal.WithLabelValues(h.Client).Inc()
	s.log.WithFields(logrus.Fields{
		"client":        h.Client,
		"key":           key,
		"table":         h.Name(),
		"response_size": size,
		"ttl_set":       ttlSeconds != nil,
	}).Debug("Stored response")
	return nil
}

// Get returns the live record for a key with payload fields restored to
// their original text, or nil if no row exists or the row has expired.
func (s *Store) Get(ctx context.Context, h TableHandle, key string) (*models.ResponseRecord, error) {
	record, err := s.fetch(ctx, h, key)
	if err != nil {
		return nil, err
	}
	if record == nil || isExpired(record.ExpiresAt, time.Now().UTC()) {
		cacheMissesTotal.WithLabelValues(h.Client).Inc()
		return nil, nil
	}
	cacheHitsTotal.WithLabelValues(h.Client).Inc()
	return record, nil
}

func (s *Store) fetch(ctx context.Context, h TableHandle, key string) (*models.ResponseRecord, error) {
	if h.Compressed {
		var row models.CompressedResponseRecord
		err := s.db.WithContext(ctx).Table(h.Name()).Where("key = ?", key).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read response for client %s: %w", h.Client, err)
		}
		return DecodeRecord(&row)
	}

	var row models.ResponseRecord
	err := s.db.WithContext(ctx).Table(h.Name()).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read response for client %s: %w", h.Client, err)
	}
	return &row, nil
}

// CountTotal counts all rows in the table, expired or live, consumed by
// downstream processing or not.
func (s *Store) CountTotal(ctx context.Context, h TableHandle) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Table(h.Name()).Count(&n).Error
	return n, err
}

// CountActive counts rows with no TTL or a future expiry.
func (s *Store) CountActive(ctx context.Context, h TableHandle) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Table(h.Name()).
		Where("expires_at IS NULL OR expires_at > ?", time.Now().UTC()).
		Count(&n).Error
	return n, err
}

// CountExpired counts rows whose expiry has passed.
func (s *Store) CountExpired(ctx context.Context, h TableHandle) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Table(h.Name()).
		Where("expires_at IS NOT NULL AND expires_at <= ?", time.Now().UTC()).
		Count(&n).Error
	return n, err
}

// DeleteExpired physically removes expired rows; a no-op if none are
// expired. Returns the number of rows removed.
func (s *Store) DeleteExpired(ctx context.Context, h TableHandle) (int64, error) {
	result := s.db.WithContext(ctx).Table(h.Name()).
		Where("expires_at IS NOT NULL AND expires_at <= ?", time.Now().UTC()).
		Delete(h.model())
	if result.Error != nil {
		return 0, fmt.Errorf("delete expired for client %s: %w", h.Client, result.Error)
	}
	return result.RowsAffected, nil
}

// Cleanup is DeleteExpired under its operational name.
func (s *Store) Cleanup(ctx context.Context, h TableHandle) (int64, error) {
	return s.DeleteExpired(ctx, h)
}

// ClearTable removes every row of the selected variant.
func (s *Store) ClearTable(ctx context.Context, h TableHandle) error {
	err := s.db.WithContext(ctx).Table(h.Name()).Where("1 = 1").Delete(h.model()).Error
	if err != nil {
		return fmt.Errorf("clear table %s: %w", h.Name(), err)
	}
	s.log.WithFields(logrus.Fields{"client": h.Client, "table": h.Name()}).Info("Cleared table")
	return nil
}

// ListExpired returns up to limit expired rows decoded to plain text, for
// archival before deletion.
func (s *Store) ListExpired(ctx context.Context, h TableHandle, limit int) ([]models.ResponseRecord, error) {
	now := time.Now().UTC()
	if h.Compressed {
		var rows []models.CompressedResponseRecord
		err := s.db.WithContext(ctx).Table(h.Name()).
			Where("expires_at IS NOT NULL AND expires_at <= ?", now).
			Order("id").Limit(limit).Find(&rows).Error
		if err != nil {
			return nil, err
		}
		out := make([]models.ResponseRecord, 0, len(rows))
		for i := range rows {
			decoded, err := DecodeRecord(&rows[i])
			if err != nil {
				return nil, err
			}
			out = append(out, *decoded)
		}
		return out, nil
	}

	var rows []models.ResponseRecord
	err := s.db.WithContext(ctx).Table(h.Name()).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Order("id").Limit(limit).Find(&rows).Error
	return rows, err
}

func (h TableHandle) model() any {
	if h.Compressed {
		return &models.CompressedResponseRecord{}
	}
	return &models.ResponseRecord{}
}

func isExpired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && !expiresAt.After(now)
}

// EncodeRecord converts a plain record to its compressed physical form.
// ResponseSize is carried over, not recomputed from the compressed bytes: it
// always reflects the decompressed body length.
func EncodeRecord(r *models.ResponseRecord) (*models.CompressedResponseRecord, error) {
	out := models.CompressedResponseRecord{
		ID:              r.ID,
		Key:             r.Key,
		Client:          r.Client,
		Version:         r.Version,
		Endpoint:        r.Endpoint,
		BaseURL:         r.BaseURL,
		FullURL:         r.FullURL,
		Method:          r.Method,
		ResponseStatus:  r.ResponseStatus,
		ResponseSize:    r.ResponseSize,
		ResponseTime:    r.ResponseTime,
		Credits:         r.Credits,
		Cost:            r.Cost,
		ExpiresAt:       r.ExpiresAt,
		ProcessedAt:     r.ProcessedAt,
		ProcessedStatus: r.ProcessedStatus,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}

	fields := []struct {
		name string
		src  *string
		dst  *[]byte
	}{
		{"request_headers", r.RequestHeaders, &out.RequestHeaders},
		{"request_body", r.RequestBody, &out.RequestBody},
		{"response_headers", r.ResponseHeaders, &out.ResponseHeaders},
		{"response_body", r.ResponseBody, &out.ResponseBody},
	}
	for _, f := range fields {
		if f.src == nil {
			continue
		}
		compressed, err := codec.Compress([]byte(*f.src))
		if err != nil {
			return nil, fmt.Errorf("compress %s: %w", f.name, err)
		}
		*f.dst = compressed
	}
	return &out, nil
}

// DecodeRecord restores a compressed physical row to its plain form,
// auto-detecting per field whether the stored value carries the codec
// marker.
func DecodeRecord(r *models.CompressedResponseRecord) (*models.ResponseRecord, error) {
	out := models.ResponseRecord{
		ID:              r.ID,
		Key:             r.Key,
		Client:          r.Client,
		Version:         r.Version,
		Endpoint:        r.Endpoint,
		BaseURL:         r.BaseURL,
		FullURL:         r.FullURL,
		Method:          r.Method,
		ResponseStatus:  r.ResponseStatus,
		ResponseSize:    r.ResponseSize,
		ResponseTime:    r.ResponseTime,
		Credits:         r.Credits,
		Cost:            r.Cost,
		ExpiresAt:       r.ExpiresAt,
		ProcessedAt:     r.ProcessedAt,
		ProcessedStatus: r.ProcessedStatus,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}

	fields := []struct {
		name string
		src  []byte
		dst  **string
	}{
		{"request_headers", r.RequestHeaders, &out.RequestHeaders},
		{"request_body", r.RequestBody, &out.RequestBody},
		{"response_headers", r.ResponseHeaders, &out.ResponseHeaders},
		{"response_body", r.ResponseBody, &out.ResponseBody},
	}
	for _, f := range fields {
		if f.src == nil {
			continue
		}
		plain, err := codec.DecompressIfNeeded(f.src)
		if err != nil {
			return nil, &DecodingError{Field: f.name, Cause: err}
		}
		text := string(plain)
		*f.dst = &text
	}
	return &out, nil
}

// PrepareHeaders serializes a header map to text for storage, pretty-printed
// by default. A nil map stores as null.
func PrepareHeaders(headers map[string]any, pretty bool) (*string, error) {
	if headers == nil {
		return nil, nil
	}
	var (
		raw []byte
		err error
	)
	if pretty {
		raw, err = json.MarshalIndent(headers, "", "    ")
	} else {
		raw, err = json.Marshal(headers)
	}
	if err != nil {
		return nil, fmt.Errorf("serialize headers: %w", err)
	}
	text := string(raw)
	return &text, nil
}

// RetrieveHeaders is the inverse of PrepareHeaders. Nil input returns nil;
// malformed JSON or JSON that decodes to a non-map returns a DecodingError.
func RetrieveHeaders(text *string) (map[string]any, error) {
	if text == nil {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(*text), &decoded); err != nil {
		return nil, &DecodingError{Field: "headers", Cause: err}
	}
	headers, ok := decoded.(map[string]any)
	if !ok {
		return nil, &DecodingError{Field: "headers", Cause: ErrNotAMap}
	}
	return headers, nil
}

// PrepareBody normalizes a body for storage: valid JSON is re-serialized
// (pretty-printed unless pretty is false), anything else is stored verbatim.
func PrepareBody(body *string, pretty bool) *string {
	if body == nil {
		return nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(*body), &decoded); err != nil {
		return body
	}
	var (
		raw []byte
		err error
	)
	if pretty {
		raw, err = json.MarshalIndent(decoded, "", "    ")
	} else {
		raw, err = json.Marshal(decoded)
	}
	if err != nil {
		return body
	}
	text := string(raw)
	return &text
}

// RetrieveBody returns the stored body text unchanged; only PrepareBody
// normalizes formatting. Nil input returns nil.
func RetrieveBody(text *string) *string {
	return text
}
