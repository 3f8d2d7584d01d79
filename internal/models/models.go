package models

import (
	"time"
)

// ResponseRecord is one cached remote API response in the uncompressed table
// variant. Header and body payloads are stored as plain text. The table a
// record lives in is selected at query time; neither variant declares a
// static TableName.
type ResponseRecord struct {
	ID              uint       `gorm:"primaryKey;autoIncrement"`
	Key             string     `gorm:"type:varchar(64);not null;uniqueIndex"`
	Client          string     `gorm:"type:varchar(64);not null;index"`
	Version         *string    `gorm:"type:varchar(32)"`
	Endpoint        string     `gorm:"type:text;not null"`
	BaseURL         *string    `gorm:"type:text"`
	FullURL         *string    `gorm:"type:text"`
	Method          *string    `gorm:"type:varchar(10)"`
	RequestHeaders  *string    `gorm:"type:text"`
	RequestBody     *string    `gorm:"type:text"`
	ResponseHeaders *string    `gorm:"type:text"`
	ResponseBody    *string    `gorm:"type:text"`
	ResponseStatus  *int       `gorm:"column:response_status_code"`
	ResponseSize    *int       `gorm:"column:response_size"`
	ResponseTime    *float64   `gorm:"column:response_time"`
	Credits         *float64
	Cost            *float64
	ExpiresAt       *time.Time `gorm:"index"`
	ProcessedAt     *time.Time
	ProcessedStatus *string    `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CompressedResponseRecord is the compressed table variant. Header and body
// payloads carry a codec format marker followed by gzip bytes. ResponseSize
// still records the decompressed body length; it is recomputed on every
// write and never copied across representations.
type CompressedResponseRecord struct {
	ID              uint       `gorm:"primaryKey;autoIncrement"`
	Key             string     `gorm:"type:varchar(64);not null;uniqueIndex"`
	Client          string     `gorm:"type:varchar(64);not null;index"`
	Version         *string    `gorm:"type:varchar(32)"`
	Endpoint        string     `gorm:"type:text;not null"`
	BaseURL         *string    `gorm:"type:text"`
	FullURL         *string    `gorm:"type:text"`
	Method          *string    `gorm:"type:varchar(10)"`
	RequestHeaders  []byte
	RequestBody     []byte
	ResponseHeaders []byte
	ResponseBody    []byte
	ResponseStatus  *int       `gorm:"column:response_status_code"`
	ResponseSize    *int       `gorm:"column:response_size"`
	ResponseTime    *float64   `gorm:"column:response_time"`
	Credits         *float64
	Cost            *float64
	ExpiresAt       *time.Time `gorm:"index"`
	ProcessedAt     *time.Time
	ProcessedStatus *string    `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AccessLog records one request against the admin/ops HTTP surface.
type AccessLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"index;not null"`
	Method    string    `gorm:"type:varchar(10);not null"`
	Path      string    `gorm:"type:text;not null"`
	Status    int       `gorm:"not null;index"`
	Duration  time.Duration
	ClientIP  string `gorm:"type:varchar(45);not null"`
	UserAgent string `gorm:"type:text"`
	BytesSent int    `gorm:"not null;default:0"`
}

func (AccessLog) TableName() string {
	return "api_cache_access_logs"
}
