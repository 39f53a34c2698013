// Package catalog is the durable record of observed files, pending
// SFTP download commands, and dispatch receipts described by
// spec.md §4.1, backed by GORM over postgres or sqlite, grounded on
// birdnet-go's internal/datastore package (mysql.go, sqlite.go,
// manage.go) and the original operation semantics of
// dispatcher/src/persistence.rs (original_source).
package catalog

import "time"

// FileModel is the GORM model for the `file` table.
type FileModel struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	Source   string `gorm:"not null;uniqueIndex:idx_file_source_path"`
	Path     string `gorm:"not null;uniqueIndex:idx_file_source_path"`
	Modified time.Time
	Size     int64
	Hash     *string
}

// TableName overrides GORM's pluralization.
func (FileModel) TableName() string { return "file" }

// SftpDownloadModel is the GORM model for the `sftp_download` table.
type SftpDownloadModel struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	Source string `gorm:"not null;index"`
	Path   string `gorm:"not null"`
	Size   *int64
	FileID *int64 `gorm:"index"`
}

// TableName overrides GORM's pluralization.
func (SftpDownloadModel) TableName() string { return "sftp_download" }

// DispatchedModel is the GORM model for the append-only `dispatched`
// table.
type DispatchedModel struct {
	FileID    int64 `gorm:"not null;index"`
	Target    string `gorm:"not null"`
	Timestamp time.Time
}

// TableName overrides GORM's pluralization.
func (DispatchedModel) TableName() string { return "dispatched" }
