package catalog

import (
	"context"
	"time"

	"github.com/1Optic/cortex-dispatcher/internal/core"
	direrrors "github.com/1Optic/cortex-dispatcher/internal/errors"
)

// Catalog is the durable store contract of spec.md §4.1. It offers a
// blocking API for downloader/scanner worker goroutines and an
// async-friendly InsertDispatched for the event dispatcher, over the
// same underlying store, mirroring the original's split between
// SqlitePersistence (sync) and SqliteAsyncPersistence (original_source,
// dispatcher/src/persistence.rs).
type Catalog interface {
	// InsertFile upserts on (source, path) and returns the row id.
	InsertFile(source, path string, modified time.Time, size int64, hash *string) (int64, error)
	// GetFile returns the existing row for (source, path), or nil.
	GetFile(source, path string) (*core.FileInfo, error)
	// InsertSftpDownload creates a pending-download row and returns its id.
	InsertSftpDownload(source, path string, size *int64) (int64, error)
	// SetSftpDownloadFile binds a completed download to its file row.
	SetSftpDownloadFile(id, fileID int64) error
	// DeleteSftpDownload removes a download row for a vanished remote file.
	DeleteSftpDownload(id int64) error
	// InsertDispatched appends a dispatch receipt with the current time.
	InsertDispatched(ctx context.Context, target string, fileID int64) error
	// HasPendingDownload reports whether a sftp_download row already
	// exists for (source, path, size), the scanner's pre-enqueue
	// deduplication check (spec.md §4.4 step 4).
	HasPendingDownload(source, path string, size int64) (bool, error)

	// Close releases the underlying connection pool.
	Close() error
}

func wrap(err error, code direrrors.Code, op string) error {
	if err == nil {
		return nil
	}
	return direrrors.New(err).
		Component("catalog").
		Category(direrrors.CategoryPersistence).
		Code(code).
		Context("operation", op).
		Build()
}
