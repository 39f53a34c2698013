package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	direrrors "github.com/1Optic/cortex-dispatcher/internal/errors"

	"github.com/1Optic/cortex-dispatcher/internal/core"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"
)

// gormCatalog implements Catalog over a *gorm.DB, shared by both the
// postgres and sqlite backends admitted by spec.md §9b.
type gormCatalog struct {
	db  *gorm.DB
	log *slog.Logger
}

// OpenPostgres opens the server-side SQL catalog backend, grounded on
// birdnet-go's MySQLStore.Open (internal/datastore/mysql.go) adapted
// to gorm.io/driver/postgres per the postgresql.url config key (see
// DESIGN.md Open Question 1).
func OpenPostgres(url string, debug bool, log *slog.Logger) (Catalog, error) {
	level := logger.Warn
	if debug {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{Logger: newGormLogger(log, level)})
	if err != nil {
		return nil, direrrors.New(err).Component("catalog").
			Category(direrrors.CategoryPersistence).
			Context("backend", "postgres").Build()
	}
	return openCommon(db, log)
}

// OpenSqlite opens the embedded SQL catalog backend, using the
// pure-Go modernc.org/sqlite driver rather than the teacher's cgo
// mattn/go-sqlite3, following onedrive-go's choice (see DESIGN.md Open
// Question 1).
func OpenSqlite(path string, debug bool, log *slog.Logger) (Catalog, error) {
	level := logger.Warn
	if debug {
		level = logger.Info
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{Logger: newGormLogger(log, level)})
	if err != nil {
		return nil, direrrors.New(err).Component("catalog").
			Category(direrrors.CategoryPersistence).
			Context("backend", "sqlite").Build()
	}
	return openCommon(db, log)
}

func openCommon(db *gorm.DB, log *slog.Logger) (Catalog, error) {
	if err := db.AutoMigrate(&FileModel{}, &SftpDownloadModel{}, &DispatchedModel{}); err != nil {
		return nil, direrrors.New(err).Component("catalog").
			Category(direrrors.CategoryPersistence).
			Context("operation", "automigrate").Build()
	}
	return &gormCatalog{db: db, log: log}, nil
}

func (c *gormCatalog) InsertFile(source, path string, modified time.Time, size int64, hash *string) (int64, error) {
	row := FileModel{Source: source, Path: path, Modified: modified, Size: size, Hash: hash}
	err := c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}, {Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"modified", "size", "hash"}),
	}).Create(&row).Error
	if err != nil {
		return 0, wrap(err, direrrors.CodePersistenceInsert, "insert_file")
	}

	// SQLite's RETURNING-less upsert path may not populate row.ID on
	// conflict; re-read the row to be certain of its id, mirroring
	// persistence.rs's insert_file-returning-id contract
	// (original_source).
	if row.ID == 0 {
		var existing FileModel
		if err := c.db.Where("source = ? AND path = ?", source, path).First(&existing).Error; err != nil {
			return 0, wrap(err, direrrors.CodePersistenceInsert, "insert_file_reread")
		}
		return existing.ID, nil
	}
	return row.ID, nil
}

func (c *gormCatalog) GetFile(source, path string) (*core.FileInfo, error) {
	var row FileModel
	err := c.db.Where("source = ? AND path = ?", source, path).First(&row).Error
	if err != nil {
		if errIsNotFound(err) {
			return nil, nil
		}
		return nil, wrap(err, direrrors.CodePersistenceInsert, "get_file")
	}
	return &core.FileInfo{
		ID:       row.ID,
		Source:   row.Source,
		Path:     row.Path,
		Modified: row.Modified,
		Size:     row.Size,
		Hash:     row.Hash,
	}, nil
}

func (c *gormCatalog) InsertSftpDownload(source, path string, size *int64) (int64, error) {
	row := SftpDownloadModel{Source: source, Path: path, Size: size}
	if err := c.db.Create(&row).Error; err != nil {
		return 0, wrap(err, direrrors.CodePersistenceInsert, "insert_sftp_download")
	}
	return row.ID, nil
}

func (c *gormCatalog) SetSftpDownloadFile(id, fileID int64) error {
	res := c.db.Model(&SftpDownloadModel{}).Where("id = ?", id).Update("file_id", fileID)
	if res.Error != nil {
		return wrap(res.Error, direrrors.CodePersistenceUpdate, "set_sftp_download_file")
	}
	return nil
}

func (c *gormCatalog) DeleteSftpDownload(id int64) error {
	if err := c.db.Delete(&SftpDownloadModel{}, id).Error; err != nil {
		return wrap(err, direrrors.CodePersistenceDelete, "delete_sftp_download")
	}
	return nil
}

func (c *gormCatalog) InsertDispatched(ctx context.Context, target string, fileID int64) error {
	row := DispatchedModel{FileID: fileID, Target: target, Timestamp: time.Now().UTC()}
	if err := c.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrap(err, direrrors.CodePersistenceInsert, "insert_dispatched")
	}
	return nil
}

func (c *gormCatalog) HasPendingDownload(source, path string, size int64) (bool, error) {
	var count int64
	err := c.db.Model(&SftpDownloadModel{}).
		Where("source = ? AND path = ? AND size = ?", source, path, size).
		Count(&count).Error
	if err != nil {
		return false, wrap(err, direrrors.CodePersistenceInsert, "has_pending_download")
	}
	return count > 0, nil
}

func (c *gormCatalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func errIsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
