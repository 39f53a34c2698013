// Package sftpdownloader implements the per-source worker pool that
// streams remote files to local storage, hashing as it copies, ported
// from sftp_downloader.rs's handle() (original_source,
// dispatcher/src/sftp_downloader.rs) per the 12-step algorithm of
// spec.md §4.6.
package sftpdownloader

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/1Optic/cortex-dispatcher/internal/broker"
	"github.com/1Optic/cortex-dispatcher/internal/catalog"
	"github.com/1Optic/cortex-dispatcher/internal/core"
	direrrors "github.com/1Optic/cortex-dispatcher/internal/errors"
	"github.com/1Optic/cortex-dispatcher/internal/localstore"
	"github.com/1Optic/cortex-dispatcher/internal/metrics"
	"github.com/1Optic/cortex-dispatcher/internal/sftpconn"
	"github.com/pkg/sftp"
)

// Deduplication mirrors conf.Deduplication, checked against an
// existing FileInfo before (without hash) and after (with hash) the
// transfer, per spec.md §4.6 steps 5 and 8.
type Deduplication struct {
	Enabled  bool
	Hash     bool
	Size     bool
	Modified bool
}

// equal reports whether an existing FileInfo matches the candidate
// attributes this Deduplication configuration cares about. hash is nil
// before the transfer (step 5) and populated after (step 8).
func (d Deduplication) equal(existing catalogFileInfo, size int64, modified time.Time, hash *string) bool {
	if d.Size && existing.Size != size {
		return false
	}
	if d.Modified && !existing.Modified.Equal(modified) {
		return false
	}
	if d.Hash {
		if hash == nil || existing.Hash == nil || *existing.Hash != *hash {
			return false
		}
	}
	return true
}

type catalogFileInfo struct {
	Modified time.Time
	Size     int64
	Hash     *string
}

// Worker holds one SFTP session for one source and downloads commands
// handed to it by the Pool.
type Worker struct {
	sourceName    string
	store         *localstore.Store
	cat           catalog.Catalog
	metrics       *metrics.Metrics
	dedup         Deduplication
	log           *slog.Logger
	session       *sftpconn.Session
	connConfig    sftpconn.Config
}

// NewWorker builds a Worker bound to an already-connected session.
func NewWorker(sourceName string, session *sftpconn.Session, connConfig sftpconn.Config, store *localstore.Store, cat catalog.Catalog, m *metrics.Metrics, dedup Deduplication, log *slog.Logger) *Worker {
	return &Worker{
		sourceName: sourceName,
		store:      store,
		cat:        cat,
		metrics:    m,
		dedup:      dedup,
		log:        log.With("source", sourceName),
		session:    session,
		connConfig: connConfig,
	}
}

// Run drains cmds until shutdown fires and the channel is empty,
// retrying Disconnected errors by reconnecting, and acking/nacking
// each delivery directly, mirroring SftpDownloader::start's outer loop
// (original_source).
func (w *Worker) Run(shutdown *core.Shutdown, cmds <-chan broker.Delivery, events chan<- core.FileEvent) error {
	timeout := 500 * time.Millisecond

	for {
		if shutdown.Stop.IsSet() && len(cmds) == 0 {
			return nil
		}

		select {
		case d, ok := <-cmds:
			if !ok {
				if shutdown.Stop.IsSet() {
					return nil
				}
				return direrrors.Newf("sftp download command channel closed unexpectedly").
					Component("sftpdownloader").
					Category(direrrors.CategoryDisconnected).
					Code(direrrors.CodeCommandChannelClosed).Build()
			}
			w.process(shutdown, d, events)
		case <-time.After(timeout):
			continue
		}
	}
}

func (w *Worker) process(shutdown *core.Shutdown, d broker.Delivery, events chan<- core.FileEvent) {
	event, err := w.handleWithRetry(shutdown, d.Command)
	if err != nil {
		if direrrors.IsNoSuchFile(err) {
			if ackErr := d.Ack(); ackErr != nil {
				w.log.Error("ack failed", "path", d.Command.Path, "error", ackErr)
			}
			return
		}
		w.log.Error("error downloading file", "path", d.Command.Path, "error", err)
		if nackErr := d.Nack(); nackErr != nil {
			w.log.Error("nack failed", "path", d.Command.Path, "error", nackErr)
		}
		return
	}

	if ackErr := d.Ack(); ackErr != nil {
		w.log.Error("ack failed", "path", d.Command.Path, "error", ackErr)
	}
	if event != nil {
		events <- *event
	}
}

// handleWithRetry wraps handle with the reconnect-on-disconnect retry
// policy of sftp_downloader.rs's `retry(Fixed::from_millis(1000), ...)`
// (original_source).
func (w *Worker) handleWithRetry(shutdown *core.Shutdown, cmd core.SftpDownload) (*core.FileEvent, error) {
	for {
		event, err := w.handle(cmd)
		if err == nil {
			return event, nil
		}
		if !direrrors.IsDisconnected(err) {
			return nil, err
		}

		w.log.Info("sftp connection disconnected, reconnecting")
		session, connErr := w.connConfig.ConnectLoop(shutdown.Stop)
		if connErr != nil {
			return nil, direrrors.New(connErr).Component("sftpdownloader").
				Category(direrrors.CategoryConnectionInterrupted).Build()
		}
		w.session.Close()
		w.session = session
		w.log.Info("sftp connection reconnected")
		time.Sleep(time.Second)
	}
}

// handle implements the 12-step algorithm of spec.md §4.6.
func (w *Worker) handle(cmd core.SftpDownload) (*core.FileEvent, error) {
	localPath := w.store.LocalPath(w.sourceName, cmd.Path, "/")

	remoteFile, err := w.session.SFTP.Open(cmd.Path)
	if err != nil {
		if isSessionError(err) {
			return nil, direrrors.New(err).Component("sftpdownloader").
				Category(direrrors.CategoryDisconnected).Build()
		}
		if isNoSuchFileError(err) {
			if delErr := w.cat.DeleteSftpDownload(cmd.ID); delErr != nil {
				return nil, direrrors.New(delErr).Component("sftpdownloader").
					Category(direrrors.CategoryPersistence).
					Code(direrrors.CodePersistenceDelete).Build()
			}
			return nil, direrrors.Newf("no such file").Component("sftpdownloader").
				Category(direrrors.CategoryNoSuchFile).Code(direrrors.CodeNoSuchFile).Build()
		}
		return nil, direrrors.New(err).Component("sftpdownloader").
			Category(direrrors.CategoryFile).Code(direrrors.CodeSFTPOpenFailed).Build()
	}
	defer remoteFile.Close()

	stat, err := remoteFile.Stat()
	if err != nil {
		if isSessionError(err) {
			return nil, direrrors.New(err).Component("sftpdownloader").
				Category(direrrors.CategoryDisconnected).Build()
		}
		return nil, direrrors.New(err).Component("sftpdownloader").
			Category(direrrors.CategoryFile).Code(direrrors.CodeSFTPStatFailed).Build()
	}

	modified := stat.ModTime().UTC()
	size := stat.Size()

	existingRaw, err := w.cat.GetFile(w.sourceName, localPath)
	if err != nil {
		return nil, direrrors.New(err).Component("sftpdownloader").
			Category(direrrors.CategoryOther).Build()
	}
	var existing *catalogFileInfo
	if existingRaw != nil {
		existing = &catalogFileInfo{Modified: existingRaw.Modified, Size: existingRaw.Size, Hash: existingRaw.Hash}
	}

	// Step 5: pre-hash dedup check when no hash comparison is required.
	if existing != nil && w.dedup.Enabled && !w.dedup.Hash {
		if w.dedup.equal(*existing, size, modified, nil) {
			return nil, nil
		}
	}

	if parent := filepath.Dir(localPath); parent != "." {
		if _, statErr := os.Stat(parent); os.IsNotExist(statErr) {
			if mkErr := os.MkdirAll(parent, 0o755); mkErr != nil {
				return nil, direrrors.New(mkErr).Component("sftpdownloader").
					Category(direrrors.CategoryOther).Code(direrrors.CodeLocalDirCreate).Build()
			}
		}
	}

	partPath := localPath + ".part"
	partFile, err := os.Create(partPath)
	if err != nil {
		return nil, direrrors.New(err).Component("sftpdownloader").
			Category(direrrors.CategoryFile).Code(direrrors.CodeLocalFileCreate).Build()
	}

	hasher := sha256.New()
	tee := io.TeeReader(remoteFile, hasher)
	bytesCopied, copyErr := io.Copy(partFile, tee)
	partFile.Close()
	hash := hex.EncodeToString(hasher.Sum(nil))

	// Step 8: post-hash dedup check.
	if existing != nil && w.dedup.Enabled && w.dedup.Hash {
		if w.dedup.equal(*existing, size, modified, &hash) {
			os.Remove(partPath)
			return nil, nil
		}
	}

	if copyErr != nil {
		os.Remove(partPath)
		return nil, direrrors.New(copyErr).Component("sftpdownloader").
			Category(direrrors.CategoryOther).Build()
	}

	if err := os.Rename(partPath, localPath); err != nil {
		return nil, direrrors.New(err).Component("sftpdownloader").
			Category(direrrors.CategoryOther).Code(direrrors.CodeLocalFileRename).Build()
	}

	fileID, err := w.cat.InsertFile(w.sourceName, localPath, modified, bytesCopied, &hash)
	if err != nil {
		return nil, direrrors.New(err).Component("sftpdownloader").
			Category(direrrors.CategoryPersistence).Code(direrrors.CodePersistenceInsert).Build()
	}

	if err := w.cat.SetSftpDownloadFile(cmd.ID, fileID); err != nil {
		return nil, direrrors.New(err).Component("sftpdownloader").
			Category(direrrors.CategoryOther).Code(direrrors.CodePersistenceUpdate).Build()
	}

	if w.metrics != nil {
		w.metrics.FilesDownloaded.WithLabelValues(w.sourceName).Inc()
		w.metrics.BytesDownloaded.WithLabelValues(w.sourceName).Add(float64(bytesCopied))
	}

	if cmd.Remove {
		if err := w.session.SFTP.Remove(cmd.Path); err != nil {
			w.log.Error("error removing remote file", "path", cmd.Path, "error", err)
		}
	}

	return &core.FileEvent{FileID: fileID, SourceName: w.sourceName, Path: localPath, Hash: hash}, nil
}

func isSessionError(err error) bool {
	if errors.Is(err, os.ErrNotExist) {
		return false // pkg/sftp reports SSH_FX_NO_SUCH_FILE as os.ErrNotExist
	}
	_, ok := err.(*sftp.StatusError)
	if !ok {
		return true // a non-protocol error (EOF, broken pipe) is treated as session-level
	}
	return false
}

func isNoSuchFileError(err error) bool {
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	statusErr, ok := err.(*sftp.StatusError)
	if !ok {
		return false
	}
	return statusErr.Code == 2 // SSH_FX_NO_SUCH_FILE
}
