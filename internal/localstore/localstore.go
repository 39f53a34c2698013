// Package localstore translates (source_name, remote_path, prefix)
// triples into local paths under a storage root and materializes files
// there by hardlink, ported from local_storage.rs's local_path/ingest
// (original_source, dispatcher/src/local_storage.rs).
package localstore

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/1Optic/cortex-dispatcher/internal/catalog"
	direrrors "github.com/1Optic/cortex-dispatcher/internal/errors"
)

// Store is the content-addressed local directory described by
// spec.md §4.2.
type Store struct {
	Root    string
	Catalog catalog.Catalog
}

// New returns a Store rooted at root, backed by cat.
func New(root string, cat catalog.Catalog) *Store {
	return &Store{Root: root, Catalog: cat}
}

// LocalPath implements the path rule of spec.md §4.2: if filePath
// begins with prefix, strip prefix and join under
// <root>/<source>/<stripped>; otherwise join <root>/<source>/<filePath>
// unchanged.
func (s *Store) LocalPath(sourceName, filePath, prefix string) string {
	if prefix != "" && strings.HasPrefix(filePath, prefix) {
		rel := strings.TrimPrefix(filePath, prefix)
		rel = strings.TrimPrefix(rel, string(filepath.Separator))
		return filepath.Join(s.Root, sourceName, rel)
	}
	trimmed := strings.TrimPrefix(filePath, string(filepath.Separator))
	return filepath.Join(s.Root, sourceName, trimmed)
}

// GetFileInfo returns the catalog row for a previously ingested file,
// or nil if it has never been seen.
func (s *Store) GetFileInfo(sourceName, filePath, prefix string) (*catalogFileInfo, error) {
	localPath := s.LocalPath(sourceName, filePath, prefix)
	info, err := s.Catalog.GetFile(sourceName, localPath)
	if err != nil {
		return nil, direrrors.New(err).Component("localstore").
			Category(direrrors.CategoryPersistence).
			Context("operation", "get_file_info").Build()
	}
	if info == nil {
		return nil, nil
	}
	return &catalogFileInfo{Modified: info.Modified, Size: info.Size, Hash: info.Hash}, nil
}

// catalogFileInfo is a narrow read-only view of core.FileInfo, scoped
// to the fields localstore callers need for deduplication comparisons.
type catalogFileInfo struct {
	Modified time.Time
	Size     int64
	Hash     *string
}

// Ingest hardlinks filePath into the store under (sourceName, prefix),
// inserts a catalog file row, and optionally unlinks the source,
// mirroring local_storage.rs's ingest (original_source).
func (s *Store) Ingest(sourceName, filePath, prefix string, hash *string, delete bool) (int64, string, error) {
	localPath := s.LocalPath(sourceName, filePath, prefix)

	parent := filepath.Dir(localPath)
	if _, err := os.Stat(parent); os.IsNotExist(err) {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return 0, "", direrrors.New(err).Component("localstore").
				Category(direrrors.CategoryFile).
				Code(direrrors.CodeLocalDirCreate).
				Context("directory", parent).Build()
		}
	} else if fi, statErr := os.Stat(localPath); statErr == nil && !fi.IsDir() {
		if err := os.Remove(localPath); err != nil {
			return 0, "", direrrors.New(err).Component("localstore").
				Category(direrrors.CategoryFile).
				Context("path", localPath).Build()
		}
	}

	if err := os.Link(filePath, localPath); err != nil {
		if isCrossDevice(err) {
			return 0, "", direrrors.New(err).Component("localstore").
				Category(direrrors.CategoryOther).
				Code(direrrors.CodeHardlink).
				Context("note", "cross-device hardlink is a fatal configuration error").
				Context("source", filePath).Context("target", localPath).Build()
		}
		return 0, "", direrrors.New(err).Component("localstore").
			Category(direrrors.CategoryFile).
			Code(direrrors.CodeHardlink).
			Context("source", filePath).Context("target", localPath).Build()
	}

	meta, err := os.Stat(localPath)
	if err != nil {
		return 0, "", direrrors.New(err).Component("localstore").
			Category(direrrors.CategoryFile).Context("path", localPath).Build()
	}

	size := meta.Size()

	fileID, err := s.Catalog.InsertFile(sourceName, localPath, meta.ModTime().UTC(), size, hash)
	if err != nil {
		return 0, "", direrrors.New(err).Component("localstore").
			Category(direrrors.CategoryPersistence).Context("operation", "insert_file").Build()
	}

	if delete {
		if err := os.Remove(filePath); err != nil {
			return fileID, localPath, direrrors.New(err).Component("localstore").
				Category(direrrors.CategoryFile).
				Context("note", "ingest succeeded, source removal failed").
				Context("path", filePath).Build()
		}
	}

	return fileID, localPath, nil
}

func isCrossDevice(err error) bool {
	return strings.Contains(err.Error(), "cross-device") || strings.Contains(err.Error(), "invalid cross-device link")
}
