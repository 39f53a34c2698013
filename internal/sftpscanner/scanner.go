// Package sftpscanner implements the periodic remote directory walk
// of spec.md §4.4: one goroutine per SFTP source, with catch-up
// suppression on its scan schedule and retry-on-disconnect around each
// scan, ported from sftp_scanner.rs (original_source,
// sftp-scanner/src/sftp_scanner.rs).
package sftpscanner

import (
	"context"
	"log/slog"
	"path"
	"regexp"
	"time"

	"github.com/1Optic/cortex-dispatcher/internal/broker"
	"github.com/1Optic/cortex-dispatcher/internal/catalog"
	"github.com/1Optic/cortex-dispatcher/internal/core"
	direrrors "github.com/1Optic/cortex-dispatcher/internal/errors"
	"github.com/1Optic/cortex-dispatcher/internal/metrics"
	"github.com/1Optic/cortex-dispatcher/internal/sftpconn"
	"github.com/pkg/sftp"
)

// Source configures one scanner instance; a subset of conf.SftpSource
// narrowed to what scanning needs.
type Source struct {
	Name         string
	Directory    string
	Regex        *regexp.Regexp
	Recurse      bool
	Deduplicate  bool
	Remove       bool
	ScanInterval time.Duration
}

const sendTimeout = time.Second

// Scanner runs the scan loop for one SFTP source.
type Scanner struct {
	source  Source
	conn    sftpconn.Config
	cat     catalog.Catalog
	brk     *broker.Client
	metrics *metrics.Metrics
	log     *slog.Logger
}

// New builds a Scanner for one configured source.
func New(source Source, conn sftpconn.Config, cat catalog.Catalog, brk *broker.Client, m *metrics.Metrics, log *slog.Logger) *Scanner {
	return &Scanner{source: source, conn: conn, cat: cat, brk: brk, metrics: m, log: log.With("source", source.Name)}
}

// Run is the scanner's top-level loop: connect, then scan on a
// catch-up-suppressed schedule until shutdown fires. It blocks until
// shutdown.Stop is set.
func (s *Scanner) Run(shutdown *core.Shutdown) error {
	session, err := s.conn.ConnectLoop(shutdown.Stop)
	if err != nil {
		return err
	}
	defer session.Close()

	nextScan := time.Now()

	for !shutdown.Stop.IsSet() {
		if time.Now().Before(nextScan) {
			time.Sleep(200 * time.Millisecond)
			continue
		}

		// Catch-up suppression: collapse any missed scan intervals
		// into exactly one run (spec.md §4.4, §8 property 6).
		for nextScan.Before(time.Now()) {
			nextScan = nextScan.Add(s.source.ScanInterval)
		}

		start := time.Now()
		result, err := s.scanWithReconnect(shutdown, &session)
		duration := time.Since(start)

		if err != nil {
			s.log.Error("scan failed", "error", err)
			continue
		}

		s.log.Info("scan finished", "duration", duration, "result", result.String())
		if s.metrics != nil {
			s.metrics.ScanDuration.WithLabelValues(s.source.Name).Observe(duration.Seconds())
			s.metrics.FilesEncountered.WithLabelValues(s.source.Name).Add(float64(result.Encountered))
			s.metrics.FilesMatching.WithLabelValues(s.source.Name).Add(float64(result.Matching))
			s.metrics.FilesDispatched.WithLabelValues(s.source.Name).Add(float64(result.Dispatched))
		}
	}

	return nil
}

// scanWithReconnect retries the scan on Disconnected errors by
// rebuilding the session, mirroring the original's retry(Fixed::from_millis(1000), ...)
// wrapper around scan_source (original_source).
func (s *Scanner) scanWithReconnect(shutdown *core.Shutdown, session **sftpconn.Session) (ScanResult, error) {
	for {
		result, err := s.scanDirectory(shutdown, (*session).SFTP, s.source.Directory)
		if err == nil {
			return result, nil
		}
		if !direrrors.IsDisconnected(err) {
			return ScanResult{}, err
		}

		s.log.Info("sftp connection disconnected, reconnecting")
		newSession, connErr := s.conn.ConnectLoop(shutdown.Stop)
		if connErr != nil {
			return ScanResult{}, connErr
		}
		(*session).Close()
		*session = newSession
		s.log.Info("sftp connection reconnected")
	}
}

func (s *Scanner) scanDirectory(shutdown *core.Shutdown, client *sftp.Client, dir string) (ScanResult, error) {
	var result ScanResult

	entries, err := client.ReadDir(dir)
	if err != nil {
		return result, direrrors.New(err).Component("sftpscanner").
			Category(direrrors.CategoryDisconnected).Context("directory", dir).Build()
	}

	for _, entry := range entries {
		if shutdown.Stop.IsSet() {
			break
		}

		entryPath := path.Join(dir, entry.Name())

		if entry.IsDir() {
			if s.source.Recurse {
				sub, err := s.scanDirectory(shutdown, client, entryPath)
				if err != nil {
					if direrrors.IsDisconnected(err) {
						return result, err
					}
					s.log.Error("error scanning subdirectory", "directory", entryPath, "error", err)
					continue
				}
				result.Add(sub)
			}
			continue
		}

		result.Encountered++

		if !s.source.Regex.MatchString(entry.Name()) {
			continue
		}
		result.Matching++

		size := entry.Size()

		if s.source.Deduplicate {
			exists, err := s.cat.HasPendingDownload(s.source.Name, entryPath, size)
			if err != nil {
				return result, direrrors.New(err).Component("sftpscanner").
					Category(direrrors.CategoryPersistence).Build()
			}
			if exists {
				s.log.Debug("already encountered", "path", entryPath)
				continue
			}
		}

		downloadID, err := s.cat.InsertSftpDownload(s.source.Name, entryPath, &size)
		if err != nil {
			return result, direrrors.New(err).Component("sftpscanner").
				Category(direrrors.CategoryPersistence).Build()
		}

		cmd := core.SftpDownload{
			ID:         downloadID,
			Created:    time.Now().UTC(),
			Size:       &size,
			SourceName: s.source.Name,
			Path:       entryPath,
			Remove:     s.source.Remove,
		}

		if err := s.enqueueWithRetry(cmd); err != nil {
			s.log.Error("error sending download message on channel", "error", err)
			continue
		}
		result.Dispatched++
	}

	return result, nil
}

// enqueueWithRetry retries a timed-out publish at a fixed 100ms
// interval; a disconnect is not retried, mirroring sftp_scanner.rs's
// send_timeout retry policy (original_source).
func (s *Scanner) enqueueWithRetry(cmd core.SftpDownload) error {
	for {
		err := s.brk.PublishDownload(context.Background(), s.source.Name, cmd, sendTimeout)
		if err == nil {
			return nil
		}
		if direrrors.CategoryOf(err) == direrrors.CategoryDisconnected {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}
}
