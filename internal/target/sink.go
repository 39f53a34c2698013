// Package target implements the Target Sink of spec.md §4.11: one
// goroutine per Target materializing incoming FileEvents into a
// destination directory by hardlink, copy, or symlink, recording a
// DispatchReceipt, and optionally publishing a broker notification.
// Grounded on dispatcher.rs's target_directory_handler
// (original_source, dispatcher/src/dispatcher.rs).
package target

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/1Optic/cortex-dispatcher/internal/catalog"
	"github.com/1Optic/cortex-dispatcher/internal/core"
	direrrors "github.com/1Optic/cortex-dispatcher/internal/errors"
)

// Method selects how a Sink materializes an event's file onto disk.
type Method string

const (
	MethodHardlink Method = "Hardlink"
	MethodCopy     Method = "Copy"
	MethodSymlink  Method = "Symlink"
)

// Notifier publishes a rendered message once a file has been
// materialized. Implemented by *broker.Client in production.
type Notifier interface {
	PublishNotification(ctx context.Context, exchange, routingKey, body string) error
}

// NotifyConfig configures the optional post-dispatch notification.
type NotifyConfig struct {
	Exchange        string
	RoutingKey      string
	MessageTemplate string
}

// Render substitutes {file_path} in MessageTemplate with path.
func (n NotifyConfig) Render(path string) string {
	return strings.ReplaceAll(n.MessageTemplate, "{file_path}", path)
}

// Config describes one directory target's materialization policy.
type Config struct {
	Name        string
	Directory   string
	Method      Method
	Overwrite   bool
	Permissions os.FileMode
	Notify      *NotifyConfig
}

// Sink owns one Target's outbound channel and dispatches each incoming
// FileEvent into Config.Directory.
type Sink struct {
	target   *core.Target
	cfg      Config
	cat      catalog.Catalog
	notifier Notifier
	log      *slog.Logger
}

// New builds a Sink. notifier may be nil when cfg.Notify is nil.
func New(t *core.Target, cfg Config, cat catalog.Catalog, notifier Notifier, log *slog.Logger) *Sink {
	return &Sink{target: t, cfg: cfg, cat: cat, notifier: notifier, log: log.With("target", t.Name)}
}

// Run drains target.Events until shutdown fires and the channel is
// empty.
func (s *Sink) Run(shutdown *core.Shutdown) error {
	for {
		if shutdown.Stop.IsSet() && len(s.target.Events) == 0 {
			return nil
		}

		select {
		case event, ok := <-s.target.Events:
			if !ok {
				return nil
			}
			s.deliver(shutdown, event)
		case <-shutdown.Ctx.Done():
			if len(s.target.Events) == 0 {
				return nil
			}
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (s *Sink) deliver(shutdown *core.Shutdown, event core.FileEvent) {
	dest := filepath.Join(s.cfg.Directory, filepath.Base(event.Path))

	if err := s.materialize(event.Path, dest); err != nil {
		s.log.Error("dispatch failed", "path", event.Path, "destination", dest, "error", err)
		return
	}

	if err := s.cat.InsertDispatched(shutdown.Ctx, s.cfg.Name, event.FileID); err != nil {
		s.log.Error("recording dispatch receipt failed", "file_id", event.FileID, "error", err)
	}

	if s.cfg.Notify != nil && s.notifier != nil {
		body := s.cfg.Notify.Render(dest)
		ctx, cancel := context.WithTimeout(shutdown.Ctx, 10*time.Second)
		err := s.notifier.PublishNotification(ctx, s.cfg.Notify.Exchange, s.cfg.Notify.RoutingKey, body)
		cancel()
		if err != nil {
			s.log.Error("notification publish failed", "target", s.cfg.Name, "error", err)
		}
	}
}

func (s *Sink) materialize(src, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		if !s.cfg.Overwrite {
			return direrrors.Newf("destination already exists").
				Component("target").Category(direrrors.CategoryFile).
				Context("path", dest).Build()
		}
		if err := os.Remove(dest); err != nil {
			return direrrors.New(err).Component("target").
				Category(direrrors.CategoryFile).Context("path", dest).Build()
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return direrrors.New(err).Component("target").
			Category(direrrors.CategoryFile).Code(direrrors.CodeLocalDirCreate).Build()
	}

	switch s.cfg.Method {
	case MethodSymlink:
		if err := os.Symlink(src, dest); err != nil {
			return direrrors.New(err).Component("target").Category(direrrors.CategoryFile).Build()
		}
		return nil
	case MethodCopy:
		return s.copyFile(src, dest)
	default: // MethodHardlink
		if err := os.Link(src, dest); err != nil {
			return direrrors.New(err).Component("target").
				Category(direrrors.CategoryFile).Code(direrrors.CodeHardlink).Build()
		}
		return s.applyPermissions(dest)
	}
}

func (s *Sink) copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return direrrors.New(err).Component("target").Category(direrrors.CategoryFile).Build()
	}
	defer in.Close()

	perm := s.cfg.Permissions
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return direrrors.New(err).Component("target").Category(direrrors.CategoryFile).Build()
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return direrrors.New(err).Component("target").Category(direrrors.CategoryOther).Build()
	}
	return out.Close()
}

func (s *Sink) applyPermissions(path string) error {
	if s.cfg.Permissions == 0 {
		return nil
	}
	if err := os.Chmod(path, s.cfg.Permissions); err != nil {
		return direrrors.New(err).Component("target").Category(direrrors.CategoryFile).Build()
	}
	return nil
}
