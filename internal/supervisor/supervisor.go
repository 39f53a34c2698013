// Package supervisor wires every dispatcher component from a loaded
// conf.Settings, installs the process signal handler, and joins every
// worker goroutine on shutdown, mirroring dispatcher.rs's run()
// (original_source, dispatcher/src/dispatcher.rs) and its wait_for
// join pattern (core/src/lib.rs).
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/1Optic/cortex-dispatcher/internal/broker"
	"github.com/1Optic/cortex-dispatcher/internal/catalog"
	"github.com/1Optic/cortex-dispatcher/internal/conf"
	"github.com/1Optic/cortex-dispatcher/internal/core"
	"github.com/1Optic/cortex-dispatcher/internal/dirsweep"
	"github.com/1Optic/cortex-dispatcher/internal/dirwatch"
	"github.com/1Optic/cortex-dispatcher/internal/dispatcher"
	"github.com/1Optic/cortex-dispatcher/internal/httpserver"
	"github.com/1Optic/cortex-dispatcher/internal/localintake"
	"github.com/1Optic/cortex-dispatcher/internal/localstore"
	"github.com/1Optic/cortex-dispatcher/internal/metrics"
	"github.com/1Optic/cortex-dispatcher/internal/sftpconn"
	"github.com/1Optic/cortex-dispatcher/internal/sftpdownloader"
	"github.com/1Optic/cortex-dispatcher/internal/sftpscanner"
	"github.com/1Optic/cortex-dispatcher/internal/target"
	"github.com/prometheus/client_golang/prometheus"
)

// Supervisor owns every long-lived component and the WaitGroup that
// joins them on shutdown.
type Supervisor struct {
	settings *conf.Settings
	log      *slog.Logger

	cat     catalog.Catalog
	store   *localstore.Store
	brk     *broker.Client
	metrics *metrics.Metrics
	http    *httpserver.Server

	sources map[string]*core.Source
	targets map[string]*core.Target

	shutdown *core.Shutdown
	wg       sync.WaitGroup
}

// New builds every component described by settings but starts
// nothing yet; call Run to start and block until shutdown.
func New(settings *conf.Settings, log *slog.Logger) (*Supervisor, error) {
	s := &Supervisor{
		settings: settings,
		log:      log,
		sources:  make(map[string]*core.Source),
		targets:  make(map[string]*core.Target),
		shutdown: core.NewShutdown(context.Background()),
	}

	var err error
	s.cat, err = openCatalog(settings, log)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	s.store = localstore.New(settings.Storage.Directory, s.cat)
	s.brk = broker.NewClient(settings.CommandQueue.Address)

	registry := prometheus.NewRegistry()
	s.metrics = metrics.New(registry)
	s.http = httpserver.New(settings.HTTPServer.Address, registry, s.ready, log.With("component", "httpserver"))

	if err := s.buildTargets(); err != nil {
		return nil, err
	}
	if err := s.buildSources(); err != nil {
		return nil, err
	}
	if err := s.buildConnections(); err != nil {
		return nil, err
	}

	return s, nil
}

func openCatalog(settings *conf.Settings, log *slog.Logger) (catalog.Catalog, error) {
	switch {
	case settings.Postgresql != nil && settings.Postgresql.URL != "":
		return catalog.OpenPostgres(settings.Postgresql.URL, settings.Debug, log.With("component", "catalog"))
	case settings.Sqlite != nil && settings.Sqlite.Path != "":
		return catalog.OpenSqlite(settings.Sqlite.Path, settings.Debug, log.With("component", "catalog"))
	default:
		return nil, fmt.Errorf("no catalog backend configured")
	}
}

func (s *Supervisor) buildTargets() error {
	for _, dt := range s.settings.DirectoryTargets {
		s.targets[dt.Name] = &core.Target{Name: dt.Name, Events: make(chan core.FileEvent, 64)}
	}
	return nil
}

func (s *Supervisor) buildSources() error {
	for _, ds := range s.settings.DirectorySources {
		s.sources[ds.Name] = &core.Source{Name: ds.Name, Events: make(chan core.FileEvent, 64)}
	}
	for _, ss := range s.settings.SftpSources {
		s.sources[ss.Name] = &core.Source{Name: ss.Name, Events: make(chan core.FileEvent, 64)}
	}
	return nil
}

func (s *Supervisor) buildConnections() error {
	for _, c := range s.settings.Connections {
		source, ok := s.sources[c.Source]
		if !ok {
			return fmt.Errorf("connection references unknown source %q", c.Source)
		}
		tgt, ok := s.targets[c.Target]
		if !ok {
			return fmt.Errorf("connection references unknown target %q", c.Target)
		}

		filter, err := buildFilter(c.Filter)
		if err != nil {
			return fmt.Errorf("connection %s->%s: %w", c.Source, c.Target, err)
		}

		source.Connections = append(source.Connections, &core.Connection{
			SourceName: c.Source,
			Target:     tgt,
			Filter:     filter,
		})
	}
	return nil
}

func buildFilter(f *conf.Filter) (core.Filter, error) {
	if f == nil || f.All {
		return core.AllFilter{}, nil
	}
	if f.Regex != nil {
		return core.NewRegexFilter(f.Regex.Pattern)
	}
	return core.AllFilter{}, nil
}

func (s *Supervisor) ready() bool { return true }

// Run starts every component, blocks until a termination signal or
// ctx is cancelled, then shuts everything down.
func (s *Supervisor) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	s.startHTTP()
	s.startBroker()
	s.startTargets()
	s.startDispatchers()
	if err := s.startSources(); err != nil {
		return err
	}

	for !s.shutdown.Stop.IsSet() {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				s.log.Info("received SIGHUP, configuration reload is not supported, ignoring")
				continue
			}
			s.log.Info("received shutdown signal", "signal", sig.String())
			s.shutdown.Fire()
		case <-ctx.Done():
			s.shutdown.Fire()
		}
	}

	s.wg.Wait()
	return s.cat.Close()
}

func (s *Supervisor) startHTTP() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		core.WaitFor("httpserver", s.log, func() error { return s.http.Run(s.shutdown.Ctx) })
	}()
}

func (s *Supervisor) startBroker() {
	if s.settings.CommandQueue.Address == "" {
		s.log.Info("no command_queue.address configured, broker disabled")
		return
	}
	ctx, cancel := context.WithTimeout(s.shutdown.Ctx, 30*time.Second)
	defer cancel()
	if err := s.brk.Connect(ctx); err != nil {
		s.log.Error("initial broker connect failed, will retry", "error", err)
		s.brk.ReconnectWithBackoff(s.shutdown)
	}
}

func (s *Supervisor) startTargets() {
	for _, dt := range s.settings.DirectoryTargets {
		tgt := s.targets[dt.Name]
		cfg := targetConfig(dt)

		var notifier target.Notifier
		if dt.Notify != nil && dt.Notify.RabbitMQ != nil {
			notifier = s.brk
		}

		sink := target.New(tgt, cfg, s.cat, notifier, s.log.With("component", "target"))
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			core.WaitFor("target:"+dt.Name, s.log, func() error { return sink.Run(s.shutdown) })
		}()
	}
}

func targetConfig(dt conf.DirectoryTarget) target.Config {
	cfg := target.Config{
		Name:        dt.Name,
		Directory:   dt.Directory,
		Method:      target.Method(dt.Method),
		Overwrite:   dt.Overwrite,
		Permissions: os.FileMode(dt.Permissions),
	}
	if dt.Notify != nil && dt.Notify.RabbitMQ != nil {
		cfg.Notify = &target.NotifyConfig{
			Exchange:        dt.Notify.RabbitMQ.Exchange,
			RoutingKey:      dt.Notify.RabbitMQ.RoutingKey,
			MessageTemplate: dt.Notify.RabbitMQ.MessageTemplate,
		}
	}
	return cfg
}

func (s *Supervisor) startDispatchers() {
	for _, source := range s.sources {
		d := dispatcher.New(source, s.log.With("component", "dispatcher"))
		s.wg.Add(1)
		go func(name string) {
			defer s.wg.Done()
			core.WaitFor("dispatcher:"+name, s.log, func() error { return d.Run(s.shutdown) })
		}(source.Name)
	}
}

func (s *Supervisor) startSources() error {
	intake := make(chan localintake.Record, 256)

	in := localintake.New(s.store, func(name string) *core.Source { return s.sources[name] }, s.log.With("component", "localintake"))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		core.WaitFor("localintake", s.log, func() error { return in.Run(s.shutdown, intake) })
	}()

	for _, ds := range s.settings.DirectorySources {
		s.startDirectorySource(ds, intake)
	}

	for _, ss := range s.settings.SftpSources {
		if err := s.startSftpSource(ss); err != nil {
			return err
		}
	}

	return nil
}

func (s *Supervisor) startDirectorySource(ds conf.DirectorySource, intake chan<- localintake.Record) {
	w := dirwatch.New(ds.Name, ds.Directory, ds.Events, intake, s.log.With("component", "dirwatch"))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		core.WaitFor("dirwatch:"+ds.Name, s.log, func() error { return w.Watch(s.shutdown) })
	}()

	filter, err := buildFilter(&ds.Filter)
	if err != nil {
		s.log.Error("invalid directory source filter, defaulting to match-all", "source", ds.Name, "error", err)
		filter = core.AllFilter{}
	}

	sweeper := dirsweep.New(dirsweep.Source{
		Name:          ds.Name,
		Directory:     ds.Directory,
		Recurse:       ds.Recursive,
		Filter:        filter,
		SweepInterval: time.Duration(s.settings.ScanInterval) * time.Millisecond,
	}, intake, s.log.With("component", "dirsweep"))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		core.WaitFor("dirsweep:"+ds.Name, s.log, func() error { return sweeper.Run(s.shutdown) })
	}()
}

func (s *Supervisor) startSftpSource(ss conf.SftpSource) error {
	re, err := regexp.Compile(ss.Regex)
	if err != nil {
		return fmt.Errorf("sftp source %s: invalid regex %q: %w", ss.Name, ss.Regex, err)
	}

	connConfig := sftpconn.Config{
		Address:        ss.Address,
		Username:       ss.Username,
		Password:       ss.Password,
		KeyFile:        ss.KeyFile,
		KnownHostsFile: ss.KnownHosts,
		Compress:       ss.Compress,
	}

	scanInterval := time.Duration(ss.ScanInterval) * time.Millisecond
	if scanInterval <= 0 {
		scanInterval = time.Duration(s.settings.ScanInterval) * time.Millisecond
	}

	scanner := sftpscanner.New(sftpscanner.Source{
		Name:         ss.Name,
		Directory:    ss.Directory,
		Regex:        re,
		Recurse:      ss.Recurse,
		Deduplicate:  ss.Deduplicate,
		Remove:       ss.Remove,
		ScanInterval: scanInterval,
	}, connConfig, s.cat, s.brk, s.metrics, s.log.With("component", "sftpscanner"))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		core.WaitFor("sftpscanner:"+ss.Name, s.log, func() error { return scanner.Run(s.shutdown) })
	}()

	threadCount := ss.ThreadCount
	if threadCount <= 0 {
		threadCount = 1
	}

	dedup := sftpdownloader.Deduplication{Enabled: ss.Deduplicate}
	if ss.Deduplication != nil {
		dedup.Hash = ss.Deduplication.Hash
		dedup.Size = ss.Deduplication.Size
		dedup.Modified = ss.Deduplication.Modified
	}

	for i := 0; i < threadCount; i++ {
		if err := s.startDownloaderWorker(ss, connConfig, dedup); err != nil {
			return err
		}
	}

	return nil
}

func (s *Supervisor) startDownloaderWorker(ss conf.SftpSource, connConfig sftpconn.Config, dedup sftpdownloader.Deduplication) error {
	session, err := connConfig.ConnectLoop(s.shutdown.Stop)
	if err != nil {
		return fmt.Errorf("sftp source %s: initial connect: %w", ss.Name, err)
	}

	cmds, err := s.brk.ConsumeSource(s.shutdown.Ctx, ss.Name)
	if err != nil {
		return fmt.Errorf("sftp source %s: consume: %w", ss.Name, err)
	}

	worker := sftpdownloader.NewWorker(ss.Name, session, connConfig, s.store, s.cat, s.metrics, dedup, s.log.With("component", "sftpdownloader"))

	events := make(chan core.FileEvent, 16)
	source := s.sources[ss.Name]
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for event := range events {
			source.Events <- event
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(events)
		core.WaitFor("sftpdownloader:"+ss.Name, s.log, func() error {
			return worker.Run(s.shutdown, cmds, events)
		})
	}()

	return nil
}
