// Package daemon runs the scheduled sync in the background and exposes a
// small local control API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	fileatomic "github.com/natefinch/atomic"
	"github.com/robfig/cron/v3"

	"github.com/bryan-cox/tempoledger/internal/history"
	"github.com/bryan-cox/tempoledger/internal/model"
	"github.com/bryan-cox/tempoledger/internal/notify"
)

// ErrBusy is returned when a sync is triggered while another one runs.
var ErrBusy = errors.New("sync already running, try again")

// StopPollInterval is how often the stop file is checked.
const StopPollInterval = time.Second

// Engine is the reconciliation capability the daemon drives.
type Engine interface {
	ReconcileDay(ctx context.Context, date time.Time) (model.DaySummary, error)
	SubmitMonth(ctx context.Context) (model.SubmissionResult, error)
}

// RunLog is the read side of the run journal.
type RunLog interface {
	Get(id string) (*history.Run, error)
	Last(kind string) (*history.Run, error)
}

// Options configure a Daemon. Notifier, Runs, StopFile and Clock are optional.
type Options struct {
	Engine   Engine
	Notifier notify.Notifier
	Runs     RunLog
	// SyncTime is the HH:MM of the weekday sync.
	SyncTime string
	Listen   string
	StopFile string
	Clock    func() time.Time
}

// Daemon schedules syncs and guards against overlapping runs.
type Daemon struct {
	engine   Engine
	notifier notify.Notifier
	runs     RunLog
	syncTime string
	spec     string
	schedule cron.Schedule
	listen   string
	stopFile string
	now      func() time.Time
	started  time.Time

	ctx      context.Context
	busy     atomic.Bool
	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// CronSpec converts HH:MM into a daily cron spec.
func CronSpec(syncTime string) (string, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(syncTime), ":")
	if !ok {
		return "", fmt.Errorf("invalid sync time %q, use HH:MM", syncTime)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid sync time %q: hour out of range", syncTime)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid sync time %q: minute out of range", syncTime)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// New validates opts.
func New(opts Options) (*Daemon, error) {
	if opts.Engine == nil {
		return nil, errors.New("daemon: engine is required")
	}
	spec, err := CronSpec(opts.SyncTime)
	if err != nil {
		return nil, err
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing cron spec %q: %w", spec, err)
	}
	d := &Daemon{
		engine:   opts.Engine,
		notifier: opts.Notifier,
		runs:     opts.Runs,
		syncTime: opts.SyncTime,
		spec:     spec,
		schedule: schedule,
		listen:   opts.Listen,
		stopFile: opts.StopFile,
		now:      opts.Clock,
		ctx:      context.Background(),
		stop:     make(chan struct{}),
	}
	if d.notifier == nil {
		d.notifier = notify.Nop{}
	}
	if d.now == nil {
		d.now = time.Now
	}
	d.started = d.now()
	return d, nil
}

// Busy reports whether a sync is in flight.
func (d *Daemon) Busy() bool {
	return d.busy.Load()
}

// NextSync returns the next weekday run after now.
func (d *Daemon) NextSync() time.Time {
	next := d.schedule.Next(d.now())
	for !isWeekday(next) {
		next = d.schedule.Next(next)
	}
	return next
}

func isWeekday(t time.Time) bool {
	return t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
}

func (d *Daemon) acquire() bool {
	if d.busy.CompareAndSwap(false, true) {
		return true
	}
	slog.Warn("sync rejected, another sync is running")
	if err := d.notifier.Notify(d.ctx, notify.SyncBusy()); err != nil {
		slog.Warn("notification failed", "error", err)
	}
	return false
}

// TriggerSync runs today's sync and waits for it. It returns ErrBusy when
// another sync is in flight.
func (d *Daemon) TriggerSync(ctx context.Context, trigger string) (model.DaySummary, error) {
	if !d.acquire() {
		return model.DaySummary{}, ErrBusy
	}
	defer d.busy.Store(false)
	return d.sync(ctx, trigger)
}

// StartSync starts today's sync in the background. It returns ErrBusy when
// another sync is in flight.
func (d *Daemon) StartSync(trigger string) error {
	if !d.acquire() {
		return ErrBusy
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.busy.Store(false)
		_, _ = d.sync(d.ctx, trigger)
	}()
	return nil
}

func (d *Daemon) sync(ctx context.Context, trigger string) (model.DaySummary, error) {
	ctx = history.WithTrigger(ctx, trigger)
	slog.Info("sync started", "trigger", trigger)
	summary, err := d.engine.ReconcileDay(ctx, time.Time{})
	if err != nil {
		slog.Error("sync failed", "trigger", trigger, "error", err)
		return summary, err
	}
	slog.Info("sync finished", "trigger", trigger, "status", summary.Status)
	return summary, nil
}

// scheduled is the daily cron job: the sync on weekdays, then the month-end
// submission, which skips itself on other days of the month.
func (d *Daemon) scheduled(ctx context.Context) {
	if !d.acquire() {
		slog.Warn("scheduled run skipped", "error", ErrBusy)
		return
	}
	defer d.busy.Store(false)
	if isWeekday(d.now()) {
		_, _ = d.sync(ctx, history.TriggerCron)
	}
	if _, err := d.engine.SubmitMonth(history.WithTrigger(ctx, history.TriggerCron)); err != nil {
		slog.Error("month-end submission failed", "error", err)
	}
}

// Stop asks a running daemon to exit. It is safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// Wait blocks until background syncs started by StartSync have finished.
func (d *Daemon) Wait() {
	d.wg.Wait()
}

// WriteStopFile asks the daemon watching path to exit.
func WriteStopFile(path string) error {
	stamp := time.Now().UTC().Format(time.RFC3339)
	if err := fileatomic.WriteFile(path, strings.NewReader(stamp+"\n")); err != nil {
		return fmt.Errorf("writing stop file %s: %w", path, err)
	}
	return nil
}

// consumeStopFile removes the stop file and reports whether it existed.
func (d *Daemon) consumeStopFile() bool {
	if d.stopFile == "" {
		return false
	}
	if _, err := os.Stat(d.stopFile); err != nil {
		return false
	}
	if err := os.Remove(d.stopFile); err != nil {
		slog.Warn("failed to remove stop file", "path", d.stopFile, "error", err)
	}
	return true
}

// Run schedules the daily job and serves the control API. It blocks until
// ctx is canceled, a signal arrives, Stop is called or the stop file appears.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.ctx = ctx

	// A stop file left behind by an earlier run must not stop this one.
	d.consumeStopFile()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	c := cron.New()
	if _, err := c.AddFunc(d.spec, func() { d.scheduled(ctx) }); err != nil {
		return fmt.Errorf("scheduling sync: %w", err)
	}
	c.Start()

	serverErr := make(chan error, 1)
	var server *http.Server
	if d.listen != "" {
		server = &http.Server{
			Addr:         d.listen,
			Handler:      NewRouter(d),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}
	slog.Info("daemon started", "sync_time", d.syncTime, "listen", d.listen, "next_sync", d.NextSync())

	ticker := time.NewTicker(StopPollInterval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			slog.Info("context canceled, shutting down")
			break loop
		case sig := <-sigCh:
			slog.Info("signal received, shutting down", "signal", sig.String())
			break loop
		case <-d.stop:
			slog.Info("stop requested, shutting down")
			break loop
		case <-ticker.C:
			if d.consumeStopFile() {
				slog.Info("stop file found, shutting down", "path", d.stopFile)
				break loop
			}
		case err := <-serverErr:
			runErr = fmt.Errorf("control API: %w", err)
			break loop
		}
	}

	<-c.Stop().Done()
	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("control API shutdown failed", "error", err)
		}
	}
	cancel()
	d.wg.Wait()
	slog.Info("daemon stopped")
	return runErr
}
