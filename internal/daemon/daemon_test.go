package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-cox/tempoledger/internal/history"
	"github.com/bryan-cox/tempoledger/internal/model"
	"github.com/bryan-cox/tempoledger/internal/notify"
)

type fakeEngine struct {
	mu       sync.Mutex
	release  chan struct{}
	entered  chan struct{}
	triggers []string
	submits  int
}

func newFakeEngine(block bool) *fakeEngine {
	f := &fakeEngine{entered: make(chan struct{}, 4)}
	if block {
		f.release = make(chan struct{})
	}
	return f
}

func (f *fakeEngine) ReconcileDay(ctx context.Context, _ time.Time) (model.DaySummary, error) {
	f.mu.Lock()
	f.triggers = append(f.triggers, history.TriggerFrom(ctx))
	f.mu.Unlock()
	f.entered <- struct{}{}
	if f.release != nil {
		<-f.release
	}
	return model.DaySummary{Status: model.DayComplete}, nil
}

func (f *fakeEngine) SubmitMonth(context.Context) (model.SubmissionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	return model.SubmissionResult{}, nil
}

func (f *fakeEngine) recorded() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.triggers...), f.submits
}

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, msg.Title)
	return nil
}

type fakeRuns map[string]*history.Run

func (f fakeRuns) Get(id string) (*history.Run, error) {
	for _, run := range f {
		if run.ID == id {
			return run, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", history.ErrNotFound, id)
}

func (f fakeRuns) Last(kind string) (*history.Run, error) {
	return f[kind], nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newDaemon(t *testing.T, opts Options) *Daemon {
	t.Helper()
	if opts.SyncTime == "" {
		opts.SyncTime = "18:00"
	}
	d, err := New(opts)
	require.NoError(t, err)
	return d
}

func TestCronSpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "18:00", want: "0 18 * * *"},
		{in: "07:45", want: "45 7 * * *"},
		{in: " 9:05 ", want: "5 9 * * *"},
		{in: "24:00", wantErr: true},
		{in: "18:60", wantErr: true},
		{in: "1800", wantErr: true},
		{in: "ab:cd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CronSpec(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRequiresEngine(t *testing.T) {
	_, err := New(Options{SyncTime: "18:00"})
	require.Error(t, err)
}

func TestNextSyncSkipsWeekend(t *testing.T) {
	friday := time.Date(2026, time.March, 13, 19, 0, 0, 0, time.UTC)
	d := newDaemon(t, Options{Engine: newFakeEngine(false), Clock: fixedClock(friday)})
	assert.Equal(t, time.Date(2026, time.March, 16, 18, 0, 0, 0, time.UTC), d.NextSync())

	morning := time.Date(2026, time.March, 11, 9, 0, 0, 0, time.UTC)
	d = newDaemon(t, Options{Engine: newFakeEngine(false), Clock: fixedClock(morning)})
	assert.Equal(t, time.Date(2026, time.March, 11, 18, 0, 0, 0, time.UTC), d.NextSync())
}

func TestSecondSyncIsRejectedWhileBusy(t *testing.T) {
	engine := newFakeEngine(true)
	notes := &recordingNotifier{}
	d := newDaemon(t, Options{Engine: engine, Notifier: notes})

	require.NoError(t, d.StartSync(history.TriggerAPI))
	<-engine.entered
	assert.True(t, d.Busy())

	_, err := d.TriggerSync(context.Background(), history.TriggerCron)
	require.ErrorIs(t, err, ErrBusy)
	require.ErrorIs(t, d.StartSync(history.TriggerAPI), ErrBusy)
	assert.Equal(t, []string{"Sync Already Running", "Sync Already Running"}, notes.titles)

	close(engine.release)
	d.Wait()
	assert.False(t, d.Busy())

	triggers, _ := engine.recorded()
	assert.Equal(t, []string{history.TriggerAPI}, triggers)
}

func TestScheduledRun(t *testing.T) {
	t.Run("weekday syncs then checks submission", func(t *testing.T) {
		engine := newFakeEngine(false)
		wednesday := time.Date(2026, time.March, 11, 18, 0, 0, 0, time.UTC)
		d := newDaemon(t, Options{Engine: engine, Clock: fixedClock(wednesday)})

		d.scheduled(context.Background())

		triggers, submits := engine.recorded()
		assert.Equal(t, []string{history.TriggerCron}, triggers)
		assert.Equal(t, 1, submits)
		assert.False(t, d.Busy())
	})

	t.Run("weekend only checks submission", func(t *testing.T) {
		engine := newFakeEngine(false)
		saturday := time.Date(2026, time.October, 31, 18, 0, 0, 0, time.UTC)
		d := newDaemon(t, Options{Engine: engine, Clock: fixedClock(saturday)})

		d.scheduled(context.Background())

		triggers, submits := engine.recorded()
		assert.Empty(t, triggers)
		assert.Equal(t, 1, submits)
	})
}

func TestRouter(t *testing.T) {
	engine := newFakeEngine(true)
	runs := fakeRuns{history.KindSync: {ID: "run-1", Kind: history.KindSync, Status: history.StatusOK}}
	d := newDaemon(t, Options{Engine: engine, Runs: runs})
	srv := httptest.NewServer(NewRouter(d))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/sync", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	<-engine.entered

	resp, err = http.Post(srv.URL+"/sync", "application/json", nil)
	require.NoError(t, err)
	var busy ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&busy))
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "sync already running, try again", busy.Error)

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.True(t, status.Busy)
	assert.Equal(t, "18:00", status.SyncTime)
	require.NotNil(t, status.LastSync)
	assert.Equal(t, "run-1", status.LastSync.ID)
	assert.Nil(t, status.LastSubmit)

	resp, err = http.Get(srv.URL + "/runs/run-1")
	require.NoError(t, err)
	var run history.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, history.KindSync, run.Kind)

	resp, err = http.Get(srv.URL + "/runs/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	close(engine.release)
	d.Wait()

	resp, err = http.Post(srv.URL+"/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	select {
	case <-d.stop:
	default:
		t.Fatal("stop channel not closed")
	}
}

func TestStopFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.stop")
	d := newDaemon(t, Options{Engine: newFakeEngine(false), StopFile: path})

	assert.False(t, d.consumeStopFile())
	require.NoError(t, WriteStopFile(path))
	assert.True(t, d.consumeStopFile())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRunReturnsOnStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.stop")
	// A stale stop file from an earlier run is ignored.
	require.NoError(t, WriteStopFile(path))
	d := newDaemon(t, Options{Engine: newFakeEngine(false), StopFile: path})

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	d.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRunReturnsOnStopFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.stop")
	d := newDaemon(t, Options{Engine: newFakeEngine(false), StopFile: path})

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	// Give Run time to clear stale files before the stop request lands.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, WriteStopFile(path))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
