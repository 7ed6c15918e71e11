package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-cox/tempoledger/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "config.yaml"))
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "tempoledger init")
}

func TestInitWritesDefaults(t *testing.T) {
	s := newTestStore(t)

	cfg, created, err := s.Init()
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, cfg.Schedule.DailyHours.Equal(decimal.NewFromInt(8)))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, created, err = s.Init()
	require.NoError(t, err)
	assert.False(t, created, "second init keeps the existing document")
}

func TestLoadParsesDocument(t *testing.T) {
	s := newTestStore(t)
	doc := `
user:
  email: dev@example.com
  role: developer
schedule:
  daily_hours: 7.5
  country_code: us
  state: ca
  pto_days: ["2026-03-10"]
overhead:
  current_pi:
    pi_identifier: PI.26.2.APR.17
    distribution: custom
    stories:
      - issue_key: OVERHEAD-1
        summary: Ceremonies
        hours: 5
      - issue_key: OVERHEAD-2
        hours: 3
  pto_story_key: OVERHEAD-9
`
	require.NoError(t, os.WriteFile(s.Path(), []byte(doc), 0o600))

	cfg, err := s.Load()
	require.NoError(t, err)
	assert.True(t, cfg.Schedule.DailyHours.Equal(decimal.RequireFromString("7.5")))
	assert.Equal(t, 27000, cfg.Schedule.DailySeconds())
	assert.Equal(t, "US", cfg.Schedule.CountryCode)
	assert.Equal(t, "CA", cfg.Schedule.State)
	assert.Equal(t, DefaultProjectPrefix, cfg.Overhead.ProjectPrefix)
	assert.True(t, cfg.Overhead.Configured())
	assert.Equal(t, model.DistributeCustom, cfg.Overhead.CurrentPI.Distribution)
	assert.Equal(t, 5.0, cfg.Overhead.CurrentPI.Stories[0].Weight())
}

func TestValidateRejectsBadDocuments(t *testing.T) {
	weight := -1.0
	cases := map[string]func(c *Config){
		"bad role":           func(c *Config) { c.User.Role = "manager" },
		"negative hours":     func(c *Config) { c.Schedule.DailyHours = decimal.NewFromInt(-1) },
		"too many hours":     func(c *Config) { c.Schedule.DailyHours = decimal.NewFromInt(25) },
		"invalid pto date":   func(c *Config) { c.Schedule.PTODays = []string{"2026-02-30"} },
		"letters in holiday": func(c *Config) { c.Schedule.ExtraHolidays = []string{"2026-0a-01"} },
		"bad sync time":      func(c *Config) { c.Daemon.SyncTime = "25:99" },
		"custom without hours": func(c *Config) {
			c.Overhead.CurrentPI = &PIConfig{
				Identifier:   "PI.26.1.JAN.16",
				Distribution: model.DistributeCustom,
				Stories:      []model.Target{{Key: "OVERHEAD-1"}},
			}
		},
		"custom negative hours": func(c *Config) {
			c.Overhead.CurrentPI = &PIConfig{
				Identifier:   "PI.26.1.JAN.16",
				Distribution: model.DistributeCustom,
				Stories:      []model.Target{{Key: "OVERHEAD-1", Hours: &weight}},
			}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestUpdatePersistsAndSorts(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Init()
	require.NoError(t, err)

	sched, err := s.UpdateSchedule(func(sc *ScheduleConfig) error {
		sc.PTODays = append(sc.PTODays, "2026-03-11", "2026-03-10")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-10", "2026-03-11"}, sched.PTODays)

	reloaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-10", "2026-03-11"}, reloaded.Schedule.PTODays)
}

func TestUpdateFailureLeavesFileUntouched(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Init()
	require.NoError(t, err)
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	_, err = s.Update(func(c *Config) error {
		c.Schedule.PTODays = append(c.Schedule.PTODays, "not-a-date")
		return nil
	})
	require.Error(t, err)

	_, err = s.Update(func(c *Config) error {
		c.Schedule.PTODays = append(c.Schedule.PTODays, "2026-01-05")
		return errors.New("abort")
	})
	require.Error(t, err)

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestLoadSecretsFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TEMPO_API_TOKEN=from-file\n"), 0o600))
	t.Setenv(EnvJiraToken, "from-env")
	t.Setenv(EnvTempoToken, "")
	os.Unsetenv(EnvTempoToken)

	secrets := LoadSecrets(dir)
	assert.Equal(t, "from-env", secrets.JiraAPIToken)
	assert.Equal(t, "from-file", secrets.TempoAPIToken)
}

func TestValidateDate(t *testing.T) {
	assert.NoError(t, ValidateDate("2026-02-28"))
	assert.Error(t, ValidateDate("2026-02-29"))
	assert.Error(t, ValidateDate("2026/02/01"))
	assert.Error(t, ValidateDate(""))
}
