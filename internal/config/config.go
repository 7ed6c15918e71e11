// Package config holds the tempoledger configuration document and the store
// that every schedule and overhead mutation goes through.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bryan-cox/tempoledger/internal/model"
)

// Role selects the sync strategy for the user.
type Role string

const (
	RoleDeveloper    Role = "developer"
	RoleProductOwner Role = "product_owner"
	RoleSales        Role = "sales"
)

// AutoLogsTickets reports whether the role distributes hours across tickets
// instead of booking configured manual activities.
func (r Role) AutoLogsTickets() bool {
	return r == RoleDeveloper
}

// Default values applied by Normalize.
const (
	DefaultCountryCode   = "US"
	DefaultProjectPrefix = "OVERHEAD-"
	DefaultSyncTime      = "18:00"
	DefaultListen        = "127.0.0.1:8765"
	DefaultIssueKey      = "GENERAL-001"
)

// DefaultDailyHours is the standard working day length.
var DefaultDailyHours = decimal.NewFromInt(8)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// UserConfig identifies the person whose time is booked.
type UserConfig struct {
	Email string `yaml:"email"`
	Role  Role   `yaml:"role"`
}

// JiraConfig locates the ticket-tracking system. The API token comes from the environment.
type JiraConfig struct {
	// URL is the site host, e.g. "example.atlassian.net".
	URL   string `yaml:"url"`
	Email string `yaml:"email"`
}

// TempoConfig configures the time-booking system. The API token comes from the environment.
type TempoConfig struct {
	// AccountID overrides the account resolved from the ticket system.
	AccountID string `yaml:"account_id,omitempty"`
}

// ScheduleConfig describes the working calendar and the user-managed overrides.
type ScheduleConfig struct {
	DailyHours    decimal.Decimal `yaml:"daily_hours"`
	CountryCode   string          `yaml:"country_code"`
	State         string          `yaml:"state,omitempty"`
	PTODays       []string        `yaml:"pto_days"`
	ExtraHolidays []string        `yaml:"extra_holidays"`
	// WorkingDays are compensatory working day overrides.
	WorkingDays []string `yaml:"working_days"`
}

// DailySeconds returns the daily target in whole seconds.
func (s ScheduleConfig) DailySeconds() int {
	return int(s.DailyHours.Mul(decimal.NewFromInt(model.SecondsPerHour)).IntPart())
}

// OrganizationConfig holds organization-wide settings.
type OrganizationConfig struct {
	HolidaysURL     string `yaml:"holidays_url,omitempty"`
	DefaultIssueKey string `yaml:"default_issue_key,omitempty"`
}

// PIConfig is the overhead configuration of one program increment.
type PIConfig struct {
	Identifier string `yaml:"pi_identifier"`
	// EndDate overrides the end date derived from Identifier.
	EndDate      string                 `yaml:"pi_end_date,omitempty"`
	Stories      []model.Target         `yaml:"stories"`
	Distribution model.DistributionMode `yaml:"distribution"`
}

// OverheadConfig describes non-project time categories.
type OverheadConfig struct {
	CurrentPI        *PIConfig `yaml:"current_pi,omitempty"`
	PlanningPI       *PIConfig `yaml:"planning_pi,omitempty"`
	PTOStoryKey      string    `yaml:"pto_story_key,omitempty"`
	FallbackIssueKey string    `yaml:"fallback_issue_key,omitempty"`
	ProjectPrefix    string    `yaml:"project_prefix,omitempty"`
	// LastPICheck is the date the current PI was last compared with the ticket system.
	LastPICheck string `yaml:"last_pi_check,omitempty"`
}

// Configured reports whether overhead stories are set for the current PI.
func (o OverheadConfig) Configured() bool {
	return o.CurrentPI != nil && o.CurrentPI.Identifier != "" && len(o.CurrentPI.Stories) > 0
}

// ManualActivity is a fixed daily booking for roles that do not auto-log tickets.
type ManualActivity struct {
	Activity string          `yaml:"activity"`
	Hours    decimal.Decimal `yaml:"hours"`
}

// TelegramConfig enables the Telegram channel. The bot token comes from the environment.
type TelegramConfig struct {
	ChatID int64 `yaml:"chat_id,omitempty"`
}

// NotificationConfig selects notification channels.
type NotificationConfig struct {
	NotifyOnShortfall *bool          `yaml:"notify_on_shortfall,omitempty"`
	Desktop           bool           `yaml:"desktop"`
	WebhookURL        string         `yaml:"webhook_url,omitempty"`
	Telegram          TelegramConfig `yaml:"telegram,omitempty"`
}

// ShortfallEnabled defaults to true when unset.
func (n NotificationConfig) ShortfallEnabled() bool {
	return n.NotifyOnShortfall == nil || *n.NotifyOnShortfall
}

// DaemonConfig configures the long-lived background variant.
type DaemonConfig struct {
	// SyncTime is the local HH:MM at which the daily sync runs on weekdays.
	SyncTime  string `yaml:"sync_time"`
	Listen    string `yaml:"listen"`
	HistoryDB string `yaml:"history_db,omitempty"`
}

// Config is the top-level configuration document.
type Config struct {
	User             UserConfig         `yaml:"user"`
	Jira             JiraConfig         `yaml:"jira"`
	Tempo            TempoConfig        `yaml:"tempo"`
	Schedule         ScheduleConfig     `yaml:"schedule"`
	Organization     OrganizationConfig `yaml:"organization"`
	Overhead         OverheadConfig     `yaml:"overhead"`
	ManualActivities []ManualActivity   `yaml:"manual_activities,omitempty"`
	Notifications    NotificationConfig `yaml:"notifications"`
	Daemon           DaemonConfig       `yaml:"daemon"`
}

// Default returns an in-memory default configuration.
func Default() *Config {
	cfg := &Config{
		User: UserConfig{Role: RoleDeveloper},
		Schedule: ScheduleConfig{
			DailyHours:  DefaultDailyHours,
			CountryCode: DefaultCountryCode,
		},
		Notifications: NotificationConfig{Desktop: true},
	}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing values so that partially-filled documents behave.
func (c *Config) Normalize() {
	if c.User.Role == "" {
		c.User.Role = RoleDeveloper
	}
	if c.Schedule.DailyHours.IsZero() {
		c.Schedule.DailyHours = DefaultDailyHours
	}
	if c.Schedule.CountryCode == "" {
		c.Schedule.CountryCode = DefaultCountryCode
	}
	c.Schedule.CountryCode = strings.ToUpper(c.Schedule.CountryCode)
	c.Schedule.State = strings.ToUpper(c.Schedule.State)
	if c.Schedule.PTODays == nil {
		c.Schedule.PTODays = []string{}
	}
	if c.Schedule.ExtraHolidays == nil {
		c.Schedule.ExtraHolidays = []string{}
	}
	if c.Schedule.WorkingDays == nil {
		c.Schedule.WorkingDays = []string{}
	}
	if c.Organization.DefaultIssueKey == "" {
		c.Organization.DefaultIssueKey = DefaultIssueKey
	}
	if c.Overhead.ProjectPrefix == "" {
		c.Overhead.ProjectPrefix = DefaultProjectPrefix
	}
	for _, pi := range []*PIConfig{c.Overhead.CurrentPI, c.Overhead.PlanningPI} {
		if pi != nil && pi.Distribution == "" {
			pi.Distribution = model.DistributeEqual
		}
	}
	if c.Daemon.SyncTime == "" {
		c.Daemon.SyncTime = DefaultSyncTime
	}
	if c.Daemon.Listen == "" {
		c.Daemon.Listen = DefaultListen
	}
}

var dateChars = regexp.MustCompile(`^[\d-]+$`)

// ValidateDate checks that s contains only digits and dashes and is a real YYYY-MM-DD date.
func ValidateDate(s string) error {
	if !dateChars.MatchString(s) {
		return fmt.Errorf("invalid characters in %q (only digits and '-' allowed)", s)
	}
	if _, err := model.ParseDate(s); err != nil {
		return err
	}
	return nil
}

// Validate reports the first problem found in the document.
func (c *Config) Validate() error {
	switch c.User.Role {
	case RoleDeveloper, RoleProductOwner, RoleSales:
	default:
		return fmt.Errorf("%w: unknown role %q (use developer, product_owner or sales)", ErrInvalid, c.User.Role)
	}
	if !c.Schedule.DailyHours.IsPositive() || c.Schedule.DailyHours.GreaterThan(decimal.NewFromInt(24)) {
		return fmt.Errorf("%w: schedule.daily_hours must be within (0, 24], got %s", ErrInvalid, c.Schedule.DailyHours)
	}
	sets := map[string][]string{
		"schedule.pto_days":       c.Schedule.PTODays,
		"schedule.extra_holidays": c.Schedule.ExtraHolidays,
		"schedule.working_days":   c.Schedule.WorkingDays,
	}
	for name, dates := range sets {
		for _, d := range dates {
			if err := ValidateDate(d); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
			}
		}
	}
	for _, pi := range []*PIConfig{c.Overhead.CurrentPI, c.Overhead.PlanningPI} {
		if pi == nil {
			continue
		}
		if err := pi.validate(); err != nil {
			return fmt.Errorf("%w: overhead %s: %v", ErrInvalid, pi.Identifier, err)
		}
	}
	for _, a := range c.ManualActivities {
		if a.Hours.IsNegative() {
			return fmt.Errorf("%w: manual activity %q has negative hours", ErrInvalid, a.Activity)
		}
	}
	if c.Daemon.SyncTime != "" {
		if _, err := time.Parse("15:04", c.Daemon.SyncTime); err != nil {
			return fmt.Errorf("%w: daemon.sync_time %q, use HH:MM", ErrInvalid, c.Daemon.SyncTime)
		}
	}
	return nil
}

func (p *PIConfig) validate() error {
	if !p.Distribution.Valid() {
		return fmt.Errorf("unknown distribution %q", p.Distribution)
	}
	if p.EndDate != "" {
		if err := ValidateDate(p.EndDate); err != nil {
			return err
		}
	}
	for _, s := range p.Stories {
		if s.Key == "" {
			return errors.New("story without issue_key")
		}
		if p.Distribution != model.DistributeCustom {
			continue
		}
		if s.Hours == nil || *s.Hours < 0 {
			return fmt.Errorf("custom distribution requires non-negative hours on %s", s.Key)
		}
	}
	return nil
}
