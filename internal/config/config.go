package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Environment overrides (optionally read from .env files)
// are applied on top of the YAML values by ApplyEnv.

const (
	DefaultTimezone   = "Europe/Paris"
	DefaultListen     = "127.0.0.1:8080"
	DefaultWebRoot    = "/api/v1"
	DefaultRefresh    = "*/15 * * * *"
	DefaultCandidates = 10

	TeacherModeMock     = "mock"
	TeacherModeCalendar = "calendar"
)

// DefaultMultipliers is the retry multiplier sequence applied to a course's
// required duration while sampling candidates.
var DefaultMultipliers = []float64{1.3, 1.2, 1.1, 1.0}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// SchedulerConfig tunes candidate generation.
type SchedulerConfig struct {
	// Candidates is the minimum number of distinct candidates sampled before
	// ranking and truncation.
	Candidates int `yaml:"candidates" json:"candidates"`
	// Multipliers is applied in order to the course duration on each retry.
	Multipliers []float64 `yaml:"multipliers" json:"multipliers"`
	// Strict turns dropped-candidate invariant violations into request errors.
	Strict bool `yaml:"strict" json:"strict"`
	// Seed fixes the random source. Zero means time-based.
	Seed int64 `yaml:"seed" json:"seed"`
}

// InviteConfig holds the identities used when generating invites.
type InviteConfig struct {
	Organizer     string   `yaml:"organizer" json:"organizer"`
	OrganizerName string   `yaml:"organizer_name" json:"organizer_name"`
	Participants  []string `yaml:"participants" json:"participants"`
	Location      string   `yaml:"location" json:"location"`
}

// TeacherEntry describes a teacher whose availability comes from an ICS feed.
type TeacherEntry struct {
	ID          int    `yaml:"id" json:"id"`
	Email       string `yaml:"email" json:"email"`
	FirstName   string `yaml:"first_name" json:"first_name"`
	LastName    string `yaml:"last_name" json:"last_name"`
	Timezone    string `yaml:"timezone" json:"timezone"`
	CalendarURL string `yaml:"calendar_url" json:"calendar_url"`
}

// TeachersConfig selects where teachers come from.
type TeachersConfig struct {
	// Mode is "mock" (JSON availability files) or "calendar" (ICS feeds).
	Mode string `yaml:"mode" json:"mode"`
	// MockGlob is the file pattern for mock teacher records.
	MockGlob string `yaml:"mock_glob" json:"mock_glob"`
	// CacheTTL bounds how long a looked-up teacher is reused.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	// CacheDir stores fetched ICS bodies and their HTTP cache metadata.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	// Entries lists calendar-backed teachers.
	Entries []TeacherEntry `yaml:"entries" json:"entries"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// WebRoot prefixes the API routes (e.g. "/api/v1").
	WebRoot string `yaml:"web_root" json:"web_root"`

	// APIKey, if set, must be sent in the "api-key" header.
	APIKey string `yaml:"api_key" json:"api_key"`

	// Env is dev, staging, prod or mock.
	Env string `yaml:"env" json:"env"`

	// Timezone is the fallback IANA zone for requests without one.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic teacher directory refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays bounds calendar lookups when a request has no end time.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	Log       LogConfig       `yaml:"log" json:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Invite    InviteConfig    `yaml:"invite" json:"invite"`
	Teachers  TeachersConfig  `yaml:"teachers" json:"teachers"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      DefaultListen,
		WebRoot:     DefaultWebRoot,
		Env:         "dev",
		Timezone:    DefaultTimezone,
		RefreshCron: DefaultRefresh,
		HorizonDays: 365,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Scheduler: SchedulerConfig{
			Candidates:  DefaultCandidates,
			Multipliers: append([]float64(nil), DefaultMultipliers...),
		},
		Invite: InviteConfig{
			Organizer:     "scheduler@example.com",
			OrganizerName: "Scheduler",
			Participants:  []string{"scheduler@example.com"},
		},
		Teachers: TeachersConfig{
			Mode:     TeacherModeMock,
			MockGlob: "testdata/teachers/teacher_*.json",
			CacheTTL: 5 * time.Second,
			CacheDir: "./var/ics-cache",
			Entries:  []TeacherEntry{},
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.WebRoot == "" {
		c.WebRoot = DefaultWebRoot
	}
	c.WebRoot = "/" + strings.Trim(c.WebRoot, "/")
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = DefaultRefresh
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 365
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	switch c.Log.Format {
	case "json", "console":
		// ok
	default:
		c.Log.Format = "json"
	}
	if c.Scheduler.Candidates <= 0 {
		c.Scheduler.Candidates = DefaultCandidates
	}
	if len(c.Scheduler.Multipliers) == 0 {
		c.Scheduler.Multipliers = append([]float64(nil), DefaultMultipliers...)
	}
	// Unknown mode falls back to mock.
	switch c.Teachers.Mode {
	case TeacherModeMock, TeacherModeCalendar:
	default:
		c.Teachers.Mode = TeacherModeMock
	}
	if c.Teachers.CacheTTL <= 0 {
		c.Teachers.CacheTTL = 5 * time.Second
	}
	if c.Teachers.CacheDir == "" {
		c.Teachers.CacheDir = "./var/ics-cache"
	}
	if c.Teachers.Entries == nil {
		c.Teachers.Entries = []TeacherEntry{}
	}
	if c.Invite.Participants == nil {
		c.Invite.Participants = []string{}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// LoadDotEnv reads the given .env files into the process environment.
// Missing files are skipped; variables already set are not overwritten.
func LoadDotEnv(files ...string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			continue
		}
		existing = append(existing, f)
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overrides fields from environment variables. The names follow
// the deployment .env files.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup("ENV"); ok && v != "" {
		c.Env = v
		if v == TeacherModeMock {
			c.Teachers.Mode = TeacherModeMock
		}
	}
	if v, ok := lookup("WEB_PORT"); ok && v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			host := c.Listen
			if i := strings.LastIndex(host, ":"); i >= 0 {
				host = host[:i]
			}
			c.Listen = host + ":" + v
		}
	}
	if v, ok := lookup("WEB_ROOT"); ok && v != "" {
		c.WebRoot = v
	}
	if v, ok := lookup("REST_API_KEY"); ok {
		c.APIKey = v
	}
	if v, ok := lookup("EMAIL_USER"); ok && v != "" {
		c.Invite.Organizer = v
	}
	if v, ok := lookup("EMAIL_USER_NAME"); ok && v != "" {
		c.Invite.OrganizerName = v
	}
	if v, ok := lookup("SCH_USER"); ok && v != "" {
		c.Invite.Participants = splitList(v)
	}
	if v, ok := lookup("TCSCHED_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("TCSCHED_TEACHERS"); ok && v != "" {
		c.Teachers.MockGlob = v
	}
	c.Normalize()
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".tcsched-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
