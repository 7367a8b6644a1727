/*
Package config loads process configuration from the environment.

PURPOSE:
  Every setting has an environment variable and a default. A .env file in
  the working directory is read first when present; variables already set
  in the environment win over it.

VARIABLES:
  PORT            HTTP port (8080)
  DB_PATH         SQLite path, ":memory:" for a throwaway store (crew.db)
  RULES_FILE      YAML/JSON rule file; empty keeps rules in the database
  WORK_START      Work start time, HH:MM (09:00)
  TIMEZONE        IANA zone used for "today" and clock-in times (Asia/Taipei)
  HOLIDAYS        Comma-separated YYYY-MM-DD company holidays
  LOG_LEVEL       DEBUG, INFO, WARN, ERROR (INFO)
  LOG_FORMAT      text or json (text)
  SWEEP_ENABLED   Run the attendance gap sweeper (true)
  SWEEP_INTERVAL  Sweeper interval (1h)
  CORS_ORIGINS    Comma-separated allowed origins
  MATCHER         Leaderboard matching: default, folded or id (default)

SEE ALSO:
  - cmd/server/main.go: flags override PORT and DB_PATH
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/warp/crew-engine/accumulation"
	"github.com/warp/crew-engine/generic"
)

type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"crew.db"`

	RulesFile string   `env:"RULES_FILE"`
	WorkStart string   `env:"WORK_START" envDefault:"09:00"`
	Timezone  string   `env:"TIMEZONE" envDefault:"Asia/Taipei"`
	Holidays  []string `env:"HOLIDAYS" envSeparator:","`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	SweepEnabled  bool          `env:"SWEEP_ENABLED" envDefault:"true"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	Matcher string `env:"MATCHER" envDefault:"default"`
}

// Load reads the optional dotenv files, then the environment. With no
// files given it looks for ".env".
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields that are parsed again at startup.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if _, err := generic.ParseClock(c.WorkStart); err != nil {
		return fmt.Errorf("WORK_START: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	if _, err := c.HolidayCalendar(); err != nil {
		return err
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if _, err := accumulation.MatcherByName(c.Matcher); err != nil {
		return fmt.Errorf("MATCHER: %w", err)
	}
	return nil
}

// LeaderboardMatcher returns the configured matcher. Call after Validate.
func (c Config) LeaderboardMatcher() accumulation.Matcher {
	m, err := accumulation.MatcherByName(c.Matcher)
	if err != nil {
		return accumulation.DefaultMatcher()
	}
	return m
}

// Location returns the configured zone. Call after Validate.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WorkStartClock returns the parsed work start. Call after Validate.
func (c Config) WorkStartClock() generic.ClockTime {
	ct, err := generic.ParseClock(c.WorkStart)
	if err != nil {
		return generic.ClockTime{Hour: 9}
	}
	return ct
}

// HolidayCalendar builds the holiday set from HOLIDAYS.
func (c Config) HolidayCalendar() (generic.HolidaySet, error) {
	days := make([]generic.TimePoint, 0, len(c.Holidays))
	for _, s := range c.Holidays {
		if s == "" {
			continue
		}
		d, err := generic.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("HOLIDAYS: %w", err)
		}
		days = append(days, d)
	}
	return generic.NewHolidaySet(days...), nil
}
