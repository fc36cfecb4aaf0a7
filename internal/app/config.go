package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"codedojo/internal/state"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "CODEDOJO_"

// Config controls runtime behavior for the TUI app.
type Config struct {
	APIBaseURL   string        `env:"API_BASE_URL"`
	DataDir      string        `env:"DATA_DIR"`
	LogPath      string        `env:"LOG_PATH"`
	Debug        bool          `env:"DEBUG"`
	Dev          bool          `env:"DEV"`
	DevHTTP      string        `env:"DEV_HTTP"`
	DemoScenario string        `env:"DEMO"`
	KVBackend    string        `env:"KV_BACKEND"`
	ChallengeDir string        `env:"CHALLENGE_DIR"`
	RequestRate  float64       `env:"REQUEST_RATE"`
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT"`
	Difficulty   string        `env:"DIFFICULTY"`
	Editor       string        `env:"EDITOR"`
	Watch        WatchConfig
	UI           UIConfig
}

type WatchConfig struct {
	Enabled    bool `env:"WATCH"`
	DebounceMS int  `env:"WATCH_DEBOUNCE_MS"`
}

type UIConfig struct {
	ASCIIOnly    bool   `env:"ASCII"`
	StyleVariant string `env:"STYLE_VARIANT"`
	MotionLevel  string `env:"MOTION_LEVEL"`
}

func DefaultConfig() Config {
	return Config{
		APIBaseURL:   "http://127.0.0.1:8000",
		DevHTTP:      "127.0.0.1:17321",
		KVBackend:    state.KVSQLite,
		ChallengeDir: "challenges",
		HTTPTimeout:  30 * time.Second,
		Difficulty:   "beginner",
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMS: 300,
		},
		UI: UIConfig{
			StyleVariant: "night",
			MotionLevel:  "full",
		},
	}
}

// LoadConfig layers .env files and CODEDOJO_* variables over the defaults.
// Missing .env files are not an error.
func LoadConfig(envFiles ...string) (Config, error) {
	cfg := DefaultConfig()
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", f, err)
		}
	}
	if err := parseEnv(&cfg, nil); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// parseEnv applies overrides from environ, or from the process environment
// when environ is nil.
func parseEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.APIBaseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api base url %q", c.APIBaseURL)
	}
	c.APIBaseURL = strings.TrimRight(u.String(), "/")

	switch c.KVBackend {
	case "", state.KVSQLite, state.KVBadger, state.KVMemory:
	default:
		return fmt.Errorf("invalid kv backend %q", c.KVBackend)
	}
	if c.KVBackend == "" {
		c.KVBackend = state.KVSQLite
	}

	if c.RequestRate < 0 {
		return fmt.Errorf("invalid request rate %v", c.RequestRate)
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.Watch.DebounceMS <= 0 {
		c.Watch.DebounceMS = 300
	}

	switch c.UI.StyleVariant {
	case "", "night", "paper", "retro":
	default:
		return fmt.Errorf("invalid ui style variant %q", c.UI.StyleVariant)
	}
	if c.UI.StyleVariant == "" {
		c.UI.StyleVariant = "night"
	}
	switch c.UI.MotionLevel {
	case "", "off", "reduced", "full":
	default:
		return fmt.Errorf("invalid ui motion level %q", c.UI.MotionLevel)
	}
	if c.UI.MotionLevel == "" {
		c.UI.MotionLevel = "full"
	}

	if strings.TrimSpace(c.Difficulty) == "" {
		c.Difficulty = "beginner"
	}
	if c.Editor == "" {
		c.Editor = firstNonEmpty(os.Getenv("VISUAL"), os.Getenv("EDITOR"), "vi")
	}

	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.New("cannot resolve user home directory")
		}
		c.DataDir = filepath.Join(home, ".local", "share", "codedojo")
	}

	return nil
}

// SettingKeys lists the keys that can be persisted with the settings
// command.
func SettingKeys() []string {
	return []string{"difficulty", "style_variant", "motion_level", "ascii"}
}

// ApplySettings overlays persisted settings on fields that still hold their
// default value, so the environment and flags keep precedence. Unknown keys
// and values that would not validate are skipped. It returns the applied
// keys.
func (c *Config) ApplySettings(values map[string]string) []string {
	def := DefaultConfig()
	var applied []string
	for _, key := range SettingKeys() {
		raw, ok := values[key]
		if !ok {
			continue
		}
		v := strings.TrimSpace(raw)
		next := *c
		switch key {
		case "difficulty":
			if c.Difficulty != def.Difficulty {
				continue
			}
			next.Difficulty = v
		case "style_variant":
			if c.UI.StyleVariant != def.UI.StyleVariant {
				continue
			}
			next.UI.StyleVariant = v
		case "motion_level":
			if c.UI.MotionLevel != def.UI.MotionLevel {
				continue
			}
			next.UI.MotionLevel = v
		case "ascii":
			b, err := strconv.ParseBool(v)
			if err != nil || c.UI.ASCIIOnly {
				continue
			}
			next.UI.ASCIIOnly = b
		}
		if next.Validate() != nil {
			continue
		}
		*c = next
		applied = append(applied, key)
	}
	return applied
}

// ValidateSetting reports whether key=value would be accepted by
// ApplySettings.
func ValidateSetting(key, value string) error {
	known := false
	for _, k := range SettingKeys() {
		if k == key {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown setting %q (known: %s)", key, strings.Join(SettingKeys(), ", "))
	}
	cfg := DefaultConfig()
	cfg.DataDir = os.TempDir()
	if len(cfg.ApplySettings(map[string]string{key: value})) == 0 {
		return fmt.Errorf("invalid value %q for %s", value, key)
	}
	return nil
}

// WatchDebounce is the quiet period before an edited solution file is
// reloaded.
func (c Config) WatchDebounce() time.Duration {
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
