// Package config builds the server command line.
//
// Every flag can also be set through the environment as WORDLE_<FLAG>, with
// dashes replaced by underscores (e.g. --word-length → WORDLE_WORD_LENGTH).
// A .env file is loaded first when present. Flags given on the command line
// win over the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/robalobadob/wordle-live/internal/game"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "WORDLE"

// Config holds the server settings.
type Config struct {
	Bind     string
	Port     int
	LogLevel string
	Pretty   bool

	DBPath string // empty keeps everything in memory

	WordLength  int
	Rows        int
	Visibility  string
	Strict      bool
	AnswersFile string
	AllowedFile string
	DailySalt   string

	IdleTimeout time.Duration

	JWTSecret    string
	JWTExpiry    time.Duration
	CookieName   string
	CookieKey    string // securecookie hash key for the anonymous actor cookie
	Production   bool
	ClientOrigin string
	PublicURL    string // base URL encoded in room QR codes; derived from the request when empty
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.Rows < 1 || c.Rows > 20 {
		return fmt.Errorf("invalid rows (must be between 1-20 inclusive): %d", c.Rows)
	}
	if c.WordLength < 2 || c.WordLength > 12 {
		return fmt.Errorf("invalid word length (must be between 2-12 inclusive): %d", c.WordLength)
	}
	switch game.Visibility(c.Visibility) {
	case game.RevealOnFinish, game.RevealAlways:
	default:
		return fmt.Errorf("invalid visibility %q (want %q or %q)", c.Visibility, game.RevealOnFinish, game.RevealAlways)
	}
	if (c.AnswersFile != "") && c.AllowedFile == "" {
		return errors.New("--answers-file requires --allowed-file")
	}
	// The embedded lists only hold a sample of guesses.
	if c.Strict && c.AllowedFile == "" {
		return errors.New("--strict requires --allowed-file")
	}
	if c.Production && (c.JWTSecret == DefaultJWTSecret || c.CookieKey == DefaultCookieKey) {
		return errors.New("--jwt-secret and --cookie-key must be changed in production")
	}
	if len(c.CookieKey) < 32 {
		return errors.New("--cookie-key must be at least 32 bytes")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string { return fmt.Sprintf("%s:%d", c.Bind, c.Port) }

const (
	DefaultJWTSecret = "dev_secret_change_me"
	DefaultCookieKey = "dev_cookie_key_change_me_0123456789abcdef"
)

// LoadDotEnv loads .env files into the environment; missing files are ignored.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// NewCommand returns the root command. run is invoked with a validated config.
func NewCommand(cfg *Config, version string, run func(ctx context.Context, cfg *Config) error) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "wordle-live",
		Short:         "Shared-board multiplayer Wordle server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: WORDLE_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 5175, "port to listen on (env: WORDLE_PORT)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "zerolog level: trace, debug, info, warn, error (env: WORDLE_LOG_LEVEL)")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "human-readable console logs (env: WORDLE_PRETTY)")
	fs.StringVar(&cfg.DBPath, "db", "", "sqlite database path; empty keeps state in memory (env: WORDLE_DB)")
	fs.IntVar(&cfg.WordLength, "word-length", 5, "letters per word (env: WORDLE_WORD_LENGTH)")
	fs.IntVar(&cfg.Rows, "rows", game.DefaultRows, "guesses per round (env: WORDLE_ROWS)")
	fs.StringVar(&cfg.Visibility, "visibility", string(game.RevealOnFinish), "when observers see the target: on_finish or always (env: WORDLE_VISIBILITY)")
	fs.BoolVar(&cfg.Strict, "strict", false, "reject guesses missing from --allowed-file, which it requires (env: WORDLE_STRICT)")
	fs.StringVar(&cfg.AnswersFile, "answers-file", "", "answer list, one word per line (env: WORDLE_ANSWERS_FILE)")
	fs.StringVar(&cfg.AllowedFile, "allowed-file", "", "allowed guess list, one word per line (env: WORDLE_ALLOWED_FILE)")
	fs.StringVar(&cfg.DailySalt, "daily-salt", "local_dev_salt", "salt for the daily word schedule (env: WORDLE_DAILY_SALT)")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", 60*time.Minute, "time before idle rooms are closed; 0 disables (env: WORDLE_IDLE_TIMEOUT)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", DefaultJWTSecret, "HS256 secret for auth tokens (env: WORDLE_JWT_SECRET)")
	fs.DurationVar(&cfg.JWTExpiry, "jwt-expiry", 14*24*time.Hour, "auth token lifetime (env: WORDLE_JWT_EXPIRY)")
	fs.StringVar(&cfg.CookieName, "cookie-name", "wordle_token", "auth cookie name (env: WORDLE_COOKIE_NAME)")
	fs.StringVar(&cfg.CookieKey, "cookie-key", DefaultCookieKey, "hash key signing the anonymous actor cookie (env: WORDLE_COOKIE_KEY)")
	fs.BoolVar(&cfg.Production, "production", false, "secure cookies and strict secrets (env: WORDLE_PRODUCTION)")
	fs.StringVar(&cfg.ClientOrigin, "client-origin", "http://localhost:5173", "origin allowed by CORS (env: WORDLE_CLIENT_ORIGIN)")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "base URL for share links and QR codes (env: WORDLE_PUBLIC_URL)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("wordle-live v{{.Version}}\n")

	return cmd
}
