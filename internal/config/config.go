// Package config loads scansync settings from an optional CUE file.
//
// The file is unified with an embedded #Config schema. The schema is closed,
// so unknown keys are errors; absent keys take the schema defaults.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource string

// Config is the resolved configuration.
type Config struct {
	APIBase       string
	Database      string
	SubmitTimeout time.Duration
	ProbeTimeout  time.Duration
	ProbeInterval time.Duration
	StablePolls   int
	LogLevel      slog.Level
	LockFile      string

	MetricsEndpoint string
	MetricsInsecure bool
	MetricsInterval time.Duration
}

// LockPath returns the drain lock file path.
func (c Config) LockPath() string {
	if c.LockFile != "" {
		return c.LockFile
	}
	return c.Database + ".lock"
}

// fileConfig mirrors #Config field for field.
type fileConfig struct {
	APIBase       string `json:"api_base"`
	Database      string `json:"database"`
	SubmitTimeout string `json:"submit_timeout"`
	ProbeTimeout  string `json:"probe_timeout"`
	ProbeInterval string `json:"probe_interval"`
	StablePolls   int    `json:"stable_polls"`
	LogLevel      string `json:"log_level"`
	LockFile      string `json:"lock_file"`

	MetricsEndpoint string `json:"metrics_endpoint"`
	MetricsInsecure bool   `json:"metrics_insecure"`
	MetricsInterval string `json:"metrics_interval"`
}

// Error is a configuration error, with the CUE position when known.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return cfg
}

// Load reads path (if non-empty) and resolves it against the schema.
func Load(path string) (Config, error) {
	var src []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		src = data
	}
	return parse(path, src)
}

func parse(filename string, src []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config"))

	if src != nil {
		user := ctx.CompileBytes(src, cue.Filename(filename))
		if err := user.Err(); err != nil {
			return Config{}, formatCUEError(err)
		}
		v = v.Unify(user)
	}

	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, formatCUEError(err)
	}

	var raw fileConfig
	if err := v.Decode(&raw); err != nil {
		return Config{}, formatCUEError(err)
	}
	return raw.resolve(v)
}

func (f fileConfig) resolve(v cue.Value) (Config, error) {
	cfg := Config{
		APIBase:     f.APIBase,
		Database:    f.Database,
		StablePolls: f.StablePolls,
		LockFile:    f.LockFile,

		MetricsEndpoint: f.MetricsEndpoint,
		MetricsInsecure: f.MetricsInsecure,
	}

	durations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"submit_timeout", f.SubmitTimeout, &cfg.SubmitTimeout},
		{"probe_timeout", f.ProbeTimeout, &cfg.ProbeTimeout},
		{"probe_interval", f.ProbeInterval, &cfg.ProbeInterval},
		{"metrics_interval", f.MetricsInterval, &cfg.MetricsInterval},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.raw)
		if err == nil && parsed <= 0 {
			err = fmt.Errorf("must be positive")
		}
		if err != nil {
			return Config{}, &Error{
				Field:   d.field,
				Message: fmt.Sprintf("invalid duration %q: %v", d.raw, err),
				Pos:     v.LookupPath(cue.ParsePath(d.field)).Pos(),
			}
		}
		*d.dst = parsed
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(f.LogLevel)); err != nil {
		return Config{}, &Error{Field: "log_level", Message: err.Error()}
	}
	return cfg, nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	e := &Error{Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}
