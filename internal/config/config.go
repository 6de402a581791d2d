// Package config loads timekeep configuration.
//
// A configuration file is YAML. It is checked against an embedded CUE
// schema, then decoded strictly (unknown keys are rejected) over the
// defaults, so a file only needs the settings it changes.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/timekeep/internal/alert"
	"github.com/roach88/timekeep/internal/engine"
	"github.com/roach88/timekeep/internal/model"
	"github.com/roach88/timekeep/internal/schedule"
)

//go:embed schema.cue
var schemaSrc string

// Config is the full service configuration.
type Config struct {
	// Database is the SQLite file path.
	Database  string             `yaml:"database"`
	HTTP      HTTPConfig         `yaml:"http"`
	Scheduler schedule.Config    `yaml:"scheduler"`
	Engine    engine.Thresholds  `yaml:"engine"`
	Alerts    AlertsConfig       `yaml:"alerts"`
	Defaults  model.UserSettings `yaml:"defaults"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// AlertsConfig configures alert delivery.
type AlertsConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// Outbox persists every alert to the alerts table in addition to
	// logging it.
	Outbox bool `yaml:"outbox"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database:  "timekeep.db",
		HTTP:      HTTPConfig{Listen: "127.0.0.1:8080"},
		Scheduler: schedule.DefaultConfig(),
		Engine:    engine.DefaultThresholds(),
		Alerts:    AlertsConfig{Timeout: alert.DefaultTimeout, Outbox: true},
		Defaults:  model.DefaultUserSettings(),
	}
}

// Error is a configuration error, with a position when the schema check
// produced one.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Load reads the configuration file at path. An empty path returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(path, data)
}

// Parse validates and decodes a YAML document. Name is used in error
// positions.
func Parse(name string, data []byte) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	if err := checkSchema(name, data); err != nil {
		return nil, err
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Scheduler.MaxBackoff < cfg.Scheduler.RetryBackoff {
		return nil, &Error{Message: "scheduler.max_backoff must not be shorter than scheduler.retry_backoff"}
	}
	return cfg, nil
}

// checkSchema unifies the document with #Config.
func checkSchema(name string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	file, err := cueyaml.Extract(name, data)
	if err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return formatCUEError(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	out := &Error{Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		out.Pos = positions[0]
	}
	return out
}
