// Package config loads worldpurpose configuration.
//
// Precedence, lowest first:
//  1. defaults from the embedded CUE schema
//  2. an optional CUE config file
//  3. WORLDPURPOSE_* environment variables
//  4. command-line flags (applied by the caller)
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/caarlos0/env/v11"
)

//go:embed schema.cue
var schemaCUE string

// Config is the resolved configuration.
type Config struct {
	DBPath    string `json:"db_path" env:"WORLDPURPOSE_DB"`
	LogLevel  string `json:"log_level" env:"WORLDPURPOSE_LOG_LEVEL"`
	LogFormat string `json:"log_format" env:"WORLDPURPOSE_LOG_FORMAT"`
	Units     string `json:"units" env:"WORLDPURPOSE_UNITS"`
}

// ConfigError is a config file or value that does not satisfy the schema.
type ConfigError struct {
	Source  string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := decode(schema(cuecontext.New()), "defaults")
	if err != nil {
		// The embedded schema is fixed at build time.
		panic(err)
	}
	return cfg
}

// Load resolves the configuration from path (optional) and the environment.
// An empty path skips the file layer.
func Load(path string) (Config, error) {
	ctx := cuecontext.New()
	v := schema(ctx)
	source := "defaults"

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		file := ctx.CompileBytes(data, cue.Filename(path))
		if err := file.Err(); err != nil {
			return Config{}, cueError(path, err)
		}
		if err := checkFields(v, file, path); err != nil {
			return Config{}, err
		}
		v = v.Unify(file)
		source = path
	}

	cfg, err := decode(v, source)
	if err != nil {
		return Config{}, err
	}

	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv overlays WORLDPURPOSE_* environment variables onto target.
// Unset variables leave fields untouched.
func ParseEnv(target *Config) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks c against the schema. Call it after applying overrides.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	v := schema(ctx).Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return cueError("config", err)
	}
	return nil
}

func schema(ctx *cue.Context) cue.Value {
	return ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).
		LookupPath(cue.ParsePath("#Config"))
}

// checkFields rejects config fields the schema does not declare.
func checkFields(schema, file cue.Value, source string) error {
	iter, err := file.Fields()
	if err != nil {
		return cueError(source, err)
	}
	for iter.Next() {
		if !schema.LookupPath(cue.MakePath(iter.Selector())).Exists() {
			return &ConfigError{Source: source, Message: fmt.Sprintf("unknown field %q", iter.Selector().String())}
		}
	}
	return nil
}

func decode(v cue.Value, source string) (Config, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, cueError(source, err)
	}
	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, cueError(source, err)
	}
	return cfg, nil
}

// cueError keeps the first CUE error, which carries the useful position.
func cueError(source string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &ConfigError{Source: source, Message: err.Error()}
	}
	return &ConfigError{Source: source, Message: errs[0].Error()}
}
