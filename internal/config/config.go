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

	"github.com/roach88/flowstate/internal/example"
)

//go:embed schema.cue
var schemaCUE string

// Error code constants shared with the CLI.
const (
	ErrCodeGeneric         = "E001" // Generic/unknown error
	ErrCodeLoadFailed      = "E004" // CUE parse failed
	ErrCodeNotFound        = "E005" // Path not found
	ErrCodeBuildFailed     = "E006" // CUE value does not satisfy the schema
	ErrCodeInvalidDuration = "E201" // Duration string does not parse
	ErrCodeInvalidField    = "E202" // Field value out of range
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadError is a configuration error, positioned in the CUE source when
// the position is known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Config is the resolved demo configuration.
type Config struct {
	API        example.SimulatedConfig
	ResetDelay time.Duration
	Journal    string
	LogLevel   slog.Level
}

// Default returns the configuration an empty file resolves to.
func Default() Config {
	return Config{
		API:        example.DefaultSimulatedConfig(),
		ResetDelay: example.DefaultResetDelay,
		LogLevel:   slog.LevelInfo,
	}
}

// raw mirrors #Config field for field.
type raw struct {
	API struct {
		TotalItems int    `json:"total_items"`
		PageSize   int    `json:"page_size"`
		FailEvery  int    `json:"fail_every"`
		Delay      string `json:"delay"`
	} `json:"api"`
	ResetDelay string `json:"reset_delay"`
	Journal    string `json:"journal"`
	LogLevel   string `json:"log_level"`
}

// LoadFile reads and validates a CUE configuration file.
// Returns the first error as a *LoadError.
func LoadFile(path string) (Config, error) {
	cfg, errs := Load(path, LoadModeFailFast)
	if len(errs) > 0 {
		return Config{}, errs[0]
	}
	return cfg, nil
}

// Load reads a CUE configuration file and unifies it with the embedded
// schema. If mode is LoadModeCollectAll every schema violation is returned.
func Load(path string, mode LoadMode) (Config, []error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config file not found: %s", path)}}
	}
	if err != nil {
		return Config{}, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading config: %v", err)}}
	}
	return Parse(path, data, mode)
}

// Parse validates CUE source against the schema and resolves it.
// filename is only used for error positions.
func Parse(filename string, src []byte, mode LoadMode) (Config, []error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("schema: %v", err)}}
	}

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Config{}, convertCUEErrors(ErrCodeLoadFailed, err, mode)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, convertCUEErrors(ErrCodeBuildFailed, err, mode)
	}

	var r raw
	if err := v.Decode(&r); err != nil {
		return Config{}, convertCUEErrors(ErrCodeBuildFailed, err, mode)
	}

	return resolve(v, r, mode)
}

// resolve turns the decoded value into a Config, checking what CUE cannot.
func resolve(v cue.Value, r raw, mode LoadMode) (Config, []error) {
	var errs []error
	fail := func(e *LoadError) bool {
		errs = append(errs, e)
		return mode == LoadModeFailFast
	}

	cfg := Config{
		API: example.SimulatedConfig{
			TotalItems: r.API.TotalItems,
			PageSize:   r.API.PageSize,
			FailEvery:  r.API.FailEvery,
		},
		Journal: r.Journal,
	}

	durations := []struct {
		path string
		text string
		dst  *time.Duration
	}{
		{"api.delay", r.API.Delay, &cfg.API.Delay},
		{"reset_delay", r.ResetDelay, &cfg.ResetDelay},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.text)
		if err == nil && parsed < 0 {
			err = fmt.Errorf("must not be negative")
		}
		if err != nil {
			if fail(&LoadError{
				Code:    ErrCodeInvalidDuration,
				Message: fmt.Sprintf("%s: invalid duration %q: %v", d.path, d.text, err),
				Pos:     v.LookupPath(cue.ParsePath(d.path)).Pos(),
			}) {
				return Config{}, errs
			}
			continue
		}
		*d.dst = parsed
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(r.LogLevel)); err != nil {
		if fail(&LoadError{
			Code:    ErrCodeInvalidField,
			Message: fmt.Sprintf("log_level: %v", err),
			Pos:     v.LookupPath(cue.ParsePath("log_level")).Pos(),
		}) {
			return Config{}, errs
		}
	}

	if len(errs) > 0 {
		return Config{}, errs
	}
	return cfg, nil
}

// convertCUEErrors splits a CUE error into positioned LoadErrors.
func convertCUEErrors(code string, err error, mode LoadMode) []error {
	var out []error
	for _, e := range errors.Errors(err) {
		le := &LoadError{Code: code, Message: e.Error()}
		if positions := errors.Positions(e); len(positions) > 0 {
			le.Pos = positions[0]
		}
		out = append(out, le)
		if mode == LoadModeFailFast {
			break
		}
	}
	if len(out) == 0 {
		out = append(out, &LoadError{Code: code, Message: err.Error()})
	}
	return out
}
