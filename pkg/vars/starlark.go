package vars

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openfroyo/pathq/pkg/errdefs"
)

// DefaultTimeout bounds script evaluation.
const DefaultTimeout = 30 * time.Second

// Starlark resolves variables from the globals of a Starlark script.
//
// Plain globals (strings, ints, bools, floats) are evaluated once when the
// script is loaded. Globals bound to zero-argument functions are called on
// every Resolve, so a script can compute a value at query time:
//
//	account_id = "7c1f..."
//	def world():
//	    return env.get("WORLD", "1001")
//
// Globals starting with an underscore are private and never resolved.
type Starlark struct {
	name    string
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	globals starlark.StringDict
}

// StarlarkOption configures a Starlark resolver.
type StarlarkOption func(*Starlark)

// WithTimeout bounds script evaluation and each function call.
func WithTimeout(d time.Duration) StarlarkOption {
	return func(s *Starlark) { s.timeout = d }
}

// WithLogger sets the logger receiving script print output.
func WithLogger(l zerolog.Logger) StarlarkOption {
	return func(s *Starlark) { s.logger = l }
}

// LoadStarlark evaluates the script file at path.
func LoadStarlark(ctx context.Context, path string, input map[string]any, opts ...StarlarkOption) (*Starlark, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.NewConfigurationError("failed to read variable script", err).WithDetail("path", path)
	}
	return NewStarlark(ctx, path, string(data), input, opts...)
}

// NewStarlark evaluates script. input is exposed to the script as predeclared
// globals next to struct and env, a dict of the process environment.
func NewStarlark(ctx context.Context, name, script string, input map[string]any, opts ...StarlarkOption) (*Starlark, error) {
	s := &Starlark{
		name:    name,
		timeout: DefaultTimeout,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "starlark-vars").Str("script", name).Logger()

	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"env":    environDict(),
	}
	for key, val := range input {
		sv, err := toStarlarkValue(val)
		if err != nil {
			return nil, errdefs.NewConfigurationError(fmt.Sprintf("failed to convert input %s", key), err)
		}
		predeclared[key] = sv
	}

	var globals starlark.StringDict
	err := s.run(ctx, func(thread *starlark.Thread) error {
		var err error
		globals, err = starlark.ExecFile(thread, name, script, predeclared)
		return err
	})
	if err != nil {
		return nil, errdefs.NewConfigurationError("variable script failed", err).WithDetail("script", name)
	}
	globals.Freeze()
	s.globals = globals

	s.logger.Debug().Strs("variables", s.Names()).Msg("Variable script loaded")
	return s, nil
}

// Names returns the public globals in sorted order.
func (s *Starlark) Names() []string {
	names := make([]string, 0, len(s.globals))
	for name := range s.globals {
		if name != "" && name[0] != '_' {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Resolve implements query.VariableResolver.
func (s *Starlark) Resolve(ctx context.Context, name string) (string, bool, error) {
	if name == "" || name[0] == '_' {
		return "", false, nil
	}
	val, ok := s.globals[name]
	if !ok {
		return "", false, nil
	}

	if fn, isFn := val.(*starlark.Function); isFn {
		var result starlark.Value
		err := s.run(ctx, func(thread *starlark.Thread) error {
			var err error
			result, err = starlark.Call(thread, fn, nil, nil)
			return err
		})
		if err != nil {
			return "", false, errdefs.NewResolveError(fmt.Sprintf("variable function %s failed", name), err).
				WithCode(errdefs.ErrCodeUnresolvedVariable)
		}
		val = result
	}

	if val == starlark.None {
		return "", false, nil
	}
	str, err := toVariableString(val)
	if err != nil {
		return "", false, errdefs.NewResolveError(fmt.Sprintf("variable %s", name), err).
			WithCode(errdefs.ErrCodeUnresolvedVariable)
	}
	return str, true, nil
}

// run executes fn on a fresh thread, cancelling it when ctx ends or the
// timeout elapses. Calls are serialized since frozen globals may still hold
// functions that share module state.
func (s *Starlark) run(ctx context.Context, fn func(*starlark.Thread) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "pathq-vars",
		Print: func(_ *starlark.Thread, msg string) {
			s.logger.Debug().Str("output", msg).Msg("Script print")
		},
	}

	done := make(chan error, 1)
	go func() { done <- fn(thread) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		thread.Cancel(ctx.Err().Error())
		<-done
		return fmt.Errorf("starlark execution stopped: %w", ctx.Err())
	}
}

func environDict() *starlark.Dict {
	env := os.Environ()
	d := starlark.NewDict(len(env))
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			_ = d.SetKey(starlark.String(k), starlark.String(v))
		}
	}
	d.Freeze()
	return d
}

func toVariableString(v starlark.Value) (string, error) {
	switch val := v.(type) {
	case starlark.String:
		return string(val), nil
	case starlark.Int:
		return val.String(), nil
	case starlark.Bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case starlark.Float:
		return val.String(), nil
	default:
		return "", fmt.Errorf("unsupported starlark type %s", v.Type())
	}
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			list[i] = starlark.String(item)
		}
		return starlark.NewList(list), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
