// Package server runs the HTTP bridge and coordinates shutdown of the
// resources it depends on.
package server

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog/log"
)

type hookDefinition struct {
	name string
	fn   func(context.Context) error
}

// ShutdownHooks releases resources in the reverse order they were
// registered, so a resource is closed before anything it was built on.
// Execution continues when a hook fails.
type ShutdownHooks struct {
	hooks []hookDefinition
}

// AddContext registers a hook that receives the shutdown context, which may
// carry a deadline. Nil hooks are ignored.
func (s *ShutdownHooks) AddContext(name string, hook func(context.Context) error) {
	if hook == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	log.Debug().Str("hook", name).Msg("adding shutdown hook")
	s.hooks = append(s.hooks, hookDefinition{name: name, fn: hook})
}

// AddCloser registers a resource with a Close() error method, such as a
// token provider or cache.
func (s *ShutdownHooks) AddCloser(name string, closer io.Closer) {
	if closer == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	s.AddContext(name, func(context.Context) error { return closer.Close() })
}

// AddFunc registers a hook with no result, such as httptest.Server.Close.
func (s *ShutdownHooks) AddFunc(name string, fn func()) {
	if fn == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	s.AddContext(name, func(context.Context) error { fn(); return nil })
}

// Len returns the number of registered hooks.
func (s *ShutdownHooks) Len() int {
	return len(s.hooks)
}

// Execute runs every hook, most recently added first. A hook that fails is
// logged and the remaining hooks still run. Hooks are not run twice.
func (s *ShutdownHooks) Execute(ctx context.Context) {
	l := log.Ctx(ctx)

	hooks := s.hooks
	s.hooks = nil

	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		hookLog := l.With().Str("hook", hook.name).Logger()

		start := time.Now()
		hookLog.Info().Msg("shutdown started")
		if err := hook.fn(ctx); err != nil {
			hookLog.Warn().Err(err).Dur("duration", time.Since(start)).Msg("shutdown failed")
		} else {
			hookLog.Info().Dur("duration", time.Since(start)).Msg("shutdown complete")
		}
	}
}
