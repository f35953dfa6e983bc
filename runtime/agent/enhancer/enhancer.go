// Package enhancer binds the seven Default Handlers onto a user-authored
// agent struct. Enhance is a one-time operation, guarded by a sentinel
// marker embedded in Base, mirroring the teacher's registration-marker
// idiom (runtime/registry/registration.go) adapted from service
// registration to per-instance capability binding.
package enhancer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/agentruntime/core/internal/telemetry"
	"github.com/agentruntime/core/runtime/agent/handlers"
	"github.com/agentruntime/core/runtime/agent/store"
	"github.com/agentruntime/core/runtime/agent/taskregistry"
)

// ErrNotEnhanced is the panic value a Base method raises if it is called
// before Enhance has bound it to a live Handlers instance.
var ErrNotEnhanced = errors.New("enhancer: method called before enhancer.Enhance")

// ErrAlreadyEnhanced is returned by Enhance if the agent's Base was already
// bound by an earlier call.
var ErrAlreadyEnhanced = errors.New("enhancer: agent already enhanced")

// Lifecycle is optionally implemented by a user agent; when present,
// Enhance calls Init after initializing the store and binding, and the
// package-level Teardown calls the agent's Teardown last, after in-flight
// runs have settled and the store has been destroyed.
type Lifecycle interface {
	Init(ctx context.Context) error
	Teardown(ctx context.Context) error
}

// Agent is the one capability a user must supply (ExecRun) plus the
// embedding marker (Base) that makes the struct enhanceable.
type Agent interface {
	handlers.ExecRunner
	enhancerBase() *Base
}

// Base is embedded by a user agent struct to receive the seven Default
// Handlers once Enhance binds them. Its methods exist so the embedding
// struct satisfies a convenient "call it like a handler" style without
// reimplementing any of createThread/getThread/syncRun/asyncRun/streamRun/
// getRun/cancelRun itself — exactly the "operations the user left as
// stubs" framing: embed Base, implement ExecRun, and the other six
// operations are filled in by whatever Enhance wires up.
type Base struct {
	once  sync.Once
	bound bool
	h     *handlers.Handlers
}

func (b *Base) enhancerBase() *Base { return b }

func (b *Base) handlersOrPanic() *handlers.Handlers {
	if !b.bound {
		panic(ErrNotEnhanced)
	}
	return b.h
}

// CreateThread delegates to the bound Handlers.
func (b *Base) CreateThread(ctx context.Context, metadata map[string]any) (handlers.ThreadProjection, error) {
	return b.handlersOrPanic().CreateThread(ctx, metadata)
}

// GetThread delegates to the bound Handlers.
func (b *Base) GetThread(ctx context.Context, id string) (store.Thread, error) {
	return b.handlersOrPanic().GetThread(ctx, id)
}

// SyncRun delegates to the bound Handlers.
func (b *Base) SyncRun(ctx context.Context, threadID string, input []store.InputMessage, cfg *store.RunConfig, metadata map[string]any) (store.Run, error) {
	return b.handlersOrPanic().SyncRun(ctx, threadID, input, cfg, metadata)
}

// AsyncRun delegates to the bound Handlers.
func (b *Base) AsyncRun(ctx context.Context, threadID string, input []store.InputMessage, cfg *store.RunConfig, metadata map[string]any) (store.Run, error) {
	return b.handlersOrPanic().AsyncRun(ctx, threadID, input, cfg, metadata)
}

// GetRun delegates to the bound Handlers.
func (b *Base) GetRun(ctx context.Context, id string) (store.Run, error) {
	return b.handlersOrPanic().GetRun(ctx, id)
}

// CancelRun delegates to the bound Handlers.
func (b *Base) CancelRun(ctx context.Context, runID string) (store.Run, error) {
	return b.handlersOrPanic().CancelRun(ctx, runID)
}

// Handlers returns the bound Handlers directly, for callers (such as the
// chi SSE route) that need StreamRun's stream.Sink-typed signature.
func (b *Base) Handlers() *handlers.Handlers {
	return b.handlersOrPanic()
}

// Tasks returns the bound in-flight task registry, so a host binding's
// shutdown path can await outstanding async runs before tearing down.
func (b *Base) Tasks() *taskregistry.Registry {
	return b.handlersOrPanic().Tasks
}

// Options configures Enhance. The zero value uses FileStore with its
// default data directory and no-op telemetry.
type Options struct {
	Store   store.Store
	Logger  telemetry.Logger
	Tracer  telemetry.Tracer
	Metrics telemetry.Metrics
}

// Option mutates Options.
type Option func(*Options)

// WithStore overrides the default FileStore, e.g. with mongostore.Store.
func WithStore(st store.Store) Option {
	return func(o *Options) { o.Store = st }
}

// WithLogger overrides the no-op Logger.
func WithLogger(l telemetry.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithTracer overrides the no-op Tracer.
func WithTracer(t telemetry.Tracer) Option {
	return func(o *Options) { o.Tracer = t }
}

// WithMetrics overrides the no-op Metrics.
func WithMetrics(m telemetry.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// Enhance binds the seven Default Handlers onto agent's embedded Base,
// initializes the store, and (if agent implements Lifecycle) calls Init.
// It is safe to call concurrently; the second and subsequent calls on the
// same agent return ErrAlreadyEnhanced without touching the store again.
func Enhance(agent Agent, opts ...Option) error {
	cfg := Options{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Store == nil {
		cfg.Store = store.NewFileStore("")
	}

	base := agent.enhancerBase()

	var bindErr error
	ran := false
	base.once.Do(func() {
		ran = true
		ctx := context.Background()
		if err := cfg.Store.Init(ctx); err != nil {
			bindErr = fmt.Errorf("enhancer: initializing store: %w", err)
			return
		}
		h := handlers.New(cfg.Store, taskregistry.New(), agent)
		if cfg.Logger != nil {
			h.Logger = cfg.Logger
		}
		if cfg.Tracer != nil {
			h.Tracer = cfg.Tracer
		}
		if cfg.Metrics != nil {
			h.Metrics = cfg.Metrics
		}
		base.h = h
		base.bound = true

		if lc, ok := agent.(Lifecycle); ok {
			if err := lc.Init(ctx); err != nil {
				bindErr = fmt.Errorf("enhancer: agent Init: %w", err)
			}
		}
	})
	if bindErr != nil {
		return bindErr
	}
	if !ran {
		return ErrAlreadyEnhanced
	}
	return nil
}

// Teardown awaits every in-flight run, destroys the bound store, and (if
// agent implements Lifecycle) calls Teardown, in that order so the store
// is never torn down while a background run might still try to write to
// it.
func Teardown(ctx context.Context, agent Agent) error {
	base := agent.enhancerBase()
	h := base.handlersOrPanic()

	h.Tasks.AwaitAll(ctx)
	if err := h.Store.Destroy(ctx); err != nil {
		return fmt.Errorf("enhancer: destroying store: %w", err)
	}
	if lc, ok := agent.(Lifecycle); ok {
		if err := lc.Teardown(ctx); err != nil {
			return fmt.Errorf("enhancer: agent Teardown: %w", err)
		}
	}
	return nil
}
