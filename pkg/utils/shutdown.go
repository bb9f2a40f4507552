package utils

import (
	"context"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type shutdownHook struct {
	name string
	fn   func() error
}

// ShutdownManager owns the process context. Background tasks are tracked so
// shutdown can wait for them, then hooks run in reverse registration order.
type ShutdownManager struct {
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	hooks       []shutdownHook
	hooksMutex  sync.Mutex
	gracePeriod time.Duration
	logger      *zap.Logger

	once sync.Once
	done chan struct{}
	err  error
}

func NewShutdownManager(gracePeriod time.Duration, logger *zap.Logger) *ShutdownManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ShutdownManager{
		ctx:         ctx,
		cancel:      cancel,
		gracePeriod: gracePeriod,
		logger:      logger.Named("shutdown"),
		done:        make(chan struct{}),
	}
}

// ListenForSignals starts shutdown on SIGINT or SIGTERM.
func (sm *ShutdownManager) ListenForSignals() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sig:
			sm.logger.Info("received shutdown signal", zap.Stringer("signal", s))
			sm.InitiateShutdown()
		case <-sm.done:
		}
		signal.Stop(sig)
	}()
}

func (sm *ShutdownManager) RegisterShutdownHook(name string, hook func() error) {
	sm.hooksMutex.Lock()
	defer sm.hooksMutex.Unlock()
	sm.hooks = append(sm.hooks, shutdownHook{name: name, fn: hook})
}

// Go runs fn as a tracked background task. A panic in fn is logged and the
// task ends.
func (sm *ShutdownManager) Go(component string, fn func(ctx context.Context)) {
	sm.wg.Add(1)
	go func() {
		defer sm.wg.Done()
		defer RecoverFromPanic(sm.logger, component)
		fn(sm.ctx)
	}()
}

// InitiateShutdown cancels the context, waits up to the grace period for
// tasks and runs the hooks. Only the first call does anything; every call
// returns the combined hook errors.
func (sm *ShutdownManager) InitiateShutdown() error {
	sm.once.Do(func() {
		sm.logger.Info("initiating graceful shutdown", zap.Duration("grace", sm.gracePeriod))
		sm.cancel()

		finished := make(chan struct{})
		go func() {
			sm.wg.Wait()
			close(finished)
		}()

		select {
		case <-finished:
			sm.logger.Info("all tasks completed")
		case <-time.After(sm.gracePeriod):
			sm.logger.Warn("grace period expired, forcing shutdown")
		}

		sm.err = sm.executeShutdownHooks()
		sm.logger.Info("shutdown complete")
		close(sm.done)
	})
	<-sm.done
	return sm.err
}

func (sm *ShutdownManager) executeShutdownHooks() error {
	sm.hooksMutex.Lock()
	hooks := make([]shutdownHook, len(sm.hooks))
	copy(hooks, sm.hooks)
	sm.hooksMutex.Unlock()

	var errs error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		sm.logger.Debug("executing shutdown hook", zap.String("hook", h.name))
		if err := h.fn(); err != nil {
			sm.logger.Warn("shutdown hook failed", zap.String("hook", h.name), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (sm *ShutdownManager) Context() context.Context {
	return sm.ctx
}

// Done is closed once shutdown has finished.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.done
}

func RecoverFromPanic(logger *zap.Logger, component string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered",
			zap.String("component", component),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()))
	}
}
