package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctionroom/internal/config"
	"github.com/Additional-Code/auctionroom/internal/messaging"
)

const (
	restartBase = time.Second
	restartCap  = 30 * time.Second

	handlerRetryBase = 100 * time.Millisecond
)

// HandlerRegistration binds a topic to the handler consuming it.
type HandlerRegistration struct {
	Topic   string
	Handler messaging.Handler
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Client        messaging.Client
	Logger        *zap.Logger
	Config        config.Config
	Registrations []HandlerRegistration `group:"worker.handlers"`
}

// Engine runs a pool of consume loops against the messaging client and
// dispatches each message to the handler registered for its topic. A loop
// whose Consume call fails restarts with capped exponential backoff.
type Engine struct {
	client   messaging.Client
	logger   *zap.Logger
	cfg      config.Messaging
	handlers map[string]messaging.Handler

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine constructs the worker Engine.
func NewEngine(p Params) *Engine {
	handlers := make(map[string]messaging.Handler, len(p.Registrations))
	for _, r := range p.Registrations {
		if r.Topic == "" || r.Handler == nil {
			continue
		}
		handlers[r.Topic] = r.Handler
	}
	return &Engine{
		client:   p.Client,
		logger:   p.Logger.Named("worker"),
		cfg:      p.Config.Messaging,
		handlers: handlers,
	}
}

// Module wires the engine into Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(lc fx.Lifecycle, engine *Engine) {
		lc.Append(fx.Hook{
			OnStart: engine.Start,
			OnStop:  engine.Stop,
		})
	}),
)

// Start launches the consume loops. It is a no-op when messaging or workers
// are disabled, or when nothing is registered.
func (e *Engine) Start(context.Context) error {
	if !e.cfg.Enabled || !e.cfg.Workers.Enabled {
		e.logger.Info("worker engine disabled")
		return nil
	}
	if len(e.handlers) == 0 {
		e.logger.Info("worker engine has no handlers; skipping")
		return nil
	}

	workers := e.cfg.Workers.Concurrency
	if workers <= 0 {
		workers = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go func(id int) {
			defer e.wg.Done()
			e.run(runCtx, id)
		}(i)
	}

	e.logger.Info("worker engine started", zap.Int("workers", workers), zap.Int("handlers", len(e.handlers)))
	return nil
}

// Stop cancels the loops and waits for in-flight handlers until ctx expires.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		e.logger.Info("worker engine stopped")
		return nil
	}
}

// Dispatch routes one message; unknown topics are acknowledged and dropped.
// A failing handler is retried up to Workers.HandlerAttempts times in total.
func (e *Engine) Dispatch(ctx context.Context, msg messaging.Message) error {
	handler, ok := e.handlers[msg.Topic]
	if !ok {
		e.logger.Warn("no handler for topic", zap.String("topic", msg.Topic))
		return nil
	}

	attempts := e.cfg.Workers.HandlerAttempts
	if attempts <= 1 {
		return handler(ctx, msg)
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(handlerRetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := handler(ctx, msg); err != nil {
			e.logger.Warn("handler failed", zap.String("topic", msg.Topic), zap.Int64("offset", msg.Offset), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (e *Engine) run(ctx context.Context, workerID int) {
	backoff := retry.WithCappedDuration(restartCap, retry.NewExponential(restartBase))

	_ = retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := e.client.Consume(ctx, func(msgCtx context.Context, msg messaging.Message) error {
			e.logger.Debug("processing message",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Int("worker", workerID),
			)
			return e.Dispatch(msgCtx, msg)
		})
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		e.logger.Error("consume loop error; restarting", zap.Int("worker", workerID), zap.Error(err))
		return retry.RetryableError(err)
	})
}
