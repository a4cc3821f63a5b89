package dispatcher

import (
	"context"
	"fmt"
	"time"

	"wisefido-vitals/internal/metrics"
	"wisefido-vitals/internal/models"
	"wisefido-vitals/internal/websocket"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// EventBus 事件总线
type EventBus interface {
	Publish(ctx context.Context, topic string, payload map[string]interface{}) error
}

// LiveRegistry 患者实时订阅
type LiveRegistry interface {
	Broadcast(patientID string, msg interface{}, exclude *websocket.Client) (int, error)
}

// CacheInvalidator 缓存失效
type CacheInvalidator interface {
	Invalidate(ctx context.Context, keyOrPattern string) (int64, error)
	KeysFor(e models.Event) []string
}

// SinkError 单个 sink 的投递失败（只记录在 DispatchOutcome 中，不向调用方返回）
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// Dispatcher 把事件并发投递到事件总线、实时订阅和缓存失效三个 sink
// 每个 sink 有独立超时，且不受调用方 ctx 取消影响；任何 sink 的错误或 panic 都只记录在结果里
type Dispatcher struct {
	bus         EventBus
	live        LiveRegistry
	cache       CacheInvalidator
	sinkTimeout time.Duration
	logger      *zap.Logger
}

// NewDispatcher 创建投递器（live / cache 为 nil 时跳过对应 sink）
func NewDispatcher(
	bus EventBus,
	live LiveRegistry,
	cache CacheInvalidator,
	sinkTimeout time.Duration,
	logger *zap.Logger,
) *Dispatcher {
	if sinkTimeout <= 0 {
		sinkTimeout = 3 * time.Second
	}
	return &Dispatcher{
		bus:         bus,
		live:        live,
		cache:       cache,
		sinkTimeout: sinkTimeout,
		logger:      logger,
	}
}

// Dispatch 投递一条新报警
func (d *Dispatcher) Dispatch(ctx context.Context, alarm *models.Alarm) models.DispatchOutcome {
	return d.Notify(ctx, models.AlarmTriggered{Alarm: alarm})
}

// DispatchAll 并发投递多条新报警，结果顺序与入参一致
func (d *Dispatcher) DispatchAll(ctx context.Context, alarms []*models.Alarm) []models.DispatchOutcome {
	events := make([]models.Event, len(alarms))
	for i, alarm := range alarms {
		events[i] = models.AlarmTriggered{Alarm: alarm}
	}
	return d.NotifyAll(ctx, events)
}

// NotifyAll 并发投递多个事件，结果顺序与入参一致
func (d *Dispatcher) NotifyAll(ctx context.Context, events []models.Event) []models.DispatchOutcome {
	outcomes := make([]models.DispatchOutcome, len(events))

	var wg conc.WaitGroup
	for i, e := range events {
		i, e := i, e
		wg.Go(func() {
			outcomes[i] = d.Notify(ctx, e)
		})
	}
	wg.Wait()

	return outcomes
}

// Notify 投递一个事件到所有 sink
func (d *Dispatcher) Notify(ctx context.Context, e models.Event) models.DispatchOutcome {
	// 请求取消不影响投递，每个 sink 只受自己的超时约束
	base := context.WithoutCancel(ctx)

	type sink struct {
		name string
		fn   func(ctx context.Context) error
	}
	sinks := []sink{{models.SinkEventBus, func(ctx context.Context) error {
		return d.bus.Publish(ctx, e.Topic(), e.Payload())
	}}}
	if d.live != nil {
		sinks = append(sinks, sink{models.SinkWebSocket, func(context.Context) error {
			_, err := d.live.Broadcast(e.PatientID(), models.NewLiveMessage(e), nil)
			return err
		}})
	}
	if d.cache != nil {
		sinks = append(sinks, sink{models.SinkCache, func(ctx context.Context) error {
			return d.invalidate(ctx, e)
		}})
	}

	results := make([]models.SinkResult, len(sinks))
	var wg conc.WaitGroup
	for i, s := range sinks {
		i, s := i, s
		wg.Go(func() {
			results[i] = d.run(base, s.name, s.fn)
		})
	}
	wg.Wait()

	outcome := models.DispatchOutcome{
		Subject: e.Subject(),
		Topic:   e.Topic(),
		Results: results,
	}
	d.logOutcome(e, outcome)
	return outcome
}

// run 执行单个 sink：独立超时，panic 转为错误
func (d *Dispatcher) run(parent context.Context, name string, fn func(ctx context.Context) error) models.SinkResult {
	ctx, cancel := context.WithTimeout(parent, d.sinkTimeout)
	defer cancel()

	start := time.Now()
	errCh := make(chan error, 1)
	go func() {
		var pc panics.Catcher
		var err error
		pc.Try(func() { err = fn(ctx) })
		if r := pc.Recovered(); r != nil {
			err = r.AsError()
		}
		errCh <- err
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = fmt.Errorf("timed out after %v: %w", d.sinkTimeout, ctx.Err())
	}

	result := models.SinkResult{
		Sink:     name,
		OK:       err == nil,
		Duration: time.Since(start),
	}
	if err != nil {
		result.Err = &SinkError{Sink: name, Err: err}
	}
	metrics.ObserveSink(name, result.OK, result.Duration)
	return result
}

// invalidate 失效事件相关的全部缓存键，单个键失败不影响其他键
func (d *Dispatcher) invalidate(ctx context.Context, e models.Event) error {
	var errs error
	for _, key := range d.cache.KeysFor(e) {
		if _, err := d.cache.Invalidate(ctx, key); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (d *Dispatcher) logOutcome(e models.Event, outcome models.DispatchOutcome) {
	if outcome.Succeeded() {
		d.logger.Debug("Event dispatched",
			zap.String("subject", outcome.Subject),
			zap.String("topic", outcome.Topic),
			zap.Int("sinks", len(outcome.Results)),
		)
		return
	}
	for _, r := range outcome.Results {
		if r.OK {
			continue
		}
		d.logger.Warn("Sink delivery failed",
			zap.String("subject", outcome.Subject),
			zap.String("topic", outcome.Topic),
			zap.String("patient_id", e.PatientID()),
			zap.String("sink", r.Sink),
			zap.Duration("duration", r.Duration),
			zap.Error(r.Err),
		)
	}
	d.logger.Info("Event dispatched with failures",
		zap.String("subject", outcome.Subject),
		zap.String("topic", outcome.Topic),
		zap.Int("sinks", len(outcome.Results)),
		zap.Strings("failed", outcome.Failed()),
	)
}
