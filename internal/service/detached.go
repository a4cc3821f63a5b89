package service

import (
	"context"
	"fmt"
	"sync"

	"wisefido-vitals/internal/models"

	"go.uber.org/zap"
)

// Notifier 事件投递（*dispatcher.Dispatcher 实现）
type Notifier interface {
	Notify(ctx context.Context, e models.Event) models.DispatchOutcome
	NotifyAll(ctx context.Context, events []models.Event) []models.DispatchOutcome
}

// detachedNotifier 投递与调用方请求解耦：请求被取消时立即返回，投递在后台继续
type detachedNotifier struct {
	notifier Notifier
	inflight sync.WaitGroup
	logger   *zap.Logger
}

// notify 投递事件；调用方 ctx 先结束时不再等待
func (d *detachedNotifier) notify(ctx context.Context, events []models.Event) {
	if len(events) == 0 {
		return
	}

	done := make(chan struct{})
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer close(done)
		d.notifier.NotifyAll(context.WithoutCancel(ctx), events)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Info("Request cancelled, dispatch continues in background",
			zap.Int("events", len(events)),
			zap.String("subject", events[0].Subject()),
		)
	}
}

// Drain 等待后台投递完成（关闭服务时调用）
func (d *detachedNotifier) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to drain dispatches: %w", ctx.Err())
	}
}
