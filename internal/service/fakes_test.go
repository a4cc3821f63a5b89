package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"wisefido-vitals/internal/models"
	"wisefido-vitals/internal/repository"
)

// fakeNotifier 记录投递的事件；release 非 nil 时阻塞到 release 关闭
type fakeNotifier struct {
	mu      sync.Mutex
	events  []models.Event
	release chan struct{}
	started chan struct{}
}

func (n *fakeNotifier) Notify(ctx context.Context, e models.Event) models.DispatchOutcome {
	return n.NotifyAll(ctx, []models.Event{e})[0]
}

func (n *fakeNotifier) NotifyAll(ctx context.Context, events []models.Event) []models.DispatchOutcome {
	if n.started != nil {
		close(n.started)
	}
	if n.release != nil {
		<-n.release
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)

	outcomes := make([]models.DispatchOutcome, len(events))
	for i, e := range events {
		outcomes[i] = models.DispatchOutcome{Subject: e.Subject(), Topic: e.Topic()}
	}
	return outcomes
}

func (n *fakeNotifier) topics() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		out = append(out, e.Topic())
	}
	return out
}

func (n *fakeNotifier) alarmEvents() []models.AlarmTriggered {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.AlarmTriggered
	for _, e := range n.events {
		if a, ok := e.(models.AlarmTriggered); ok {
			out = append(out, a)
		}
	}
	return out
}

// failingStore 事务内写入读数失败
type failingStore struct {
	*repository.MemoryStore
	err error
}

func (s *failingStore) RunInTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.MemoryStore.RunInTx(ctx, func(tx repository.Tx) error {
		return fn(&failingTx{Tx: tx, err: s.err})
	})
}

type failingTx struct {
	repository.Tx
	err error
}

func (tx *failingTx) SaveVital(context.Context, *models.VitalReading) error {
	return tx.err
}

// failingAlarmStore 报警存储全部失败
type failingAlarmStore struct{}

var errStoreDown = errors.New("connection refused")

func (failingAlarmStore) GetAlarm(context.Context, string) (*models.Alarm, error) {
	return nil, errStoreDown
}

func (failingAlarmStore) UpdateAlarmStatus(context.Context, string, string, string, time.Time) (*models.Alarm, error) {
	return nil, errStoreDown
}

func (failingAlarmStore) ListAlarms(context.Context, string, string) ([]*models.Alarm, error) {
	return nil, errStoreDown
}

func (failingAlarmStore) CountActiveAlarms(context.Context, string) (int, error) {
	return 0, errStoreDown
}

func ptr(v float64) *float64 { return &v }
