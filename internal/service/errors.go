package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput 请求参数不合法（HTTP 400）
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTransition 报警当前状态不允许该操作（HTTP 409）
	ErrInvalidTransition = errors.New("invalid alarm status transition")
)

// PersistenceError 存储失败，录入调用整体失败（HTTP 500）
type PersistenceError struct {
	Op  string // save_vital, evaluate, save_alarm, commit, update_vital, update_alarm_status ...
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
