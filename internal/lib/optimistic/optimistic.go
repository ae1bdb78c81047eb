// Package optimistic реализует единую стратегию оптимистичного обновления:
// применить предварительное изменение локально, выполнить вызов к серверу,
// при успехе слить авторитетный ответ, при ошибке откатиться к снимку до вызова.
package optimistic

import (
	"context"
	"errors"
)

// ErrNoCall возвращается, если у шага не задан сетевой вызов.
var ErrNoCall = errors.New("optimistic: step has no call")

// Step описывает одно оптимистичное изменение.
type Step[R any] struct {
	// Apply применяет предварительное изменение и возвращает функцию отката.
	// nil означает, что откатывать нечего.
	Apply func() (rollback func())
	// Call выполняет вызов к серверу.
	Call func(ctx context.Context) (R, error)
	// Merge сливает авторитетный ответ в локальное состояние.
	Merge func(ctx context.Context, res R) error
}

// Do выполняет шаг. Ошибка Call приводит к откату и возвращается как есть.
// Ошибка Merge откат не вызывает: сервер уже принял изменение.
func Do[R any](ctx context.Context, step Step[R]) (R, error) {
	var zero R
	if step.Call == nil {
		return zero, ErrNoCall
	}

	var rollback func()
	if step.Apply != nil {
		rollback = step.Apply()
	}

	res, err := step.Call(ctx)
	if err != nil {
		if rollback != nil {
			rollback()
		}
		return zero, err
	}

	if step.Merge != nil {
		if err := step.Merge(ctx, res); err != nil {
			return res, err
		}
	}
	return res, nil
}
