package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
)

var (
	// ErrNotTemplate is returned by recurrence operations on tasks that do not generate instances.
	ErrNotTemplate = errors.New("task is not a recurring template")
	// ErrTemplateCompletion is returned when a template itself is marked done.
	ErrTemplateCompletion = errors.New("recurring templates are completed through their instances")
)

// ConcurrentModificationError means another operation changed or removed the
// template while this one was in flight. Retrying is safe.
type ConcurrentModificationError struct {
	TemplateID uint
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("template %d was modified concurrently, retry", e.TemplateID)
}

// TransactionError wraps a storage failure. The operation was rolled back.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: transaction failed: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// wrapTxError leaves domain errors untouched and tags everything else as a
// storage failure.
func wrapTxError(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ruleErr *recurrence.InvalidRuleError
		tzErr   *recurrence.TimezoneResolutionError
		modErr  *ConcurrentModificationError
	)
	switch {
	case errors.As(err, &ruleErr), errors.As(err, &tzErr), errors.As(err, &modErr),
		errors.Is(err, ErrNotTemplate), errors.Is(err, ErrTemplateCompletion),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &TransactionError{Op: op, Err: err}
}

// asConflict reports a write lock held by another connection (the bot and
// plannerctl share the file) as a concurrent modification of the template.
func asConflict(templateID uint, err error) error {
	if repository.IsBusy(err) {
		return &ConcurrentModificationError{TemplateID: templateID}
	}
	return err
}
