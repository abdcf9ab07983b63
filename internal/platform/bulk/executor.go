// Package bulk runs one operation across a batch of accounts, one item at a
// time, collecting per-item failures instead of aborting.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ehr/emradmin/internal/platform/metrics"
)

type OperationType string

const (
	OpDeactivate OperationType = "deactivate"
	OpActivate   OperationType = "activate"
	OpAssignRole OperationType = "assignRole"
)

var (
	// ErrNilAction is returned before any item runs when no action is given.
	ErrNilAction = errors.New("bulk: action is required")
	// ErrBusy is returned when Execute is called while a batch is in flight.
	ErrBusy = errors.New("bulk: an operation is already in progress")
)

// Action applies the operation to a single account.
type Action func(ctx context.Context, id string) error

// ProgressFunc is called synchronously after every item.
type ProgressFunc func(Progress)

// NameResolver maps an account ID to a display name for error reports.
type NameResolver func(ctx context.Context, id string) string

type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

type ItemError struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Result summarises a finished batch. Excluded lists IDs removed before the
// run (the acting user on deactivate); they are not counted as successes or
// failures.
type Result struct {
	OperationType OperationType `json:"operationType"`
	Total         int           `json:"total"`
	Successful    int           `json:"successful"`
	Failed        int           `json:"failed"`
	Errors        []ItemError   `json:"errors"`
	Excluded      []string      `json:"excluded,omitempty"`
}

// SelfExcluded reports whether the acting user was filtered out.
func (r *Result) SelfExcluded() bool {
	return len(r.Excluded) > 0
}

// Executor runs bulk operations on behalf of one acting user. Progress is
// non-nil only while a batch runs and Result only after it finished.
type Executor struct {
	actorID   string
	selection *Selection
	names     NameResolver

	mu       sync.Mutex
	loading  bool
	progress *Progress
	result   *Result
}

// NewExecutor returns an executor acting as actorID. A nil selection gets a
// fresh empty one.
func NewExecutor(actorID string, selection *Selection) *Executor {
	if selection == nil {
		selection = NewSelection()
	}
	return &Executor{actorID: actorID, selection: selection}
}

// SetNameResolver attaches a resolver used to label failed items.
func (e *Executor) SetNameResolver(fn NameResolver) {
	e.names = fn
}

func (e *Executor) Selection() *Selection { return e.selection }

func (e *Executor) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// Progress returns a copy of the in-flight progress, or nil at rest.
func (e *Executor) Progress() *Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.progress == nil {
		return nil
	}
	p := *e.progress
	return &p
}

// Result returns a copy of the last completed result, or nil.
func (e *Executor) Result() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return nil
	}
	return e.result.clone()
}

func (r *Result) clone() *Result {
	c := *r
	c.Errors = append([]ItemError{}, r.Errors...)
	if r.Excluded != nil {
		c.Excluded = append([]string{}, r.Excluded...)
	}
	return &c
}

// Dismiss acknowledges the last result: it clears the result and the
// selection.
func (e *Executor) Dismiss() {
	e.mu.Lock()
	e.result = nil
	e.mu.Unlock()
	e.selection.DeselectAll()
}

// ExecuteSelection runs op over the current selection.
func (e *Executor) ExecuteSelection(ctx context.Context, op OperationType, action Action, onProgress ProgressFunc) (*Result, error) {
	return e.Execute(ctx, op, e.selection.IDs(), action, onProgress)
}

// Execute runs action for every id in order. Item failures are recorded in
// the result and never stop the batch. The batch is not cancellable: ctx is
// passed through to action and nothing else. The selection is left intact.
func (e *Executor) Execute(ctx context.Context, op OperationType, ids []string, action Action, onProgress ProgressFunc) (*Result, error) {
	if action == nil {
		return nil, ErrNilAction
	}

	targets, excluded := e.filter(op, ids)
	result := &Result{
		OperationType: op,
		Total:         len(targets),
		Errors:        []ItemError{},
		Excluded:      excluded,
	}

	e.mu.Lock()
	if e.loading {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	e.loading = true
	e.result = nil
	e.progress = &Progress{Total: len(targets)}
	e.mu.Unlock()

	// Leave the executor at rest even if onProgress panics.
	completed := false
	defer func() {
		e.mu.Lock()
		e.progress = nil
		e.loading = false
		if completed {
			e.result = result.clone()
		}
		e.mu.Unlock()
	}()

	if len(excluded) > 0 {
		metrics.BulkSelfExcludedTotal.WithLabelValues(string(op)).Inc()
	}
	start := time.Now()

	for i, id := range targets {
		if err := runItem(ctx, action, id); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, e.itemError(ctx, id, err))
			metrics.BulkItemsTotal.WithLabelValues(string(op), "failure").Inc()
		} else {
			result.Successful++
			metrics.BulkItemsTotal.WithLabelValues(string(op), "success").Inc()
		}

		p := Progress{
			Current:    i + 1,
			Total:      len(targets),
			Percentage: percentage(i+1, len(targets)),
		}
		e.mu.Lock()
		e.progress = &p
		e.mu.Unlock()
		if onProgress != nil {
			onProgress(p)
		}
	}

	metrics.BulkOperationsTotal.WithLabelValues(string(op)).Inc()
	metrics.BulkOperationDuration.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())

	completed = true
	return result, nil
}

// PanicError is the item error recorded when an action panics.
type PanicError struct {
	Value interface{}
}

func (p *PanicError) Error() string { return fmt.Sprintf("panic: %v", p.Value) }
func (p *PanicError) Code() string  { return "processing" }

func runItem(ctx context.Context, action Action, id string) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v}
		}
	}()
	return action(ctx, id)
}

// filter drops the acting user from deactivate batches.
func (e *Executor) filter(op OperationType, ids []string) (targets, excluded []string) {
	targets = make([]string, 0, len(ids))
	for _, id := range ids {
		if op == OpDeactivate && e.actorID != "" && id == e.actorID {
			if len(excluded) == 0 {
				excluded = append(excluded, id)
			}
			continue
		}
		targets = append(targets, id)
	}
	return targets, excluded
}

func (e *Executor) itemError(ctx context.Context, id string, err error) ItemError {
	item := ItemError{ID: id, Name: id, Error: fmt.Sprint(err)}
	if e.names != nil {
		if name := e.names(ctx, id); name != "" {
			item.Name = name
		}
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		item.Code = coded.Code()
	}
	return item
}

func percentage(current, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(current) / float64(total)))
}
