// Package batch holds per-item outcomes of operations that continue past individual failures.
package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK      ItemStatus = "ok"
	StatusError   ItemStatus = "error"
	StatusSkipped ItemStatus = "skipped"
)

// Result is the outcome of processing one item (a file, a patch section) in a batch operation.
type Result struct {
	id     string
	status ItemStatus
	detail string
	err    error
}

// NewOK creates a successful batch result.
func NewOK(id string) Result { return Result{id: id, status: StatusOK} }

// NewError creates a failed batch result.
func NewError(id string, err error) Result { return Result{id: id, status: StatusError, err: err} }

// NewSkipped creates a result for an item that was intentionally not processed.
func NewSkipped(id, reason string) Result {
	return Result{id: id, status: StatusSkipped, detail: reason}
}

// WithDetail returns a copy carrying a human-readable note.
func (r Result) WithDetail(detail string) Result {
	r.detail = detail
	return r
}

// ID returns the item identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Detail returns the optional note (skip reason, summary).
func (r Result) Detail() string { return r.detail }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Summary counts outcomes by status.
type Summary struct {
	OK      int
	Failed  int
	Skipped int
}

// Summarize aggregates a slice of results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.status {
		case StatusOK:
			s.OK++
		case StatusError:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}
