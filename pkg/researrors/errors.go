// Package researrors defines the typed error kinds shared across the
// research engine (§7). Each type carries enough context to reconstruct
// the failure from the error alone, and each composes with errors.Is/As
// via Unwrap.
package researrors

import "fmt"

// AuthError indicates adapter credentials are invalid. Terminal — it
// fails a cycle's pre-flight and is never retried.
type AuthError struct {
	Adapter string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error for adapter %q: %v", e.Adapter, e.Err)
}
func (e *AuthError) Unwrap() error { return e.Err }

// ProviderTransientError indicates a connection/timeout failure that the
// backoff policy should retry.
type ProviderTransientError struct {
	Provider string
	Err      error
}

func (e *ProviderTransientError) Error() string {
	return fmt.Sprintf("transient error from provider %q: %v", e.Provider, e.Err)
}
func (e *ProviderTransientError) Unwrap() error { return e.Err }

// ProviderPermanentError indicates a non-auth 4xx-class failure. Not
// retried; the worker records the failure and the cycle continues.
type ProviderPermanentError struct {
	Provider string
	Err      error
}

func (e *ProviderPermanentError) Error() string {
	return fmt.Sprintf("permanent error from provider %q: %v", e.Provider, e.Err)
}
func (e *ProviderPermanentError) Unwrap() error { return e.Err }

// ParseError indicates malformed JSON from a Lead call. Always handled
// by the caller's documented fallback — never propagates out of pkg/lead.
type ParseError struct {
	Stage string // "select", "synthesize", "reassess"
	Raw   string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in lead.%s: %v", e.Stage, e.Err)
}
func (e *ParseError) Unwrap() error { return e.Err }

// ToolExecutionError indicates a tool call returned an exception or the
// wrong shape. The worker records it as an observation string and lets
// the model react; it does not abort the worker loop.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("error executing %s: %v", e.Tool, e.Err)
}
func (e *ToolExecutionError) Unwrap() error { return e.Err }

// StoreInvariantError indicates a constraint violation in the Store.
// Fatal for the operation; surfaced to the caller.
type StoreInvariantError struct {
	Invariant string // e.g. "I1", "I2"
	Detail    string
}

func (e *StoreInvariantError) Error() string {
	return fmt.Sprintf("store invariant %s violated: %s", e.Invariant, e.Detail)
}

// CycleAlreadyRunningError indicates a RunCycle call was rejected because
// another cycle is already running on the same workspace (P10).
type CycleAlreadyRunningError struct {
	WorkspaceID    string
	ActiveCycleID  int
}

func (e *CycleAlreadyRunningError) Error() string {
	return fmt.Sprintf("cycle already running in workspace %q (active cycle %d)", e.WorkspaceID, e.ActiveCycleID)
}

// ReportBusyError indicates a report generation request arrived while
// another one was already in flight for the workspace.
type ReportBusyError struct {
	WorkspaceID string
}

func (e *ReportBusyError) Error() string {
	return fmt.Sprintf("report generation already in progress for workspace %q", e.WorkspaceID)
}

// BudgetExceeded indicates a worker hit max_iterations or max_searches.
// Soft stop: the worker returns its partial output rather than failing.
type BudgetExceeded struct {
	Kind  string // "iterations" or "searches"
	Limit int
}

func (e *BudgetExceeded) Error() string {
	return fmt.Sprintf("budget exceeded: %s limit %d reached", e.Kind, e.Limit)
}
