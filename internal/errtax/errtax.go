// Package errtax implements the error taxonomy described in the design:
// every fallible engine operation returns a *CodeError carrying a stable,
// dotted Kind instead of an ad-hoc error string, so callers across the
// tool-dispatch boundary can switch on category without string matching.
package errtax

import (
	"fmt"
	"time"
)

// Category is the coarse bucket a Kind belongs to (input, not_found, io,
// concurrency, resource, edit, internal — see spec.md §7).
type Category string

const (
	CategoryInput       Category = "input"
	CategoryNotFound    Category = "not_found"
	CategoryIO          Category = "io"
	CategoryConcurrency Category = "concurrency"
	CategoryResource    Category = "resource"
	CategoryEdit        Category = "edit"
	CategoryInternal    Category = "internal"
)

// Well-known kinds, dotted as "<category>.<reason>" for easy grepping in
// logs and for direct equality comparisons by callers.
const (
	InvalidPath       = "input.invalid_path"
	InvalidSymbolName = "input.invalid_symbol_name"
	InvalidRegex      = "input.invalid_regex"
	UnsafeRegex       = "input.unsafe_regex"
	NoProject         = "input.no_project"

	FileNotFound    = "not_found.file_not_found"
	FileNotInIndex  = "not_found.file_not_in_index"
	SymbolNotFound  = "not_found.symbol_not_found"

	PermissionDenied  = "io.permission_denied"
	EncodingError     = "io.encoding_error"
	DiskWriteFailed   = "io.disk_write_failed"

	LockTimeout      = "concurrency.lock_timeout"
	LockUnavailable  = "concurrency.lock_unavailable"
	IncompatibleKind = "concurrency.incompatible_kind"

	MemoryLimitExceeded = "resource.memory_limit_exceeded"
	BackupRefused       = "resource.backup_refused"
	FileTooLarge        = "resource.file_too_large"

	ContentMismatch   = "edit.content_mismatch"
	RollbackSucceeded = "edit.rollback_succeeded"
	RollbackFailed    = "edit.rollback_failed"
	RollbackUnsafe    = "edit.rollback_unsafe"
	LockFailed        = "edit.lock_failed"

	ParserFailed      = "internal.parser_failed"
	IndexInconsistent = "internal.index_inconsistent"
)

// CodeError is the single error type returned across the engine boundary.
type CodeError struct {
	Kind      string
	Message   string
	Op        string
	Path      string
	Cause     error
	Timestamp time.Time
	Critical  bool
}

// New builds a CodeError with the given kind and formatted message.
func New(kind, op string, format string, args ...interface{}) *CodeError {
	return &CodeError{
		Kind:      kind,
		Op:        op,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

// Wrap builds a CodeError that carries an underlying cause.
func Wrap(kind, op string, cause error, format string, args ...interface{}) *CodeError {
	e := New(kind, op, format, args...)
	e.Cause = cause
	return e
}

// WithPath attaches the file path this error concerns.
func (e *CodeError) WithPath(path string) *CodeError {
	e.Path = path
	return e
}

// AsCritical marks the error as one that requires caller-side rebuild
// (index_inconsistent, rollback_failed).
func (e *CodeError) AsCritical() *CodeError {
	e.Critical = true
	return e
}

// Error implements the error interface.
func (e *CodeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s): %s", e.Op, e.Kind, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

// Unwrap supports errors.Is / errors.As against the wrapped cause.
func (e *CodeError) Unwrap() error {
	return e.Cause
}

// Category returns the coarse bucket derived from Kind's prefix.
func (e *CodeError) Category() Category {
	for i, c := range e.Kind {
		if c == '.' {
			return Category(e.Kind[:i])
		}
	}
	return CategoryInternal
}
