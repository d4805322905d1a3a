package resolver

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is classification. The typed errors below
// match them via Is so callers can branch on kind without losing detail.
var (
	ErrParse        = errors.New("bom parse error")
	ErrFileNotFound = errors.New("bom file not found")
)

// ParseError reports an unparseable BOM document.
type ParseError struct {
	Path   string
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse bom %s (%s): %v", e.Path, e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// FileNotFoundError reports a missing BOM or manifest file with the path
// that was attempted.
type FileNotFoundError struct {
	Path string
	Err  error
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("bom file not found: %s", e.Path)
}

func (e *FileNotFoundError) Unwrap() error { return e.Err }

func (e *FileNotFoundError) Is(target error) bool { return target == ErrFileNotFound }

// ReferenceError reports a component reference that could not be resolved.
type ReferenceError struct {
	ComponentID string
	Reference   string
	Err         error
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("component %s: cannot resolve reference %q: %v", e.ComponentID, e.Reference, e.Err)
}

func (e *ReferenceError) Unwrap() error { return e.Err }

// MaxDepthError reports a BOM deeper than the allowed explosion depth.
// Fatal to the run; callers pick the depth, the resolver never truncates.
type MaxDepthError struct {
	Depth    int
	MaxDepth int
}

func (e *MaxDepthError) Error() string {
	return fmt.Sprintf("bom exceeds max depth: reached %d, limit %d", e.Depth, e.MaxDepth)
}

// CircularReferenceError reports a component that reaches itself through
// its reference chain. Fatal to the run.
type CircularReferenceError struct {
	Cycle []string
}

func (e *CircularReferenceError) Error() string {
	return fmt.Sprintf("circular reference: %s", strings.Join(e.Cycle, " -> "))
}
