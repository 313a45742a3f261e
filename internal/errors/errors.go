// Package errors provides error handling for ContigKit.
//
// It re-exports github.com/cockroachdb/errors and adds the run-abort taxonomy
// used by every stage of the pipeline: malformed input rows, invalid rule
// tables, missing join keys and file access failures. Each typed error
// matches its sentinel with Is, so callers can branch without type switches:
//
//	if errors.Is(err, errors.ErrMalformedInput) {
//	    // bad row in an input file
//	}
package errors

import (
	"fmt"
	"strings"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint      = crdb.WithHint
	WithHintf     = crdb.WithHintf
	WithDetail    = crdb.WithDetail
	WithDetailf   = crdb.WithDetailf
	GetAllHints   = crdb.GetAllHints
	FlattenHints  = crdb.FlattenHints
	GetAllDetails = crdb.GetAllDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Sentinels for the failure classes of a run.
var (
	// ErrMalformedInput indicates a hit, stats or rule row with the wrong shape or types
	ErrMalformedInput = New("malformed input")

	// ErrRuleValidation indicates a rule table that cannot drive classification
	ErrRuleValidation = New("invalid rule table")

	// ErrMissingKey indicates a contig id present on one side of a join only
	ErrMissingKey = New("missing key")

	// ErrIO indicates a file that could not be opened, read or written
	ErrIO = New("i/o failure")
)

// MalformedInputError locates a bad record in an input file.
type MalformedInputError struct {
	Path   string
	Line   int64
	Column string
	Reason string
}

func (e *MalformedInputError) Error() string {
	return "malformed input: " + location(e.Path, e.Line, e.Column) + e.Reason
}

func (e *MalformedInputError) Is(target error) bool { return target == ErrMalformedInput }

// RuleValidationError reports why a rule table was rejected.
type RuleValidationError struct {
	Path   string
	Line   int64
	Reason string
}

func (e *RuleValidationError) Error() string {
	return "invalid rule table: " + location(e.Path, e.Line, "") + e.Reason
}

func (e *RuleValidationError) Is(target error) bool { return target == ErrRuleValidation }

// MissingKeyError names a contig that could not be joined or classified.
type MissingKeyError struct {
	Path   string
	Line   int64
	Key    string
	Reason string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing key %q: %s%s", e.Key, location(e.Path, e.Line, ""), e.Reason)
}

func (e *MissingKeyError) Is(target error) bool { return target == ErrMissingKey }

// IOError wraps a filesystem failure with the operation and path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// NewIOError returns nil when err is nil so it can wrap call results directly.
func NewIOError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// Malformedf builds a MalformedInputError with a formatted reason.
func Malformedf(path string, line int64, column, format string, args ...any) error {
	return &MalformedInputError{Path: path, Line: line, Column: column, Reason: fmt.Sprintf(format, args...)}
}

// RuleInvalidf builds a RuleValidationError with a formatted reason.
func RuleInvalidf(path string, line int64, format string, args ...any) error {
	return &RuleValidationError{Path: path, Line: line, Reason: fmt.Sprintf(format, args...)}
}

func location(path string, line int64, column string) string {
	var parts []string
	if path != "" {
		parts = append(parts, path)
	}
	if line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", line))
	}
	if column != "" {
		parts = append(parts, "column "+column)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ": ") + ": "
}
