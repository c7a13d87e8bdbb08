// Package errors defines the structured error and diagnostic model for the
// build engine. Per-unit failures are isolated: one unit failing to parse or
// render never aborts the units that do not depend on it.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeParse        ErrorType = "parse"
	ErrorTypeRegistration ErrorType = "registration"
	ErrorTypeResolution   ErrorType = "resolution"
	ErrorTypeCycle        ErrorType = "cycle"
	ErrorTypeRender       ErrorType = "render"
	ErrorTypeConfig       ErrorType = "config"
	ErrorTypeIO           ErrorType = "io"
	ErrorTypeInternal     ErrorType = "internal"
)

// Error codes used across the engine.
const (
	ErrCodeParseSyntax          = "PARSE_SYNTAX"
	ErrCodeUnterminatedTag      = "PARSE_UNTERMINATED_TAG"
	ErrCodeRegistrationConflict = "REGISTRATION_CONFLICT"
	ErrCodeUnresolvedComponent  = "UNRESOLVED_COMPONENT"
	ErrCodeCycleDetected        = "CYCLE_DETECTED"
	ErrCodeRenderLimit          = "RENDER_LIMIT_EXCEEDED"
	ErrCodeUndefinedParameter   = "UNDEFINED_PARAMETER"
	ErrCodeUnknownVariable      = "UNKNOWN_VARIABLE"
	ErrCodeConfigInvalid        = "CONFIG_INVALID"
	ErrCodeIOFailure            = "IO_FAILURE"
	ErrCodeInternal             = "INTERNAL"
)

// EngineError is a structured error type with context.
type EngineError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	UnitID      string
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.UnitID != "" {
		parts = append(parts, "unit:"+e.UnitID)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is matches errors by type and code so callers can test against the
// constructor-produced sentinels with errors.Is.
func (e *EngineError) Is(target error) bool {
	var t *EngineError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *EngineError) WithLocation(filePath string, line, column int) *EngineError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithUnit adds the owning unit's identifier.
func (e *EngineError) WithUnit(unitID string) *EngineError {
	e.UnitID = unitID

	return e
}

// NewParseError creates a parse error attributed to a single unit. Parsing of
// other units continues unaffected.
func NewParseError(unitID, message string) *EngineError {
	return &EngineError{
		Type:        ErrorTypeParse,
		Code:        ErrCodeParseSyntax,
		Message:     message,
		UnitID:      unitID,
		Recoverable: true,
	}
}

// NewUnterminatedTagError creates a parse error for an invocation tag that is
// never closed.
func NewUnterminatedTagError(unitID, target string) *EngineError {
	return &EngineError{
		Type:        ErrorTypeParse,
		Code:        ErrCodeUnterminatedTag,
		Message:     fmt.Sprintf("unterminated invocation of %q", target),
		UnitID:      unitID,
		Recoverable: true,
	}
}

// NewRegistrationConflict creates the error returned when two different
// source paths derive the same component identifier. The first registration
// stays intact; the caller owns reporting the rejected one.
func NewRegistrationConflict(id, existingPath, newPath string) *EngineError {
	return &EngineError{
		Type:        ErrorTypeRegistration,
		Code:        ErrCodeRegistrationConflict,
		Message:     fmt.Sprintf("component id %q already registered from %s, rejecting %s", id, existingPath, newPath),
		UnitID:      id,
		Recoverable: true,
	}
}

// NewRenderLimitError creates the error for a render that exceeded the
// recursion-depth ceiling. Fatal for that unit only.
func NewRenderLimitError(unitID string, depth int) *EngineError {
	return &EngineError{
		Type:        ErrorTypeRender,
		Code:        ErrCodeRenderLimit,
		Message:     fmt.Sprintf("render depth ceiling %d exceeded", depth),
		UnitID:      unitID,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *EngineError {
	return &EngineError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewIOError creates an I/O error.
func NewIOError(message string, cause error) *EngineError {
	return &EngineError{
		Type:        ErrorTypeIO,
		Code:        ErrCodeIOFailure,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *EngineError {
	return &EngineError{
		Type:        ErrorTypeInternal,
		Code:        ErrCodeInternal,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Recoverable
	}

	return false
}

// IsParseError checks if an error is a parse error.
func IsParseError(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Type == ErrorTypeParse
	}

	return false
}

// IsRegistrationConflict checks if an error is a registration conflict.
func IsRegistrationConflict(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeRegistrationConflict
	}

	return false
}

// IsRenderLimit checks if an error is a recursion-ceiling failure.
func IsRenderLimit(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeRenderLimit
	}

	return false
}
