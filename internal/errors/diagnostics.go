package errors

import (
	"fmt"
	"sync"
	"time"
)

// DiagnosticKind classifies the events on the diagnostic stream.
type DiagnosticKind string

const (
	DiagParseError           DiagnosticKind = "parse_error"
	DiagRegistrationConflict DiagnosticKind = "registration_conflict"
	DiagUnresolvedComponent  DiagnosticKind = "unresolved_component"
	DiagCycleDetected        DiagnosticKind = "cycle_detected"
	DiagRenderLimit          DiagnosticKind = "render_limit_exceeded"
	DiagUndefinedParameter   DiagnosticKind = "undefined_parameter"
	DiagUnknownVariable      DiagnosticKind = "unknown_variable"
	DiagAudit                DiagnosticKind = "audit"
)

// Severity represents the severity of a diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Diagnostic is one event on the build diagnostic stream: a parse failure, an
// unresolved component, a detected cycle, an undefined parameter, and so on.
// Non-fatal diagnostics accompany output that was still produced.
type Diagnostic struct {
	Kind      DiagnosticKind
	Severity  Severity
	UnitID    string
	File      string
	Line      int
	Column    int
	Message   string
	Timestamp time.Time
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	if d.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.UnitID, d.Severity, d.Message)
}

// Collector accumulates diagnostics across a build and fans them out to
// subscribed watchers (dev server overlay, logging). Safe for concurrent use.
type Collector struct {
	diagnostics []Diagnostic
	mutex       sync.RWMutex
	watchers    []chan Diagnostic
}

// NewCollector creates a new diagnostic collector.
func NewCollector() *Collector {
	return &Collector{
		diagnostics: make([]Diagnostic, 0),
	}
}

// Add records a diagnostic and notifies watchers. Slow watchers are skipped
// rather than blocking the build.
func (c *Collector) Add(d Diagnostic) {
	c.mutex.Lock()
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	c.diagnostics = append(c.diagnostics, d)
	watchers := make([]chan Diagnostic, len(c.watchers))
	copy(watchers, c.watchers)
	c.mutex.Unlock()

	for _, watcher := range watchers {
		select {
		case watcher <- d:
		default:
		}
	}
}

// AddError records an engine error as a diagnostic, mapping its code to the
// matching diagnostic kind.
func (c *Collector) AddError(err error) {
	if err == nil {
		return
	}

	d := Diagnostic{Kind: DiagParseError, Severity: SeverityError, Message: err.Error()}
	if ee, ok := err.(*EngineError); ok {
		d.UnitID = ee.UnitID
		d.File = ee.FilePath
		d.Line = ee.Line
		d.Column = ee.Column
		d.Message = ee.Message
		switch ee.Code {
		case ErrCodeRegistrationConflict:
			d.Kind = DiagRegistrationConflict
		case ErrCodeUnresolvedComponent:
			d.Kind = DiagUnresolvedComponent
			d.Severity = SeverityWarning
		case ErrCodeCycleDetected:
			d.Kind = DiagCycleDetected
			d.Severity = SeverityWarning
		case ErrCodeRenderLimit:
			d.Kind = DiagRenderLimit
			d.Severity = SeverityFatal
		case ErrCodeUndefinedParameter:
			d.Kind = DiagUndefinedParameter
			d.Severity = SeverityWarning
		case ErrCodeUnknownVariable:
			d.Kind = DiagUnknownVariable
			d.Severity = SeverityWarning
		}
	}
	c.Add(d)
}

// Watch subscribes to the diagnostic stream. The returned channel is buffered;
// events are dropped for subscribers that fall behind.
func (c *Collector) Watch() <-chan Diagnostic {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	ch := make(chan Diagnostic, 64)
	c.watchers = append(c.watchers, ch)
	return ch
}

// UnWatch removes a subscription.
func (c *Collector) UnWatch(ch <-chan Diagnostic) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for i, watcher := range c.watchers {
		if watcher == ch {
			c.watchers = append(c.watchers[:i], c.watchers[i+1:]...)
			close(watcher)
			break
		}
	}
}

// All returns a copy of every collected diagnostic.
func (c *Collector) All() []Diagnostic {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result := make([]Diagnostic, len(c.diagnostics))
	copy(result, c.diagnostics)
	return result
}

// ByUnit returns the diagnostics attributed to one unit.
func (c *Collector) ByUnit(unitID string) []Diagnostic {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	var result []Diagnostic
	for _, d := range c.diagnostics {
		if d.UnitID == unitID {
			result = append(result, d)
		}
	}
	return result
}

// ByKind returns the diagnostics of one kind.
func (c *Collector) ByKind(kind DiagnosticKind) []Diagnostic {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	var result []Diagnostic
	for _, d := range c.diagnostics {
		if d.Kind == kind {
			result = append(result, d)
		}
	}
	return result
}

// HasErrors reports whether any diagnostic at error severity or above was
// collected.
func (c *Collector) HasErrors() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	for _, d := range c.diagnostics {
		if d.Severity >= SeverityError {
			return true
		}
	}
	return false
}

// Count returns the number of collected diagnostics.
func (c *Collector) Count() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.diagnostics)
}

// ClearUnit removes the diagnostics attributed to one unit, keeping the rest.
// The engine calls it when a unit is reprocessed, so the collected set always
// reflects each unit's latest state rather than its history.
func (c *Collector) ClearUnit(unitID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	kept := c.diagnostics[:0]
	for _, d := range c.diagnostics {
		if d.UnitID != unitID {
			kept = append(kept, d)
		}
	}
	c.diagnostics = kept
}

// Clear removes all collected diagnostics, keeping subscriptions alive.
func (c *Collector) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.diagnostics = c.diagnostics[:0]
}
