package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfigNotFound    = errors.New("station config not found")
	ErrMissingDependency = errors.New("missing dependency")
	ErrExtraction        = errors.New("json extraction failed")
	ErrStationValidation = errors.New("station validation failed")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrSessionBusy       = errors.New("session busy")
	ErrTransport         = errors.New("llm transport error")
	ErrConfiguration     = errors.New("configuration error")
	ErrValidation        = errors.New("validation error")
	ErrCancelled         = errors.New("cancelled")
)

// ErrorKind is the coarse classification surfaced in run reports and logs.
type ErrorKind string

const (
	KindConfigNotFound    ErrorKind = "config_not_found"
	KindMissingDependency ErrorKind = "missing_dependency"
	KindExtraction        ErrorKind = "extraction"
	KindStationValidation ErrorKind = "station_validation"
	KindStoreUnavailable  ErrorKind = "store_unavailable"
	KindSessionBusy       ErrorKind = "session_busy"
	KindTransport         ErrorKind = "transport"
	KindConfiguration     ErrorKind = "configuration"
	KindValidation        ErrorKind = "validation"
	KindCancelled         ErrorKind = "cancelled"
	KindInternal          ErrorKind = "internal"
)

// kindOrder is checked top to bottom; the first matching marker wins.
var kindOrder = []struct {
	marker error
	kind   ErrorKind
}{
	{ErrCancelled, KindCancelled},
	{ErrSessionBusy, KindSessionBusy},
	{ErrConfigNotFound, KindConfigNotFound},
	{ErrMissingDependency, KindMissingDependency},
	{ErrStationValidation, KindStationValidation},
	{ErrExtraction, KindExtraction},
	{ErrStoreUnavailable, KindStoreUnavailable},
	{ErrTransport, KindTransport},
	{ErrConfiguration, KindConfiguration},
	{ErrValidation, KindValidation},
}

// ServiceError carries station context alongside a classification marker.
type ServiceError struct {
	Marker    error
	Station   string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

func (e *ServiceError) Error() string {
	if e == nil {
		return "<nil>"
	}
	detail := buildDetail(e.Station, e.Operation, e.Message)
	marker := e.Marker
	if marker == nil {
		marker = ErrValidation
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", marker.Error(), detail, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", marker.Error(), detail)
}

func (e *ServiceError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Wrap builds an error message that includes station context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, station, operation, message string, err error) error {
	if marker == nil {
		marker = ErrValidation
	}
	return &ServiceError{
		Marker:    marker,
		Station:   strings.TrimSpace(station),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// WithHint attaches an operator-facing next step to err. Errors that are not
// ServiceErrors are wrapped as validation failures first.
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	hint = strings.TrimSpace(hint)
	var svc *ServiceError
	if errors.As(err, &svc) {
		clone := *svc
		clone.Hint = hint
		return &clone
	}
	return &ServiceError{Marker: markerFor(err), Message: err.Error(), Hint: hint, Cause: err}
}

// ErrorDetails is the flattened view of an error used by reports and logs.
type ErrorDetails struct {
	Kind      ErrorKind
	Station   string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

// Details extracts classification and context from err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: KindOf(err), Message: strings.TrimSpace(err.Error()), Cause: err}
	var svc *ServiceError
	if errors.As(err, &svc) {
		details.Station = svc.Station
		details.Operation = svc.Operation
		details.Hint = svc.Hint
		if svc.Cause != nil {
			details.Cause = svc.Cause
		}
	}
	return details
}

// KindOf classifies err by the first marker it matches.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	for _, entry := range kindOrder {
		if errors.Is(err, entry.marker) {
			return entry.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}
	return KindInternal
}

func markerFor(err error) error {
	for _, entry := range kindOrder {
		if errors.Is(err, entry.marker) {
			return entry.marker
		}
	}
	return ErrValidation
}

func buildDetail(station, operation, message string) string {
	parts := make([]string, 0, 3)
	if station = strings.TrimSpace(station); station != "" {
		parts = append(parts, station)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
