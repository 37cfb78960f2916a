package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParseAmbiguity marks a script line the parser could not classify.
	// It is never fatal; the line falls back to action text.
	ErrParseAmbiguity = errors.New("parse ambiguity")
	// ErrGenerationTransient marks vendor failures worth retrying (timeouts, 5xx).
	ErrGenerationTransient = errors.New("transient generation failure")
	// ErrGenerationPermanent marks vendor rejections that must not be retried.
	ErrGenerationPermanent = errors.New("permanent generation failure")
	// ErrMappingGap marks audio whose scene identity could not be resolved.
	ErrMappingGap = errors.New("mapping gap")
	// ErrBarrierTimeout marks a stage that never reached its barrier in time.
	ErrBarrierTimeout = errors.New("pipeline barrier timeout")

	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
	ErrTerminal       = errors.New("generation is in a terminal state")
	ErrStatusConflict = errors.New("status changed concurrently")
	ErrCancelled      = errors.New("generation cancelled")
)

// ErrorKind names the marker family attached to an error.
type ErrorKind string

const (
	KindUnknown        ErrorKind = "unknown"
	KindParse          ErrorKind = "parse_ambiguity"
	KindTransient      ErrorKind = "generation_transient"
	KindPermanent      ErrorKind = "generation_permanent"
	KindMappingGap     ErrorKind = "mapping_gap"
	KindBarrierTimeout ErrorKind = "barrier_timeout"
	KindValidation     ErrorKind = "validation"
	KindConfiguration  ErrorKind = "configuration"
	KindNotFound       ErrorKind = "not_found"
	KindTerminal       ErrorKind = "terminal"
	KindConflict       ErrorKind = "status_conflict"
	KindCancelled      ErrorKind = "cancelled"
)

var markerKinds = []struct {
	marker error
	kind   ErrorKind
	hint   string
}{
	{ErrGenerationTransient, KindTransient, "vendor call will be retried with backoff"},
	{ErrGenerationPermanent, KindPermanent, "vendor rejected the request; adjust the prompt or script"},
	{ErrBarrierTimeout, KindBarrierTimeout, "raise workflow.stage_timeout_minutes or check vendor latency"},
	{ErrMappingGap, KindMappingGap, "audio kept under unmapped; set scene_id on the asset"},
	{ErrParseAmbiguity, KindParse, "line treated as action text"},
	{ErrValidation, KindValidation, "check the request payload"},
	{ErrConfiguration, KindConfiguration, "check the configuration file"},
	{ErrNotFound, KindNotFound, "verify the identifier"},
	{ErrTerminal, KindTerminal, "generation already finished; start a new one"},
	{ErrStatusConflict, KindConflict, "another worker advanced the generation"},
	{ErrCancelled, KindCancelled, "generation was cancelled by the caller"},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrGenerationTransient
	}
	if err != nil {
		return &wrappedError{
			marker:    marker,
			operation: strings.TrimSpace(operation),
			message:   strings.TrimSpace(message),
			err:       fmt.Errorf("%w: %s: %w", marker, detail, err),
			cause:     err,
		}
	}
	return &wrappedError{
		marker:    marker,
		operation: strings.TrimSpace(operation),
		message:   strings.TrimSpace(message),
		err:       fmt.Errorf("%w: %s", marker, detail),
	}
}

type wrappedError struct {
	marker    error
	operation string
	message   string
	err       error
	cause     error
}

func (w *wrappedError) Error() string { return w.err.Error() }

func (w *wrappedError) Unwrap() error { return w.err }

// ErrorDetails is the structured view of an error produced by Wrap.
type ErrorDetails struct {
	Kind      ErrorKind
	Operation string
	Message   string
	Hint      string
	Cause     error
}

// Details extracts the marker kind, operation, message and cause from err.
// Errors not produced by Wrap still resolve their kind through errors.Is.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	details := ErrorDetails{Kind: KindUnknown, Message: err.Error()}
	for _, mk := range markerKinds {
		if errors.Is(err, mk.marker) {
			details.Kind = mk.kind
			details.Hint = mk.hint
			break
		}
	}
	var wrapped *wrappedError
	if errors.As(err, &wrapped) {
		details.Operation = wrapped.operation
		if wrapped.message != "" {
			details.Message = wrapped.message
		}
		details.Cause = wrapped.cause
	}
	return details
}

// Retryable reports whether err carries a transient-class marker.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrGenerationPermanent) || errors.Is(err, ErrValidation) || errors.Is(err, ErrCancelled) {
		return false
	}
	return errors.Is(err, ErrGenerationTransient) || errors.Is(err, ErrBarrierTimeout)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
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
