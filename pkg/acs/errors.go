package acs

import (
	"errors"
	"fmt"
)

// Terminal error kinds of a selection cycle
var (
	ErrConfigurationUnsupported = errors.New("acs: configuration not supported")
	ErrScanIssuance             = errors.New("acs: failed to request scan")
	ErrScanFetch                = errors.New("acs: failed to fetch survey data")
	ErrInsufficientSurvey       = errors.New("acs: insufficient survey data")
	ErrNoUsableChannel          = errors.New("acs: no usable channel")
	ErrCommitRejected           = errors.New("acs: channel configuration rejected")

	ErrSelectionInProgress = errors.New("acs: selection already in progress")
)

// InsufficientSurveyError names the channel whose survey lacks a required field
type InsufficientSurveyError struct {
	Channel int
	Missing SurveyField
}

func (e *InsufficientSurveyError) Error() string {
	return fmt.Sprintf("acs: channel %d has insufficient survey data: missing %s", e.Channel, e.Missing)
}

// Unwrap lets errors.Is match ErrInsufficientSurvey
func (e *InsufficientSurveyError) Unwrap() error {
	return ErrInsufficientSurvey
}

// Reason returns a short label for the error kind, used for metrics and events
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConfigurationUnsupported):
		return "config_unsupported"
	case errors.Is(err, ErrScanIssuance):
		return "scan_issuance"
	case errors.Is(err, ErrScanFetch):
		return "scan_fetch"
	case errors.Is(err, ErrInsufficientSurvey):
		return "insufficient_survey"
	case errors.Is(err, ErrNoUsableChannel):
		return "no_usable_channel"
	case errors.Is(err, ErrCommitRejected):
		return "commit_rejected"
	case errors.Is(err, ErrSelectionInProgress):
		return "in_progress"
	default:
		return "other"
	}
}
