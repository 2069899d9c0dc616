package ir

import (
	"errors"
	"fmt"
)

// ConfigError reports a build configuration problem: a store or table that
// a stage needs is absent, or a dataset name is unknown. Stages abort on a
// ConfigError without writing their output.
type ConfigError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Dataset is the dataset being processed, if any.
	Dataset string

	// Table is the store table involved, if any (e.g. "pii.tax").
	Table string

	// Message is a human-readable description.
	Message string
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeMissingTable indicates a required table does not exist.
	ErrCodeMissingTable ConfigErrorCode = "MISSING_TABLE"

	// ErrCodeEmptyTable indicates a required table has no rows.
	ErrCodeEmptyTable ConfigErrorCode = "EMPTY_TABLE"

	// ErrCodeUnknownDataset indicates a dataset name no store knows about.
	ErrCodeUnknownDataset ConfigErrorCode = "UNKNOWN_DATASET"

	// ErrCodeMissingLayout indicates a configured dataset without a layout.
	ErrCodeMissingLayout ConfigErrorCode = "MISSING_LAYOUT"

	// ErrCodeStaleMapping indicates the identity mapping was not computed
	// from a dataset's current PII rows; resolution must be rerun.
	ErrCodeStaleMapping ConfigErrorCode = "STALE_MAPPING"

	// ErrCodeMissingStore indicates a store file that has not been built.
	ErrCodeMissingStore ConfigErrorCode = "MISSING_STORE"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	switch {
	case e.Dataset != "" && e.Table != "":
		return fmt.Sprintf("%s: %s (dataset=%s, table=%s)", e.Code, e.Message, e.Dataset, e.Table)
	case e.Dataset != "":
		return fmt.Sprintf("%s: %s (dataset=%s)", e.Code, e.Message, e.Dataset)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
