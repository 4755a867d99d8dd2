package core

import (
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeInvalidConfig  = "INVALID_CONFIG"
	ErrCodeTuningFile     = "TUNING_FILE_INVALID"
	ErrCodeInvalidWeights = "INVALID_SCORE_WEIGHTS"
)

// ErrInvalidConfig returns an error for a configuration value that
// fails validation.
func ErrInvalidConfig(varName string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidConfig,
		Message: fmt.Sprintf("Invalid value for %s: %s", varName, reason),
		Action:  fmt.Sprintf("Correct %s in your .env file", varName),
	}
}

// ErrTuningFile returns an error for an unreadable or malformed tuning file.
func ErrTuningFile(path string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeTuningFile,
		Message: fmt.Sprintf("Cannot load tuning file %s: %s", path, reason),
		Action:  "Fix the YAML syntax or remove the file to use built-in defaults",
	}
}

// ErrInvalidWeights returns an error for focus score weights that do
// not sum to 1.0.
func ErrInvalidWeights(sum float64) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidWeights,
		Message: fmt.Sprintf("Focus score weights sum to %.3f, want 1.0", sum),
		Action:  "Adjust the focus.weights section of the tuning file",
	}
}

// IsConfigError checks if an error is a ConfigError and returns it if so.
func IsConfigError(err error) (*ConfigError, bool) {
	if configErr, ok := err.(*ConfigError); ok {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError.
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
