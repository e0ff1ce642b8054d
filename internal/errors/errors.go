package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// InputMissing indicates the document has no class name or no symbols
	InputMissing ErrorCode = "INPUT_MISSING"
	// QueryFailed indicates a metadata query could not be completed
	QueryFailed ErrorCode = "QUERY_FAILED"
	// ServerReported indicates the metadata service answered with embedded errors
	ServerReported ErrorCode = "SERVER_REPORTED"
	// TransportFailed indicates the HTTP call itself failed
	TransportFailed ErrorCode = "TRANSPORT_FAILED"
	// LookupMiss indicates a member or class was not found
	LookupMiss ErrorCode = "LOOKUP_MISS"
	// CredentialsUnavailable indicates no password could be obtained for a server
	CredentialsUnavailable ErrorCode = "CREDENTIALS_UNAVAILABLE"
	// ConfigInvalid indicates a configuration or server file problem
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// BackendUnavailable indicates the external language server is not running
	BackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// EditConfig suggests changing a configuration file
	EditConfig FixActionType = "edit-config"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	File        string        `json:"file,omitempty"`
	Description string        `json:"description,omitempty"`
}

// LensError carries a stable code, a message and suggested fixes.
type LensError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error
}

// New creates a LensError with the default fixes for its code.
func New(code ErrorCode, message string, cause error) *LensError {
	return &LensError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Error implements the error interface
func (e *LensError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *LensError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *LensError) WithDetails(details interface{}) *LensError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first LensError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var le *LensError
	if stderrors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	TransportFailed: {
		{
			Type:        RunCommand,
			Command:     "clslens servers check",
			Description: "Verify the metadata server is reachable",
		},
	},
	CredentialsUnavailable: {
		{
			Type:        EditConfig,
			File:        ".clslens/servers.toml",
			Description: "Set a password or export CLSLENS_PASSWORD_<SERVER>",
		},
	},
	ConfigInvalid: {
		{
			Type:        RunCommand,
			Command:     "clslens config show",
			Description: "Inspect the effective configuration",
		},
	},
	BackendUnavailable: {
		{
			Type:        EditConfig,
			File:        ".clslens/config.json",
			Description: "Check symbols.languageServer.command",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
