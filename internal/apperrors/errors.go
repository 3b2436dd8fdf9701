// Package errors provides the engine's structured error taxonomy.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Configuration errors (CFG) — malformed YAML, schema violations, unknown
	// job/template references, cycles, duplicate constants, ambiguous
	// required contract references. Reported before any network work.
	ErrCodeInvalidYAML         ErrorCode = "CFG_1001"
	ErrCodeSchemaViolation     ErrorCode = "CFG_1002"
	ErrCodeUnknownJob          ErrorCode = "CFG_1003"
	ErrCodeUnknownTemplate     ErrorCode = "CFG_1004"
	ErrCodeDependencyCycle     ErrorCode = "CFG_1005"
	ErrCodeDuplicateConstant   ErrorCode = "CFG_1006"
	ErrCodeAmbiguousReference  ErrorCode = "CFG_1007"
	ErrCodeContractNotFound    ErrorCode = "CFG_1008"

	// Resolution errors (RES) — unknown constant/argument, type mismatch in
	// arithmetic, malformed expressions. Surface as action failures.
	ErrCodeUnknownIdentifier ErrorCode = "RES_2001"
	ErrCodeTypeMismatch      ErrorCode = "RES_2002"
	ErrCodeMalformedExpr     ErrorCode = "RES_2003"
	ErrCodeScopeMiss         ErrorCode = "RES_2004"

	// Transport errors (XPORT) — RPC unreachable, HTTP timeout, network
	// layer. Surface as action failures; no engine-level retry except where
	// a primitive explicitly declares one.
	ErrCodeRPCUnreachable ErrorCode = "XPORT_3001"
	ErrCodeRPCTimeout     ErrorCode = "XPORT_3002"
	ErrCodeRPCRejected    ErrorCode = "XPORT_3003"
	ErrCodeSignerError    ErrorCode = "XPORT_3004"

	// Verification errors (VERIFY) — Etherscan/Sourcify submission and
	// polling failures. Accumulated as warnings when ignoreVerifyErrors is
	// set, fatal to the action otherwise.
	ErrCodeVerifySubmitFailed ErrorCode = "VERIFY_4001"
	ErrCodeVerifyTimedOut     ErrorCode = "VERIFY_4002"
	ErrCodeVerifyUnsupported  ErrorCode = "VERIFY_4003"

	// Dependency-failure propagation — a job whose transitive dependency
	// failed on the current network.
	ErrCodeDependencyFailed ErrorCode = "RES_2005"
)

// ServiceError represents a structured error with a taxonomy code.
type ServiceError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError
func New(code ErrorCode, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

// Wrap wraps an existing error with a ServiceError
func Wrap(code ErrorCode, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, Err: err}
}

// Configuration errors

func InvalidYAML(path string, err error) *ServiceError {
	return Wrap(ErrCodeInvalidYAML, "invalid YAML", err).WithDetails("path", path)
}

func SchemaViolation(path, reason string) *ServiceError {
	return New(ErrCodeSchemaViolation, reason).WithDetails("path", path)
}

func UnknownJob(dependent, dependency string) *ServiceError {
	return New(ErrCodeUnknownJob, fmt.Sprintf("job %q depends on unknown job %q", dependent, dependency)).
		WithDetails("job", dependent).
		WithDetails("dependsOn", dependency)
}

func UnknownTemplate(action, template string) *ServiceError {
	return New(ErrCodeUnknownTemplate, fmt.Sprintf("action %q references unknown template %q", action, template)).
		WithDetails("action", action).
		WithDetails("template", template)
}

func DependencyCycle(path []string) *ServiceError {
	return New(ErrCodeDependencyCycle, fmt.Sprintf("dependency cycle detected: %s", strings.Join(path, " → "))).
		WithDetails("path", path)
}

func DuplicateConstant(key, pathA, pathB string) *ServiceError {
	return New(ErrCodeDuplicateConstant, fmt.Sprintf("duplicate constant %q declared in both %s and %s", key, pathA, pathB)).
		WithDetails("key", key).
		WithDetails("pathA", pathA).
		WithDetails("pathB", pathB)
}

func AmbiguousReference(ref string, candidates int) *ServiceError {
	return New(ErrCodeAmbiguousReference, fmt.Sprintf("contract reference %q is ambiguous between %d candidates", ref, candidates)).
		WithDetails("reference", ref).
		WithDetails("candidates", candidates)
}

func ContractNotFound(ref string) *ServiceError {
	return New(ErrCodeContractNotFound, fmt.Sprintf("contract reference %q not found", ref)).
		WithDetails("reference", ref)
}

// Resolution errors

func UnknownIdentifier(name string) *ServiceError {
	return New(ErrCodeUnknownIdentifier, fmt.Sprintf("unknown constant or argument %q", name)).
		WithDetails("name", name)
}

func TypeMismatch(op string, left, right interface{}) *ServiceError {
	return New(ErrCodeTypeMismatch, "type mismatch in arithmetic").
		WithDetails("op", op).
		WithDetails("left", left).
		WithDetails("right", right)
}

func MalformedExpr(expr string, err error) *ServiceError {
	return Wrap(ErrCodeMalformedExpr, "malformed expression", err).
		WithDetails("expression", expr)
}

func ScopeMiss(key string) *ServiceError {
	return New(ErrCodeScopeMiss, fmt.Sprintf("output %q not found in scope", key)).
		WithDetails("key", key)
}

func DependencyFailed(job string) *ServiceError {
	return New(ErrCodeDependencyFailed, fmt.Sprintf("depends on %q which failed", job)).
		WithDetails("dependsOn", job)
}

// Transport errors

func RPCUnreachable(network string, err error) *ServiceError {
	return Wrap(ErrCodeRPCUnreachable, "RPC endpoint unreachable", err).
		WithDetails("network", network)
}

func RPCTimeout(network, method string) *ServiceError {
	return New(ErrCodeRPCTimeout, "RPC call timed out").
		WithDetails("network", network).
		WithDetails("method", method)
}

func RPCRejected(method string, err error) *ServiceError {
	return Wrap(ErrCodeRPCRejected, "RPC call rejected", err).
		WithDetails("method", method)
}

func SignerError(err error) *ServiceError {
	return Wrap(ErrCodeSignerError, "signer error", err)
}

// Verification errors

func VerifySubmitFailed(platform string, err error) *ServiceError {
	return Wrap(ErrCodeVerifySubmitFailed, "verification submission failed", err).
		WithDetails("platform", platform)
}

func VerifyTimedOut(platform, address string) *ServiceError {
	return New(ErrCodeVerifyTimedOut, "verification polling timed out").
		WithDetails("platform", platform).
		WithDetails("address", address)
}

func VerifyUnsupported(platform, network string) *ServiceError {
	return New(ErrCodeVerifyUnsupported, "verification platform not supported on network").
		WithDetails("platform", platform).
		WithDetails("network", network)
}

// Helper functions

// IsServiceError checks if an error is a ServiceError
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// Code returns the ErrorCode of err if it is (or wraps) a ServiceError,
// and the empty string otherwise.
func Code(err error) ErrorCode {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Code
	}
	return ""
}
