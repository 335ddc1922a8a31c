package domain

import (
	"errors"
	"fmt"
)

// Category sentinels, used with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrToolFailure      = fmt.Errorf("tool execution failed")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrDecryption       = fmt.Errorf("decryption failed")
	ErrStore            = fmt.Errorf("store operation failed")

	// Processing pipeline errors.
	ErrCircuitOpen    = fmt.Errorf("service temporarily unavailable")
	ErrRetryExhausted = fmt.Errorf("retry attempts exhausted")
	ErrValidation     = fmt.Errorf("response validation failed")
	ErrUnknownAction  = fmt.Errorf("unknown action")
	ErrInternal       = fmt.Errorf("internal error")

	// Routing errors.
	ErrAgentNotFound  = fmt.Errorf("agent not found")
	ErrAgentDuplicate = fmt.Errorf("agent already registered")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Tool.Execute")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "router", "store"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrProviderError)
}

// ErrorCode is a machine-parseable error category carried on results and metrics.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeProviderNotFound ErrorCode = "PROVIDER_NOT_FOUND"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure      ErrorCode = "TOOL_FAILURE"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeDecryption       ErrorCode = "DECRYPTION"
	CodeStore            ErrorCode = "STORE"
	CodeCircuitOpen      ErrorCode = "CIRCUIT_OPEN"
	CodeRetryExhausted   ErrorCode = "RETRY_EXHAUSTED"
	CodeValidation       ErrorCode = "VALIDATION"
	CodeUnknownAction    ErrorCode = "UNKNOWN_ACTION"
	CodeInternal         ErrorCode = "INTERNAL"
	CodeAgentNotFound    ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentDuplicate   ErrorCode = "AGENT_DUPLICATE"
	CodeContextOverflow  ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"

	// Subsystem-specific codes resolved through subSystemCodeMap.
	CodeProductNotFound ErrorCode = "PRODUCT_NOT_FOUND"
	CodePaymentNotFound ErrorCode = "PAYMENT_NOT_FOUND"
	CodePageNotFound    ErrorCode = "PAGE_NOT_FOUND"
	CodeProductExists   ErrorCode = "PRODUCT_EXISTS"
	CodePageExists      ErrorCode = "PAGE_EXISTS"

	// Category error codes, used when no subsystem-specific code matches.
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeDuplicate     ErrorCode = "DUPLICATE"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeProviderError ErrorCode = "PROVIDER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:      CodeNotFound,
	ErrDuplicate:     CodeDuplicate,
	ErrTimeout:       CodeTimeout,
	ErrInvalidInput:  CodeInvalidInput,
	ErrProviderError: CodeProviderError,

	ErrProviderNotFound: CodeProviderNotFound,
	ErrToolNotFound:     CodeToolNotFound,
	ErrToolFailure:      CodeToolFailure,
	ErrConfigLoad:       CodeConfigLoad,
	ErrDecryption:       CodeDecryption,
	ErrStore:            CodeStore,
	ErrCircuitOpen:      CodeCircuitOpen,
	ErrRetryExhausted:   CodeRetryExhausted,
	ErrValidation:       CodeValidation,
	ErrUnknownAction:    CodeUnknownAction,
	ErrInternal:         CodeInternal,
	ErrAgentNotFound:    CodeAgentNotFound,
	ErrAgentDuplicate:   CodeAgentDuplicate,
	ErrContextOverflow:  CodeContextOverflow,
	ErrRateLimit:        CodeRateLimit,
	ErrAuthInvalid:      CodeAuthInvalid,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"catalog":  CodeProductNotFound,
		"payments": CodePaymentNotFound,
		"content":  CodePageNotFound,
		"router":   CodeAgentNotFound,
	},
	ErrDuplicate: {
		"catalog": CodeProductExists,
		"content": CodePageExists,
		"router":  CodeAgentDuplicate,
	},
}

// errorPriority orders the chain walk so that the most specific sentinel wins
// when several are wrapped together (e.g. retry exhaustion around a rate limit).
var errorPriority = []error{
	ErrCircuitOpen,
	ErrRetryExhausted,
	ErrUnknownAction,
	ErrValidation,
	ErrToolNotFound,
	ErrToolFailure,
	ErrAgentNotFound,
	ErrAgentDuplicate,
	ErrProviderNotFound,
	ErrAuthInvalid,
	ErrRateLimit,
	ErrContextOverflow,
	ErrConfigLoad,
	ErrDecryption,
	ErrStore,
	ErrInternal,
	ErrTimeout,
	ErrProviderError,
	ErrNotFound,
	ErrDuplicate,
	ErrInvalidInput,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for _, sentinel := range errorPriority {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
