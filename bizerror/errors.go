package bizerror

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrNotFound = errors.New("record not found")

type BizError interface {
	Respond() *BizErrorDetail
}

type BizErrorDetail struct {
	Status  int
	Code    string
	Message string

	Data  interface{}
	Cause error
}

type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

type ErrBadParam struct {
	Cause error
}

func (e *ErrBadParam) Unwrap() error {
	return e.Cause
}
func (e *ErrBadParam) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "common.bad_param"
}
func (e *ErrBadParam) Respond() *BizErrorDetail {
	message := "common.bad_param"
	if e.Cause != nil {
		message = e.Cause.Error()
	}
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "common.bad_param", Message: message, Data: nil}
}

// ConfigError reports a missing or malformed tenant setting.
type ConfigError struct {
	Tenant  string
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Tenant == "" {
		return fmt.Sprintf("config %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config of tenant %s, %s: %s", e.Tenant, e.Field, e.Message)
}
func (e *ConfigError) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusInternalServerError, Code: "config.invalid", Message: e.Error()}
}

// SourceError reports an unreachable ERP source or an unusable ERP row.
type SourceError struct {
	Tenant string
	Key    string
	Cause  error
}

func (e *SourceError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("erp source of tenant %s: %v", e.Tenant, e.Cause)
	}
	return fmt.Sprintf("erp row %s of tenant %s: %v", e.Key, e.Tenant, e.Cause)
}
func (e *SourceError) Unwrap() error {
	return e.Cause
}
func (e *SourceError) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadGateway, Code: "erp.source_failed", Message: e.Error()}
}

type ValidationKind string

const (
	MissingRequired    ValidationKind = "missing-required"
	InvalidTime        ValidationKind = "invalid-time"
	DurationExceeded   ValidationKind = "duration-exceeded"
	BreakOutsideWindow ValidationKind = "break-outside-window"
	NegativeQuantity   ValidationKind = "negative-quantity"
	UnknownCompany     ValidationKind = "unknown-company"
	UnknownProcess     ValidationKind = "unknown-process"
	FutureDate         ValidationKind = "future-date"
)

type ValidationError struct {
	Kind    ValidationKind
	Field   string
	Message string
}

func NewValidationError(kind ValidationKind, field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Field, e.Message)
}
func (e *ValidationError) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "validation." + string(e.Kind), Message: e.Message,
		Data: map[string]string{"field": e.Field}}
}

// StateError reports an event that the current state does not accept.
type StateError struct {
	Entity string
	Key    string
	State  string
	Event  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s: event %s is not allowed in state %s", e.Entity, e.Key, e.Event, e.State)
}
func (e *StateError) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusConflict, Code: "state.illegal_transition", Message: e.Error(),
		Data: map[string]string{"state": e.State, "event": e.Event}}
}

// ConflictError reports a unique key violation.
type ConflictError struct {
	Entity string
	Key    string
	Cause  error
}

func (e *ConflictError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s already exists: %v", e.Entity, e.Key, e.Cause)
	}
	return fmt.Sprintf("%s %s already exists", e.Entity, e.Key)
}
func (e *ConflictError) Unwrap() error {
	return e.Cause
}
func (e *ConflictError) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusConflict, Code: "common.conflict", Message: e.Error()}
}

// TransientError wraps a failure that may succeed when retried: lock wait timeouts, deadlocks, busy databases.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure: %v", e.Cause)
}
func (e *TransientError) Unwrap() error {
	return e.Cause
}
func (e *TransientError) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusServiceUnavailable, Code: "common.temporarily_unavailable", Message: e.Error()}
}

// FatalError reports an invariant broken in the middle of a transaction.
type FatalError struct {
	Entity  string
	Key     string
	Message string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("invariant violated on %s %s: %s", e.Entity, e.Key, e.Message)
}
func (e *FatalError) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusInternalServerError, Code: "common.invariant_violated", Message: e.Error()}
}

func IsTransient(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsValidation(err error, kind ValidationKind) bool {
	var target *ValidationError
	return errors.As(err, &target) && target.Kind == kind
}

func IsState(err error) bool {
	var target *StateError
	return errors.As(err, &target)
}
