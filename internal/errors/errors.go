// Package errors defines the taxonomy the engine reports through: errors
// raised by the DMS client, the runner registry/dispatch path, the token
// manager, and the storage ports. Each type carries a Kind field so callers
// can branch after errors.As, and formats a useful message. The package
// defines no sentinel values; every constructor returns a fresh pointer,
// so errors.Is does not match one variant against another.
package errors

import "fmt"

// DmsClientError classifies a failure talking to the Dispatcher/Monitoring
// Service.
type DmsClientError struct {
	Kind DmsClientErrorKind
	Msg  string
}

type DmsClientErrorKind int

const (
	DmsUnauthorized DmsClientErrorKind = iota
	DmsTimeout
	DmsHTTP
	DmsTransport
)

func (e *DmsClientError) Error() string {
	switch e.Kind {
	case DmsUnauthorized:
		return "dms: unauthorized"
	case DmsTimeout:
		return "dms: timeout"
	case DmsHTTP:
		return fmt.Sprintf("dms: http error: %s", e.Msg)
	case DmsTransport:
		return fmt.Sprintf("dms: transport error: %s", e.Msg)
	default:
		return fmt.Sprintf("dms: error: %s", e.Msg)
	}
}

func NewDmsUnauthorized() *DmsClientError { return &DmsClientError{Kind: DmsUnauthorized} }
func NewDmsTimeout() *DmsClientError      { return &DmsClientError{Kind: DmsTimeout} }
func NewDmsHTTP(msg string) *DmsClientError {
	return &DmsClientError{Kind: DmsHTTP, Msg: msg}
}
func NewDmsTransport(msg string) *DmsClientError {
	return &DmsClientError{Kind: DmsTransport, Msg: msg}
}

// ExecutorError classifies a failure dispatching or running a task.
type ExecutorError struct {
	Kind       ExecutorErrorKind
	Capability string
	Msg        string
}

type ExecutorErrorKind int

const (
	ExecNoRunner ExecutorErrorKind = iota
	ExecRunner
)

func (e *ExecutorError) Error() string {
	switch e.Kind {
	case ExecNoRunner:
		return fmt.Sprintf("no runner for %s", e.Capability)
	case ExecRunner:
		return fmt.Sprintf("runner error: %s", e.Msg)
	default:
		return e.Msg
	}
}

func NewNoRunner(capability string) *ExecutorError {
	return &ExecutorError{Kind: ExecNoRunner, Capability: capability}
}
func NewRunnerError(msg string) *ExecutorError {
	return &ExecutorError{Kind: ExecRunner, Msg: msg}
}

// TokenManagerError classifies a failure rotating the node's bearer token.
type TokenManagerError struct {
	Msg string
}

func (e *TokenManagerError) Error() string {
	return fmt.Sprintf("token rotation failed: %s", e.Msg)
}

func NewRotationError(msg string) *TokenManagerError {
	return &TokenManagerError{Msg: msg}
}

// StorageError classifies a failure calling the per-domain storage service,
// mapped from HTTP status codes.
type StorageError struct {
	Kind StorageErrorKind
	Code int
	Msg  string
}

type StorageErrorKind int

const (
	StorageBadRequest StorageErrorKind = iota
	StorageUnauthorized
	StorageNotFound
	StorageConflict
	StorageServer
	StorageNetwork
	StorageOther
)

func (e *StorageError) Error() string {
	switch e.Kind {
	case StorageBadRequest:
		return "storage: bad request"
	case StorageUnauthorized:
		return "storage: unauthorized"
	case StorageNotFound:
		return "storage: not found"
	case StorageConflict:
		return "storage: conflict"
	case StorageServer:
		return fmt.Sprintf("storage: server error (%d)", e.Code)
	case StorageNetwork:
		return fmt.Sprintf("storage: network error: %s", e.Msg)
	default:
		return fmt.Sprintf("storage: error: %s", e.Msg)
	}
}

// FromStatusCode maps an HTTP status code onto a StorageError:
// 400 BadRequest, 401 Unauthorized, 404 NotFound, 409 Conflict, >=500 Server.
func FromStatusCode(code int, body string) *StorageError {
	switch {
	case code == 400:
		return &StorageError{Kind: StorageBadRequest, Code: code, Msg: body}
	case code == 401:
		return &StorageError{Kind: StorageUnauthorized, Code: code, Msg: body}
	case code == 404:
		return &StorageError{Kind: StorageNotFound, Code: code, Msg: body}
	case code == 409:
		return &StorageError{Kind: StorageConflict, Code: code, Msg: body}
	case code >= 500:
		return &StorageError{Kind: StorageServer, Code: code, Msg: body}
	default:
		return &StorageError{Kind: StorageOther, Code: code, Msg: body}
	}
}

func NewStorageNetworkError(msg string) *StorageError {
	return &StorageError{Kind: StorageNetwork, Msg: msg}
}
