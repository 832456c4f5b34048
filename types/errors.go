package types

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrUserRejected         = errors.New("user rejected")
	ErrNoActiveSession      = errors.New("no active session")
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrMalformedResponse    = errors.New("malformed response")
	ErrTimeout              = errors.New("timeout")
	ErrAlreadyConnecting    = errors.New("already connecting")
	ErrNotImplemented       = errors.New("not implemented")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrUnknownChain         = errors.New("unknown chain")
)

// Wallet error codes seen across the supported transports.
const (
	CodeUserRejected        = 4001
	CodeUnauthorized        = 4100
	CodeUnsupportedMethod   = 4200
	CodeDisconnected        = 4900
	CodeChainDisconnected   = 4901
	CodeSessionRejected     = 5000
	CodeSessionDeleted      = 6000
	CodeParseError          = -32700
	CodeInvalidRequest      = -32600
	CodeMethodNotFound      = -32601
	CodeInvalidParams       = -32602
	CodeInternalError       = -32603
	CodeEmptyResponse       = -1
	CodeRequestExpired      = 8000
	CodeUnknownResponseCode = 0
)

// RPCError is the error half of a Response as it travels on the wire.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is match an RPCError against the taxonomy.
func (e *RPCError) Unwrap() error {
	return kindFromCode(e.Code)
}

// ErrorFromCode builds an RPCError for a wallet supplied code and message.
func ErrorFromCode(code int, message string) error {
	if message == "" {
		message = kindFromCode(code).Error()
	}
	return &RPCError{Code: code, Message: message}
}

func kindFromCode(code int) error {
	switch code {
	case CodeUserRejected, CodeSessionRejected, CodeUnauthorized:
		return ErrUserRejected
	case CodeDisconnected, CodeChainDisconnected, CodeSessionDeleted:
		return ErrNoActiveSession
	case CodeUnsupportedMethod, CodeMethodNotFound:
		return ErrNotImplemented
	case CodeParseError, CodeInvalidRequest, CodeInvalidParams, CodeEmptyResponse:
		return ErrMalformedResponse
	case CodeRequestExpired:
		return ErrTimeout
	default:
		return ErrTransportUnavailable
	}
}

// ToRPCError flattens any error into its wire form.
func ToRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	code := CodeInternalError
	switch {
	case errors.Is(err, ErrUserRejected):
		code = CodeUserRejected
	case errors.Is(err, ErrNoActiveSession):
		code = CodeDisconnected
	case errors.Is(err, ErrNotImplemented):
		code = CodeUnsupportedMethod
	case errors.Is(err, ErrMalformedResponse):
		code = CodeParseError
	case errors.Is(err, ErrTimeout):
		code = CodeRequestExpired
	case errors.Is(err, ErrUnknownChain):
		code = CodeInvalidParams
	}
	return &RPCError{Code: code, Message: err.Error()}
}
