package proxy

import (
	"errors"
	"fmt"
)

// Error represents a proxy-specific error with a code and description
type Error struct {
	Code        string
	Description string
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Description, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewProxyError creates a new Error with the given code and description
func NewProxyError(code, description string, cause error) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Cause:       cause,
	}
}

// Proxy Error Codes
const (
	// Configuration and Initialization Errors (E1000-E1999)
	ErrCodeNoEnabledServers     = "E1001"
	ErrCodeListenerCreateFailed = "E1002"

	// Request Framing Errors (E2000-E2999)
	ErrCodeRequestReadFailed = "E2001"
	ErrCodeMalformedRequest  = "E2002"
	ErrCodeInvalidAddress    = "E2003"
	ErrCodeInvalidPort       = "E2004"

	// Connection and Network Errors (E3000-E3999)
	ErrCodeDialFailed       = "E3001"
	ErrCodeConnectionClosed = "E3002"
	ErrCodeRelayFailed      = "E3003"

	// Proxy Chain and Forwarding Errors (E4000-E4999)
	ErrCodeSOCKS5DialerFailed     = "E4001"
	ErrCodeSOCKS5ConnectFailed    = "E4002"
	ErrCodeHTTPProxyDialFailed    = "E4003"
	ErrCodeCONNECTRequestFailed   = "E4004"
	ErrCodeCONNECTResponseFailed  = "E4005"
	ErrCodeHTTPProxyConnectFailed = "E4006"
)

// ErrorDescriptions maps error codes to human-readable descriptions.
var ErrorDescriptions = map[string]string{
	ErrCodeNoEnabledServers:     "No enabled proxy servers configured",
	ErrCodeListenerCreateFailed: "Failed to create network listener",

	ErrCodeRequestReadFailed: "Failed to read client request",
	ErrCodeMalformedRequest:  "Malformed request line",
	ErrCodeInvalidAddress:    "Invalid target address",
	ErrCodeInvalidPort:       "Invalid port number",

	ErrCodeDialFailed:       "Failed to dial target address",
	ErrCodeConnectionClosed: "Connection closed unexpectedly",
	ErrCodeRelayFailed:      "Relay between client and target failed",

	ErrCodeSOCKS5DialerFailed:     "Failed to create SOCKS5 dialer",
	ErrCodeSOCKS5ConnectFailed:    "SOCKS5 connection failed",
	ErrCodeHTTPProxyDialFailed:    "Failed to dial HTTP proxy server",
	ErrCodeCONNECTRequestFailed:   "Failed to send CONNECT request",
	ErrCodeCONNECTResponseFailed:  "Failed to read CONNECT response",
	ErrCodeHTTPProxyConnectFailed: "HTTP proxy refused CONNECT request",
}

// NewConfigurationError creates an error for configuration issues
func NewConfigurationError(code, description string, cause error) *Error {
	return NewProxyError(code, description, cause)
}

// NewFramingError creates an error for malformed client requests
func NewFramingError(code, description string, cause error) *Error {
	return NewProxyError(code, description, cause)
}

// NewConnectionError creates an error for network connection issues
func NewConnectionError(code, description string, cause error) *Error {
	return NewProxyError(code, description, cause)
}

// NewProxyChainError creates an error for upstream forwarding issues
func NewProxyChainError(code, description string, cause error) *Error {
	return NewProxyError(code, description, cause)
}

// GetErrorDescription returns the description for an error code
func GetErrorDescription(code string) string {
	if desc, ok := ErrorDescriptions[code]; ok {
		return desc
	}
	return "Unknown error"
}

// ErrorCode extracts the code from an error, if it is a proxy Error
func ErrorCode(err error) string {
	var proxyErr *Error
	if errors.As(err, &proxyErr) {
		return proxyErr.Code
	}
	return ""
}
