package proxy

import (
	"fmt"
	"strconv"
	"strings"
)

// target is the origin a request resolves to.
type target struct {
	host string
	port int
}

func (t target) addr() string {
	return fmt.Sprintf("%s:%d", t.host, t.port)
}

// resolveTarget extracts the origin host and port from an HTTP request
// line. The URL is the second whitespace-delimited field. An optional
// scheme prefix is stripped; a port before the first slash overrides the
// default of 80. This handles both absolute-URI requests
// (GET http://host:port/path) and CONNECT host:port lines.
func resolveTarget(requestLine string) (target, error) {
	fields := strings.Fields(requestLine)
	if len(fields) < 2 {
		return target{}, NewFramingError(ErrCodeMalformedRequest, GetErrorDescription(ErrCodeMalformedRequest),
			fmt.Errorf("request line %q has no URL field", requestLine))
	}
	rawURL := fields[1]

	if idx := strings.Index(rawURL, "://"); idx != -1 {
		rawURL = rawURL[idx+3:]
	}

	colon := strings.Index(rawURL, ":")
	slash := strings.Index(rawURL, "/")
	if slash == -1 {
		slash = len(rawURL)
	}

	var host string
	port := 80
	if colon != -1 && colon < slash {
		host = rawURL[:colon]
		portStr := rawURL[colon+1 : slash]
		parsed, err := strconv.Atoi(portStr)
		if err != nil {
			return target{}, NewFramingError(ErrCodeInvalidPort, GetErrorDescription(ErrCodeInvalidPort),
				fmt.Errorf("port %q: %w", portStr, err))
		}
		port = parsed
	} else {
		host = rawURL[:slash]
	}

	if host == "" {
		return target{}, NewFramingError(ErrCodeInvalidAddress, GetErrorDescription(ErrCodeInvalidAddress),
			fmt.Errorf("empty host in URL %q", fields[1]))
	}
	if port < 1 || port > 65535 {
		return target{}, NewFramingError(ErrCodeInvalidPort, GetErrorDescription(ErrCodeInvalidPort),
			fmt.Errorf("port %d out of range", port))
	}

	return target{host: host, port: port}, nil
}
