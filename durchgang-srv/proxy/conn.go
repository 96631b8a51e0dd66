package proxy

import (
	"bytes"
	"context"
	"net"
	"strings"

	"github.com/codefionn/durchgang/durchgang-srv/logger"
)

// healthCheckResponse is the exact self health-check reply.
const healthCheckResponse = "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\nProxy Server is Alive"

// connectEstablishedResponse is sent after a successful CONNECT dial,
// before relaying.
const connectEstablishedResponse = "HTTP/1.1 200 Connection Established\r\n\r\n"

// handleConnection owns the full lifecycle of one accepted socket.
// Malformed requests and failed dials close the connection silently;
// nothing here is fatal to the server.
func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	bufPtr := s.proxy.pool.get()
	defer s.proxy.pool.put(bufPtr)
	buf := *bufPtr

	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		// Client closed before sending anything. Not an error.
		return
	}
	raw := buf[:n]

	requestLine := firstLine(raw)
	if requestLine == "" {
		logger.Debug("Empty request line from %s", conn.RemoteAddr())
		return
	}

	if s.isHealthCheckRequest(requestLine, raw) {
		if _, err := conn.Write([]byte(healthCheckResponse)); err != nil {
			logger.Debug("Failed to write health check response: %v", err)
		}
		return
	}

	tgt, err := resolveTarget(requestLine)
	if err != nil {
		logger.Debug("Dropping request from %s: %v", conn.RemoteAddr(), err)
		return
	}

	isConnect := strings.HasPrefix(requestLine, "CONNECT ")
	protocol := "http"
	if isConnect {
		protocol = "connect"
	}

	clientIP := remoteIP(conn)
	ctx := context.Background()

	connectionID, err := s.proxy.Collector.StartConnection(ctx, clientIP, tgt.host, tgt.port, protocol)
	if err != nil {
		logger.Debug("Failed to record connection start: %v", err)
	}

	targetConn, err := s.proxy.createForwardTCPClient(ctx, tgt.addr())
	if err != nil {
		logger.Debug("Dial to %s failed for %s: %v", tgt.addr(), clientIP, err)
		_ = s.proxy.Collector.RecordError(ctx, connectionID, "dial_error", err.Error())
		_ = s.proxy.Collector.EndConnection(ctx, connectionID, 0, 0, 0, "dial_error")
		return
	}

	tracked := newTrackedConn(ctx, targetConn, s.proxy.Collector, connectionID)

	if isConnect {
		if _, err := conn.Write([]byte(connectEstablishedResponse)); err != nil {
			logger.Debug("Failed to confirm tunnel to %s: %v", clientIP, err)
			_ = tracked.Close()
			tracked.End(closeReasonError)
			return
		}
		logger.Debug("Tunnel established: %s -> %s", clientIP, tgt.addr())
	} else {
		// Forward the raw request bytes verbatim, headers and any
		// buffered body fragment included.
		if _, err := tracked.Write(raw); err != nil {
			logger.Debug("Failed to forward request to %s: %v", tgt.addr(), err)
			_ = s.proxy.Collector.RecordError(ctx, connectionID, "forward_error", err.Error())
			_ = tracked.Close()
			tracked.End(closeReasonError)
			return
		}
		logger.Debug("Forwarding: %s -> %s", clientIP, tgt.addr())
	}

	reason := newRelay(conn, tracked, s.idleTimeout(), s.proxy.pool).run()
	if reason == closeReasonError {
		_ = s.proxy.Collector.RecordError(ctx, connectionID, "relay_error", "relay terminated on I/O error")
	}
	tracked.End(reason)
	logger.Debug("Connection %s -> %s closed (%s, %d bytes out, %d bytes in)",
		clientIP, tgt.addr(), reason, tracked.BytesSent(), tracked.BytesReceived())
}

// firstLine returns the request line, the bytes up to the first newline,
// with any trailing carriage return removed.
func firstLine(raw []byte) string {
	line := raw
	if idx := bytes.IndexByte(raw, '\n'); idx != -1 {
		line = raw[:idx]
	}
	return string(bytes.TrimRight(line, "\r"))
}

// isHealthCheckRequest reports whether the buffered request is a probe
// against the proxy itself rather than proxy traffic. Platform health
// checkers and browsers hitting the proxy's own root land here.
func (s *Server) isHealthCheckRequest(requestLine string, raw []byte) bool {
	fields := strings.Fields(requestLine)
	if len(fields) < 2 || fields[0] != "GET" {
		return false
	}
	if fields[1] != "/health" && fields[1] != "/" {
		return false
	}
	return s.isSelfHost(scanHostHeader(raw))
}

// scanHostHeader finds the Host header value in the buffered request.
func scanHostHeader(raw []byte) string {
	for _, line := range bytes.Split(raw, []byte("\n"))[1:] {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			// End of headers.
			return ""
		}
		if len(line) >= 5 && strings.EqualFold(string(line[:5]), "host:") {
			return strings.TrimSpace(string(line[5:]))
		}
	}
	return ""
}

// isSelfHost reports whether a Host header identifies this server: its
// own listen port, a loopback address, or a configured proxy domain.
func (s *Server) isSelfHost(host string) bool {
	if host == "" {
		return false
	}

	hostname := host
	port := ""
	if h, p, err := net.SplitHostPort(host); err == nil {
		hostname = h
		port = p
	}

	if port != "" && port == s.port() {
		return true
	}

	switch hostname {
	case "localhost", "127.0.0.1", "::1":
		return true
	}

	for _, domain := range s.config.ProxyDomains {
		if strings.EqualFold(hostname, domain) {
			return true
		}
	}

	return false
}

func remoteIP(conn net.Conn) string {
	if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
		return host
	}
	return conn.RemoteAddr().String()
}
