package proxy

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/codefionn/durchgang/durchgang-srv/config"
	"github.com/codefionn/durchgang/durchgang-srv/logger"
	"golang.org/x/net/proxy"
)

// createForwardTCPClient dials the target address, honoring the
// configured upstream forward. With no forward configured the target is
// dialed directly.
func (p *Proxy) createForwardTCPClient(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout: time.Duration(p.config.TimeoutSeconds) * time.Second,
	}

	fwd := p.config.Forward
	if fwd == nil {
		return dialer.DialContext(ctx, "tcp", addr)
	}

	switch fwd.Type() {
	case config.ForwardTypeDirect:
		direct := fwd.(*config.ForwardDirect)
		network := "tcp"
		if direct.ForceIPv4 {
			network = "tcp4"
			dialer.FallbackDelay = -1
			logger.Debug("Forcing IPv4 for direct dial to %s", addr)
		}
		return dialer.DialContext(ctx, network, addr)

	case config.ForwardTypeSocks5:
		socks5 := fwd.(*config.ForwardSocks5)
		logger.Debug("SOCKS5 forwarding to %s via %s", addr, socks5.Address)
		return dialSocks5(ctx, dialer, socks5, addr)

	case config.ForwardTypeProxy:
		httpProxy := fwd.(*config.ForwardProxy)
		logger.Debug("HTTP proxy forwarding to %s via %s", addr, httpProxy.Address)
		return dialHTTPProxy(ctx, dialer, httpProxy, addr)

	default:
		return nil, NewConnectionError(ErrCodeDialFailed, GetErrorDescription(ErrCodeDialFailed),
			fmt.Errorf("unknown forward type %v", fwd.Type()))
	}
}

// dialSocks5 establishes a connection to the target via a SOCKS5 proxy
func dialSocks5(ctx context.Context, dialer *net.Dialer, fwd *config.ForwardSocks5, targetHostPort string) (net.Conn, error) {
	var auth *proxy.Auth
	if fwd.Username != nil && fwd.Password != nil {
		auth = &proxy.Auth{
			User:     *fwd.Username,
			Password: *fwd.Password,
		}
	} else if fwd.Username != nil {
		// Password might be optional depending on SOCKS server config
		auth = &proxy.Auth{User: *fwd.Username}
	}

	socksDialer, err := proxy.SOCKS5("tcp", fwd.Address, auth, dialer)
	if err != nil {
		return nil, NewProxyChainError(ErrCodeSOCKS5DialerFailed, GetErrorDescription(ErrCodeSOCKS5DialerFailed),
			fmt.Errorf("proxy %s: %w", fwd.Address, err))
	}

	var conn net.Conn
	if ctxDialer, ok := socksDialer.(proxy.ContextDialer); ok {
		conn, err = ctxDialer.DialContext(ctx, "tcp", targetHostPort)
	} else {
		conn, err = socksDialer.Dial("tcp", targetHostPort)
	}
	if err != nil {
		return nil, NewProxyChainError(ErrCodeSOCKS5ConnectFailed, GetErrorDescription(ErrCodeSOCKS5ConnectFailed),
			fmt.Errorf("target %s via SOCKS5 proxy %s: %w", targetHostPort, fwd.Address, err))
	}
	return conn, nil
}

// dialHTTPProxy establishes a connection to the target via an upstream
// HTTP proxy using CONNECT
func dialHTTPProxy(ctx context.Context, dialer *net.Dialer, fwd *config.ForwardProxy, targetHostPort string) (net.Conn, error) {
	proxyConn, err := dialer.DialContext(ctx, "tcp", fwd.Address)
	if err != nil {
		return nil, NewProxyChainError(ErrCodeHTTPProxyDialFailed, GetErrorDescription(ErrCodeHTTPProxyDialFailed),
			fmt.Errorf("proxy server %s: %w", fwd.Address, err))
	}

	connectReq, err := http.NewRequest(http.MethodConnect, "http://"+targetHostPort, http.NoBody)
	if err != nil {
		closeWithLog(proxyConn, "upstream proxy connection")
		return nil, NewProxyChainError(ErrCodeCONNECTRequestFailed, GetErrorDescription(ErrCodeCONNECTRequestFailed),
			fmt.Errorf("creating for target %s: %w", targetHostPort, err))
	}
	connectReq.Host = targetHostPort
	connectReq.Header.Set("User-Agent", "durchgang-proxy/1.0")
	connectReq.Header.Set("Proxy-Connection", "keep-alive")

	if fwd.Username != nil && fwd.Password != nil {
		proxyAuth := *fwd.Username + ":" + *fwd.Password
		authEncoded := base64.StdEncoding.EncodeToString([]byte(proxyAuth))
		connectReq.Header.Set("Proxy-Authorization", "Basic "+authEncoded)
	} else if fwd.Username != nil {
		logger.Warn("Proxy username provided without password for %s", fwd.Address)
	}

	if err := connectReq.Write(proxyConn); err != nil {
		closeWithLog(proxyConn, "upstream proxy connection")
		return nil, NewProxyChainError(ErrCodeCONNECTRequestFailed, GetErrorDescription(ErrCodeCONNECTRequestFailed),
			fmt.Errorf("sending to proxy %s: %w", fwd.Address, err))
	}

	proxyReader := bufio.NewReader(proxyConn)
	connectResp, err := http.ReadResponse(proxyReader, connectReq)
	if err != nil {
		closeWithLog(proxyConn, "upstream proxy connection")
		return nil, NewProxyChainError(ErrCodeCONNECTResponseFailed, GetErrorDescription(ErrCodeCONNECTResponseFailed),
			fmt.Errorf("reading from proxy %s: %w", fwd.Address, err))
	}
	defer func() {
		if closeErr := connectResp.Body.Close(); closeErr != nil {
			logger.Error("Error closing response body: %v", closeErr)
		}
	}()

	if connectResp.StatusCode != http.StatusOK {
		closeWithLog(proxyConn, "upstream proxy connection")
		return nil, NewProxyChainError(ErrCodeHTTPProxyConnectFailed, GetErrorDescription(ErrCodeHTTPProxyConnectFailed),
			fmt.Errorf("proxy %s returned %s for target %s", fwd.Address, connectResp.Status, targetHostPort))
	}

	return proxyConn, nil
}

func closeWithLog(conn net.Conn, what string) {
	if err := conn.Close(); err != nil {
		logger.Error("Error closing %s: %v", what, err)
	}
}
