package proxy

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/codefionn/durchgang/durchgang-srv/config"
	"github.com/codefionn/durchgang/durchgang-srv/logger"
	"github.com/codefionn/durchgang/durchgang-srv/stats"
)

// Proxy is the top-level forward proxy. It owns the stats collector and
// one Server per enabled listener.
type Proxy struct {
	config    *config.Config
	Collector stats.Collector
	pool      *bufferPool
	servers   []*Server
}

// Server is a single proxy listener with its accept loop.
type Server struct {
	config       *config.Config
	serverConfig config.ServerConfig
	proxy        *Proxy

	mu       sync.Mutex
	listener net.Listener
}

// NewProxy creates a proxy from the given configuration.
func NewProxy(cfg *config.Config) *Proxy {
	p := &Proxy{
		config: cfg,
		pool:   newBufferPool(cfg.BufferSize),
	}

	factory := stats.NewCollectorFactory()
	collector, err := factory.CreateCollector(&cfg.Statistics)
	if err != nil {
		logger.Error("Failed to initialize statistics collector: %v", err)
		collector = stats.NewDummyCollector()
	}
	p.Collector = collector

	for _, serverCfg := range cfg.Servers {
		if !serverCfg.Enabled {
			logger.Info("Skipping disabled server on %s", serverCfg.ListenAddress)
			continue
		}
		p.servers = append(p.servers, &Server{
			config:       cfg,
			serverConfig: serverCfg,
			proxy:        p,
		})
	}

	return p
}

// Start binds all enabled listeners and runs their accept loops. It
// blocks until every listener has stopped. A bind failure is returned
// immediately so the caller can fail fast.
func (p *Proxy) Start() error {
	if len(p.servers) == 0 {
		return NewConfigurationError(ErrCodeNoEnabledServers, GetErrorDescription(ErrCodeNoEnabledServers), nil)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var startErrors []error

	for _, server := range p.servers {
		wg.Add(1)
		go func(s *Server) {
			defer wg.Done()
			if err := s.Start(); err != nil {
				mu.Lock()
				startErrors = append(startErrors, err)
				mu.Unlock()
			}
		}(server)
	}

	wg.Wait()

	if len(startErrors) > 0 {
		return startErrors[0]
	}
	return nil
}

// StartWithListener runs the first server on an already-bound listener.
// Useful for tests that bind to an ephemeral port.
func (p *Proxy) StartWithListener(listener net.Listener) error {
	if len(p.servers) == 0 {
		return NewConfigurationError(ErrCodeNoEnabledServers, GetErrorDescription(ErrCodeNoEnabledServers), nil)
	}
	return p.servers[0].StartWithListener(listener)
}

// Stop closes all listeners and the stats collector. In-flight
// connections are not drained; they terminate on their own triggers.
func (p *Proxy) Stop() error {
	var lastErr error

	for _, server := range p.servers {
		if err := server.Stop(); err != nil {
			lastErr = err
			logger.Error("Failed to stop proxy server on %s: %v", server.serverConfig.ListenAddress, err)
		}
	}

	if err := p.Collector.Close(); err != nil {
		logger.Error("Failed to close stats collector: %v", err)
		if lastErr == nil {
			lastErr = err
		}
	}

	return lastErr
}

// Start binds the configured address and runs the accept loop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.serverConfig.ListenAddress)
	if err != nil {
		return NewConfigurationError(ErrCodeListenerCreateFailed, GetErrorDescription(ErrCodeListenerCreateFailed),
			fmt.Errorf("listen on %s: %w", s.serverConfig.ListenAddress, err))
	}
	return s.StartWithListener(listener)
}

// StartWithListener runs the accept loop on the given listener, spawning
// one goroutine per accepted connection. A stalled client never blocks
// the loop. Returns after Stop closes the listener.
func (s *Server) StartWithListener(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	logger.Info("Proxy server listening on %s", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if isClosedConnError(err) {
				break
			}
			logger.Error("Failed to accept connection: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}

	return nil
}

// Stop closes the listener, ending the accept loop.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

// Addr returns the bound listener address, or the configured address
// before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.serverConfig.ListenAddress
}

// port returns the bound listen port as a string.
func (s *Server) port() string {
	if _, port, err := net.SplitHostPort(s.Addr()); err == nil {
		return port
	}
	return ""
}

func (s *Server) idleTimeout() time.Duration {
	return time.Duration(s.config.TimeoutSeconds) * time.Second
}

func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}
