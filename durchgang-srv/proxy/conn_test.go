package proxy

import (
	"testing"

	"github.com/codefionn/durchgang/durchgang-srv/config"
)

func TestFirstLine(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"crlf terminated", "GET / HTTP/1.1\r\nHost: x\r\n\r\n", "GET / HTTP/1.1"},
		{"lf terminated", "GET / HTTP/1.1\nHost: x\n", "GET / HTTP/1.1"},
		{"no newline", "CONNECT example.com:443 HTTP/1.1", "CONNECT example.com:443 HTTP/1.1"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstLine([]byte(tt.raw)); got != tt.want {
				t.Errorf("firstLine(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestScanHostHeader(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "simple host",
			raw:  "GET /health HTTP/1.1\r\nHost: localhost:6178\r\n\r\n",
			want: "localhost:6178",
		},
		{
			name: "case insensitive",
			raw:  "GET / HTTP/1.1\r\nhost: example.com\r\n\r\n",
			want: "example.com",
		},
		{
			name: "host after other headers",
			raw:  "GET / HTTP/1.1\r\nUser-Agent: curl\r\nHost: proxy.internal\r\n\r\n",
			want: "proxy.internal",
		},
		{
			name: "no host header",
			raw:  "GET / HTTP/1.0\r\n\r\n",
			want: "",
		},
		{
			name: "host only in body is ignored",
			raw:  "POST / HTTP/1.1\r\n\r\nHost: sneaky.example\r\n",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scanHostHeader([]byte(tt.raw)); got != tt.want {
				t.Errorf("scanHostHeader = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsHealthCheckRequest(t *testing.T) {
	s := &Server{
		config: &config.Config{
			ProxyDomains: []string{"proxy.example.com"},
		},
		serverConfig: config.ServerConfig{ListenAddress: "0.0.0.0:6178"},
	}

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{
			name: "health path with loopback host",
			raw:  "GET /health HTTP/1.1\r\nHost: localhost\r\n\r\n",
			want: true,
		},
		{
			name: "root path with own port",
			raw:  "GET / HTTP/1.1\r\nHost: 10.1.2.3:6178\r\n\r\n",
			want: true,
		},
		{
			name: "proxy domain",
			raw:  "GET /health HTTP/1.1\r\nHost: PROXY.EXAMPLE.COM\r\n\r\n",
			want: true,
		},
		{
			name: "foreign host",
			raw:  "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n",
			want: false,
		},
		{
			name: "non-GET method",
			raw:  "POST /health HTTP/1.1\r\nHost: localhost\r\n\r\n",
			want: false,
		},
		{
			name: "other path",
			raw:  "GET /metrics HTTP/1.1\r\nHost: localhost\r\n\r\n",
			want: false,
		},
		{
			name: "missing host header",
			raw:  "GET /health HTTP/1.1\r\n\r\n",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(tt.raw)
			line := firstLine(raw)
			if got := s.isHealthCheckRequest(line, raw); got != tt.want {
				t.Errorf("isHealthCheckRequest(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
