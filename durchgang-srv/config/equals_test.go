package config

import "testing"

func baseConfig() *Config {
	return &Config{
		Servers: []ServerConfig{
			{ListenAddress: "127.0.0.1:6178", Enabled: true},
		},
		TimeoutSeconds: 60,
		BufferSize:     8192,
		ProxyDomains:   []string{"proxy.example.com"},
	}
}

func TestHasChangedIdentical(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	if HasChanged(a, b) {
		t.Errorf("Identical configs reported as changed")
	}
}

func TestHasChangedNil(t *testing.T) {
	a := baseConfig()
	if !HasChanged(a, nil) {
		t.Errorf("Config vs nil should be changed")
	}
	if HasChanged(nil, nil) {
		t.Errorf("nil vs nil should not be changed")
	}
}

func TestHasChangedFields(t *testing.T) {
	strPtr := func(s string) *string { return &s }

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"listen address", func(c *Config) { c.Servers[0].ListenAddress = "127.0.0.1:9999" }},
		{"server enabled", func(c *Config) { c.Servers[0].Enabled = false }},
		{"server count", func(c *Config) { c.Servers = append(c.Servers, ServerConfig{ListenAddress: "x", Enabled: true}) }},
		{"timeout", func(c *Config) { c.TimeoutSeconds = 30 }},
		{"buffer size", func(c *Config) { c.BufferSize = 4096 }},
		{"proxy domains", func(c *Config) { c.ProxyDomains = []string{"other.example.com"} }},
		{"forward added", func(c *Config) { c.Forward = &ForwardDirect{} }},
		{"statistics", func(c *Config) { c.Statistics.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := baseConfig()
			b := baseConfig()
			tt.mutate(b)
			if !HasChanged(a, b) {
				t.Errorf("Mutation %q not detected", tt.name)
			}
		})
	}

	t.Run("forward credentials", func(t *testing.T) {
		a := baseConfig()
		b := baseConfig()
		a.Forward = &ForwardSocks5{Address: "127.0.0.1:1080", Username: strPtr("u")}
		b.Forward = &ForwardSocks5{Address: "127.0.0.1:1080", Username: strPtr("v")}
		if !HasChanged(a, b) {
			t.Errorf("Credential change not detected")
		}
	})

	t.Run("forward same", func(t *testing.T) {
		a := baseConfig()
		b := baseConfig()
		a.Forward = &ForwardProxy{Address: "127.0.0.1:3128"}
		b.Forward = &ForwardProxy{Address: "127.0.0.1:3128"}
		if HasChanged(a, b) {
			t.Errorf("Equal forwards reported as changed")
		}
	})
}
