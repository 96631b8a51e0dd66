package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/codefionn/durchgang/durchgang-srv/logger"
)

// Default wire parameters. The buffer size bounds every read on both the
// inbound request and the relay loop; the timeout is the relay idle window.
const (
	DefaultListenAddress  = "0.0.0.0:6178"
	DefaultTimeoutSeconds = 60
	DefaultBufferSize     = 8192
)

// ServerConfig defines configuration for a single proxy listener
type ServerConfig struct {
	ListenAddress string // Address to listen on (e.g., 0.0.0.0:6178)
	Enabled       bool   // Whether this listener is enabled
}

// StatisticsConfig defines settings for the optional connection statistics collector
type StatisticsConfig struct {
	Enabled     bool
	Backend     string // "sqlite", "postgres" or "dummy"
	SQLitePath  string
	PostgresDSN string
	BufferSize  int // Event buffer size for the async writer
}

// Config represents the main configuration structure for the proxy server.
type Config struct {
	Servers        []ServerConfig // List of proxy listeners
	TimeoutSeconds int            // Relay idle timeout in seconds
	BufferSize     int            // Read chunk size in bytes
	ProxyDomains   []string       // Domain names under which the proxy answers its own health check
	Forward        Forward        // Optional upstream forward for outbound dials
	Statistics     StatisticsConfig
}

// ForwardType defines the type of upstream forwarding rule.
type ForwardType int

const (
	// ForwardTypeDirect dials the origin directly over the default network.
	ForwardTypeDirect ForwardType = iota
	// ForwardTypeSocks5 dials through a SOCKS5 proxy.
	ForwardTypeSocks5
	// ForwardTypeProxy dials through an upstream HTTP proxy using CONNECT.
	ForwardTypeProxy
)

// Forward defines the interface for upstream forwarding configurations.
type Forward interface {
	Type() ForwardType
}

// ForwardDirect represents direct network dialing.
type ForwardDirect struct {
	ForceIPv4 bool
}

// Type returns the forwarding type for this configuration.
func (c *ForwardDirect) Type() ForwardType {
	return ForwardTypeDirect
}

// ForwardSocks5 represents SOCKS5 upstream forwarding configuration.
type ForwardSocks5 struct {
	Address  string
	Username *string
	Password *string
}

// Type returns the forwarding type for this configuration.
func (c *ForwardSocks5) Type() ForwardType {
	return ForwardTypeSocks5
}

// ForwardProxy represents HTTP proxy upstream forwarding configuration.
type ForwardProxy struct {
	Address  string
	Username *string
	Password *string
}

// Type returns the forwarding type for this configuration.
func (c *ForwardProxy) Type() ForwardType {
	return ForwardTypeProxy
}

// LoadConfig loads configuration from the specified file path. An empty
// path yields the defaults plus environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{
		Servers: []ServerConfig{
			{
				ListenAddress: DefaultListenAddress,
				Enabled:       true,
			},
		},
		TimeoutSeconds: DefaultTimeoutSeconds,
		BufferSize:     DefaultBufferSize,
	}

	// Apply environment variables
	loadConfigFromEnv(cfg)

	// If config file exists, load it
	if configPath != "" {
		var err error

		ext := filepath.Ext(configPath)
		switch strings.ToLower(ext) {
		case ".json":
			err = loadJSONConfig(configPath, cfg)
		case ".hcl":
			err = loadHCLConfig(configPath, cfg)
		default:
			return nil, fmt.Errorf("unsupported config file format: %s", ext)
		}

		if err != nil {
			return nil, err
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout-seconds must be positive, got %d", cfg.TimeoutSeconds)
	}
	if cfg.BufferSize <= 0 {
		return fmt.Errorf("buffer-size must be positive, got %d", cfg.BufferSize)
	}
	for i, server := range cfg.Servers {
		if server.ListenAddress == "" {
			return fmt.Errorf("server %d has no listen-address", i)
		}
	}
	return nil
}

func loadJSONConfig(configPath string, cfg *Config) error {
	cleanPath := filepath.Clean(configPath)
	if !filepath.IsAbs(cleanPath) {
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return fmt.Errorf("invalid config file path: %w", err)
		}
		cleanPath = absPath
	}
	file, err := os.Open(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.Error("Error closing config file: %v", closeErr)
		}
	}()

	// Decode into a map first to handle the hyphenated keys
	var data map[string]any
	err = json.NewDecoder(file).Decode(&data)
	if err != nil {
		return fmt.Errorf("failed to decode JSON config: %w", err)
	}

	return applyMapConfig(data, cfg)
}

// applyMapConfig maps generic decoded configuration data onto cfg. Both the
// JSON and HCL loaders feed this.
func applyMapConfig(data map[string]any, cfg *Config) error {
	if val, exists := data["servers"]; exists {
		serverList, ok := val.([]any)
		if !ok {
			return fmt.Errorf("servers must be an array")
		}

		// Clear default servers if specified in config
		cfg.Servers = []ServerConfig{}

		for i, serverData := range serverList {
			serverMap, ok := serverData.(map[string]any)
			if !ok {
				return fmt.Errorf("server configuration at index %d must be an object", i)
			}

			server := ServerConfig{Enabled: true}

			if addrVal, exists := serverMap["listen-address"]; exists {
				ptr, err := parseValue[string](addrVal)
				if err != nil {
					return fmt.Errorf("listen-address at index %d must be a string: %w", i, err)
				}
				server.ListenAddress = *ptr
			}

			if enabledVal, exists := serverMap["enabled"]; exists {
				ptr, err := parseValue[bool](enabledVal)
				if err != nil {
					return fmt.Errorf("enabled at index %d must be a boolean: %w", i, err)
				}
				server.Enabled = *ptr
			}

			cfg.Servers = append(cfg.Servers, server)
		}
	}

	// For backward compatibility: a bare listen-address configures a single
	// listener.
	if val, exists := data["listen-address"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			if strings.Contains(err.Error(), "secret") {
				return err
			}
			return fmt.Errorf("listen-address must be a string")
		}
		if _, hasServers := data["servers"]; !hasServers {
			cfg.Servers = []ServerConfig{
				{
					ListenAddress: *ptr,
					Enabled:       true,
				},
			}
		}
	}

	if val, exists := data["timeout-seconds"]; exists {
		ptr, err := parseValue[int](val)
		if err != nil {
			if strings.Contains(err.Error(), "secret") {
				return err
			}
			return fmt.Errorf("timeout-seconds must be a number")
		}
		cfg.TimeoutSeconds = *ptr
	}

	if val, exists := data["buffer-size"]; exists {
		ptr, err := parseValue[int](val)
		if err != nil {
			if strings.Contains(err.Error(), "secret") {
				return err
			}
			return fmt.Errorf("buffer-size must be a number")
		}
		cfg.BufferSize = *ptr
	}

	if val, exists := data["proxy-domains"]; exists {
		domainList, ok := val.([]any)
		if !ok {
			return fmt.Errorf("proxy-domains must be an array")
		}
		cfg.ProxyDomains = nil
		for i, domainVal := range domainList {
			ptr, err := parseValue[string](domainVal)
			if err != nil {
				return fmt.Errorf("proxy-domains entry %d must be a string: %w", i, err)
			}
			cfg.ProxyDomains = append(cfg.ProxyDomains, *ptr)
		}
	}

	if val, exists := data["forward"]; exists {
		forwardMap, ok := val.(map[string]any)
		if !ok {
			return fmt.Errorf("forward must be an object")
		}
		forward, err := parseForward(forwardMap)
		if err != nil {
			return err
		}
		cfg.Forward = forward
	}

	if val, exists := data["statistics"]; exists {
		statsMap, ok := val.(map[string]any)
		if !ok {
			return fmt.Errorf("statistics must be an object")
		}
		if err := parseStatistics(statsMap, &cfg.Statistics); err != nil {
			return err
		}
	}

	return nil
}

func parseForward(forwardMap map[string]any) (Forward, error) {
	forwardType, ok := forwardMap["type"].(string)
	if !ok {
		return nil, fmt.Errorf("missing forward type")
	}

	switch forwardType {
	case "direct":
		directForward := &ForwardDirect{}
		if forceVal, exists := forwardMap["force-ipv4"]; exists {
			ptr, err := parseValue[bool](forceVal)
			if err != nil {
				return nil, fmt.Errorf("force-ipv4 must be a boolean: %w", err)
			}
			directForward.ForceIPv4 = *ptr
		}
		return directForward, nil

	case "socks5":
		socks5Forward := &ForwardSocks5{}
		if address, err := parseValue[string](forwardMap["address"]); err == nil {
			socks5Forward.Address = *address
		} else {
			return nil, fmt.Errorf("socks5 forward requires address field")
		}

		if username, err := parseValue[string](forwardMap["username"]); err == nil {
			socks5Forward.Username = username
		}

		if password, err := parseValue[string](forwardMap["password"]); err == nil {
			socks5Forward.Password = password
		}

		return socks5Forward, nil

	case "proxy":
		proxyForward := &ForwardProxy{}
		if address, err := parseValue[string](forwardMap["address"]); err == nil {
			proxyForward.Address = *address
		} else {
			return nil, fmt.Errorf("proxy forward requires address field")
		}

		if username, err := parseValue[string](forwardMap["username"]); err == nil {
			proxyForward.Username = username
		}

		if password, err := parseValue[string](forwardMap["password"]); err == nil {
			proxyForward.Password = password
		}

		return proxyForward, nil

	default:
		return nil, fmt.Errorf("unsupported forward type: %s", forwardType)
	}
}

func parseStatistics(statsMap map[string]any, stats *StatisticsConfig) error {
	if val, exists := statsMap["enabled"]; exists {
		ptr, err := parseValue[bool](val)
		if err != nil {
			return fmt.Errorf("statistics enabled must be a boolean: %w", err)
		}
		stats.Enabled = *ptr
	}

	if val, exists := statsMap["backend"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("statistics backend must be a string: %w", err)
		}
		stats.Backend = *ptr
	}

	if val, exists := statsMap["sqlite-path"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			return fmt.Errorf("sqlite-path must be a string: %w", err)
		}
		stats.SQLitePath = *ptr
	}

	if val, exists := statsMap["postgres-dsn"]; exists {
		ptr, err := parseValue[string](val)
		if err != nil {
			if strings.Contains(err.Error(), "secret") {
				return err
			}
			return fmt.Errorf("postgres-dsn must be a string")
		}
		stats.PostgresDSN = *ptr
	}

	if val, exists := statsMap["buffer-size"]; exists {
		ptr, err := parseValue[int](val)
		if err != nil {
			return fmt.Errorf("statistics buffer-size must be a number: %w", err)
		}
		stats.BufferSize = *ptr
	}

	return nil
}

func parseValue[T any](value any) (*T, error) {
	var zero T
	tType := reflect.TypeOf(zero)
	ptr := reflect.New(tType)
	elem := ptr.Elem()

	// Secret-case: retrieve env var
	if m, ok := value.(map[string]any); ok {
		if key, ok := m["_secret"].(string); ok {
			res := os.Getenv(key)
			if res == "" {
				return nil, fmt.Errorf("secret %s not set", key)
			}
			value = res
		}
	}

	switch v := value.(type) {
	case float64:
		// JSON number
		switch elem.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			elem.SetInt(int64(v))
		case reflect.Float32, reflect.Float64:
			elem.SetFloat(v)
		default:
			return nil, fmt.Errorf("expected %T, got JSON number", zero)
		}
	case int:
		switch elem.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			elem.SetInt(int64(v))
		case reflect.Float32, reflect.Float64:
			elem.SetFloat(float64(v))
		default:
			return nil, fmt.Errorf("expected %T, got number", zero)
		}
	case string:
		switch elem.Kind() {
		case reflect.String:
			elem.SetString(v)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			i, err := strconv.ParseInt(v, 10, elem.Type().Bits())
			if err != nil {
				return nil, fmt.Errorf("failed to parse int: %w", err)
			}
			elem.SetInt(i)
		case reflect.Float32, reflect.Float64:
			f, err := strconv.ParseFloat(v, elem.Type().Bits())
			if err != nil {
				return nil, fmt.Errorf("failed to parse float: %w", err)
			}
			elem.SetFloat(f)
		case reflect.Bool:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("failed to parse bool: %w", err)
			}
			elem.SetBool(b)
		default:
			return nil, fmt.Errorf("expected %T, got string", zero)
		}
	case bool:
		if elem.Kind() == reflect.Bool {
			elem.SetBool(v)
		} else {
			return nil, fmt.Errorf("expected %T, got bool", zero)
		}
	default:
		// direct-case: cast
		if rv, ok := value.(T); ok {
			return &rv, nil
		}
		return nil, fmt.Errorf("expected %T, got %T", zero, value)
	}
	return ptr.Interface().(*T), nil
}

func loadConfigFromEnv(cfg *Config) {
	if timeoutStr := os.Getenv("DURCHGANG_TIMEOUTSECONDS"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.TimeoutSeconds = timeout
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Invalid format for DURCHGANG_TIMEOUTSECONDS: %s\n", timeoutStr)
		}
	}

	if bufStr := os.Getenv("DURCHGANG_BUFFERSIZE"); bufStr != "" {
		if buf, err := strconv.Atoi(bufStr); err == nil {
			cfg.BufferSize = buf
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Invalid format for DURCHGANG_BUFFERSIZE: %s\n", bufStr)
		}
	}

	if domains := os.Getenv("DURCHGANG_PROXYDOMAINS"); domains != "" {
		cfg.ProxyDomains = nil
		for _, domain := range strings.Split(domains, ",") {
			domain = strings.TrimSpace(domain)
			if domain != "" {
				cfg.ProxyDomains = append(cfg.ProxyDomains, domain)
			}
		}
	}

	if addr := os.Getenv("DURCHGANG_LISTENADDRESS"); addr != "" {
		if len(cfg.Servers) == 0 {
			cfg.Servers = []ServerConfig{
				{
					ListenAddress: addr,
					Enabled:       true,
				},
			}
		} else {
			cfg.Servers[0].ListenAddress = addr
		}
	}

	if backend := os.Getenv("DURCHGANG_STATS_BACKEND"); backend != "" {
		cfg.Statistics.Enabled = true
		cfg.Statistics.Backend = backend
	}

	if sqlitePath := os.Getenv("DURCHGANG_STATS_SQLITEPATH"); sqlitePath != "" {
		cfg.Statistics.SQLitePath = sqlitePath
	}

	if dsn := os.Getenv("DURCHGANG_STATS_POSTGRESDSN"); dsn != "" {
		cfg.Statistics.PostgresDSN = dsn
	}
}
