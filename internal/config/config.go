package config

import "time"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	API       APIConfig       `koanf:"api"`
	Stream    StreamConfig    `koanf:"stream"`
	Request   RequestConfig   `koanf:"request"`
	Paging    PagingConfig    `koanf:"paging"`
	Cache     CacheConfig     `koanf:"cache"`
	Status    StatusConfig    `koanf:"status"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type APIConfig struct {
	BaseURL      string        `koanf:"base_url"`
	WorkspaceID  string        `koanf:"workspace_id"`
	ChannelIDs   []string      `koanf:"channel_ids"` // channels whose messages are kept in sync
	AccessToken  string        `koanf:"access_token"`
	RefreshToken string        `koanf:"refresh_token"`
	Timeout      time.Duration `koanf:"timeout"`
	UserAgent    string        `koanf:"user_agent"`
}

type StreamConfig struct {
	ReconnectDelay   time.Duration `koanf:"reconnect_delay"`
	InitTimeout      time.Duration `koanf:"init_timeout"`
	ConnectTimeout   time.Duration `koanf:"connect_timeout"`
	ProbeAddr        string        `koanf:"probe_addr"` // host:port to dial; empty checks network interfaces
	ProbeInterval    time.Duration `koanf:"probe_interval"`
	ProbeTimeout     time.Duration `koanf:"probe_timeout"`
	SubscriberBuffer int           `koanf:"subscriber_buffer"`
}

type RequestConfig struct {
	RateLimitDelay      time.Duration `koanf:"rate_limit_delay"`
	RateLimitMaxDelay   time.Duration `koanf:"rate_limit_max_delay"`
	RateLimitMaxRetries int           `koanf:"rate_limit_max_retries"`
	RequestsPerSecond   float64       `koanf:"requests_per_second"`
	Burst               int           `koanf:"burst"`
}

type PagingConfig struct {
	PageSize int    `koanf:"page_size"`
	Mode     string `koanf:"mode"` // "cursor" or "offset"
}

type CacheConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Path            string        `koanf:"path"`
	Retention       time.Duration `koanf:"retention"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

type StatusConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type TelemetryConfig struct {
	Enabled        bool              `koanf:"enabled"`
	Endpoint       string            `koanf:"endpoint"`
	Protocol       string            `koanf:"protocol"`        // "grpc" or "http"
	Insecure       bool              `koanf:"insecure"`        // use plaintext (no TLS) for OTLP export
	SampleRate     float64           `koanf:"sample_rate"`     // 0.0 to 1.0
	ServiceName    string            `koanf:"service_name"`    // default "enzyme-client"
	Headers        map[string]string `koanf:"headers"`         // OTLP exporter headers (e.g. auth keys)
	MetricInterval time.Duration     `koanf:"metric_interval"` // how often metrics are exported
}

func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		API: APIConfig{
			BaseURL:   "http://localhost:8080",
			Timeout:   30 * time.Second,
			UserAgent: "enzyme-sync",
		},
		Stream: StreamConfig{
			ReconnectDelay:   5 * time.Second,
			InitTimeout:      10 * time.Second,
			ConnectTimeout:   10 * time.Second,
			ProbeInterval:    2 * time.Second,
			ProbeTimeout:     3 * time.Second,
			SubscriberBuffer: 64,
		},
		Request: RequestConfig{
			RateLimitDelay:      time.Second,
			RateLimitMaxDelay:   30 * time.Second,
			RateLimitMaxRetries: 5,
			RequestsPerSecond:   10,
			Burst:               20,
		},
		Paging: PagingConfig{
			PageSize: 50,
			Mode:     "cursor",
		},
		Cache: CacheConfig{
			Enabled:         true,
			Path:            "./data/cache.db",
			Retention:       7 * 24 * time.Hour,
			CleanupInterval: time.Hour,
		},
		Status: StatusConfig{
			Enabled:        false,
			Host:           "127.0.0.1",
			Port:           9090,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			SampleRate:     1.0,
			ServiceName:    "enzyme-client",
			MetricInterval: 15 * time.Second,
		},
	}
}
