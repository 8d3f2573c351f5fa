package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

func Validate(cfg *Config) error {
	var errs []error

	// API validation
	if cfg.API.BaseURL == "" {
		errs = append(errs, fmt.Errorf("api.base_url is required"))
	} else if u, err := url.Parse(cfg.API.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("api.base_url is not a valid URL: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("api.base_url must use http or https"))
	}
	if cfg.API.WorkspaceID == "" {
		errs = append(errs, fmt.Errorf("api.workspace_id is required"))
	}
	if cfg.API.Timeout < time.Second {
		errs = append(errs, fmt.Errorf("api.timeout must be at least 1s"))
	}

	// Stream validation
	if cfg.Stream.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("stream.reconnect_delay must be positive"))
	}
	if cfg.Stream.InitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stream.init_timeout must be positive"))
	}
	if cfg.Stream.ProbeAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.Stream.ProbeAddr); err != nil {
			errs = append(errs, fmt.Errorf("stream.probe_addr must be host:port: %w", err))
		}
	}
	if cfg.Stream.ProbeInterval <= 0 {
		errs = append(errs, fmt.Errorf("stream.probe_interval must be positive"))
	}
	if cfg.Stream.SubscriberBuffer < 1 {
		errs = append(errs, fmt.Errorf("stream.subscriber_buffer must be at least 1"))
	}

	// Request validation
	if cfg.Request.RateLimitDelay <= 0 {
		errs = append(errs, fmt.Errorf("request.rate_limit_delay must be positive"))
	}
	if cfg.Request.RateLimitMaxDelay < cfg.Request.RateLimitDelay {
		errs = append(errs, fmt.Errorf("request.rate_limit_max_delay must not be less than request.rate_limit_delay"))
	}
	if cfg.Request.RateLimitMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("request.rate_limit_max_retries must not be negative"))
	}
	if cfg.Request.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("request.requests_per_second must not be negative"))
	}
	if cfg.Request.RequestsPerSecond > 0 && cfg.Request.Burst < 1 {
		errs = append(errs, fmt.Errorf("request.burst must be at least 1 when pacing is enabled"))
	}

	// Paging validation
	if cfg.Paging.PageSize < 1 || cfg.Paging.PageSize > 200 {
		errs = append(errs, fmt.Errorf("paging.page_size must be between 1 and 200"))
	}
	if cfg.Paging.Mode != "cursor" && cfg.Paging.Mode != "offset" {
		errs = append(errs, fmt.Errorf("paging.mode must be \"cursor\" or \"offset\""))
	}

	// Cache validation (only if enabled)
	if cfg.Cache.Enabled {
		if cfg.Cache.Path == "" {
			errs = append(errs, fmt.Errorf("cache.path is required when cache is enabled"))
		}
		if cfg.Cache.Retention < time.Minute {
			errs = append(errs, fmt.Errorf("cache.retention must be at least 1 minute"))
		}
	}

	// Status endpoint validation (only if enabled)
	if cfg.Status.Enabled {
		if cfg.Status.Port < 1 || cfg.Status.Port > 65535 {
			errs = append(errs, fmt.Errorf("status.port must be between 1 and 65535"))
		}
	}

	// Telemetry validation (only if enabled)
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Protocol != "grpc" && cfg.Telemetry.Protocol != "http" {
			errs = append(errs, fmt.Errorf("telemetry.protocol must be \"grpc\" or \"http\""))
		}
		if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
			errs = append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1"))
		}
		if cfg.Telemetry.MetricInterval < time.Second {
			errs = append(errs, fmt.Errorf("telemetry.metric_interval must be at least 1s"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
