package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError when one or more problems are found, allowing
// callers to inspect all issues at once.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateBackend(cfg, ve)
	validatePoller(cfg, ve)
	validateAutomation(cfg, ve)
	validateStore(cfg, ve)
	validateGateway(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateBackend(cfg *Config, ve *ValidationError) {
	if cfg.Backend.ConnTimeout < 0 {
		ve.Add("backend.conn_timeout must not be negative")
	}
	if cfg.Backend.RespTimeout < 0 {
		ve.Add("backend.resp_timeout must not be negative")
	}
	if cfg.Backend.BaseURL != "" && !strings.HasPrefix(cfg.Backend.BaseURL, "http://") && !strings.HasPrefix(cfg.Backend.BaseURL, "https://") {
		ve.Add("backend.base_url must start with http:// or https://")
	}
}

func validatePoller(cfg *Config, ve *ValidationError) {
	if cfg.Poller.Interval < 0 {
		ve.Add("poller.interval must not be negative")
	}
	if cfg.Poller.MaxAttempts < 0 {
		ve.Add("poller.max_attempts must not be negative")
	}
	if cfg.Poller.Inactivity < 0 {
		ve.Add("poller.inactivity must not be negative")
	}
}

func validateAutomation(cfg *Config, ve *ValidationError) {
	for name, kp := range map[string]KindPolicyConfig{
		"edit":     cfg.Automation.Edit,
		"console":  cfg.Automation.Console,
		"terminal": cfg.Automation.Terminal,
		"file_run": cfg.Automation.FileRun,
	} {
		for _, p := range kp.AllowList {
			if strings.TrimSpace(p) == "" {
				ve.Add("automation.%s.allow_list must not contain empty patterns", name)
			}
		}
		for _, p := range kp.DenyList {
			if strings.TrimSpace(p) == "" {
				ve.Add("automation.%s.deny_list must not contain empty patterns", name)
			}
		}
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	if cfg.Store.Path == "" {
		ve.Add("store.path must not be empty")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if cfg.Gateway.Enabled && cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr must not be empty when gateway is enabled")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		ve.Add("logger.level %q is not a valid level", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json", "":
	default:
		ve.Add("logger.format %q is not valid (text or json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q is not supported", cfg.Tracer.Exporter)
	}
}
