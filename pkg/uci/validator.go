package uci

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/markus-lassfolk/acsd/pkg/logx"
)

// ConfigValidator checks the daemon and wireless configuration before the
// radios are handed to the selector
type ConfigValidator struct {
	logger *logx.Logger
}

// NewConfigValidator creates a new configuration validator
func NewConfigValidator(logger *logx.Logger) *ConfigValidator {
	return &ConfigValidator{
		logger: logger,
	}
}

// ValidationResult represents the result of configuration validation
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []ValidationError   `json:"errors,omitempty"`
	Warnings []ValidationWarning `json:"warnings,omitempty"`
	Summary  ValidationSummary   `json:"summary"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Section string `json:"section"`
	Option  string `json:"option"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidationWarning represents a configuration validation warning
type ValidationWarning struct {
	Section string `json:"section"`
	Option  string `json:"option"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidationSummary provides a summary of validation results
type ValidationSummary struct {
	TotalErrors   int `json:"total_errors"`
	TotalWarnings int `json:"total_warnings"`
	TotalOptions  int `json:"total_options"`
	ValidOptions  int `json:"valid_options"`
}

// Validate checks cfg and every radio section
func (v *ConfigValidator) Validate(cfg *Config, radios []RadioSection) ValidationResult {
	result := ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	v.validateMainSection(cfg, &result)
	for _, r := range radios {
		v.validateRadio(cfg, r, &result)
	}
	for _, name := range cfg.Radios {
		if !hasRadio(radios, name) {
			v.warn(&result, "main", "radio", name, "Listed radio has no wifi-device section")
		}
	}

	result.Summary = v.calculateSummary(result)
	result.Valid = len(result.Errors) == 0

	for _, e := range result.Errors {
		v.logger.Error("Configuration error", "section", e.Section, "option", e.Option, "value", e.Value, "message", e.Message)
	}
	for _, w := range result.Warnings {
		v.logger.Warn("Configuration warning", "section", w.Section, "option", w.Option, "value", w.Value, "message", w.Message)
	}

	return result
}

func hasRadio(radios []RadioSection, name string) bool {
	for _, r := range radios {
		if r.Name == name {
			return true
		}
	}
	return false
}

// validateMainSection validates the main configuration section
func (v *ConfigValidator) validateMainSection(cfg *Config, result *ValidationResult) {
	section := "main"

	v.validateIntegerRange(section, "chan_time_ms", cfg.ChanTimeMS, 10, 1000, result)
	v.validateIntegerRange(section, "nightly_window_min", cfg.NightlyWindowMin, 1, 240, result)
	v.validateLogLevel(section, "log_level", cfg.LogLevel, result)
	v.validateListen(section, "http_listen", cfg.HTTPListen, result)
	v.validateListen(section, "grpc_listen", cfg.GRPCListen, result)

	if cfg.MQTTEnabled {
		v.validateMQTTBroker(section, "mqtt_broker", cfg.MQTTBroker, result)
		v.validateMQTTTopic(section, "mqtt_topic_prefix", cfg.MQTTTopicPrefix, result)
	}

	if cfg.DryRun {
		v.warn(result, section, "dry_run", "1", "Selected channels will be logged but not applied")
	}
}

func (v *ConfigValidator) validateRadio(cfg *Config, r RadioSection, result *ValidationResult) {
	if r.Disabled || !cfg.WantsRadio(r.Name) {
		return
	}

	result.Summary.TotalOptions++
	if !r.ACSRequested() {
		v.warn(result, r.Name, "channel", r.Channel, "Radio has a fixed channel and will not be managed")
	} else {
		result.Summary.ValidOptions++
	}

	result.Summary.TotalOptions++
	if _, err := r.RadioConfig(cfg.ChannelTime()); err != nil {
		msg := err.Error()
		if errors.Is(err, ErrUnsupportedHTMode) {
			msg = "htmode must be one of HT20, HT40+, HT40-, VHT20, VHT40, VHT80"
		}
		result.Errors = append(result.Errors, ValidationError{
			Section: r.Name,
			Option:  "htmode",
			Value:   r.HTMode,
			Message: msg,
		})
	} else {
		result.Summary.ValidOptions++
	}

	if r.HTMode == "HT40-" {
		v.warn(result, r.Name, "htmode", r.HTMode, "HT40- cannot be selected automatically, use HT40+")
	}

	result.Summary.TotalOptions++
	if _, err := r.AllowedChannels(); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Section: r.Name,
			Option:  "channels",
			Value:   r.Channels,
			Message: err.Error(),
		})
	} else {
		result.Summary.ValidOptions++
	}
}

func (v *ConfigValidator) warn(result *ValidationResult, section, option, value, msg string) {
	result.Warnings = append(result.Warnings, ValidationWarning{
		Section: section,
		Option:  option,
		Value:   value,
		Message: msg,
	})
}

func (v *ConfigValidator) validateIntegerRange(section, option string, value int, min, max int, result *ValidationResult) {
	result.Summary.TotalOptions++
	if value < min || value > max {
		result.Errors = append(result.Errors, ValidationError{
			Section: section,
			Option:  option,
			Value:   strconv.Itoa(value),
			Message: fmt.Sprintf("Value must be between %d and %d", min, max),
		})
	} else {
		result.Summary.ValidOptions++
	}
}

func (v *ConfigValidator) validateLogLevel(section, option, value string, result *ValidationResult) {
	result.Summary.TotalOptions++
	if !isValidLogLevel(value) {
		result.Errors = append(result.Errors, ValidationError{
			Section: section,
			Option:  option,
			Value:   value,
			Message: fmt.Sprintf("Log level must be one of %v", validLogLevels),
		})
	} else {
		result.Summary.ValidOptions++
	}
}

func (v *ConfigValidator) validateListen(section, option, value string, result *ValidationResult) {
	result.Summary.TotalOptions++
	if value == "" {
		result.Summary.ValidOptions++
		return
	}

	if _, port, err := net.SplitHostPort(value); err != nil || port == "" {
		result.Errors = append(result.Errors, ValidationError{
			Section: section,
			Option:  option,
			Value:   value,
			Message: "Listen address must be host:port (e.g., 127.0.0.1:8089)",
		})
	} else {
		result.Summary.ValidOptions++
	}
}

func (v *ConfigValidator) validateMQTTBroker(section, option, value string, result *ValidationResult) {
	result.Summary.TotalOptions++
	if value == "" {
		result.Errors = append(result.Errors, ValidationError{
			Section: section,
			Option:  option,
			Value:   value,
			Message: "MQTT broker is required when MQTT is enabled",
		})
		return
	}

	if strings.Contains(value, "://") || strings.Contains(value, "/") {
		result.Errors = append(result.Errors, ValidationError{
			Section: section,
			Option:  option,
			Value:   value,
			Message: "MQTT broker must be a host name; use mqtt_port for the port",
		})
	} else {
		result.Summary.ValidOptions++
	}
}

func (v *ConfigValidator) validateMQTTTopic(section, option, value string, result *ValidationResult) {
	result.Summary.TotalOptions++
	if strings.ContainsAny(value, "#+") {
		result.Errors = append(result.Errors, ValidationError{
			Section: section,
			Option:  option,
			Value:   value,
			Message: "MQTT topic prefix must not contain wildcards",
		})
	} else {
		result.Summary.ValidOptions++
	}
}

func (v *ConfigValidator) calculateSummary(result ValidationResult) ValidationSummary {
	return ValidationSummary{
		TotalErrors:   len(result.Errors),
		TotalWarnings: len(result.Warnings),
		TotalOptions:  result.Summary.TotalOptions,
		ValidOptions:  result.Summary.ValidOptions,
	}
}
