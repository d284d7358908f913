package uci

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for /etc/config/acsd
const (
	DefaultConfigPath       = "/etc/config/acsd"
	DefaultWirelessPath     = "/etc/config/wireless"
	DefaultLogLevel         = "info"
	DefaultChanTimeMS       = 50
	DefaultRegDomain        = "ETSI"
	DefaultSurveyBackend    = "iw"
	DefaultHTTPListen       = "127.0.0.1:8089"
	DefaultNightlyTime      = "03:00"
	DefaultNightlyWindowMin = 30
	DefaultMQTTPort         = 1883
	DefaultMQTTTopicPrefix  = "acsd"
	DefaultMQTTClientID     = "acsd"
	DefaultTraceExporter    = "stdout"
)

var validLogLevels = []string{"trace", "debug", "info", "warn", "error"}

// Config is the `config acsd 'main'` section of /etc/config/acsd
type Config struct {
	Enabled       bool   `json:"enabled"`
	LogLevel      string `json:"log_level"`
	ChanTimeMS    int    `json:"chan_time_ms"`
	DryRun        bool   `json:"dry_run"`
	UseDFS        bool   `json:"use_dfs"`
	RegDomain     string `json:"reg_domain"`
	SurveyBackend string `json:"survey_backend"`

	// Radios restricts selection to the listed wifi-device sections.
	Radios []string `json:"radios,omitempty"`

	HTTPListen string `json:"http_listen"`
	GRPCListen string `json:"grpc_listen"`
	APIKey     string `json:"-"`

	NightlyEnabled   bool   `json:"nightly_enabled"`
	NightlyTime      string `json:"nightly_time"`
	NightlyWindowMin int    `json:"nightly_window_min"`

	MQTTEnabled     bool   `json:"mqtt_enabled"`
	MQTTBroker      string `json:"mqtt_broker"`
	MQTTPort        int    `json:"mqtt_port"`
	MQTTTopicPrefix string `json:"mqtt_topic_prefix"`
	MQTTClientID    string `json:"mqtt_client_id"`

	TraceEnabled     bool    `json:"trace_enabled"`
	TraceExporter    string  `json:"trace_exporter"`
	OTLPEndpoint     string  `json:"otlp_endpoint"`
	TraceSampleRatio float64 `json:"trace_sample_ratio"`
}

// ChannelTime returns the per-channel dwell time
func (c *Config) ChannelTime() time.Duration {
	return time.Duration(c.ChanTimeMS) * time.Millisecond
}

// NightlyWindow returns the nightly selection window
func (c *Config) NightlyWindow() time.Duration {
	return time.Duration(c.NightlyWindowMin) * time.Minute
}

// WantsRadio reports whether the radio list is empty or names radio
func (c *Config) WantsRadio(radio string) bool {
	if len(c.Radios) == 0 {
		return true
	}
	for _, r := range c.Radios {
		if r == radio {
			return true
		}
	}
	return false
}

// LoadConfig loads and validates the daemon configuration. A missing file
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.setDefaults()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()

	pkg, err := Parse("acsd", f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse UCI config: %w", err)
	}

	for _, s := range pkg.SectionsOfType("acsd") {
		if s.Name != "" && s.Name != "main" {
			continue
		}
		for option, value := range s.Options {
			if err := cfg.parseMainOption(option, value); err != nil {
				return nil, err
			}
		}
		for option, values := range s.Lists {
			if option == "radio" {
				cfg.Radios = append(cfg.Radios, values...)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for the configuration
func (c *Config) setDefaults() {
	c.Enabled = true
	c.LogLevel = DefaultLogLevel
	c.ChanTimeMS = DefaultChanTimeMS
	c.RegDomain = DefaultRegDomain
	c.SurveyBackend = DefaultSurveyBackend
	c.HTTPListen = DefaultHTTPListen
	c.NightlyTime = DefaultNightlyTime
	c.NightlyWindowMin = DefaultNightlyWindowMin
	c.MQTTPort = DefaultMQTTPort
	c.MQTTTopicPrefix = DefaultMQTTTopicPrefix
	c.MQTTClientID = DefaultMQTTClientID
	c.TraceExporter = DefaultTraceExporter
	c.TraceSampleRatio = 1
}

// parseMainOption parses one option of the main section
func (c *Config) parseMainOption(option, value string) error {
	var err error
	switch option {
	case "enabled":
		c.Enabled, err = parseBool(value)
	case "log_level":
		c.LogLevel = value
	case "chan_time_ms":
		c.ChanTimeMS, err = strconv.Atoi(value)
	case "dry_run":
		c.DryRun, err = parseBool(value)
	case "use_dfs":
		c.UseDFS, err = parseBool(value)
	case "reg_domain":
		c.RegDomain = strings.ToUpper(value)
	case "survey_backend":
		c.SurveyBackend = value
	case "http_listen":
		c.HTTPListen = value
	case "grpc_listen":
		c.GRPCListen = value
	case "api_key":
		c.APIKey = value
	case "nightly_enabled":
		c.NightlyEnabled, err = parseBool(value)
	case "nightly_time":
		c.NightlyTime = value
	case "nightly_window_min":
		c.NightlyWindowMin, err = strconv.Atoi(value)
	case "mqtt_enabled":
		c.MQTTEnabled, err = parseBool(value)
	case "mqtt_broker":
		c.MQTTBroker = value
	case "mqtt_port":
		c.MQTTPort, err = strconv.Atoi(value)
	case "mqtt_topic_prefix":
		c.MQTTTopicPrefix = strings.TrimSuffix(value, "/")
	case "mqtt_client_id":
		c.MQTTClientID = value
	case "trace_enabled":
		c.TraceEnabled, err = parseBool(value)
	case "trace_exporter":
		c.TraceExporter = strings.ToLower(value)
	case "otlp_endpoint":
		c.OTLPEndpoint = value
	case "trace_sample_ratio":
		c.TraceSampleRatio, err = strconv.ParseFloat(value, 64)
	}
	if err != nil {
		return fmt.Errorf("invalid value %q for option %s: %w", value, option, err)
	}
	return nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "1", "on", "yes", "true", "enabled":
		return true, nil
	case "0", "off", "no", "false", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean")
}

// validate validates the configuration
func (c *Config) validate() error {
	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("log_level must be one of %v", validLogLevels)
	}

	if c.ChanTimeMS < 10 || c.ChanTimeMS > 1000 {
		return fmt.Errorf("chan_time_ms must be between 10 and 1000")
	}

	switch c.RegDomain {
	case "ETSI", "FCC", "OTHER":
	default:
		return fmt.Errorf("reg_domain must be one of ETSI, FCC, OTHER")
	}

	switch c.SurveyBackend {
	case "iw", "ubus":
	default:
		return fmt.Errorf("survey_backend must be iw or ubus")
	}

	if _, err := time.Parse("15:04", c.NightlyTime); err != nil {
		return fmt.Errorf("nightly_time must be HH:MM")
	}

	if c.NightlyWindowMin < 1 || c.NightlyWindowMin > 240 {
		return fmt.Errorf("nightly_window_min must be between 1 and 240")
	}

	if c.MQTTEnabled && c.MQTTBroker == "" {
		return fmt.Errorf("mqtt_broker is required when mqtt_enabled is set")
	}

	if c.MQTTPort < 1 || c.MQTTPort > 65535 {
		return fmt.Errorf("mqtt_port must be between 1 and 65535")
	}

	switch c.TraceExporter {
	case "stdout", "otlp":
	default:
		return fmt.Errorf("trace_exporter must be stdout or otlp")
	}

	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("trace_sample_ratio must be between 0 and 1")
	}

	return nil
}

func isValidLogLevel(level string) bool {
	for _, valid := range validLogLevels {
		if level == valid {
			return true
		}
	}
	return false
}
