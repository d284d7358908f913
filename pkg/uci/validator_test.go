package uci

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func TestConfigValidatorValid(t *testing.T) {
	v := NewConfigValidator(nil)
	radios := []RadioSection{
		{Name: "radio0", Channel: "auto", HTMode: "HT20", Band: "2g"},
		{Name: "radio1", Channel: "auto", HTMode: "VHT80", Band: "5g", Channels: "36-64"},
	}

	result := v.Validate(defaultConfig(), radios)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, result.Summary.TotalOptions, result.Summary.ValidOptions)
}

func TestConfigValidatorFindings(t *testing.T) {
	cfg := defaultConfig()
	cfg.DryRun = true
	cfg.HTTPListen = "8089"
	cfg.MQTTEnabled = true
	cfg.MQTTBroker = "tcp://broker:1883"
	cfg.MQTTTopicPrefix = "acsd/#"
	cfg.Radios = []string{"radio0", "radio1", "radio2", "radio5"}

	radios := []RadioSection{
		{Name: "radio0", Channel: "6", HTMode: "HT20", Band: "2g"},
		{Name: "radio1", Channel: "auto", HTMode: "HE80", Band: "5g"},
		{Name: "radio2", Channel: "auto", HTMode: "HT40-", Band: "5g", Channels: "x"},
		{Name: "radio3", Channel: "auto", HTMode: "bogus", Disabled: true},
	}

	result := NewConfigValidator(nil).Validate(cfg, radios)
	assert.False(t, result.Valid)

	errs := map[string]bool{}
	for _, e := range result.Errors {
		errs[e.Section+"."+e.Option] = true
	}
	assert.Equal(t, map[string]bool{
		"main.http_listen":       true,
		"main.mqtt_broker":       true,
		"main.mqtt_topic_prefix": true,
		"radio1.htmode":          true,
		"radio2.channels":        true,
	}, errs)

	warns := map[string]bool{}
	for _, w := range result.Warnings {
		warns[w.Section+"."+w.Option] = true
	}
	assert.Equal(t, map[string]bool{
		"main.dry_run":   true,
		"main.radio":     true,
		"radio0.channel": true,
		"radio2.htmode":  true,
	}, warns)

	assert.Equal(t, len(result.Errors), result.Summary.TotalErrors)
	assert.Equal(t, len(result.Warnings), result.Summary.TotalWarnings)
}
