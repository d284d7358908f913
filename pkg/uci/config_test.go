package uci

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, 50*time.Millisecond, cfg.ChannelTime())
	assert.Equal(t, "ETSI", cfg.RegDomain)
	assert.Equal(t, "iw", cfg.SurveyBackend)
	assert.Equal(t, 30*time.Minute, cfg.NightlyWindow())
	assert.False(t, cfg.MQTTEnabled)
	assert.True(t, cfg.WantsRadio("radio0"))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acsd")
	content := `
config acsd 'main'
	option enabled '1'
	option log_level 'debug'
	option chan_time_ms '100'
	option dry_run 'yes'
	option use_dfs '1'
	option reg_domain 'fcc'
	option survey_backend 'ubus'
	option grpc_listen '127.0.0.1:9099'
	option api_key 's3cret'
	option nightly_enabled '1'
	option nightly_time '04:30'
	option nightly_window_min '45'
	option mqtt_enabled '1'
	option mqtt_broker 'broker.lan'
	option mqtt_topic_prefix 'home/acsd/'
	option trace_enabled '1'
	option trace_exporter 'OTLP'
	option otlp_endpoint 'collector.lan:4317'
	option trace_sample_ratio '0.25'
	list radio 'radio1'

config acsd 'other'
	option log_level 'error'
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 100*time.Millisecond, cfg.ChannelTime())
	assert.True(t, cfg.DryRun)
	assert.True(t, cfg.UseDFS)
	assert.Equal(t, "FCC", cfg.RegDomain)
	assert.Equal(t, "ubus", cfg.SurveyBackend)
	assert.Equal(t, "127.0.0.1:9099", cfg.GRPCListen)
	assert.Equal(t, "s3cret", cfg.APIKey)
	assert.True(t, cfg.NightlyEnabled)
	assert.Equal(t, "04:30", cfg.NightlyTime)
	assert.Equal(t, 45*time.Minute, cfg.NightlyWindow())
	assert.Equal(t, "broker.lan", cfg.MQTTBroker)
	assert.Equal(t, 1883, cfg.MQTTPort)
	assert.Equal(t, "home/acsd", cfg.MQTTTopicPrefix)
	assert.True(t, cfg.TraceEnabled)
	assert.Equal(t, "otlp", cfg.TraceExporter)
	assert.Equal(t, "collector.lan:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 0.25, cfg.TraceSampleRatio)
	assert.Equal(t, []string{"radio1"}, cfg.Radios)
	assert.True(t, cfg.WantsRadio("radio1"))
	assert.False(t, cfg.WantsRadio("radio0"))
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		options string
	}{
		{"log level", "option log_level 'chatty'"},
		{"chan time range", "option chan_time_ms '5'"},
		{"trace exporter", "option trace_exporter 'jaeger'"},
		{"sample ratio", "option trace_sample_ratio '1.5'"},
		{"chan time type", "option chan_time_ms 'x'"},
		{"boolean", "option dry_run 'perhaps'"},
		{"reg domain", "option reg_domain 'MKK'"},
		{"backend", "option survey_backend 'nl80211'"},
		{"nightly time", "option nightly_time '25:00'"},
		{"nightly window", "option nightly_window_min '0'"},
		{"mqtt without broker", "option mqtt_enabled '1'"},
		{"mqtt port", "option mqtt_port '70000'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "acsd")
			content := "config acsd 'main'\n\t" + tt.options + "\n"
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			if _, err := LoadConfig(path); err == nil {
				t.Errorf("LoadConfig accepted %q", tt.options)
			}
		})
	}
}

func TestEnsureRequiredConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "acsd", "config acsd 'main'\n\toption log_level 'debug'\n\toption dry_run '1'\n")
	ctx := context.Background()
	n := NewNativeUCI(dir, nil)
	cm := NewConfigManager(n, nil)

	added, err := cm.EnsureRequiredConfig(ctx)
	require.NoError(t, err)
	assert.NotContains(t, added, "log_level")
	assert.NotContains(t, added, "dry_run")
	assert.Contains(t, added, "chan_time_ms")
	assert.Len(t, added, len(requiredOptions())-2)

	cfg, err := LoadConfig(filepath.Join(dir, "acsd"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, DefaultChanTimeMS, cfg.ChanTimeMS)

	added, err = cm.EnsureRequiredConfig(ctx)
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestEnsureRequiredConfigCreatesFile(t *testing.T) {
	dir := t.TempDir()
	n := NewNativeUCI(dir, nil)

	added, err := NewConfigManager(n, nil).EnsureRequiredConfig(context.Background())
	require.NoError(t, err)
	assert.Len(t, added, len(requiredOptions()))

	require.NoError(t, n.ValidateConfig(context.Background(), "acsd"))
	_, err = LoadConfig(filepath.Join(dir, "acsd"))
	require.NoError(t, err)
}
