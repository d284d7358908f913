package uci

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/markus-lassfolk/acsd/pkg/logx"
)

// DaemonConfig is the UCI package of the daemon itself
const DaemonConfig = "acsd"

// ConfigManager fills in missing daemon options so the config file documents
// every knob
type ConfigManager struct {
	store  Store
	logger *logx.Logger
}

// NewConfigManager creates a new config manager
func NewConfigManager(store Store, logger *logx.Logger) *ConfigManager {
	return &ConfigManager{
		store:  store,
		logger: logger,
	}
}

// requiredOptions are the options of `config acsd 'main'` with their defaults
func requiredOptions() map[string]string {
	return map[string]string{
		"enabled":            "1",
		"log_level":          DefaultLogLevel,
		"chan_time_ms":       strconv.Itoa(DefaultChanTimeMS),
		"dry_run":            "0",
		"use_dfs":            "0",
		"reg_domain":         DefaultRegDomain,
		"survey_backend":     DefaultSurveyBackend,
		"http_listen":        DefaultHTTPListen,
		"nightly_enabled":    "0",
		"nightly_time":       DefaultNightlyTime,
		"nightly_window_min": strconv.Itoa(DefaultNightlyWindowMin),
		"mqtt_enabled":       "0",
		"mqtt_port":          strconv.Itoa(DefaultMQTTPort),
		"mqtt_topic_prefix":  DefaultMQTTTopicPrefix,
		"mqtt_client_id":     DefaultMQTTClientID,
		"trace_enabled":      "0",
		"trace_exporter":     DefaultTraceExporter,
	}
}

// EnsureRequiredConfig sets every missing main option to its default and
// commits. It returns the names of the options it added.
func (cm *ConfigManager) EnsureRequiredConfig(ctx context.Context) ([]string, error) {
	defaults := requiredOptions()
	names := make([]string, 0, len(defaults))
	for name := range defaults {
		names = append(names, name)
	}
	sort.Strings(names)

	var added []string
	for _, option := range names {
		_, err := cm.store.Get(ctx, DaemonConfig, "main", option)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) && !isMissingFile(err) {
			return nil, fmt.Errorf("failed to read option main.%s: %w", option, err)
		}

		cm.logger.Info("Setting missing option", "section", "main", "option", option, "value", defaults[option])
		if err := cm.store.Set(ctx, DaemonConfig, "main", option, defaults[option]); err != nil {
			return nil, fmt.Errorf("failed to set option main.%s: %w", option, err)
		}
		added = append(added, option)
	}

	if len(added) == 0 {
		return nil, nil
	}

	if err := cm.store.Commit(ctx, DaemonConfig); err != nil {
		return nil, fmt.Errorf("failed to commit configuration: %w", err)
	}
	cm.logger.Info("Required configuration ensured", "added", len(added))
	return added, nil
}
