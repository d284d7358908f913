package uci

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/markus-lassfolk/acsd/pkg/logx"
)

// ErrNotFound is returned when a section or option does not exist
var ErrNotFound = errors.New("uci: not found")

// Store is the UCI access used by the daemon; NativeUCI and UCI both implement it
type Store interface {
	Get(ctx context.Context, config, section, option string) (string, error)
	Set(ctx context.Context, config, section, option, value string) error
	Commit(ctx context.Context, config string) error
}

// NativeUCI reads and writes UCI files directly without exec calls. Set
// stages changes in memory until Commit writes the file.
type NativeUCI struct {
	configPath string
	logger     *logx.Logger
	cache      map[string]cachedValue
	cacheMutex sync.RWMutex
	cacheTTL   time.Duration

	pendingMu sync.Mutex
	pending   map[string]*Package
}

// NewNativeUCI creates a client for the UCI files under configPath
func NewNativeUCI(configPath string, logger *logx.Logger) *NativeUCI {
	return &NativeUCI{
		configPath: configPath,
		logger:     logger,
		cache:      make(map[string]cachedValue),
		cacheTTL:   30 * time.Second,
		pending:    make(map[string]*Package),
	}
}

// ConfigPath returns the directory holding the UCI files
func (n *NativeUCI) ConfigPath() string {
	return n.configPath
}

// Get retrieves an option value, preferring staged changes over the file
func (n *NativeUCI) Get(ctx context.Context, config, section, option string) (string, error) {
	cacheKey := fmt.Sprintf("%s.%s.%s", config, section, option)

	n.cacheMutex.RLock()
	if cached, exists := n.cache[cacheKey]; exists && time.Since(cached.timestamp) < n.cacheTTL {
		n.cacheMutex.RUnlock()
		return cached.value, nil
	}
	n.cacheMutex.RUnlock()

	pkg, err := n.Load(ctx, config)
	if err != nil {
		return "", err
	}
	s := pkg.Section(section)
	if s == nil {
		return "", fmt.Errorf("%w: section %s.%s", ErrNotFound, config, section)
	}
	value, ok := s.Get(option)
	if !ok {
		return "", fmt.Errorf("%w: option %s.%s.%s", ErrNotFound, config, section, option)
	}

	n.cacheMutex.Lock()
	n.cache[cacheKey] = cachedValue{value: value, timestamp: time.Now()}
	n.cacheMutex.Unlock()

	return value, nil
}

// Set stages an option value. A missing section is created with the config
// name as its type, so acsd.main becomes `config acsd 'main'`.
func (n *NativeUCI) Set(ctx context.Context, config, section, option, value string) error {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()

	pkg, ok := n.pending[config]
	if !ok {
		loaded, err := n.readPackage(config, true)
		if err != nil {
			return fmt.Errorf("failed to stage %s.%s.%s: %w", config, section, option, err)
		}
		pkg = loaded
		n.pending[config] = pkg
	}

	s := pkg.Section(section)
	if s == nil {
		s = pkg.AddSection(config, section)
	}
	s.Set(option, value)

	n.invalidate(config)
	n.logger.Debug("UCI config set", "config", config, "section", section, "option", option, "value", value)
	return nil
}

// Commit writes staged changes of config to disk
func (n *NativeUCI) Commit(ctx context.Context, config string) error {
	// held through the write so a concurrent Set cannot stage on the old file
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()

	pkg, ok := n.pending[config]
	delete(n.pending, config)

	n.invalidate(config)
	if !ok {
		n.logger.Debug("UCI commit without changes", "config", config)
		return nil
	}

	if err := n.writePackage(pkg); err != nil {
		return err
	}

	n.logger.Debug("UCI config committed", "config", config)
	return nil
}

// Revert drops staged changes of config
func (n *NativeUCI) Revert(config string) {
	n.pendingMu.Lock()
	delete(n.pending, config)
	n.pendingMu.Unlock()
	n.invalidate(config)
}

// Load returns the current view of config, including staged changes
func (n *NativeUCI) Load(ctx context.Context, config string) (*Package, error) {
	n.pendingMu.Lock()
	if pkg, ok := n.pending[config]; ok {
		c := pkg.clone()
		n.pendingMu.Unlock()
		return c, nil
	}
	n.pendingMu.Unlock()

	return n.readPackage(config, false)
}

// Sections returns the sections of config with the given type
func (n *NativeUCI) Sections(ctx context.Context, config, sectionType string) ([]*Section, error) {
	pkg, err := n.Load(ctx, config)
	if err != nil {
		return nil, err
	}
	return pkg.SectionsOfType(sectionType), nil
}

func (n *NativeUCI) readPackage(config string, allowMissing bool) (*Package, error) {
	configFile := filepath.Join(n.configPath, config)

	data, err := os.ReadFile(configFile)
	if err != nil {
		if allowMissing && os.IsNotExist(err) {
			return &Package{Name: config}, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	return Parse(config, bytes.NewReader(data))
}

// writePackage replaces the config file atomically
func (n *NativeUCI) writePackage(pkg *Package) error {
	configFile := filepath.Join(n.configPath, pkg.Name)

	if err := os.MkdirAll(n.configPath, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	if _, err := pkg.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to encode config %s: %w", pkg.Name, err)
	}

	tmp := configFile + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, configFile); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file %s: %w", configFile, err)
	}
	return nil
}

// ValidateConfig checks the structure of config and the values of known options
func (n *NativeUCI) ValidateConfig(ctx context.Context, config string) error {
	pkg, err := n.readPackage(config, false)
	if err != nil {
		return err
	}

	for _, s := range pkg.Sections {
		for option, value := range s.Options {
			if err := validateOptionValue(option, value); err != nil {
				return fmt.Errorf("invalid value for option '%s' in section '%s': %w", option, sectionLabel(s), err)
			}
		}
	}
	return nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

func sectionLabel(s *Section) string {
	if s.Name != "" {
		return s.Name
	}
	return "@" + s.Type
}

// validateOptionValue validates individual option values
func validateOptionValue(option, value string) error {
	switch option {
	case "enabled", "disabled", "dry_run", "use_dfs", "nightly_enabled", "mqtt_enabled":
		if value != "0" && value != "1" {
			return fmt.Errorf("boolean option must be 0 or 1, got: %s", value)
		}
	case "chan_time_ms", "nightly_window_min", "mqtt_port":
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("integer option must be a number, got: %s", value)
		}
	case "log_level":
		if !isValidLogLevel(value) {
			return fmt.Errorf("log_level must be one of %v, got: %s", validLogLevels, value)
		}
	}
	return nil
}

func (n *NativeUCI) invalidate(config string) {
	prefix := config + "."
	n.cacheMutex.Lock()
	for key := range n.cache {
		if strings.HasPrefix(key, prefix) {
			delete(n.cache, key)
		}
	}
	n.cacheMutex.Unlock()
}

// ClearCache clears the configuration cache
func (n *NativeUCI) ClearCache() {
	n.cacheMutex.Lock()
	n.cache = make(map[string]cachedValue)
	n.cacheMutex.Unlock()
}

// cachedValue represents a cached configuration value
type cachedValue struct {
	value     string
	timestamp time.Time
}
