package uci

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/markus-lassfolk/acsd/pkg/logx"
)

// UCI is a client for the `uci` command line tool. Unlike NativeUCI it shares
// the system's staging area in /tmp/.uci with other tools.
type UCI struct {
	logger *logx.Logger
	run    func(ctx context.Context, args ...string) (string, error)
}

// NewUCI creates a new UCI client
func NewUCI(logger *logx.Logger) *UCI {
	u := &UCI{logger: logger}
	u.run = u.execUCI
	return u
}

// Get returns config.section.option
func (u *UCI) Get(ctx context.Context, config, section, option string) (string, error) {
	output, err := u.run(ctx, "-q", "get", fmt.Sprintf("%s.%s.%s", config, section, option))
	if err != nil {
		return "", fmt.Errorf("%w: %s.%s.%s", ErrNotFound, config, section, option)
	}
	return strings.TrimSpace(output), nil
}

// Set stages config.section.option=value
func (u *UCI) Set(ctx context.Context, config, section, option, value string) error {
	_, err := u.run(ctx, "set", fmt.Sprintf("%s.%s.%s=%s", config, section, option, value))
	if err != nil {
		return fmt.Errorf("failed to set %s.%s.%s: %w", config, section, option, err)
	}
	return nil
}

// Commit commits staged changes of config
func (u *UCI) Commit(ctx context.Context, config string) error {
	if _, err := u.run(ctx, "commit", config); err != nil {
		return fmt.Errorf("failed to commit %s: %w", config, err)
	}
	return nil
}

// Revert drops staged changes of config
func (u *UCI) Revert(ctx context.Context, config string) error {
	if _, err := u.run(ctx, "revert", config); err != nil {
		return fmt.Errorf("failed to revert %s: %w", config, err)
	}
	return nil
}

// Export returns config in UCI file syntax, including staged changes
func (u *UCI) Export(ctx context.Context, config string) (*Package, error) {
	output, err := u.run(ctx, "export", config)
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", config, err)
	}
	return Parse(config, strings.NewReader(output))
}

// ValidateUCI checks if UCI is available and working
func (u *UCI) ValidateUCI(ctx context.Context) error {
	if _, err := exec.LookPath("uci"); err != nil {
		return fmt.Errorf("UCI is not available: %w", err)
	}
	return nil
}

// execUCI executes a UCI command
func (u *UCI) execUCI(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "uci", args...)
	output, err := cmd.Output()
	if err != nil {
		u.logger.Error("UCI command failed", "command", "uci "+strings.Join(args, " "), "error", err)
		return "", fmt.Errorf("uci command failed: %w", err)
	}

	return string(output), nil
}
