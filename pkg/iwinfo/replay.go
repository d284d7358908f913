package iwinfo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/markus-lassfolk/acsd/pkg/acs"
	"github.com/markus-lassfolk/acsd/pkg/logx"
)

// ReplayDriver feeds a captured survey into a selection cycle. It is used to
// study recorded data without touching a radio.
type ReplayDriver struct {
	entries []SurveyEntry
	logger  *logx.Logger
}

// NewReplayDriver wraps already parsed survey entries
func NewReplayDriver(entries []SurveyEntry, logger *logx.Logger) *ReplayDriver {
	return &ReplayDriver{entries: entries, logger: logger}
}

// LoadReplay reads a capture of `iw survey dump` output or ubus survey JSON
func LoadReplay(path string, logger *logx.Logger) (*ReplayDriver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read survey capture: %w", err)
	}

	var entries []SurveyEntry
	if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		entries, err = ParseUbusSurvey(data)
	} else {
		entries, err = ParseSurveyDump(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse survey capture %s: %w", path, err)
	}

	logger.Debug("Loaded survey capture", "path", path, "entries", len(entries))
	return NewReplayDriver(entries, logger), nil
}

// Entries returns the captured survey
func (r *ReplayDriver) Entries() []SurveyEntry {
	return r.entries
}

// RequestScan completes immediately from a separate goroutine
func (r *ReplayDriver) RequestScan(_ context.Context, req acs.ScanRequest) error {
	if len(req.Freqs) == 0 {
		return ErrNoFrequencies
	}
	if req.Done != nil {
		go req.Done()
	}
	return nil
}

// FetchSurvey ingests the captured entries
func (r *ReplayDriver) FetchSurvey(_ context.Context, iface *acs.Interface) error {
	n := ingest(iface, r.entries)
	r.logger.Debug("Replayed survey", "interface", iface.Name, "ingested", n)
	return nil
}
