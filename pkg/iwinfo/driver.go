package iwinfo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/markus-lassfolk/acsd/pkg/acs"
	"github.com/markus-lassfolk/acsd/pkg/logx"
)

// Backend selects where survey data is read from
type Backend string

const (
	BackendIW   Backend = "iw"
	BackendUbus Backend = "ubus"
)

// ErrNoFrequencies is returned when a scan is requested with an empty channel table
var ErrNoFrequencies = errors.New("iwinfo: no frequencies to scan")

const (
	defaultScanTimeout   = 30 * time.Second
	defaultSurveyTimeout = 10 * time.Second
)

// Driver implements acs.Driver on top of iw and ubus
type Driver struct {
	device  string
	backend Backend
	runner  CommandRunner
	logger  *logx.Logger

	scanTimeout   time.Duration
	surveyTimeout time.Duration

	mu      sync.Mutex
	scanErr error
	wg      sync.WaitGroup
}

// NewDriver creates a driver for one network device. A nil runner uses ExecRunner.
func NewDriver(device string, backend Backend, runner CommandRunner, logger *logx.Logger) *Driver {
	if runner == nil {
		runner = ExecRunner{}
	}
	if backend == "" {
		backend = BackendIW
	}
	return &Driver{
		device:        device,
		backend:       backend,
		runner:        runner,
		logger:        logger,
		scanTimeout:   defaultScanTimeout,
		surveyTimeout: defaultSurveyTimeout,
	}
}

// Device returns the network device the driver scans on
func (d *Driver) Device() string {
	return d.device
}

// RequestScan checks that the device exists and then runs the scan in the
// background. Done fires when iw returns; a failed scan is reported by the
// following FetchSurvey.
func (d *Driver) RequestScan(ctx context.Context, req acs.ScanRequest) error {
	if len(req.Freqs) == 0 {
		return ErrNoFrequencies
	}

	if _, err := d.runner.Run(ctx, "iw", "dev", d.device, "info"); err != nil {
		return fmt.Errorf("device %s unavailable: %w", d.device, err)
	}

	args := scanArgs(d.device, req.Freqs, req.Dwell)

	d.mu.Lock()
	d.scanErr = nil
	d.mu.Unlock()

	scanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.scanTimeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()

		start := time.Now()
		_, err := d.runner.Run(scanCtx, "iw", args...)
		if err != nil {
			d.logger.Warn("Off-channel scan failed", "device", d.device, "error", err)
			d.mu.Lock()
			d.scanErr = err
			d.mu.Unlock()
		} else {
			d.logger.Debug("Off-channel scan finished",
				"device", d.device,
				"freqs", len(req.Freqs),
				"duration", time.Since(start).String())
		}

		if req.Done != nil {
			req.Done()
		}
	}()

	return nil
}

// FetchSurvey reads the survey for every frequency and hands the samples to iface
func (d *Driver) FetchSurvey(ctx context.Context, iface *acs.Interface) error {
	d.mu.Lock()
	scanErr := d.scanErr
	d.mu.Unlock()
	if scanErr != nil {
		return fmt.Errorf("scan did not complete: %w", scanErr)
	}

	ctx, cancel := context.WithTimeout(ctx, d.surveyTimeout)
	defer cancel()

	entries, err := d.readSurvey(ctx)
	if err != nil {
		return err
	}

	ingested := ingest(iface, entries)

	d.logger.Debug("Survey fetched",
		"device", d.device,
		"backend", string(d.backend),
		"entries", len(entries),
		"ingested", ingested)

	return nil
}

func (d *Driver) readSurvey(ctx context.Context) ([]SurveyEntry, error) {
	switch d.backend {
	case BackendUbus:
		payload := fmt.Sprintf(`{"device":%q}`, d.device)
		output, err := d.runner.Run(ctx, "ubus", "-S", "call", "iwinfo", "survey", payload)
		if err != nil {
			return nil, fmt.Errorf("ubus survey failed: %w", err)
		}
		return ParseUbusSurvey(output)
	case BackendIW:
		output, err := d.runner.Run(ctx, "iw", "dev", d.device, "survey", "dump")
		if err != nil {
			return nil, fmt.Errorf("survey dump failed: %w", err)
		}
		return ParseSurveyDump(bytes.NewReader(output))
	default:
		return nil, fmt.Errorf("unknown survey backend %q", d.backend)
	}
}

// ingest hands entries to iface. Entries that carry no measurement at all
// belong to channels the radio never visited and are dropped.
func ingest(iface *acs.Interface, entries []SurveyEntry) int {
	n := 0
	for _, e := range entries {
		if e.Sample.Filled == 0 {
			continue
		}
		if iface.IngestSurvey(e.Freq, e.Sample) {
			n++
		}
	}
	return n
}

// Wait blocks until background scans have returned
func (d *Driver) Wait() {
	d.wg.Wait()
}

// scanArgs builds the iw scan command line. The dwell is given to iw in time
// units of 1024 microseconds.
func scanArgs(device string, freqs []int, dwell time.Duration) []string {
	args := []string{"dev", device, "scan", "freq"}
	for _, f := range freqs {
		args = append(args, strconv.Itoa(f))
	}
	if tu := dwell.Microseconds() / 1024; tu > 0 {
		args = append(args, "duration", strconv.FormatInt(tu, 10))
	}
	return args
}
