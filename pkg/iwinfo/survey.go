package iwinfo

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/markus-lassfolk/acsd/pkg/acs"
)

// SurveyEntry is one per-frequency survey record reported by the driver
type SurveyEntry struct {
	Freq   int              `json:"freq_mhz"`
	InUse  bool             `json:"in_use,omitempty"`
	Sample acs.SurveySample `json:"sample"`
}

// ParseSurveyDump parses the output of `iw dev <dev> survey dump`. Fields the
// driver did not report are left out of the sample's presence mask.
func ParseSurveyDump(r io.Reader) ([]SurveyEntry, error) {
	var entries []SurveyEntry
	var cur *SurveyEntry

	flush := func() {
		if cur != nil && cur.Freq != 0 {
			entries = append(entries, *cur)
		}
		cur = nil
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "Survey data from ") {
			flush()
			cur = &SurveyEntry{}
			continue
		}
		if cur == nil {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.TrimSpace(key) {
		case "frequency":
			fields := strings.Fields(value)
			if len(fields) == 0 {
				return nil, fmt.Errorf("survey dump line %d: missing frequency", lineNum)
			}
			freq, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, fmt.Errorf("survey dump line %d: invalid frequency %q", lineNum, value)
			}
			cur.Freq = freq
			cur.InUse = strings.Contains(value, "[in use]")
		case "noise":
			nf, err := leadingInt(value)
			if err != nil {
				return nil, fmt.Errorf("survey dump line %d: invalid noise %q", lineNum, value)
			}
			cur.Sample.NoiseFloor = nf
			cur.Sample.Filled |= acs.SurveyHasNoiseFloor
		case "channel active time":
			if err := setTime(&cur.Sample, acs.SurveyHasChanTime, value); err != nil {
				return nil, fmt.Errorf("survey dump line %d: %w", lineNum, err)
			}
		case "channel busy time":
			if err := setTime(&cur.Sample, acs.SurveyHasChanTimeBusy, value); err != nil {
				return nil, fmt.Errorf("survey dump line %d: %w", lineNum, err)
			}
		case "channel receive time":
			if err := setTime(&cur.Sample, acs.SurveyHasChanTimeRx, value); err != nil {
				return nil, fmt.Errorf("survey dump line %d: %w", lineNum, err)
			}
		case "channel transmit time":
			if err := setTime(&cur.Sample, acs.SurveyHasChanTimeTx, value); err != nil {
				return nil, fmt.Errorf("survey dump line %d: %w", lineNum, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read survey dump: %w", err)
	}
	flush()

	return entries, nil
}

func leadingInt(value string) (int, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.Atoi(fields[0])
}

func setTime(s *acs.SurveySample, field acs.SurveyField, value string) error {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return fmt.Errorf("empty %s", field)
	}
	v, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q", field, value)
	}

	switch field {
	case acs.SurveyHasChanTime:
		s.ChannelTime = v
	case acs.SurveyHasChanTimeBusy:
		s.ChannelTimeBusy = v
	case acs.SurveyHasChanTimeRx:
		s.ChannelTimeRx = v
	case acs.SurveyHasChanTimeTx:
		s.ChannelTimeTx = v
	}
	s.Filled |= field
	return nil
}

// ubusSurveyItem is one record of `ubus call iwinfo survey`. Pointers tell
// reported zeros apart from missing fields.
type ubusSurveyItem struct {
	MHz        int     `json:"mhz"`
	Frequency  int     `json:"frequency"`
	Noise      *int    `json:"noise"`
	ActiveTime *uint64 `json:"active_time"`
	BusyTime   *uint64 `json:"busy_time"`
	RxTime     *uint64 `json:"rx_time"`
	TxTime     *uint64 `json:"tx_time"`
}

type ubusSurveyResult struct {
	Results []ubusSurveyItem `json:"results"`
	Survey  []ubusSurveyItem `json:"survey"`
}

// ParseUbusSurvey parses the JSON returned by `ubus call iwinfo survey`
func ParseUbusSurvey(data []byte) ([]SurveyEntry, error) {
	var result ubusSurveyResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse survey results: %w", err)
	}

	items := result.Results
	if len(items) == 0 {
		items = result.Survey
	}

	entries := make([]SurveyEntry, 0, len(items))
	for _, item := range items {
		freq := item.MHz
		if freq == 0 {
			freq = item.Frequency
		}
		if freq == 0 {
			continue
		}

		e := SurveyEntry{Freq: freq}
		if item.Noise != nil {
			e.Sample.NoiseFloor = *item.Noise
			e.Sample.Filled |= acs.SurveyHasNoiseFloor
		}
		if item.ActiveTime != nil {
			e.Sample.ChannelTime = *item.ActiveTime
			e.Sample.Filled |= acs.SurveyHasChanTime
		}
		if item.BusyTime != nil {
			e.Sample.ChannelTimeBusy = *item.BusyTime
			e.Sample.Filled |= acs.SurveyHasChanTimeBusy
		}
		if item.RxTime != nil {
			e.Sample.ChannelTimeRx = *item.RxTime
			e.Sample.Filled |= acs.SurveyHasChanTimeRx
		}
		if item.TxTime != nil {
			e.Sample.ChannelTimeTx = *item.TxTime
			e.Sample.Filled |= acs.SurveyHasChanTimeTx
		}
		entries = append(entries, e)
	}

	return entries, nil
}
