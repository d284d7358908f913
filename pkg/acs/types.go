// Package acs implements survey-based automatic channel selection for an
// access point radio.
//
// A selection cycle requests an off-channel scan from the driver, collects the
// per-channel survey samples the driver reports, scores every usable channel
// with an interference factor and commits the channel (or channel group for
// 40/80 MHz operation) with the lowest aggregate factor.
//
// The interference factor of one survey sample is
//
//	10^(nf/5) + (busy/total) * 2^(10^(nf/10) - 10^(min_nf/10))
//
// where busy falls back to rx time when the driver does not report busy time
// and tx time is removed from both busy and total. The first term keeps idle
// channels ordered by their noise floor; the second weighs channel occupancy
// by how far the channel's noise floor sits above the quietest channel seen.
package acs

import (
	"time"

	"github.com/markus-lassfolk/acsd/pkg/logx"
)

// SurveyField marks which measurements a driver reported for a sample
type SurveyField uint8

const (
	SurveyHasNoiseFloor SurveyField = 1 << iota
	SurveyHasChanTime
	SurveyHasChanTimeBusy
	SurveyHasChanTimeRx
	SurveyHasChanTimeTx
)

// String names the field for log output
func (f SurveyField) String() string {
	switch f {
	case 0:
		return "none"
	case SurveyHasNoiseFloor:
		return "noise_floor"
	case SurveyHasChanTime:
		return "channel_time"
	case SurveyHasChanTimeBusy:
		return "channel_time_busy"
	case SurveyHasChanTimeRx:
		return "channel_time_rx"
	case SurveyHasChanTimeTx:
		return "channel_time_tx"
	case SurveyHasChanTimeBusy | SurveyHasChanTimeRx:
		return "channel_time_busy_or_rx"
	default:
		return "multiple"
	}
}

// SurveySample is one measurement window reported by the driver for a channel.
// Times are in milliseconds, NoiseFloor in dBm.
type SurveySample struct {
	ChannelTime     uint64      `json:"channel_time"`
	ChannelTimeBusy uint64      `json:"channel_time_busy"`
	ChannelTimeRx   uint64      `json:"channel_time_rx"`
	ChannelTimeTx   uint64      `json:"channel_time_tx"`
	NoiseFloor      int         `json:"noise_floor"`
	Filled          SurveyField `json:"filled"`
}

// Has reports whether every bit in f was reported
func (s SurveySample) Has(f SurveyField) bool {
	return s.Filled&f == f
}

// Channel is a long-lived channel table entry. Survey samples attached to it
// only live for one selection cycle.
type Channel struct {
	Number  int  `json:"channel"`
	Freq    int  `json:"freq_mhz"`
	Enabled bool `json:"enabled"`

	// MinNoiseFloor is the lowest noise floor among this channel's samples, 0 if none.
	MinNoiseFloor int `json:"min_nf"`

	// InterferenceFactor is only meaningful while Usable reports true and
	// after the channel has been scored in the current cycle.
	InterferenceFactor float64 `json:"interference_factor"`

	surveys []SurveySample
}

// Surveys returns a copy of the samples collected in the current cycle
func (c *Channel) Surveys() []SurveySample {
	out := make([]SurveySample, len(c.surveys))
	copy(out, c.surveys)
	return out
}

// SurveyCount returns how many samples the channel holds
func (c *Channel) SurveyCount() int {
	return len(c.surveys)
}

// Mode is the PHY mode of a channel table
type Mode int

const (
	ModeIEEE80211B Mode = iota
	ModeIEEE80211G
	ModeIEEE80211A
)

func (m Mode) String() string {
	switch m {
	case ModeIEEE80211B:
		return "11b"
	case ModeIEEE80211G:
		return "11g"
	case ModeIEEE80211A:
		return "11a"
	default:
		return "unknown"
	}
}

// Is2GHz reports whether the mode uses the overlapping 2.4 GHz channel raster
func (m Mode) Is2GHz() bool {
	return m == ModeIEEE80211B || m == ModeIEEE80211G
}

// HWMode is the ordered channel table of one band
type HWMode struct {
	Mode     Mode       `json:"mode"`
	Channels []*Channel `json:"channels"`
}

// VHTChannelWidth is the VHT operating channel width class
type VHTChannelWidth int

const (
	VHTChanWidthUseHT VHTChannelWidth = iota
	VHTChanWidth80MHz
	VHTChanWidth160MHz
	VHTChanWidth80P80MHz
)

func (w VHTChannelWidth) String() string {
	switch w {
	case VHTChanWidthUseHT:
		return "use_ht"
	case VHTChanWidth80MHz:
		return "80"
	case VHTChanWidth160MHz:
		return "160"
	case VHTChanWidth80P80MHz:
		return "80+80"
	default:
		return "unknown"
	}
}

// RadioConfig is the requested bandwidth configuration of a radio plus the
// fields a selection cycle writes back.
type RadioConfig struct {
	HTEnabled        bool            `json:"ieee80211n"`
	VHTEnabled       bool            `json:"ieee80211ac"`
	SecondaryChannel int             `json:"secondary_channel"` // -1, 0 or +1
	VHTChannelWidth  VHTChannelWidth `json:"vht_oper_chwidth"`
	ChannelTime      time.Duration   `json:"acs_chan_time"`

	// Written by a successful study.
	Channel              int `json:"channel"`
	VHTCenterFreqSeg0Idx int `json:"vht_oper_centr_freq_seg0_idx"`
}

// Bandwidth returns the operating width in MHz implied by the configuration
func (rc *RadioConfig) Bandwidth() int {
	return spanWidth(rc.span())
}

// span is the number of contiguous 20 MHz channels scored together
func (rc *RadioConfig) span() int {
	n := 1
	if rc.HTEnabled && rc.SecondaryChannel != 0 {
		n = 2
	}
	if rc.VHTEnabled && rc.VHTChannelWidth == VHTChanWidth80MHz {
		n = 4
	}
	return n
}

func spanWidth(n int) int {
	switch n {
	case 1:
		return 20
	case 2:
		return 40
	case 4:
		return 80
	default:
		return -1
	}
}

// Interface is the per-radio selection context. Each radio needs its own
// instance; nothing in it is shared across radios.
type Interface struct {
	Name   string       `json:"name"`
	Mode   *HWMode      `json:"hw_mode"`
	Config *RadioConfig `json:"config"`

	// LowestNoiseFloor is the minimum noise floor across enabled channels, 0 if none.
	LowestNoiseFloor int `json:"lowest_nf"`

	// SurveysCollected is set once any sample was ingested this cycle.
	SurveysCollected bool `json:"surveys_collected"`

	candidates []CandidateScore
	logger     *logx.Logger
}

// NewInterface creates a selection context for one radio
func NewInterface(name string, mode *HWMode, cfg *RadioConfig, logger *logx.Logger) *Interface {
	if cfg == nil {
		cfg = &RadioConfig{}
	}
	return &Interface{
		Name:   name,
		Mode:   mode,
		Config: cfg,
		logger: logger,
	}
}

// Channels returns the channel table, or nil without a mode
func (i *Interface) Channels() []*Channel {
	if i.Mode == nil {
		return nil
	}
	return i.Mode.Channels
}

// ChannelByNumber finds a channel table entry regardless of usability
func (i *Interface) ChannelByNumber(number int) *Channel {
	for _, ch := range i.Channels() {
		if ch.Number == number {
			return ch
		}
	}
	return nil
}

// EnabledFrequencies lists the frequencies of all enabled channels in table order
func (i *Interface) EnabledFrequencies() []int {
	var freqs []int
	for _, ch := range i.Channels() {
		if ch.Enabled {
			freqs = append(freqs, ch.Freq)
		}
	}
	return freqs
}

// CandidateScore is the aggregated factor computed for one primary candidate
type CandidateScore struct {
	Channel int     `json:"channel"`
	Freq    int     `json:"freq_mhz"`
	Factor  float64 `json:"factor"`
}

// Candidates returns the aggregates from the last SelectIdealChannel call
func (i *Interface) Candidates() []CandidateScore {
	out := make([]CandidateScore, len(i.candidates))
	copy(out, i.candidates)
	return out
}
