package acs

import (
	"github.com/markus-lassfolk/acsd/pkg/logx"
)

func testLogger() *logx.Logger {
	return logx.NewLogger("debug", "test")
}

func channels24(numbers ...int) *HWMode {
	mode := &HWMode{Mode: ModeIEEE80211G}
	for _, n := range numbers {
		mode.Channels = append(mode.Channels, &Channel{Number: n, Freq: 2407 + 5*n, Enabled: true})
	}
	return mode
}

func channels5(numbers ...int) *HWMode {
	mode := &HWMode{Mode: ModeIEEE80211A}
	for _, n := range numbers {
		mode.Channels = append(mode.Channels, &Channel{Number: n, Freq: 5000 + 5*n, Enabled: true})
	}
	return mode
}

func fullSample(nf int, total, busy uint64) SurveySample {
	return SurveySample{
		ChannelTime:     total,
		ChannelTimeBusy: busy,
		NoiseFloor:      nf,
		Filled:          SurveyHasNoiseFloor | SurveyHasChanTime | SurveyHasChanTimeBusy,
	}
}

// withFactors marks each channel usable and forces its interference factor
func withFactors(iface *Interface, factors map[int]float64) {
	for _, ch := range iface.Channels() {
		f, ok := factors[ch.Number]
		if !ok {
			continue
		}
		iface.IngestSurvey(ch.Freq, fullSample(-95, 100, 10))
		ch.InterferenceFactor = f
	}
}
