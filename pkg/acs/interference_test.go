package acs

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleInterferenceFactorReference(t *testing.T) {
	s := SurveySample{
		ChannelTime:   5878,
		ChannelTimeRx: 199,
		NoiseFloor:    -111,
		Filled:        SurveyHasNoiseFloor | SurveyHasChanTime | SurveyHasChanTimeRx,
	}

	assert.InDelta(t, 0.0338551, SampleInterferenceFactor(s, -111), 1e-7)
}

func TestSampleInterferenceFactor(t *testing.T) {
	tests := []struct {
		name   string
		sample SurveySample
		minNF  int
		want   float64
	}{
		{
			name:   "busy preferred over rx",
			sample: SurveySample{ChannelTime: 100, ChannelTimeBusy: 50, ChannelTimeRx: 10, NoiseFloor: -100, Filled: SurveyHasNoiseFloor | SurveyHasChanTime | SurveyHasChanTimeBusy | SurveyHasChanTimeRx},
			minNF:  -100,
			want:   math.Pow(10, -20) + 0.5,
		},
		{
			name:   "tx excluded from busy and total",
			sample: SurveySample{ChannelTime: 100, ChannelTimeBusy: 60, ChannelTimeTx: 20, NoiseFloor: -100, Filled: SurveyHasNoiseFloor | SurveyHasChanTime | SurveyHasChanTimeBusy | SurveyHasChanTimeTx},
			minNF:  -100,
			want:   math.Pow(10, -20) + 0.5,
		},
		{
			name:   "idle channel keeps noise baseline",
			sample: SurveySample{ChannelTime: 100, NoiseFloor: -80, Filled: SurveyHasNoiseFloor | SurveyHasChanTime | SurveyHasChanTimeBusy},
			minNF:  -100,
			want:   math.Pow(10, -16),
		},
		{
			name:   "noisier channel amplifies occupancy",
			sample: SurveySample{ChannelTime: 100, ChannelTimeBusy: 50, NoiseFloor: -10, Filled: SurveyHasNoiseFloor | SurveyHasChanTime | SurveyHasChanTimeBusy},
			minNF:  -100,
			want:   math.Pow(10, -2) + 0.5*math.Pow(2, 0.1-math.Pow(10, -10)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SampleInterferenceFactor(tt.sample, tt.minNF)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestSampleInterferenceFactorAssertions(t *testing.T) {
	assert.Panics(t, func() {
		SampleInterferenceFactor(SurveySample{NoiseFloor: -95, Filled: SurveyHasNoiseFloor | SurveyHasChanTime | SurveyHasChanTimeBusy}, -95)
	}, "zero channel time")

	assert.Panics(t, func() {
		SampleInterferenceFactor(SurveySample{ChannelTime: 10, NoiseFloor: -95, Filled: SurveyHasNoiseFloor | SurveyHasChanTime}, -95)
	}, "no busy or rx time")
}

func TestScoreChannelIsMeanOfSamples(t *testing.T) {
	samples := []SurveySample{
		fullSample(-95, 1000, 100),
		fullSample(-92, 1000, 400),
		fullSample(-97, 2000, 50),
	}

	iface := NewInterface("wlan0", channels24(1), &RadioConfig{}, testLogger())
	var want float64
	for _, s := range samples {
		iface.IngestSurvey(2412, s)
	}
	for _, s := range samples {
		want += SampleInterferenceFactor(s, iface.LowestNoiseFloor)
	}
	want /= float64(len(samples))

	ch := iface.ChannelByNumber(1)
	iface.ScoreChannel(ch)
	assert.InDelta(t, want, ch.InterferenceFactor, 1e-15)

	// Replicating the sample set leaves the mean unchanged.
	for _, s := range samples {
		iface.IngestSurvey(2412, s)
	}
	iface.ScoreChannel(ch)
	assert.InDelta(t, want, ch.InterferenceFactor, 1e-15)
}

func TestScoreChannelSkipsUnusable(t *testing.T) {
	iface := NewInterface("wlan0", channels24(1, 6), &RadioConfig{}, testLogger())
	disabled := iface.ChannelByNumber(6)
	disabled.Enabled = false
	disabled.InterferenceFactor = 42
	iface.IngestSurvey(disabled.Freq, fullSample(-95, 100, 10))

	empty := iface.ChannelByNumber(1)
	empty.InterferenceFactor = 7

	iface.ScoreAllChannels()

	assert.Equal(t, 42.0, disabled.InterferenceFactor)
	assert.Equal(t, 7.0, empty.InterferenceFactor)
}
