package acs

import (
	"fmt"
	"math"
)

// SampleInterferenceFactor scores one survey sample against the lowest noise
// floor seen on the interface. The sample must have passed IsSampleSufficient;
// anything else is a caller bug and panics.
func SampleInterferenceFactor(s SurveySample, minNoiseFloor int) float64 {
	var busy float64
	switch {
	case s.Has(SurveyHasChanTimeBusy):
		busy = float64(s.ChannelTimeBusy)
	case s.Has(SurveyHasChanTimeRx):
		busy = float64(s.ChannelTimeRx)
	default:
		panic("acs: survey sample has neither busy nor rx time")
	}

	total := float64(s.ChannelTime)
	if s.Has(SurveyHasChanTimeTx) {
		busy -= float64(s.ChannelTimeTx)
		total -= float64(s.ChannelTimeTx)
	}
	if total <= 0 {
		panic(fmt.Sprintf("acs: survey sample has no usable channel time (time=%d tx=%d)",
			s.ChannelTime, s.ChannelTimeTx))
	}

	nf := float64(s.NoiseFloor)
	minNF := float64(minNoiseFloor)

	return math.Pow(10, nf/5) +
		(busy/total)*math.Pow(2, math.Pow(10, nf/10)-math.Pow(10, minNF/10))
}

// ScoreChannel stores the mean sample factor on ch. Disabled channels and
// channels without samples keep their previous, stale value.
func (i *Interface) ScoreChannel(ch *Channel) {
	if len(ch.surveys) == 0 || !ch.Enabled {
		return
	}

	var sum float64
	for n, s := range ch.surveys {
		f := SampleInterferenceFactor(s, i.LowestNoiseFloor)
		sum += f
		i.logger.Debug("Survey interference factor",
			"interface", i.Name,
			"channel", ch.Number,
			"sample", n+1,
			"min_nf", ch.MinNoiseFloor,
			"interference_factor", f,
			"nf", s.NoiseFloor,
			"time", s.ChannelTime,
			"busy", s.ChannelTimeBusy,
			"rx", s.ChannelTimeRx)
	}

	ch.InterferenceFactor = sum / float64(len(ch.surveys))
}

// ScoreAllChannels scores every usable channel of the interface
func (i *Interface) ScoreAllChannels() {
	for _, ch := range i.Channels() {
		if !ch.Usable() {
			continue
		}

		i.logger.Debug("Survey analysis for channel",
			"interface", i.Name,
			"channel", ch.Number,
			"freq", ch.Freq)

		i.ScoreChannel(ch)

		i.logger.Debug("Interference factor average",
			"interface", i.Name,
			"channel", ch.Number,
			"interference_factor", ch.InterferenceFactor)
	}
}
