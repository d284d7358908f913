package acs

import "fmt"

// ht40PrimaryChannels are the 5 GHz channels that may act as HT40 primary
// (IEEE 802.11n Annex J).
var ht40PrimaryChannels = map[int]struct{}{
	36: {}, 44: {}, 52: {}, 60: {}, 100: {}, 108: {}, 116: {},
	124: {}, 132: {}, 149: {}, 157: {}, 184: {}, 192: {},
}

// overlapOffsets are the 2.4 GHz neighbour offsets (MHz) whose energy leaks
// into a 20 MHz channel.
var overlapOffsets = [...]int{-5, -10, 5, 10}

// Usable reports whether the channel is enabled and surveyed this cycle
func (c *Channel) Usable() bool {
	return c.Enabled && len(c.surveys) > 0
}

// AllowedAsHT40Primary reports whether channel may be the HT40 primary on 5 GHz
func AllowedAsHT40Primary(channel int) bool {
	_, ok := ht40PrimaryChannels[channel]
	return ok
}

// FindChannel returns the usable channel at freq, or nil
func (i *Interface) FindChannel(freq int) *Channel {
	for _, ch := range i.Channels() {
		if !ch.Usable() {
			continue
		}
		if ch.Freq == freq {
			return ch
		}
	}
	return nil
}

// checkSecondaryChannel rejects HT40-, which has no span placement
func (i *Interface) checkSecondaryChannel() error {
	if i.Config.HTEnabled && i.Config.SecondaryChannel == -1 {
		i.logger.Error("HT40- is not supported, use HT40+", "interface", i.Name)
		return fmt.Errorf("%w: HT40- secondary channel", ErrConfigurationUnsupported)
	}
	return nil
}

// SelectIdealChannel picks the primary channel with the lowest aggregate
// interference over the requested bandwidth. Channels must have been scored.
func (i *Interface) SelectIdealChannel() (*Channel, error) {
	i.candidates = nil
	cfg := i.Config
	if i.Mode == nil {
		return nil, fmt.Errorf("%w: %s has no channel table", ErrNoUsableChannel, i.Name)
	}

	if err := i.checkSecondaryChannel(); err != nil {
		return nil, err
	}

	n := cfg.span()
	i.logger.Debug("Survey analysis for selected bandwidth",
		"interface", i.Name,
		"bandwidth_mhz", spanWidth(n))

	ht40 := i.Mode.Mode == ModeIEEE80211A && cfg.HTEnabled && cfg.SecondaryChannel != 0

	var ideal *Channel
	var idealFactor float64

	for _, ch := range i.Channels() {
		if !ch.Usable() {
			continue
		}

		if ht40 && !AllowedAsHT40Primary(ch.Number) {
			i.logger.Debug("Channel not allowed as primary channel for HT40",
				"interface", i.Name,
				"channel", ch.Number)
			continue
		}

		factor, ok := i.aggregateFactor(ch, n)
		if !ok {
			i.logger.Debug("Channel has not enough bandwidth",
				"interface", i.Name,
				"channel", ch.Number)
			continue
		}

		i.logger.Debug("Channel total interference",
			"interface", i.Name,
			"channel", ch.Number,
			"factor", factor)
		i.candidates = append(i.candidates, CandidateScore{Channel: ch.Number, Freq: ch.Freq, Factor: factor})

		if ideal == nil || factor < idealFactor {
			ideal = ch
			idealFactor = factor
		}
	}

	if ideal == nil {
		return nil, fmt.Errorf("%w: %d MHz requested on %s", ErrNoUsableChannel, spanWidth(n), i.Name)
	}

	i.logger.Info("Ideal channel found",
		"interface", i.Name,
		"channel", ideal.Number,
		"freq", ideal.Freq,
		"interference_factor", idealFactor)

	return ideal, nil
}

// aggregateFactor sums the factors of primary plus the n-1 channels above it
// and, on 2.4 GHz, the overlapping neighbours of each of those channels.
func (i *Interface) aggregateFactor(primary *Channel, n int) (float64, bool) {
	factor := primary.InterferenceFactor

	for j := 1; j < n; j++ {
		adj := i.FindChannel(primary.Freq + j*20)
		if adj == nil {
			return 0, false
		}
		factor += adj.InterferenceFactor
	}

	if i.Mode.Mode.Is2GHz() {
		for j := 0; j < n; j++ {
			center := primary.Freq + j*20
			for _, off := range overlapOffsets {
				if adj := i.FindChannel(center + off); adj != nil {
					factor += adj.InterferenceFactor
				}
			}
		}
	}

	return factor, true
}
