package acs

// AdjustWideBandwidth sets the VHT center segment 0 index for the channel
// chosen by the last study. It returns false when the configured width has no
// known placement; the configuration is then left as it was.
func (i *Interface) AdjustWideBandwidth() bool {
	cfg := i.Config
	if !cfg.VHTEnabled {
		return true
	}

	i.logger.Info("Adjusting VHT center frequency segment",
		"interface", i.Name,
		"channel", cfg.Channel,
		"vht_width", cfg.VHTChannelWidth.String())

	switch cfg.VHTChannelWidth {
	case VHTChanWidthUseHT:
		// VHT20 has no secondary channel and is centered on the primary
		if cfg.SecondaryChannel == 0 {
			cfg.VHTCenterFreqSeg0Idx = cfg.Channel
		} else {
			cfg.VHTCenterFreqSeg0Idx = cfg.Channel + 2
		}
	case VHTChanWidth80MHz:
		cfg.VHTCenterFreqSeg0Idx = cfg.Channel + 6
	default:
		i.logger.Warn("Only VHT20/40/80 is supported, center segment left unadjusted",
			"interface", i.Name,
			"vht_width", cfg.VHTChannelWidth.String())
		return false
	}
	return true
}
