package acs

// IngestSurvey attaches a driver sample to the channel at freq. Samples for
// frequencies outside the channel table are dropped.
func (i *Interface) IngestSurvey(freq int, s SurveySample) bool {
	var ch *Channel
	for _, c := range i.Channels() {
		if c.Freq == freq {
			ch = c
			break
		}
	}
	if ch == nil {
		i.logger.Warn("Dropping survey for unknown frequency",
			"interface", i.Name,
			"freq", freq)
		return false
	}

	ch.surveys = append(ch.surveys, s)

	if s.Has(SurveyHasNoiseFloor) {
		if ch.MinNoiseFloor == 0 || s.NoiseFloor < ch.MinNoiseFloor {
			ch.MinNoiseFloor = s.NoiseFloor
		}
		if ch.Enabled && (i.LowestNoiseFloor == 0 || ch.MinNoiseFloor < i.LowestNoiseFloor) {
			i.LowestNoiseFloor = ch.MinNoiseFloor
		}
	}
	i.SurveysCollected = true

	i.logger.Trace("Survey ingested",
		"interface", i.Name,
		"channel", ch.Number,
		"freq", freq,
		"nf", s.NoiseFloor,
		"filled", uint8(s.Filled))

	return true
}

// ClearSurveys releases all samples of the channel
func (c *Channel) ClearSurveys() {
	c.surveys = nil
	c.MinNoiseFloor = 0
}

// ResetSurveys clears every channel and the per-cycle interface state
func (i *Interface) ResetSurveys() {
	for _, ch := range i.Channels() {
		ch.ClearSurveys()
	}
	i.LowestNoiseFloor = 0
	i.SurveysCollected = false
	i.candidates = nil
}
