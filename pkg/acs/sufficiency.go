package acs

// MissingField returns the first required field absent from s, or 0 when the
// sample carries everything the scorer needs. Noise floor is checked first,
// then channel time, then busy/rx time (either one suffices).
func MissingField(s SurveySample) SurveyField {
	switch {
	case !s.Has(SurveyHasNoiseFloor):
		return SurveyHasNoiseFloor
	case !s.Has(SurveyHasChanTime):
		return SurveyHasChanTime
	case !s.Has(SurveyHasChanTimeBusy) && !s.Has(SurveyHasChanTimeRx):
		return SurveyHasChanTimeBusy | SurveyHasChanTimeRx
	}
	return 0
}

// IsSampleSufficient reports whether s can be scored
func IsSampleSufficient(s SurveySample) bool {
	return MissingField(s) == 0
}

// CheckSurveys verifies every sample on every enabled channel and stops at the
// first insufficient one.
func (i *Interface) CheckSurveys() error {
	for _, ch := range i.Channels() {
		if !ch.Enabled {
			continue
		}
		for _, s := range ch.surveys {
			missing := MissingField(s)
			if missing == 0 {
				continue
			}

			switch missing {
			case SurveyHasNoiseFloor:
				i.logger.Error("Survey is missing noise floor", "interface", i.Name, "channel", ch.Number)
			case SurveyHasChanTime:
				i.logger.Error("Survey is missing channel time", "interface", i.Name, "channel", ch.Number)
			default:
				i.logger.Error("Survey is missing rx and busy time (at least one is required)",
					"interface", i.Name, "channel", ch.Number)
			}
			i.logger.Error("Channel has insufficient survey data", "interface", i.Name, "channel", ch.Number)

			return &InsufficientSurveyError{Channel: ch.Number, Missing: missing}
		}
	}
	return nil
}
