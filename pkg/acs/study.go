package acs

import "fmt"

// StudyStrategy turns the data collected in a cycle into channel interference
// factors. The engine tries strategies in order and uses the first that succeeds.
type StudyStrategy interface {
	Name() string
	Study(iface *Interface) error
}

// SurveyStudy scores channels from driver survey samples
type SurveyStudy struct{}

// Name implements StudyStrategy
func (SurveyStudy) Name() string { return "survey" }

// Study implements StudyStrategy
func (SurveyStudy) Study(iface *Interface) error {
	iface.logger.Debug("Trying survey-based ACS", "interface", iface.Name)

	if !iface.SurveysCollected {
		iface.logger.Error("Unable to collect survey data", "interface", iface.Name)
		return fmt.Errorf("%w: no survey data collected", ErrInsufficientSurvey)
	}

	if err := iface.CheckSurveys(); err != nil {
		iface.logger.Error("Surveys have insufficient data", "interface", iface.Name)
		return err
	}

	iface.ScoreAllChannels()
	return nil
}
