package acs

import (
	"errors"
	"testing"
)

func TestMissingField(t *testing.T) {
	const (
		nf   = SurveyHasNoiseFloor
		tm   = SurveyHasChanTime
		busy = SurveyHasChanTimeBusy
		rx   = SurveyHasChanTimeRx
		tx   = SurveyHasChanTimeTx
	)

	tests := []struct {
		name   string
		filled SurveyField
		want   SurveyField
	}{
		{"all fields", nf | tm | busy | rx | tx, 0},
		{"busy only", nf | tm | busy, 0},
		{"rx only", nf | tm | rx, 0},
		{"missing noise floor", tm | busy | rx, nf},
		{"missing channel time", nf | busy | rx, tm},
		{"missing busy and rx", nf | tm | tx, busy | rx},
		{"noise floor reported first", busy, nf},
		{"channel time before busy", nf, tm},
		{"nothing", 0, nf},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SurveySample{Filled: tt.filled}
			if got := MissingField(s); got != tt.want {
				t.Errorf("MissingField(%08b) = %s, want %s", tt.filled, got, tt.want)
			}
			if got := IsSampleSufficient(s); got != (tt.want == 0) {
				t.Errorf("IsSampleSufficient(%08b) = %v", tt.filled, got)
			}
		})
	}
}

func TestCheckSurveys(t *testing.T) {
	t.Run("sufficient", func(t *testing.T) {
		iface := NewInterface("wlan0", channels24(1, 6), &RadioConfig{}, testLogger())
		iface.IngestSurvey(2412, fullSample(-95, 100, 10))
		iface.IngestSurvey(2437, fullSample(-95, 100, 10))
		if err := iface.CheckSurveys(); err != nil {
			t.Fatalf("CheckSurveys() = %v", err)
		}
	})

	t.Run("names offending channel", func(t *testing.T) {
		iface := NewInterface("wlan0", channels24(1, 6, 11), &RadioConfig{}, testLogger())
		iface.IngestSurvey(2412, fullSample(-95, 100, 10))
		bad := fullSample(-95, 100, 10)
		bad.Filled &^= SurveyHasChanTime
		iface.IngestSurvey(2437, bad)
		worse := SurveySample{}
		iface.IngestSurvey(2462, worse)

		err := iface.CheckSurveys()
		if !errors.Is(err, ErrInsufficientSurvey) {
			t.Fatalf("CheckSurveys() = %v, want ErrInsufficientSurvey", err)
		}
		var se *InsufficientSurveyError
		if !errors.As(err, &se) {
			t.Fatalf("error %T is not *InsufficientSurveyError", err)
		}
		if se.Channel != 6 || se.Missing != SurveyHasChanTime {
			t.Errorf("got channel %d missing %s, want channel 6 missing channel_time", se.Channel, se.Missing)
		}
	})

	t.Run("disabled channels are ignored", func(t *testing.T) {
		iface := NewInterface("wlan0", channels24(1, 6), &RadioConfig{}, testLogger())
		iface.ChannelByNumber(6).Enabled = false
		iface.IngestSurvey(2412, fullSample(-95, 100, 10))
		iface.IngestSurvey(2437, SurveySample{})
		if err := iface.CheckSurveys(); err != nil {
			t.Fatalf("CheckSurveys() = %v", err)
		}
	})
}
