package uci

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/markus-lassfolk/acsd/pkg/acs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRadios(t *testing.T) {
	pkg, err := Parse("wireless", strings.NewReader(sampleWireless))
	require.NoError(t, err)

	radios := Radios(pkg)
	require.Len(t, radios, 2)

	r0 := radios[0]
	assert.Equal(t, "radio0", r0.Name)
	assert.Equal(t, "HT20", r0.HTMode)
	assert.Equal(t, "SE", r0.Country)
	assert.Equal(t, "wlan0", r0.Device())
	assert.True(t, r0.ACSRequested())
	assert.False(t, r0.Is5GHz())

	r1 := radios[1]
	assert.Equal(t, "radio1", r1.Device(), "falls back to the radio name without an ifname")
	assert.False(t, r1.ACSRequested())
	assert.True(t, r1.Is5GHz())
	assert.False(t, r1.Disabled)
}

func TestACSRequested(t *testing.T) {
	tests := []struct {
		channel string
		managed bool
		want    bool
	}{
		{"auto", false, true},
		{"AUTO", false, true},
		{"", false, true},
		{"0", false, true},
		{"36", false, false},
		{"36", true, true},
	}
	for _, tt := range tests {
		r := RadioSection{Channel: tt.channel, Managed: tt.managed}
		if got := r.ACSRequested(); got != tt.want {
			t.Errorf("ACSRequested(channel=%q managed=%v) = %v, want %v", tt.channel, tt.managed, got, tt.want)
		}
	}
}

func TestIs5GHz(t *testing.T) {
	assert.True(t, RadioSection{Band: "5g"}.Is5GHz())
	assert.True(t, RadioSection{HWMode: "11a"}.Is5GHz())
	assert.False(t, RadioSection{HWMode: "11g"}.Is5GHz())
	assert.False(t, RadioSection{Band: "2g", HWMode: "11a"}.Is5GHz())
}

func TestRadioConfig(t *testing.T) {
	tests := []struct {
		htmode    string
		band      string
		want      acs.RadioConfig
		bandwidth int
		wantErr   bool
	}{
		{htmode: "", band: "2g", want: acs.RadioConfig{}, bandwidth: 20},
		{htmode: "HT20", band: "2g", want: acs.RadioConfig{HTEnabled: true}, bandwidth: 20},
		{htmode: "HT40+", band: "2g", want: acs.RadioConfig{HTEnabled: true, SecondaryChannel: 1}, bandwidth: 40},
		{htmode: "HT40", band: "5g", want: acs.RadioConfig{HTEnabled: true, SecondaryChannel: 1}, bandwidth: 40},
		{htmode: "HT40-", band: "5g", want: acs.RadioConfig{HTEnabled: true, SecondaryChannel: -1}, bandwidth: 40},
		{htmode: "VHT20", band: "5g", want: acs.RadioConfig{HTEnabled: true, VHTEnabled: true}, bandwidth: 20},
		{htmode: "VHT40", band: "5g", want: acs.RadioConfig{HTEnabled: true, SecondaryChannel: 1, VHTEnabled: true}, bandwidth: 40},
		{htmode: "VHT80", band: "5g", want: acs.RadioConfig{HTEnabled: true, SecondaryChannel: 1, VHTEnabled: true, VHTChannelWidth: acs.VHTChanWidth80MHz}, bandwidth: 80},
		{htmode: "VHT80", band: "2g", wantErr: true},
		{htmode: "VHT160", band: "5g", wantErr: true},
		{htmode: "HE80", band: "5g", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.htmode+"/"+tt.band, func(t *testing.T) {
			r := RadioSection{Name: "radio0", HTMode: tt.htmode, Band: tt.band}
			cfg, err := r.RadioConfig(20 * time.Millisecond)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnsupportedHTMode), "got %v", err)
				return
			}
			require.NoError(t, err)

			tt.want.ChannelTime = 20 * time.Millisecond
			assert.Equal(t, tt.want, *cfg)
			assert.Equal(t, tt.bandwidth, cfg.Bandwidth())
		})
	}
}

func TestAllowedChannels(t *testing.T) {
	tests := []struct {
		channels string
		want     []int
		wantErr  bool
	}{
		{channels: "", want: nil},
		{channels: "1 6 11", want: []int{1, 6, 11}},
		{channels: "11 1 6 6", want: []int{1, 6, 11}},
		{channels: "36-40 149", want: []int{36, 37, 38, 39, 40, 149}},
		{channels: "40-36", wantErr: true},
		{channels: "auto", wantErr: true},
		{channels: "1-x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.channels, func(t *testing.T) {
			got, err := RadioSection{Name: "radio0", Channels: tt.channels}.AllowedChannels()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetChannelNative(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "wireless", sampleWireless)
	ctx := context.Background()
	n := NewNativeUCI(dir, nil)

	require.NoError(t, SetChannel(ctx, n, "radio0", 6))

	radios, err := LoadRadios(ctx, NewNativeUCI(dir, nil))
	require.NoError(t, err)
	require.Len(t, radios, 2)
	assert.Equal(t, "6", radios[0].Channel)
	assert.True(t, radios[0].Managed)
	assert.True(t, radios[0].ACSRequested(), "a managed radio stays under automatic selection")
	assert.Equal(t, "36", radios[1].Channel)
	assert.False(t, radios[1].Managed)
}
