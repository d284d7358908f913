package uci

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleWireless = `
config wifi-device 'radio0'
	option type 'mac80211'
	option path 'platform/soc/18000000.wifi'
	option channel 'auto'
	option band '2g'
	option htmode 'HT20'
	option country 'SE'

config wifi-device 'radio1'
	option type 'mac80211'
	option channel '36'
	option band '5g'
	option htmode 'VHT80'
	option channels '36-48 149'
	option disabled '0'

# guest network
config wifi-iface 'default_radio0'
	option device 'radio0'
	option ifname 'wlan0'
	option ssid "My Network"
	list dns '1.1.1.1'
	list dns '8.8.8.8'

config wifi-iface
	option device 'radio1'
	option mode 'ap'
`

func TestParse(t *testing.T) {
	pkg, err := Parse("wireless", strings.NewReader(sampleWireless))
	require.NoError(t, err)
	require.Len(t, pkg.Sections, 4)

	radio0 := pkg.Section("radio0")
	require.NotNil(t, radio0)
	assert.Equal(t, "wifi-device", radio0.Type)
	v, ok := radio0.Get("channel")
	assert.True(t, ok)
	assert.Equal(t, "auto", v)

	iface := pkg.Section("default_radio0")
	require.NotNil(t, iface)
	assert.Equal(t, "My Network", iface.Options["ssid"])
	assert.Equal(t, []string{"1.1.1.1", "8.8.8.8"}, iface.Lists["dns"])

	anon := pkg.Section("@wifi-iface[1]")
	require.NotNil(t, anon)
	assert.Equal(t, "", anon.Name)
	assert.Equal(t, "radio1", anon.Options["device"])
	assert.Same(t, anon, pkg.Section("@wifi-iface[-1]"))
	assert.Nil(t, pkg.Section("@wifi-iface[2]"))
	assert.Nil(t, pkg.Section("radio9"))

	assert.Len(t, pkg.SectionsOfType("wifi-device"), 2)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"option outside section", "option channel '1'"},
		{"unterminated quote", "config wifi-device 'radio0\n"},
		{"unknown keyword", "config wifi-device 'radio0'\n\tsetting x 'y'"},
		{"option without value", "config wifi-device 'radio0'\n\toption channel"},
		{"bare config", "config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse("wireless", strings.NewReader(tt.input)); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", tt.input)
			}
		})
	}
}

func TestPackageWriteToRoundTrip(t *testing.T) {
	pkg, err := Parse("wireless", strings.NewReader(sampleWireless))
	require.NoError(t, err)

	pkg.Section("radio1").Set("channel", "44")
	pkg.Section("radio1").Set("acsd_managed", "1")

	var b strings.Builder
	_, err = pkg.WriteTo(&b)
	require.NoError(t, err)

	out := b.String()
	assert.Contains(t, out, "config wifi-device 'radio1'\n")
	assert.Contains(t, out, "\toption channel '44'\n")
	assert.Contains(t, out, "\tlist dns '8.8.8.8'\n")
	assert.Contains(t, out, "config wifi-iface\n")
	assert.True(t, strings.Index(out, "option type 'mac80211'") < strings.Index(out, "option acsd_managed '1'"))

	again, err := Parse("wireless", strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "44", again.Section("radio1").Options["channel"])
	assert.Equal(t, "My Network", again.Section("default_radio0").Options["ssid"])
}
