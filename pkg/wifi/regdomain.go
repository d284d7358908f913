// Package wifi manages the access point radios that run automatic channel
// selection: it builds their channel tables from regulatory data, owns one
// selection engine per radio, persists chosen channels and schedules
// nightly reselection.
package wifi

import (
	"fmt"
	"strings"

	"github.com/markus-lassfolk/acsd/pkg/acs"
	"github.com/markus-lassfolk/acsd/pkg/uci"
)

// RegDomain is a regulatory domain family
type RegDomain string

const (
	RegDomainETSI  RegDomain = "ETSI"
	RegDomainFCC   RegDomain = "FCC"
	RegDomainOther RegDomain = "OTHER"
)

// ParseRegDomain maps a configured domain name to a known family; unknown
// names fall back to the conservative OTHER set.
func ParseRegDomain(name string) RegDomain {
	switch RegDomain(strings.ToUpper(strings.TrimSpace(name))) {
	case RegDomainETSI:
		return RegDomainETSI
	case RegDomainFCC:
		return RegDomainFCC
	default:
		return RegDomainOther
	}
}

// Full channel rasters per band in table order
var (
	channels24 = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
	channels5  = []int{
		36, 40, 44, 48, 52, 56, 60, 64,
		100, 104, 108, 112, 116, 120, 124, 128, 132, 136, 140, 144,
		149, 153, 157, 161, 165,
	}
)

// dfsChannels need radar detection before use
var dfsChannels = map[int]bool{
	52: true, 56: true, 60: true, 64: true,
	100: true, 104: true, 108: true, 112: true, 116: true, 120: true,
	124: true, 128: true, 132: true, 136: true, 140: true, 144: true,
}

// IsDFSChannel reports whether channel is subject to radar detection
func IsDFSChannel(channel int) bool {
	return dfsChannels[channel]
}

// ChannelFreq returns the center frequency in MHz of a 2.4 or 5 GHz channel
func ChannelFreq(channel int) int {
	switch {
	case channel == 14:
		return 2484
	case channel >= 1 && channel <= 13:
		return 2407 + 5*channel
	case channel >= 32 && channel <= 177:
		return 5000 + 5*channel
	default:
		return 0
	}
}

// PermittedChannels returns the channels a radio may operate on in domain.
// DFS channels are only included when useDFS is set.
func PermittedChannels(domain RegDomain, is5GHz, useDFS bool) []int {
	if !is5GHz {
		switch domain {
		case RegDomainETSI:
			return channelRange(channels24, 1, 13)
		default:
			return channelRange(channels24, 1, 11)
		}
	}

	var out []int
	for _, ch := range channels5 {
		if IsDFSChannel(ch) && !useDFS {
			continue
		}
		switch domain {
		case RegDomainFCC:
			out = append(out, ch)
		case RegDomainETSI:
			// 144 and the upper band are not open to ETSI access points
			if ch <= 140 {
				out = append(out, ch)
			}
		default:
			if ch <= 48 {
				out = append(out, ch)
			}
		}
	}
	return out
}

func channelRange(raster []int, lo, hi int) []int {
	var out []int
	for _, ch := range raster {
		if ch >= lo && ch <= hi {
			out = append(out, ch)
		}
	}
	return out
}

// BuildHWMode builds the channel table for radio. Every channel of the band is
// listed; only permitted channels that also pass the radio's `channels`
// restriction are enabled.
func BuildHWMode(radio uci.RadioSection, domain RegDomain, useDFS bool) (*acs.HWMode, error) {
	allowed, err := radio.AllowedChannels()
	if err != nil {
		return nil, err
	}
	restrict := make(map[int]bool, len(allowed))
	for _, ch := range allowed {
		restrict[ch] = true
	}

	is5 := radio.Is5GHz()
	permitted := make(map[int]bool)
	for _, ch := range PermittedChannels(domain, is5, useDFS) {
		permitted[ch] = true
	}

	mode := &acs.HWMode{Mode: acs.ModeIEEE80211G}
	raster := channels24
	switch {
	case is5:
		mode.Mode = acs.ModeIEEE80211A
		raster = channels5
	case strings.EqualFold(radio.HWMode, "11b"):
		mode.Mode = acs.ModeIEEE80211B
	}

	enabled := 0
	for _, ch := range raster {
		on := permitted[ch] && (len(restrict) == 0 || restrict[ch])
		if on {
			enabled++
		}
		mode.Channels = append(mode.Channels, &acs.Channel{
			Number:  ch,
			Freq:    ChannelFreq(ch),
			Enabled: on,
		})
	}

	if enabled == 0 {
		return nil, fmt.Errorf("radio %s has no permitted channels in regulatory domain %s", radio.Name, domain)
	}
	return mode, nil
}
