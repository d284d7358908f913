package uci

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/markus-lassfolk/acsd/pkg/acs"
)

// WirelessConfig is the UCI package holding the radios
const WirelessConfig = "wireless"

// ErrUnsupportedHTMode is returned for htmode values the selector cannot honour
var ErrUnsupportedHTMode = errors.New("unsupported htmode")

// RadioSection is a `config wifi-device` section of /etc/config/wireless
type RadioSection struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Path     string `json:"path,omitempty"`
	Channel  string `json:"channel"`
	Channels string `json:"channels,omitempty"`
	HTMode   string `json:"htmode,omitempty"`
	Band     string `json:"band,omitempty"`
	HWMode   string `json:"hwmode,omitempty"`
	Country  string `json:"country,omitempty"`
	Disabled bool   `json:"disabled"`

	// Managed is set once this daemon has written a channel for the radio.
	Managed bool `json:"managed"`

	// Ifname is the first wifi-iface bound to this radio.
	Ifname string `json:"ifname,omitempty"`
}

// Radios extracts the wifi-device sections of a wireless package in file order
func Radios(pkg *Package) []RadioSection {
	ifnames := make(map[string]string)
	for _, s := range pkg.SectionsOfType("wifi-iface") {
		device := s.Options["device"]
		if _, seen := ifnames[device]; seen || device == "" {
			continue
		}
		ifnames[device] = s.Options["ifname"]
	}

	var radios []RadioSection
	for _, s := range pkg.SectionsOfType("wifi-device") {
		disabled, _ := parseBool(s.Options["disabled"])
		managed, _ := parseBool(s.Options["acsd_managed"])
		radios = append(radios, RadioSection{
			Name:     s.Name,
			Type:     s.Options["type"],
			Path:     s.Options["path"],
			Channel:  s.Options["channel"],
			Channels: s.Options["channels"],
			HTMode:   strings.ToUpper(s.Options["htmode"]),
			Band:     strings.ToLower(s.Options["band"]),
			HWMode:   strings.ToLower(s.Options["hwmode"]),
			Country:  strings.ToUpper(s.Options["country"]),
			Disabled: disabled,
			Managed:  managed,
			Ifname:   ifnames[s.Name],
		})
	}
	return radios
}

// LoadRadios reads the radios through a NativeUCI client
func LoadRadios(ctx context.Context, n *NativeUCI) ([]RadioSection, error) {
	pkg, err := n.Load(ctx, WirelessConfig)
	if err != nil {
		return nil, err
	}
	return Radios(pkg), nil
}

// ACSRequested reports whether the radio asks for automatic channel selection
func (r RadioSection) ACSRequested() bool {
	switch strings.ToLower(r.Channel) {
	case "", "auto", "0":
		return true
	}
	return r.Managed
}

// Is5GHz reports whether the radio operates on the 5 GHz band
func (r RadioSection) Is5GHz() bool {
	if r.Band != "" {
		return r.Band == "5g"
	}
	return r.HWMode == "11a"
}

// Device returns the netdev used for scans and surveys
func (r RadioSection) Device() string {
	if r.Ifname != "" {
		return r.Ifname
	}
	return r.Name
}

// RadioConfig maps htmode to the bandwidth configuration of a selection cycle
func (r RadioSection) RadioConfig(chanTime time.Duration) (*acs.RadioConfig, error) {
	cfg := &acs.RadioConfig{ChannelTime: chanTime}

	switch r.HTMode {
	case "", "NONE", "NOHT":
	case "HT20":
		cfg.HTEnabled = true
	case "HT40+", "HT40":
		cfg.HTEnabled = true
		cfg.SecondaryChannel = 1
	case "HT40-":
		cfg.HTEnabled = true
		cfg.SecondaryChannel = -1
	case "VHT20":
		cfg.HTEnabled = true
		cfg.VHTEnabled = true
		cfg.VHTChannelWidth = acs.VHTChanWidthUseHT
	case "VHT40":
		cfg.HTEnabled = true
		cfg.SecondaryChannel = 1
		cfg.VHTEnabled = true
		cfg.VHTChannelWidth = acs.VHTChanWidthUseHT
	case "VHT80":
		cfg.HTEnabled = true
		cfg.SecondaryChannel = 1
		cfg.VHTEnabled = true
		cfg.VHTChannelWidth = acs.VHTChanWidth80MHz
	default:
		return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedHTMode, r.HTMode, r.Name)
	}

	if cfg.VHTEnabled && !r.Is5GHz() {
		return nil, fmt.Errorf("%w: %s on 2.4 GHz radio %s", ErrUnsupportedHTMode, r.HTMode, r.Name)
	}

	return cfg, nil
}

// AllowedChannels parses the `channels` option ("1 6 11", "36-48 149") into
// a sorted list. An empty option returns nil, meaning no restriction.
func (r RadioSection) AllowedChannels() ([]int, error) {
	if strings.TrimSpace(r.Channels) == "" {
		return nil, nil
	}

	seen := make(map[int]struct{})
	for _, tok := range strings.Fields(r.Channels) {
		lo, hi := tok, tok
		if i := strings.Index(tok, "-"); i > 0 {
			lo, hi = tok[:i], tok[i+1:]
		}
		from, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid channels entry %q on %s", tok, r.Name)
		}
		to, err := strconv.Atoi(hi)
		if err != nil || to < from {
			return nil, fmt.Errorf("invalid channels entry %q on %s", tok, r.Name)
		}
		for ch := from; ch <= to; ch++ {
			seen[ch] = struct{}{}
		}
	}

	out := make([]int, 0, len(seen))
	for ch := range seen {
		out = append(out, ch)
	}
	sort.Ints(out)
	return out, nil
}

// SetChannel stores the selected channel for radio and commits the wireless config
func SetChannel(ctx context.Context, store Store, radio string, channel int) error {
	if err := store.Set(ctx, WirelessConfig, radio, "channel", strconv.Itoa(channel)); err != nil {
		return err
	}
	if err := store.Set(ctx, WirelessConfig, radio, "acsd_managed", "1"); err != nil {
		return err
	}
	if err := store.Commit(ctx, WirelessConfig); err != nil {
		return fmt.Errorf("failed to commit channel %d for %s: %w", channel, radio, err)
	}
	return nil
}
