package core

import (
	"fmt"
	"strings"
)

// PHYProfile is the rate-control and channel setup for one 802.11 amendment.
type PHYProfile struct {
	Name     string
	Standard string

	DataMode    string
	ControlMode string
	// MaxSlrc is the long retry limit; 0 keeps the engine default.
	MaxSlrc int

	ChannelWidthMHz   int
	ShortGuardEnabled bool
}

var phyProfiles = map[string]PHYProfile{
	"n": {
		Name:              "n",
		Standard:          "80211n_5GHZ",
		DataMode:          "HtMcs0",
		ControlMode:       "HtMcs0",
		ChannelWidthMHz:   40,
		ShortGuardEnabled: true,
	},
	"ac": {
		Name:              "ac",
		Standard:          "80211ac",
		DataMode:          "VhtMcs9",
		ControlMode:       "VhtMcs0",
		MaxSlrc:           10,
		ChannelWidthMHz:   80,
		ShortGuardEnabled: true,
	},
	"ax": {
		Name:              "ax",
		Standard:          "80211ax_5GHZ",
		DataMode:          "HeMcs11",
		ControlMode:       "HeMcs0",
		ChannelWidthMHz:   80,
		ShortGuardEnabled: true,
	},
}

// PHYProfileFor returns the profile for selector "n", "ac" or "ax".
func PHYProfileFor(selector string) (PHYProfile, error) {
	p, ok := phyProfiles[strings.ToLower(strings.TrimSpace(selector))]
	if !ok {
		return PHYProfile{}, fmt.Errorf("%w: unsupported PHY %q (choose n, ac or ax)", ErrInvalidArgument, selector)
	}
	return p, nil
}

// RTS/CTS thresholds in bytes. The disabled value is larger than any frame.
const (
	RTSThresholdEnabled  = 100
	RTSThresholdDisabled = 1100000
)

// RadioSide is the transmit setup of one side of the link.
type RadioSide struct {
	TxPowerDbm float64
	TxGainDbi  float64
}

// RadioProfile is everything the engine needs to configure the wireless
// channel, MACs and PHYs of the scenario.
type RadioProfile struct {
	PHY  PHYProfile
	SSID string

	AccessPoint RadioSide
	Station     RadioSide

	RxGainDbi      float64
	RxNoiseFigure  float64
	RTSThreshold   int
	ChannelWidth   int
	ActiveProbing  bool
	CaptureEnabled bool
}

// NewRadioProfile builds the outdoor radio setup. channelWidth overrides the
// PHY default when non-zero.
func NewRadioProfile(selector string, channelWidth int, rtsCts, capture bool) (RadioProfile, error) {
	phy, err := PHYProfileFor(selector)
	if err != nil {
		return RadioProfile{}, err
	}
	switch channelWidth {
	case 0:
		channelWidth = phy.ChannelWidthMHz
	case 20, 40, 80, 160:
	default:
		return RadioProfile{}, fmt.Errorf("%w: unsupported channel width %d MHz", ErrInvalidArgument, channelWidth)
	}

	rts := RTSThresholdDisabled
	if rtsCts {
		rts = RTSThresholdEnabled
	}

	return RadioProfile{
		PHY:            phy,
		SSID:           "hew-outdoor-network",
		AccessPoint:    RadioSide{TxPowerDbm: 20, TxGainDbi: 0},
		Station:        RadioSide{TxPowerDbm: 15, TxGainDbi: -2},
		RxGainDbi:      0,
		RxNoiseFigure:  7,
		RTSThreshold:   rts,
		ChannelWidth:   channelWidth,
		CaptureEnabled: capture,
	}, nil
}
