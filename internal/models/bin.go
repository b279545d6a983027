package models

import (
	"errors"
	"strings"
	"time"
)

// BinName identifies one of the monitored bins
type BinName string

const (
	BinYellow BinName = "yellow"
	BinGreen  BinName = "green"
	BinBlue   BinName = "blue"
)

// AllBins lists the fixed set of bins in display order
var AllBins = []BinName{BinYellow, BinGreen, BinBlue}

// Domain errors
var (
	ErrInvalidBin  = errors.New("invalid bin")
	ErrBinNotFound = errors.New("bin not found")
)

// ParseBinName validates a raw bin name. Matching is exact, as in the URL path.
func ParseBinName(raw string) (BinName, error) {
	name := BinName(raw)
	if !name.IsValid() {
		return "", ErrInvalidBin
	}
	return name, nil
}

// IsValid reports whether the bin belongs to the fixed set
func (b BinName) IsValid() bool {
	switch b {
	case BinYellow, BinGreen, BinBlue:
		return true
	default:
		return false
	}
}

// Title returns the capitalised bin name used in messages
func (b BinName) Title() string {
	if b == "" {
		return ""
	}
	return strings.ToUpper(string(b[:1])) + string(b[1:])
}

// Bin is the current state of a single bin
type Bin struct {
	Name BinName `json:"name"`

	// Last level reported for the bin, 0-100
	LatestLevel int `json:"latest_level"`

	// Time of the last successful alert; the unix epoch when none was sent
	LastAlertAt time.Time `json:"last_alert_at"`
}

// Reading is one timestamped fill-level observation
type Reading struct {
	ID        int64     `json:"id"`
	Bin       BinName   `json:"bin_name"`
	Level     int       `json:"level"`
	Timestamp time.Time `json:"ts"`
}
