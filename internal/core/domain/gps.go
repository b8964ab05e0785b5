package domain

import "time"

// FixQuality describes the quality of a GPS fix.
type FixQuality string

const (
	FixNone    FixQuality = "No Fix"
	Fix2D      FixQuality = "2D"
	Fix3D      FixQuality = "3D"
	FixDGPS    FixQuality = "DGPS"
	FixUnknown FixQuality = "Unknown"
)

// FixQualityFromMode maps the gpsd TPV mode integer to a FixQuality.
func FixQualityFromMode(mode int) FixQuality {
	switch mode {
	case 1:
		return FixNone
	case 2:
		return Fix2D
	case 3:
		return Fix3D
	case 4:
		return FixDGPS
	}
	return FixUnknown
}

// Position is a WGS84 coordinate pair.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GPSTrackPoint is one point of the recorded vehicle track.
type GPSTrackPoint struct {
	SessionID  string     `json:"session_id"`
	Latitude   float64    `json:"lat"`
	Longitude  float64    `json:"lon"`
	Altitude   *float64   `json:"altitude,omitempty"`
	Accuracy   *float64   `json:"accuracy,omitempty"` // meters
	Speed      *float64   `json:"speed,omitempty"`    // m/s
	Heading    *float64   `json:"heading,omitempty"`  // degrees 0-360
	Satellites int        `json:"satellites,omitempty"`
	HDOP       *float64   `json:"hdop,omitempty"`
	VDOP       *float64   `json:"vdop,omitempty"`
	PDOP       *float64   `json:"pdop,omitempty"`
	Fix        FixQuality `json:"fix"`
	Time       time.Time  `json:"time"`
}

// Position returns the point's coordinate pair.
func (p *GPSTrackPoint) Position() Position {
	return Position{Lat: p.Latitude, Lon: p.Longitude}
}
