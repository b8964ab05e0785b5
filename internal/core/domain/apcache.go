package domain

import "time"

// APCacheEntry is the last-known state of an access point, kept for map
// rendering and geospatial export.
type APCacheEntry struct {
	BSSID      string    `json:"bssid"`
	SSID       string    `json:"ssid"`
	Encryption string    `json:"encryption,omitempty"`
	Vendor     string    `json:"vendor,omitempty"`
	Latitude   *float64  `json:"lat,omitempty"`
	Longitude  *float64  `json:"lon,omitempty"`
	LastTime   time.Time `json:"last_time"`
}

// HasLocation reports whether the entry carries a usable coordinate pair.
func (e *APCacheEntry) HasLocation() bool {
	return e.Latitude != nil && e.Longitude != nil
}
