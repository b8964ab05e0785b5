package domain

import "time"

// SignalObservation is one positioned RSSI measurement of an access point,
// the input unit of the localization engine.
type SignalObservation struct {
	Lat  float64   `json:"lat"`
	Lon  float64   `json:"lon"`
	RSSI float64   `json:"rssi"`
	Time time.Time `json:"time"`
}
