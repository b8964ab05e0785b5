package domain

// NetworkAnalyticsRow holds the per-BSSID statistics for one calendar day.
// Rows are recomputed per bucket; reinserts replace by (BSSID, date).
type NetworkAnalyticsRow struct {
	BSSID             string  `json:"bssid"`
	Date              string  `json:"date"` // YYYY-MM-DD, UTC
	TotalDetections   int     `json:"total_detections"`
	UniqueLocations   int     `json:"unique_locations"`
	SignalMin         float64 `json:"signal_min"`
	SignalMax         float64 `json:"signal_max"`
	SignalMean        float64 `json:"signal_mean"`
	SignalVariance    float64 `json:"signal_variance"`
	CoverageRadiusM   float64 `json:"coverage_radius_m"`
	MobilityScore     float64 `json:"mobility_score"` // [0,1]
	EncryptionChanges int     `json:"encryption_changes"`
	SSIDChanges       int     `json:"ssid_changes"`
	ChannelChanges    int     `json:"channel_changes"`
	SuspiciousScore   float64 `json:"suspicious_score"` // [0,1]
}
