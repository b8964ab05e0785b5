package domain

import "time"

// SourceKind identifies the sensor family that produced a detection.
type SourceKind string

const (
	SourceWifi      SourceKind = "wifi"
	SourceBluetooth SourceKind = "bluetooth"
	SourceCellular  SourceKind = "cellular"
)

// IsValid checks if the kind is a recognized detection source.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceWifi, SourceBluetooth, SourceCellular:
		return true
	}
	return false
}

// AdhocSession is the session identifier used when no scan session is active.
const AdhocSession = "adhoc"

// Detection is the tagged union over the three detection record kinds.
// The stream processor and batch writer dispatch on Kind.
type Detection interface {
	Kind() SourceKind
	DetectedAt() time.Time
}

// WifiDetection is a single access-point sighting.
type WifiDetection struct {
	SessionID    string    `json:"session_id"`
	BSSID        string    `json:"bssid"`
	SSID         string    `json:"ssid"` // empty = hidden network
	Channel      int       `json:"channel,omitempty"`
	FrequencyMHz int       `json:"frequency_mhz,omitempty"`
	SignalDBm    float64   `json:"signal_dbm"`
	Encryption   string    `json:"encryption,omitempty"` // e.g. "WPA2", "OPEN"
	Vendor       string    `json:"vendor,omitempty"`
	StationCount int       `json:"station_count"`

	// Beacon-level attributes filled by passive capture; CLI scanners leave
	// them empty. They feed fingerprinting but are not stored per detection.
	CipherSuite    string   `json:"cipher_suite,omitempty"`
	BeaconInterval int      `json:"beacon_interval,omitempty"`
	HTCaps         string   `json:"ht_caps,omitempty"`
	VHTCaps        string   `json:"vht_caps,omitempty"`
	HECaps         string   `json:"he_caps,omitempty"`
	Country        string   `json:"country,omitempty"`
	TxPowerDBm     *float64 `json:"tx_power_dbm,omitempty"`
	DeviceType     string   `json:"device_type,omitempty"`

	Latitude     *float64  `json:"lat,omitempty"`
	Longitude    *float64  `json:"lon,omitempty"`
	Altitude     *float64  `json:"altitude,omitempty"`
	Accuracy     *float64  `json:"accuracy,omitempty"`
	Heading      *float64  `json:"heading,omitempty"` // degrees 0-360
	Time         time.Time `json:"time"`
	FirstSeen    time.Time `json:"first_seen,omitempty"`
	LastSeen     time.Time `json:"last_seen,omitempty"`
}

func (d *WifiDetection) Kind() SourceKind       { return SourceWifi }
func (d *WifiDetection) DetectedAt() time.Time  { return d.Time }
func (d *WifiDetection) HasLocation() bool      { return d.Latitude != nil && d.Longitude != nil }

// NewWifiDetection creates a validated Wi-Fi detection. The BSSID is the
// required identifier; everything else is optional.
func NewWifiDetection(session, bssid, ssid string, at time.Time) (*WifiDetection, error) {
	if bssid == "" {
		return nil, &ValidationError{Field: "bssid", Value: bssid, Err: ErrInvalidRecord}
	}
	if session == "" {
		session = AdhocSession
	}
	return &WifiDetection{
		SessionID: session,
		BSSID:     bssid,
		SSID:      ssid,
		Time:      at.UTC(),
	}, nil
}

// BluetoothDetection is a single Bluetooth device sighting.
type BluetoothDetection struct {
	SessionID   string    `json:"session_id"`
	MAC         string    `json:"mac"`
	Name        string    `json:"name,omitempty"`
	RSSIDBm     float64   `json:"rssi_dbm"`
	DeviceClass string    `json:"device_class,omitempty"`
	Latitude    *float64  `json:"lat,omitempty"`
	Longitude   *float64  `json:"lon,omitempty"`
	Heading     *float64  `json:"heading,omitempty"`
	Time        time.Time `json:"time"`
	FirstSeen   time.Time `json:"first_seen,omitempty"`
	LastSeen    time.Time `json:"last_seen,omitempty"`
}

func (d *BluetoothDetection) Kind() SourceKind      { return SourceBluetooth }
func (d *BluetoothDetection) DetectedAt() time.Time { return d.Time }
func (d *BluetoothDetection) HasLocation() bool     { return d.Latitude != nil && d.Longitude != nil }

// NewBluetoothDetection creates a validated Bluetooth detection. The MAC
// address is the required identifier.
func NewBluetoothDetection(session, mac, name string, at time.Time) (*BluetoothDetection, error) {
	if mac == "" {
		return nil, &ValidationError{Field: "mac", Value: mac, Err: ErrInvalidRecord}
	}
	if session == "" {
		session = AdhocSession
	}
	return &BluetoothDetection{
		SessionID: session,
		MAC:       mac,
		Name:      name,
		Time:      at.UTC(),
	}, nil
}

// CellularDetection is a single cell-tower sighting.
type CellularDetection struct {
	SessionID  string    `json:"session_id"`
	CellID     string    `json:"cell_id"`
	LAC        string    `json:"lac,omitempty"`
	MCC        string    `json:"mcc,omitempty"`
	MNC        string    `json:"mnc,omitempty"`
	Technology string    `json:"technology,omitempty"` // e.g. "LTE", "GSM"
	Band       string    `json:"band,omitempty"`
	SignalDBm  float64   `json:"signal_dbm"`
	Latitude   *float64  `json:"lat,omitempty"`
	Longitude  *float64  `json:"lon,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	Time       time.Time `json:"time"`
}

func (d *CellularDetection) Kind() SourceKind      { return SourceCellular }
func (d *CellularDetection) DetectedAt() time.Time { return d.Time }
func (d *CellularDetection) HasLocation() bool     { return d.Latitude != nil && d.Longitude != nil }

// NewCellularDetection creates a validated cellular detection. The cell id is
// the required identifier.
func NewCellularDetection(session, cellID, band string, at time.Time) (*CellularDetection, error) {
	if cellID == "" {
		return nil, &ValidationError{Field: "cell_id", Value: cellID, Err: ErrInvalidRecord}
	}
	if session == "" {
		session = AdhocSession
	}
	return &CellularDetection{
		SessionID: session,
		CellID:    cellID,
		Band:      band,
		Time:      at.UTC(),
	}, nil
}

// Float64Ptr returns a pointer to v. Convenience for the optional
// coordinate and heading fields.
func Float64Ptr(v float64) *float64 { return &v }
