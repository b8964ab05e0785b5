package scanning

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

var (
	reCell      = regexp.MustCompile(`Cell \d+ - Address: ([0-9A-Fa-f:]{17})`)
	reESSID     = regexp.MustCompile(`ESSID:"(.*)"`)
	reChannel   = regexp.MustCompile(`Channel[:=](\d+)`)
	reFrequency = regexp.MustCompile(`Frequency[:=]([\d.]+) GHz`)
	reSignal    = regexp.MustCompile(`Signal level[:=](-?\d+) dBm`)
)

// ParseIwlist parses the cell grammar of `iwlist <iface> scanning`. Fields
// the output omits stay at their zero values.
func ParseIwlist(output []byte) []*domain.WifiDetection {
	var records []*domain.WifiDetection
	var current *domain.WifiDetection
	encryptionOn := false
	var wpa, wpa2 bool

	finish := func() {
		if current == nil {
			return
		}
		current.Encryption = encryptionLabel(encryptionOn, wpa, wpa2)
		records = append(records, current)
		current = nil
		encryptionOn, wpa, wpa2 = false, false, false
	}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if m := reCell.FindStringSubmatch(line); m != nil {
			finish()
			current = &domain.WifiDetection{BSSID: strings.ToUpper(m[1])}
			continue
		}
		if current == nil {
			continue
		}
		switch {
		case reESSID.MatchString(line):
			current.SSID = reESSID.FindStringSubmatch(line)[1]
		case reChannel.MatchString(line):
			current.Channel, _ = strconv.Atoi(reChannel.FindStringSubmatch(line)[1])
		case reFrequency.MatchString(line):
			ghz, _ := strconv.ParseFloat(reFrequency.FindStringSubmatch(line)[1], 64)
			current.FrequencyMHz = int(ghz * 1000)
		case reSignal.MatchString(line):
			dbm, _ := strconv.Atoi(reSignal.FindStringSubmatch(line)[1])
			current.SignalDBm = float64(dbm)
		case strings.HasPrefix(line, "Encryption key:"):
			encryptionOn = strings.HasSuffix(line, "on")
		case strings.Contains(line, "IEEE 802.11i/WPA2"):
			wpa2 = true
		case strings.Contains(line, "WPA Version"):
			wpa = true
		}
	}
	finish()
	return records
}

func encryptionLabel(on, wpa, wpa2 bool) string {
	switch {
	case wpa2 && wpa:
		return "WPA/WPA2"
	case wpa2:
		return "WPA2"
	case wpa:
		return "WPA"
	case on:
		return "WEP"
	}
	return "OPEN"
}

// reBTDevice matches the discovery lines of `bluetoothctl scan on`.
var reBTDevice = regexp.MustCompile(`\[NEW\] Device ([0-9A-Fa-f:]{17}) (.+)`)

// ParseBluetoothctl extracts devices from bluetoothctl output.
func ParseBluetoothctl(output []byte) []*domain.BluetoothDetection {
	var records []*domain.BluetoothDetection
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		m := reBTDevice.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		mac := strings.ToUpper(m[1])
		if _, dup := seen[mac]; dup {
			continue
		}
		seen[mac] = struct{}{}
		records = append(records, &domain.BluetoothDetection{
			MAC:  mac,
			Name: strings.TrimSpace(m[2]),
		})
	}
	return records
}

// ParseCellularCSV parses the scanner's comma-separated output. The short
// form is `band,cell_id,rssi`; the extended form appends
// `mcc,mnc,lac,technology`. Malformed lines are skipped.
func ParseCellularCSV(output []byte) []*domain.CellularDetection {
	var records []*domain.CellularDetection

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 3 && len(fields) != 7 {
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		rssi, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || fields[1] == "" {
			continue
		}

		rec := &domain.CellularDetection{
			Band:      fields[0],
			CellID:    fields[1],
			SignalDBm: rssi,
		}
		if len(fields) == 7 {
			rec.MCC = fields[3]
			rec.MNC = fields[4]
			rec.LAC = fields[5]
			rec.Technology = fields[6]
		}
		records = append(records, rec)
	}
	return records
}
