package scanning

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"

	"github.com/piwardrive/piwardrive/internal/core/domain"
	"github.com/piwardrive/piwardrive/internal/core/ports"
)

const (
	passiveBatchSize  = 32
	passiveFlushEvery = 2 * time.Second
)

// PassiveCapture parses Dot11 beacon and probe-response frames off a monitor
// interface (or a capture file) into Wi-Fi detections carrying the
// beacon-level attributes the CLI scanners cannot see.
type PassiveCapture struct {
	iface    string
	file     string
	vendors  ports.VendorLookup
	position ports.PositionSource
	emit     func([]*domain.WifiDetection)
}

// NewPassiveCapture creates a capture executor. Exactly one of iface or file
// should be set; emit receives each parsed batch.
func NewPassiveCapture(iface, file string, vendors ports.VendorLookup, position ports.PositionSource, emit func([]*domain.WifiDetection)) *PassiveCapture {
	return &PassiveCapture{iface: iface, file: file, vendors: vendors, position: position, emit: emit}
}

// Run captures until the context ends or the offline file is exhausted.
func (p *PassiveCapture) Run(ctx context.Context) error {
	source, closeFn, err := p.open()
	if err != nil {
		return err
	}
	defer closeFn()

	var batch []*domain.WifiDetection
	flush := func() {
		if len(batch) > 0 {
			p.emit(batch)
			batch = nil
		}
	}
	ticker := time.NewTicker(passiveFlushEvery)
	defer ticker.Stop()
	defer flush()

	packets := source.Packets()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			flush()
		case packet, ok := <-packets:
			if !ok {
				return nil
			}
			rec := p.parsePacket(packet)
			if rec == nil {
				continue
			}
			batch = append(batch, rec)
			if len(batch) >= passiveBatchSize {
				flush()
			}
		}
	}
}

func (p *PassiveCapture) open() (*gopacket.PacketSource, func(), error) {
	if p.file != "" {
		f, err := os.Open(p.file)
		if err != nil {
			return nil, nil, fmt.Errorf("open capture file: %w", err)
		}
		reader, err := pcapgo.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("read capture file: %w", err)
		}
		return gopacket.NewPacketSource(reader, reader.LinkType()), func() { f.Close() }, nil
	}
	if p.iface == "" {
		return nil, nil, errors.New("passive capture: no interface or file configured")
	}
	handle, err := pcap.OpenLive(p.iface, 65536, true, pcap.BlockForever)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", p.iface, err)
	}
	return gopacket.NewPacketSource(handle, handle.LinkType()), handle.Close, nil
}

// parsePacket extracts a detection from one beacon or probe response.
func (p *PassiveCapture) parsePacket(packet gopacket.Packet) *domain.WifiDetection {
	dot11Layer := packet.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		return nil
	}
	dot11, ok := dot11Layer.(*layers.Dot11)
	if !ok {
		return nil
	}
	if dot11.Type != layers.Dot11TypeMgmtBeacon && dot11.Type != layers.Dot11TypeMgmtProbeResp {
		return nil
	}

	rec := &domain.WifiDetection{
		SessionID: domain.AdhocSession,
		BSSID:     strings.ToUpper(dot11.Address3.String()),
		SignalDBm: -100,
		Time:      time.Now().UTC(),
	}

	if radiotapLayer := packet.Layer(layers.LayerTypeRadioTap); radiotapLayer != nil {
		if radiotap, ok := radiotapLayer.(*layers.RadioTap); ok {
			rec.SignalDBm = float64(radiotap.DBMAntennaSignal)
			rec.FrequencyMHz = int(radiotap.ChannelFrequency)
		}
	}

	var privacy bool
	if beaconLayer := packet.Layer(layers.LayerTypeDot11MgmtBeacon); beaconLayer != nil {
		if beacon, ok := beaconLayer.(*layers.Dot11MgmtBeacon); ok {
			rec.BeaconInterval = int(beacon.Interval)
			privacy = beacon.Flags&0x0010 != 0
		}
	}

	var wpa, wpa2 bool
	for _, layer := range packet.Layers() {
		ie, ok := layer.(*layers.Dot11InformationElement)
		if !ok {
			continue
		}
		applyIE(ie, rec, &wpa, &wpa2)
	}
	rec.Encryption = encryptionLabel(privacy, wpa, wpa2)

	if p.vendors != nil {
		if vendor, err := p.vendors.Lookup(rec.BSSID); err == nil {
			rec.Vendor = vendor
		}
	}
	if p.position != nil {
		if pos, ok := p.position.Position(context.Background()); ok {
			rec.Latitude = domain.Float64Ptr(pos.Lat)
			rec.Longitude = domain.Float64Ptr(pos.Lon)
		}
	}
	return rec
}

// wpaOUIPrefix identifies the Microsoft vendor-specific WPA1 element.
var wpaOUIPrefix = []byte{0x00, 0x50, 0xF2, 0x01}

// applyIE folds one information element into the detection.
func applyIE(ie *layers.Dot11InformationElement, rec *domain.WifiDetection, wpa, wpa2 *bool) {
	switch ie.ID {
	case layers.Dot11InformationElementIDSSID:
		rec.SSID = string(ie.Info)
	case layers.Dot11InformationElementIDDSSet:
		if len(ie.Info) >= 1 {
			rec.Channel = int(ie.Info[0])
		}
	case layers.Dot11InformationElementIDCountryInfo:
		if len(ie.Info) >= 2 {
			rec.Country = strings.TrimSpace(string(ie.Info[:2]))
		}
	case layers.Dot11InformationElementIDRSNInfo:
		*wpa2 = true
		if cipher := rsnGroupCipher(ie.Info); cipher != "" {
			rec.CipherSuite = cipher
		}
	case layers.Dot11InformationElementIDHTCapabilities:
		rec.HTCaps = "HT"
	case layers.Dot11InformationElementIDVHTCapabilities:
		rec.VHTCaps = "VHT"
	case layers.Dot11InformationElementIDTPCReport:
		if len(ie.Info) >= 1 {
			rec.TxPowerDBm = domain.Float64Ptr(float64(int8(ie.Info[0])))
		}
	case layers.Dot11InformationElementIDVendor:
		if len(ie.Info) >= 4 && string(ie.Info[:4]) == string(wpaOUIPrefix) {
			*wpa = true
		}
	case 255: // element ID extension; HE capabilities are extension ID 35
		if len(ie.Info) >= 1 && ie.Info[0] == 35 {
			rec.HECaps = "HE"
		}
	}
}

// rsnGroupCipher decodes the group cipher suite of an RSN element.
func rsnGroupCipher(info []byte) string {
	// version (2 bytes) + group cipher suite (OUI 3 bytes + type 1 byte)
	if len(info) < 6 {
		return ""
	}
	if binary.LittleEndian.Uint16(info[0:2]) != 1 {
		return ""
	}
	switch info[5] {
	case 2:
		return "TKIP"
	case 4:
		return "CCMP"
	case 8, 9:
		return "GCMP"
	}
	return ""
}
