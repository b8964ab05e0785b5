package export

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

// Shapefile constants per the ESRI white paper.
const (
	shpFileCode   = 9994
	shpVersion    = 1000
	shpTypePoint  = 1
	shpHeaderLen  = 100
	shpRecordData = 20 // shape type + X + Y
)

type dbfField struct {
	name   string // max 10 characters
	length int
}

var shpFields = []dbfField{
	{"BSSID", 20},
	{"SSID", 32},
	{"ENCRYPTION", 16},
	{"VENDOR", 32},
	{"LAST_TIME", 27},
}

// ExportShapefile writes a zip archive with the three mandatory shapefile
// members (aps.shp, aps.shx, aps.dbf) holding one point per located entry.
func ExportShapefile(w io.Writer, entries []*domain.APCacheEntry) error {
	points := located(entries)

	archive := zip.NewWriter(w)
	members := []struct {
		name string
		body []byte
	}{
		{"aps.shp", buildSHP(points)},
		{"aps.shx", buildSHX(points)},
		{"aps.dbf", buildDBF(points)},
	}
	for _, m := range members {
		f, err := archive.Create(m.name)
		if err != nil {
			return err
		}
		if _, err := f.Write(m.body); err != nil {
			return err
		}
	}
	return archive.Close()
}

// shpHeader is shared between .shp and .shx; lengths are in 16-bit words and
// big-endian, the rest of the numeric fields are little-endian.
func shpHeader(fileLengthBytes int, points []*domain.APCacheEntry) []byte {
	buf := make([]byte, shpHeaderLen)
	binary.BigEndian.PutUint32(buf[0:], shpFileCode)
	binary.BigEndian.PutUint32(buf[24:], uint32(fileLengthBytes/2))
	binary.LittleEndian.PutUint32(buf[28:], shpVersion)
	binary.LittleEndian.PutUint32(buf[32:], shpTypePoint)

	minX, minY, maxX, maxY := boundingBox(points)
	putFloat64 := func(off int, v float64) {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
	}
	putFloat64(36, minX)
	putFloat64(44, minY)
	putFloat64(52, maxX)
	putFloat64(60, maxY)
	// Z and M ranges stay zero for plain points.
	return buf
}

func buildSHP(points []*domain.APCacheEntry) []byte {
	total := shpHeaderLen + len(points)*(8+shpRecordData)
	out := bytes.NewBuffer(make([]byte, 0, total))
	out.Write(shpHeader(total, points))

	record := make([]byte, 8+shpRecordData)
	for i, p := range points {
		binary.BigEndian.PutUint32(record[0:], uint32(i+1))
		binary.BigEndian.PutUint32(record[4:], shpRecordData/2)
		binary.LittleEndian.PutUint32(record[8:], shpTypePoint)
		binary.LittleEndian.PutUint64(record[12:], math.Float64bits(*p.Longitude))
		binary.LittleEndian.PutUint64(record[20:], math.Float64bits(*p.Latitude))
		out.Write(record)
	}
	return out.Bytes()
}

func buildSHX(points []*domain.APCacheEntry) []byte {
	total := shpHeaderLen + len(points)*8
	out := bytes.NewBuffer(make([]byte, 0, total))
	out.Write(shpHeader(total, points))

	offset := shpHeaderLen
	entry := make([]byte, 8)
	for range points {
		binary.BigEndian.PutUint32(entry[0:], uint32(offset/2))
		binary.BigEndian.PutUint32(entry[4:], shpRecordData/2)
		out.Write(entry)
		offset += 8 + shpRecordData
	}
	return out.Bytes()
}

// buildDBF emits a dBase III table with character fields only.
func buildDBF(points []*domain.APCacheEntry) []byte {
	headerSize := 32 + 32*len(shpFields) + 1
	recordSize := 1 // deletion flag
	for _, f := range shpFields {
		recordSize += f.length
	}

	var out bytes.Buffer
	header := make([]byte, 32)
	header[0] = 0x03
	now := time.Now()
	header[1] = byte(now.Year() - 1900)
	header[2] = byte(now.Month())
	header[3] = byte(now.Day())
	binary.LittleEndian.PutUint32(header[4:], uint32(len(points)))
	binary.LittleEndian.PutUint16(header[8:], uint16(headerSize))
	binary.LittleEndian.PutUint16(header[10:], uint16(recordSize))
	out.Write(header)

	for _, f := range shpFields {
		desc := make([]byte, 32)
		copy(desc[0:11], f.name)
		desc[11] = 'C'
		desc[16] = byte(f.length)
		out.Write(desc)
	}
	out.WriteByte(0x0D)

	for _, p := range points {
		out.WriteByte(' ') // not deleted
		writeDBFValue(&out, p.BSSID, shpFields[0].length)
		writeDBFValue(&out, p.SSID, shpFields[1].length)
		writeDBFValue(&out, p.Encryption, shpFields[2].length)
		writeDBFValue(&out, p.Vendor, shpFields[3].length)
		writeDBFValue(&out, domain.FormatTime(p.LastTime), shpFields[4].length)
	}
	out.WriteByte(0x1A)
	return out.Bytes()
}

func writeDBFValue(out *bytes.Buffer, value string, length int) {
	if len(value) > length {
		value = value[:length]
	}
	out.WriteString(value)
	for i := len(value); i < length; i++ {
		out.WriteByte(' ')
	}
}

func boundingBox(points []*domain.APCacheEntry) (minX, minY, maxX, maxY float64) {
	if len(points) == 0 {
		return 0, 0, 0, 0
	}
	minX, maxX = *points[0].Longitude, *points[0].Longitude
	minY, maxY = *points[0].Latitude, *points[0].Latitude
	for _, p := range points[1:] {
		minX = math.Min(minX, *p.Longitude)
		maxX = math.Max(maxX, *p.Longitude)
		minY = math.Min(minY, *p.Latitude)
		maxY = math.Max(maxY, *p.Latitude)
	}
	return minX, minY, maxX, maxY
}
