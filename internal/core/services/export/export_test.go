package export

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

func entry(bssid string, lat, lon *float64) *domain.APCacheEntry {
	return &domain.APCacheEntry{
		BSSID:      bssid,
		SSID:       "Net-" + bssid,
		Encryption: "WPA2",
		Vendor:     "Acme",
		Latitude:   lat,
		Longitude:  lon,
		LastTime:   time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	}
}

func locatedEntry(bssid string, lat, lon float64) *domain.APCacheEntry {
	return entry(bssid, domain.Float64Ptr(lat), domain.Float64Ptr(lon))
}

func TestGeoJSONCoordinatesAreLonLat(t *testing.T) {
	var buf bytes.Buffer
	err := ExportGeoJSON(&buf, []*domain.APCacheEntry{locatedEntry("AA", 41.38, 2.17)})
	require.NoError(t, err)

	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Coordinates [2]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "FeatureCollection", doc.Type)
	require.Len(t, doc.Features, 1)
	assert.Equal(t, 2.17, doc.Features[0].Geometry.Coordinates[0])
	assert.Equal(t, 41.38, doc.Features[0].Geometry.Coordinates[1])
	assert.Equal(t, "AA", doc.Features[0].Properties["bssid"])
}

func TestGeometryFormatsSkipEntriesWithoutCoordinates(t *testing.T) {
	unlocated := []*domain.APCacheEntry{entry("AA", nil, nil)}

	for _, format := range []string{"geojson", "gpx", "kml"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Export(&buf, format, unlocated))
			assert.NotContains(t, buf.String(), "AA")
		})
	}

	t.Run("kmz", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, "kmz", unlocated))
		reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		require.NoError(t, err)
		require.Len(t, reader.File, 1)
		f, err := reader.File[0].Open()
		require.NoError(t, err)
		defer f.Close()
		body, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.NotContains(t, string(body), "AA")
	})

	t.Run("shp", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, "shp", unlocated))
		reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		require.NoError(t, err)
		for _, f := range reader.File {
			if f.Name != "aps.shp" {
				continue
			}
			r, err := f.Open()
			require.NoError(t, err)
			body, err := io.ReadAll(r)
			r.Close()
			require.NoError(t, err)
			assert.Len(t, body, shpHeaderLen, "no records beyond the header")
		}
	})
}

func TestCSVKeepsEveryRow(t *testing.T) {
	var buf bytes.Buffer
	err := ExportCSV(&buf, []*domain.APCacheEntry{
		locatedEntry("AA", 41.38, 2.17),
		entry("BB", nil, nil),
	})
	require.NoError(t, err)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 rows
	assert.Equal(t, "BSSID", rows[0][0])
	assert.Equal(t, "AA", rows[1][0])
	assert.Equal(t, "41.380000", rows[1][4])
	assert.Equal(t, "BB", rows[2][0])
	assert.Empty(t, rows[2][4])
}

func TestGPXWaypoints(t *testing.T) {
	var buf bytes.Buffer
	err := ExportGPX(&buf, []*domain.APCacheEntry{locatedEntry("AA", 41.38, 2.17)})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `<gpx version="1.1"`)
	assert.Contains(t, out, `lat="41.38"`)
	assert.Contains(t, out, `lon="2.17"`)
	assert.Contains(t, out, "<desc>AA</desc>")
}

func TestKMZContainsDocKML(t *testing.T) {
	var buf bytes.Buffer
	err := ExportKMZ(&buf, []*domain.APCacheEntry{locatedEntry("AA", 41.38, 2.17)})
	require.NoError(t, err)

	reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, reader.File, 1)
	assert.Equal(t, "doc.kml", reader.File[0].Name)

	f, err := reader.File[0].Open()
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Contains(t, string(body), "2.170000,41.380000,0")
}

func TestShapefileMembersAndGeometry(t *testing.T) {
	var buf bytes.Buffer
	err := ExportShapefile(&buf, []*domain.APCacheEntry{
		locatedEntry("AA", 41.38, 2.17),
		locatedEntry("BB", 40.41, -3.70),
	})
	require.NoError(t, err)

	reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	files := make(map[string][]byte)
	for _, f := range reader.File {
		r, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(r)
		require.NoError(t, err)
		r.Close()
		files[f.Name] = body
	}
	require.Contains(t, files, "aps.shp")
	require.Contains(t, files, "aps.shx")
	require.Contains(t, files, "aps.dbf")

	shp := files["aps.shp"]
	require.GreaterOrEqual(t, len(shp), shpHeaderLen+2*(8+shpRecordData))
	assert.Equal(t, uint32(shpFileCode), binary.BigEndian.Uint32(shp[0:]))
	assert.Equal(t, uint32(shpTypePoint), binary.LittleEndian.Uint32(shp[32:]))

	// First record: header then shape type, X (lon), Y (lat).
	rec := shp[shpHeaderLen:]
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(rec[0:]))
	assert.Equal(t, uint32(shpTypePoint), binary.LittleEndian.Uint32(rec[8:]))
	assert.Equal(t, 2.17, math.Float64frombits(binary.LittleEndian.Uint64(rec[12:])))
	assert.Equal(t, 41.38, math.Float64frombits(binary.LittleEndian.Uint64(rec[20:])))

	// DBF record count and field naming stay within dBase limits.
	dbf := files["aps.dbf"]
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(dbf[4:]))
	for _, f := range shpFields {
		assert.LessOrEqual(t, len(f.name), 10)
	}
	assert.True(t, strings.Contains(string(dbf), "AA"))
}

func TestExportUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Export(&buf, "xlsx", nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestExportJSONEmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportJSON(&buf, nil))
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
}
