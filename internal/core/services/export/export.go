package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

// ErrUnknownFormat is returned for format names no exporter handles.
var ErrUnknownFormat = errors.New("export: unknown format")

// Formats lists the supported export format names.
func Formats() []string {
	return []string{"csv", "json", "geojson", "gpx", "kml", "kmz", "shp"}
}

// Export writes the access-point entries in the named format. Geometry
// formats skip entries without coordinates; tabular formats keep every row.
func Export(w io.Writer, format string, entries []*domain.APCacheEntry) error {
	switch format {
	case "csv":
		return ExportCSV(w, entries)
	case "json":
		return ExportJSON(w, entries)
	case "geojson":
		return ExportGeoJSON(w, entries)
	case "gpx":
		return ExportGPX(w, entries)
	case "kml":
		return ExportKML(w, entries)
	case "kmz":
		return ExportKMZ(w, entries)
	case "shp":
		return ExportShapefile(w, entries)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// ContentType returns the MIME type to serve for a format.
func ContentType(format string) string {
	switch format {
	case "csv":
		return "text/csv"
	case "json", "geojson":
		return "application/json"
	case "gpx", "kml":
		return "application/xml"
	case "kmz", "shp":
		return "application/zip"
	}
	return "application/octet-stream"
}

// ExportJSON writes the entries as an indented JSON array.
func ExportJSON(w io.Writer, entries []*domain.APCacheEntry) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if entries == nil {
		entries = []*domain.APCacheEntry{}
	}
	return encoder.Encode(entries)
}

// ExportCSV writes the entries as CSV with a header row.
func ExportCSV(w io.Writer, entries []*domain.APCacheEntry) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	headers := []string{"BSSID", "SSID", "Encryption", "Vendor", "Latitude", "Longitude", "LastTime"}
	if err := writer.Write(headers); err != nil {
		return err
	}

	for _, e := range entries {
		var lat, lon string
		if e.HasLocation() {
			lat = fmt.Sprintf("%.6f", *e.Latitude)
			lon = fmt.Sprintf("%.6f", *e.Longitude)
		}
		row := []string{
			e.BSSID,
			e.SSID,
			e.Encryption,
			e.Vendor,
			lat,
			lon,
			domain.FormatTime(e.LastTime),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	return writer.Error()
}

// located filters to the entries carrying coordinates.
func located(entries []*domain.APCacheEntry) []*domain.APCacheEntry {
	out := make([]*domain.APCacheEntry, 0, len(entries))
	for _, e := range entries {
		if e.HasLocation() {
			out = append(out, e)
		}
	}
	return out
}
