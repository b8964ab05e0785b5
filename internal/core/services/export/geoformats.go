package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

type geoJSONFeature struct {
	Type       string         `json:"type"`
	Geometry   geoJSONPoint   `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geoJSONPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"` // [lon, lat]
}

// ExportGeoJSON writes a FeatureCollection of Point features, one per
// located entry.
func ExportGeoJSON(w io.Writer, entries []*domain.APCacheEntry) error {
	features := make([]geoJSONFeature, 0, len(entries))
	for _, e := range located(entries) {
		features = append(features, geoJSONFeature{
			Type: "Feature",
			Geometry: geoJSONPoint{
				Type:        "Point",
				Coordinates: [2]float64{*e.Longitude, *e.Latitude},
			},
			Properties: map[string]any{
				"bssid":      e.BSSID,
				"ssid":       e.SSID,
				"encryption": e.Encryption,
				"vendor":     e.Vendor,
				"last_time":  domain.FormatTime(e.LastTime),
			},
		})
	}

	encoder := json.NewEncoder(w)
	return encoder.Encode(map[string]any{
		"type":     "FeatureCollection",
		"features": features,
	})
}

type gpxDoc struct {
	XMLName   xml.Name      `xml:"gpx"`
	Version   string        `xml:"version,attr"`
	Creator   string        `xml:"creator,attr"`
	Namespace string        `xml:"xmlns,attr"`
	Waypoints []gpxWaypoint `xml:"wpt"`
}

type gpxWaypoint struct {
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Name string  `xml:"name,omitempty"`
	Desc string  `xml:"desc,omitempty"`
}

// ExportGPX writes the located entries as GPX 1.1 waypoints.
func ExportGPX(w io.Writer, entries []*domain.APCacheEntry) error {
	doc := gpxDoc{
		Version:   "1.1",
		Creator:   "piwardrive",
		Namespace: "http://www.topografix.com/GPX/1/1",
	}
	for _, e := range located(entries) {
		doc.Waypoints = append(doc.Waypoints, gpxWaypoint{
			Lat:  *e.Latitude,
			Lon:  *e.Longitude,
			Name: e.SSID,
			Desc: e.BSSID,
		})
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	return encoder.Encode(doc)
}

type kmlDoc struct {
	XMLName   xml.Name     `xml:"kml"`
	Namespace string       `xml:"xmlns,attr"`
	Document  kmlContainer `xml:"Document"`
}

type kmlContainer struct {
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name        string   `xml:"name,omitempty"`
	Description string   `xml:"description,omitempty"`
	Point       kmlPoint `xml:"Point"`
}

type kmlPoint struct {
	Coordinates string `xml:"coordinates"` // lon,lat,alt
}

// ExportKML writes the located entries as KML placemarks.
func ExportKML(w io.Writer, entries []*domain.APCacheEntry) error {
	doc := kmlDoc{Namespace: "http://www.opengis.net/kml/2.2"}
	for _, e := range located(entries) {
		doc.Document.Placemarks = append(doc.Document.Placemarks, kmlPlacemark{
			Name:        e.SSID,
			Description: e.BSSID,
			Point: kmlPoint{
				Coordinates: fmt.Sprintf("%.6f,%.6f,0", *e.Longitude, *e.Latitude),
			},
		})
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	return encoder.Encode(doc)
}

// ExportKMZ writes a zip archive holding the KML rendering at doc.kml.
func ExportKMZ(w io.Writer, entries []*domain.APCacheEntry) error {
	var buf bytes.Buffer
	if err := ExportKML(&buf, entries); err != nil {
		return err
	}

	archive := zip.NewWriter(w)
	file, err := archive.Create("doc.kml")
	if err != nil {
		return err
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		return err
	}
	return archive.Close()
}
