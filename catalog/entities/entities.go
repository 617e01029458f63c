package entities

import (
	"fmt"
	"time"

	"github.com/go-spatial/geom"
)

// DefaultPointBuffer inflates a sampling point into a search box (0.01 degrees, roughly 1.1km)
const DefaultPointBuffer = 0.01

// FieldObservation is one field-sampling record: a calendar date and a WGS84 location
type FieldObservation struct {
	Date      time.Time
	Longitude float64
	Latitude  float64
}

// Key identifies the observation for deduplication
func (o FieldObservation) Key() string {
	return fmt.Sprintf("%s|%.6f|%.6f", o.Date.Format("2006-01-02"), o.Longitude, o.Latitude)
}

// BBox is a [min_lon, min_lat, max_lon, max_lat] extent in WGS84
type BBox [4]float64

// BBoxFromPoint inflates a point by buffer degrees in every direction
func BBoxFromPoint(lon, lat, buffer float64) BBox {
	return BBox{lon - buffer, lat - buffer, lon + buffer, lat + buffer}
}

// BBoxFromExtent converts a geometry extent to a BBox
func BBoxFromExtent(e *geom.Extent) BBox {
	return BBox{e.MinX(), e.MinY(), e.MaxX(), e.MaxY()}
}

// ImageMatch is one catalog hit for a field date
type ImageMatch struct {
	ID            string  `json:"id"`
	Datetime      string  `json:"datetime"`
	CloudCover    float64 `json:"cloud_cover"`
	Href          string  `json:"href"`
	DeltaDays     int     `json:"delta_days"`
	CloudMaskHref string  `json:"cloud_mask_href,omitempty"`
}

// CatalogEntry gathers the images found around one field date.
// An empty ImagesFound is valid: no scene matched the search window.
type CatalogEntry struct {
	FieldDate   string       `json:"field_date"`
	ImagesFound []ImageMatch `json:"images_found"`
}

// DeltaDays is the absolute difference, in days, between an acquisition and a field date
func DeltaDays(acquired, fieldDate time.Time) int {
	a := acquired.UTC().Truncate(24 * time.Hour)
	f := fieldDate.UTC().Truncate(24 * time.Hour)
	d := int(a.Sub(f).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}
