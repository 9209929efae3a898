package stac

import (
	"github.com/venicegeo/geojson-go/geojson"
)

// COGMediaType marks an asset as a cloud-optimized GeoTIFF.
const COGMediaType = "image/vnd.stac.geotiff; cloud-optimized=true"

type Asset struct {
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// Band describes one spectral band of an instrument.
type Band struct {
	Name             string  `json:"name"`
	CommonName       string  `json:"common_name"`
	GSD              float64 `json:"gsd"`
	CenterWavelength float64 `json:"center_wavelength"`
	FullWidthHalfMax float64 `json:"full_width_half_max"`
	Accuracy         float64 `json:"accuracy"`
}

// Properties carries the per-item fields. Datetime is null until a
// configured timestamp or sidecar acquisition date supplies one.
type Properties struct {
	Datetime      *string `json:"datetime"`
	Collection    string  `json:"collection"`
	EPSG          *int    `json:"eo:epsg"`
	FootprintID   string  `json:"footprint_id,omitempty"`
	PlaceKeywords string  `json:"place_keywords,omitempty"`
	GSD           float64 `json:"eo:gsd,omitempty"`
	Instrument    string  `json:"eo:instrument,omitempty"`
	Constellation string  `json:"eo:constellation,omitempty"`
	Bands         []Band  `json:"eo:bands,omitempty"`
}

// Item is one cataloged asset. It is created once per processed key and
// never mutated after being added to a collection.
type Item struct {
	ID         string              `json:"id"`
	Type       string              `json:"type"`
	BBox       geojson.BoundingBox `json:"bbox"`
	Geometry   *geojson.Polygon    `json:"geometry"`
	Properties Properties          `json:"properties"`
	Assets     map[string]Asset    `json:"assets"`
}

// NewItem builds an item from geographic bounds [left,bottom,right,top]
// with a polygon geometry derived from the bbox and a "visual" asset
// pointing at href.
func NewItem(id, href string, bounds SpatialExtent, epsg *int, datetime *string, collection string) *Item {
	return &Item{
		ID:       id,
		Type:     "Feature",
		BBox:     geojson.BoundingBox(bounds.Slice()),
		Geometry: PolygonFromBounds(bounds),
		Properties: Properties{
			Datetime:   datetime,
			Collection: collection,
			EPSG:       epsg,
		},
		Assets: map[string]Asset{
			"visual": {Href: href, Type: COGMediaType},
		},
	}
}

// PolygonFromBounds returns the closed counter-clockwise box ring for a
// geographic bounding box.
func PolygonFromBounds(b SpatialExtent) *geojson.Polygon {
	ring := [][]float64{
		{b.Left, b.Bottom},
		{b.Right, b.Bottom},
		{b.Right, b.Top},
		{b.Left, b.Top},
		{b.Left, b.Bottom},
	}
	return geojson.NewPolygon([][][]float64{ring})
}
