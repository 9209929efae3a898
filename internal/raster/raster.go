// Package raster defines the collaborators that read geospatial metadata
// from raster files and reproject native bounds to geographic coordinates.
package raster

import "context"

// Bounds is a bounding box in some coordinate reference system,
// left <= right and bottom <= top.
type Bounds struct {
	Left   float64
	Bottom float64
	Right  float64
	Top    float64
}

// Info is the native metadata read from a raster.
type Info struct {
	// CRS in a form the reprojector accepts, e.g. "EPSG:26918" or WKT.
	CRS string
	// EPSG is the numeric code when the CRS is a registered EPSG CRS,
	// nil otherwise.
	EPSG *int
	// Bounds in the native CRS.
	Bounds Bounds
}

// MetadataReader reads native CRS and bounds from a raster URL.
type MetadataReader interface {
	Read(ctx context.Context, url string) (Info, error)
}

// Reprojector transforms bounds from a source CRS to geographic
// (EPSG:4326) longitude/latitude.
type Reprojector interface {
	ToGeographic(ctx context.Context, crs string, b Bounds) (Bounds, error)
}
