package raster

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// GDALTool reads raster metadata and reprojects bounds by shelling out to
// the GDAL command-line utilities (gdalinfo, gdaltransform). Remote URLs
// are accessed through GDAL's /vsicurl and /vsis3 virtual filesystems.
type GDALTool struct {
	// InfoBin and TransformBin override the binary names, for tests.
	InfoBin      string
	TransformBin string
}

func NewGDALTool() *GDALTool {
	return &GDALTool{InfoBin: "gdalinfo", TransformBin: "gdaltransform"}
}

// gdalinfo -json output, reduced to the members we consume.
type gdalInfoDoc struct {
	CornerCoordinates struct {
		LowerLeft  []float64 `json:"lowerLeft"`
		UpperRight []float64 `json:"upperRight"`
	} `json:"cornerCoordinates"`
	CoordinateSystem struct {
		WKT string `json:"wkt"`
	} `json:"coordinateSystem"`
	Metadata map[string]map[string]string `json:"metadata"`
	STAC     struct {
		EPSG any `json:"proj:epsg"`
	} `json:"stac"`
}

func (g *GDALTool) Read(ctx context.Context, url string) (Info, error) {
	out, err := exec.CommandContext(ctx, g.InfoBin, "-json", VSIPath(url)).Output()
	if err != nil {
		return Info{}, fmt.Errorf("gdalinfo %s: %w", url, err)
	}
	var doc gdalInfoDoc
	if err := json.Unmarshal(out, &doc); err != nil {
		return Info{}, fmt.Errorf("gdalinfo %s: parse output: %w", url, err)
	}

	ll := doc.CornerCoordinates.LowerLeft
	ur := doc.CornerCoordinates.UpperRight
	if len(ll) < 2 || len(ur) < 2 {
		return Info{}, fmt.Errorf("gdalinfo %s: missing corner coordinates", url)
	}

	info := Info{
		CRS: doc.CoordinateSystem.WKT,
		Bounds: Bounds{
			Left:   ll[0],
			Bottom: ll[1],
			Right:  ur[0],
			Top:    ur[1],
		},
	}
	if code, ok := epsgCode(doc); ok {
		info.EPSG = &code
		info.CRS = "EPSG:" + strconv.Itoa(code)
	}
	return info, nil
}

func epsgCode(doc gdalInfoDoc) (int, bool) {
	switch v := doc.STAC.EPSG.(type) {
	case float64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	// fall back to the authority clause at the end of the WKT
	wkt := doc.CoordinateSystem.WKT
	idx := strings.LastIndex(wkt, `AUTHORITY["EPSG","`)
	if idx < 0 {
		return 0, false
	}
	rest := wkt[idx+len(`AUTHORITY["EPSG","`):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ToGeographic pipes the two box corners through gdaltransform. The
// output box is the axis-aligned hull of the transformed corners.
func (g *GDALTool) ToGeographic(ctx context.Context, crs string, b Bounds) (Bounds, error) {
	cmd := exec.CommandContext(ctx, g.TransformBin, "-s_srs", crs, "-t_srs", "EPSG:4326", "-output_xy")
	cmd.Stdin = strings.NewReader(fmt.Sprintf("%g %g\n%g %g\n", b.Left, b.Bottom, b.Right, b.Top))
	out, err := cmd.Output()
	if err != nil {
		return Bounds{}, fmt.Errorf("gdaltransform %s: %w", crs, err)
	}

	var pts [][2]float64
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		x, errX := strconv.ParseFloat(fields[0], 64)
		y, errY := strconv.ParseFloat(fields[1], 64)
		if errX != nil || errY != nil {
			return Bounds{}, fmt.Errorf("gdaltransform %s: bad output line %q", crs, sc.Text())
		}
		pts = append(pts, [2]float64{x, y})
	}
	if len(pts) != 2 {
		return Bounds{}, fmt.Errorf("gdaltransform %s: expected 2 points, got %d", crs, len(pts))
	}

	return Bounds{
		Left:   min(pts[0][0], pts[1][0]),
		Bottom: min(pts[0][1], pts[1][1]),
		Right:  max(pts[0][0], pts[1][0]),
		Top:    max(pts[0][1], pts[1][1]),
	}, nil
}

// VSIPath rewrites a URL into the GDAL virtual-filesystem form.
func VSIPath(url string) string {
	switch {
	case strings.HasPrefix(url, "s3://"):
		return "/vsis3/" + strings.TrimPrefix(url, "s3://")
	case strings.HasPrefix(url, "http://"):
		return "/vsicurl/" + url
	case strings.HasPrefix(url, "https://"):
		return "/vsicurl/" + url
	}
	return url
}

var (
	_ MetadataReader = (*GDALTool)(nil)
	_ Reprojector    = (*GDALTool)(nil)
)
