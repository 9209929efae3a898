package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stac-tools/stacgen/internal/cog"
	"github.com/stac-tools/stacgen/internal/config"
	"github.com/stac-tools/stacgen/internal/fgdc"
	"github.com/stac-tools/stacgen/internal/lint"
	"github.com/stac-tools/stacgen/internal/objstore"
	"github.com/stac-tools/stacgen/internal/raster"
	"github.com/stac-tools/stacgen/internal/stac"
)

// stubGate passes assets through unless a resolution is pinned per key.
type stubGate struct {
	pinned map[string]cog.Resolution
}

func (g stubGate) Resolve(ctx context.Context, key, url string) (cog.Resolution, error) {
	if r, ok := g.pinned[key]; ok {
		return r, nil
	}
	return cog.Resolution{Href: url, State: cog.StateValid}, nil
}

// stubReader serves metadata keyed by URL suffix.
type stubReader struct {
	infos map[string]raster.Info
}

func (r stubReader) Read(ctx context.Context, url string) (raster.Info, error) {
	for suffix, info := range r.infos {
		if strings.HasSuffix(url, suffix) {
			return info, nil
		}
	}
	return raster.Info{}, fmt.Errorf("no metadata for %s", url)
}

// stubReprojector serves geographic bounds keyed by native left edge.
type stubReprojector struct {
	mapped map[float64]raster.Bounds
}

func (r stubReprojector) ToGeographic(ctx context.Context, crs string, b raster.Bounds) (raster.Bounds, error) {
	if out, ok := r.mapped[b.Left]; ok {
		return out, nil
	}
	return raster.Bounds{}, fmt.Errorf("no mapping for left=%v", b.Left)
}

func epsg(code int) *int { return &code }

func testConfig(t *testing.T, timestamp string) config.Config {
	t.Helper()
	cfg := config.Config{
		BucketName:   "naip-src",
		BucketPrefix: "wi/2017/",
		BucketRegion: "us-east-2",
		COGSuffix:    ".tif",
		CatalogID:    "naip-root",
		CollectionMetadata: map[string]any{
			"id":           "wi-2017",
			"stac_version": "0.6.1",
			"description":  "NAIP 2017 Wisconsin",
		},
		CatalogDescription: "NAIP imagery",
		ItemTimestamp:      timestamp,
		FilenameRegex:      `(?P<footprint>\d{7}_[a-z]{2})`,
		OutputBucketName:   "naip-out",
		OutputBucketRegion: "us-east-2",
		RootCatalogDir:     "catalog",
		WorkDir:            t.TempDir(),
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func sourceKeys() []string {
	return []string{
		"wi/2017/a1_x.tif",
		"wi/2017/b2_x.tif",
		"wi/2017/c3_x.tif",
		"wi/2017/d4_4007746_ne.tif",
		"wi/2017/readme.txt",
	}
}

func newSource() *objstore.Mem {
	src := objstore.NewMem()
	src.PageSize = 2
	for _, k := range sourceKeys() {
		src.PutBytes("naip-src", k, []byte("raster"))
	}
	return src
}

func newReader() stubReader {
	return stubReader{infos: map[string]raster.Info{
		"a1_x.tif":          {CRS: "EPSG:4326", EPSG: epsg(4326), Bounds: raster.Bounds{Left: -91, Bottom: 39, Right: -90, Top: 40}},
		"b2_x.tif":          {CRS: "EPSG:4326", EPSG: epsg(4326), Bounds: raster.Bounds{Left: -90, Bottom: 40, Right: -89, Top: 41}},
		"c3_x.tif":          {CRS: "EPSG:4326", EPSG: epsg(4326), Bounds: raster.Bounds{Left: -90.5, Bottom: 39.5, Right: -89.5, Top: 40.5}},
		"d4_4007746_ne.tif": {CRS: "EPSG:26916", EPSG: epsg(26916), Bounds: raster.Bounds{Left: 300000, Bottom: 4400000, Right: 310000, Top: 4410000}},
		"a1_x_COG.TIF":      {CRS: "EPSG:4326", EPSG: epsg(4326), Bounds: raster.Bounds{Left: -91, Bottom: 39, Right: -90, Top: 40}},
	}}
}

func newPipeline(t *testing.T, cfg config.Config, src, out *objstore.Mem, gate Resolver) *Pipeline {
	t.Helper()
	linter, err := lint.NewSchemaLinter("")
	if err != nil {
		t.Fatal(err)
	}
	return &Pipeline{
		Cfg:    cfg,
		Source: src,
		Output: out,
		Gate:   gate,
		Reader: newReader(),
		Reprojector: stubReprojector{mapped: map[float64]raster.Bounds{
			300000: {Left: -90.2, Bottom: 39.8, Right: -89.8, Top: 40.2},
		}},
		Linter: linter,
		Log:    zerolog.Nop(),
	}
}

func TestRun_EndToEnd(t *testing.T) {
	src := newSource()
	out := objstore.NewMem()
	cfg := testConfig(t, "2019-06-15T00:00:00Z")
	p := newPipeline(t, cfg, src, out, stubGate{})

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 5 source keys at page size 2 means three listing calls
	if src.ListCalls != 3 {
		t.Fatalf("ListCalls=%d want 3", src.ListCalls)
	}
	if res.Items != 4 {
		t.Fatalf("Items=%d want 4 (.txt filtered)", res.Items)
	}
	if !res.CreatedCollection {
		t.Fatalf("expected a freshly created collection")
	}
	if res.CollectionID != "wi-2017" || res.CatalogID != "naip-root" {
		t.Fatalf("identities: %+v", res)
	}
	// root + collection + 4 items
	if res.Published != 6 {
		t.Fatalf("Published=%d want 6", res.Published)
	}

	wantSpatial := []float64{-91, 39, -89, 41}
	if !reflect.DeepEqual(res.Spatial, wantSpatial) {
		t.Fatalf("spatial=%v want %v", res.Spatial, wantSpatial)
	}

	data, err := out.Get(context.Background(), "naip-out", "catalog/catalog.json")
	if err != nil {
		t.Fatalf("published root catalog missing: %v", err)
	}
	catalog, err := stac.ParseCatalog(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(catalog.Links) != 1 || catalog.Links[0].Href != "wi-2017/catalog.json" {
		t.Fatalf("catalog links=%v", catalog.Links)
	}

	data, err = out.Get(context.Background(), "naip-out", "catalog/wi-2017/catalog.json")
	if err != nil {
		t.Fatalf("published collection missing: %v", err)
	}
	collection, err := stac.ParseCollection(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(collection.Extent.Spatial, wantSpatial) {
		t.Fatalf("collection spatial=%v", collection.Extent.Spatial)
	}
	tmp := collection.Extent.Temporal
	if len(tmp) != 2 || tmp[0] == nil || *tmp[0] != "2019-06-15T00:00:00Z" || *tmp[1] != "2019-06-15T00:00:00Z" {
		t.Fatalf("collection temporal=%v", tmp)
	}
	if len(collection.ItemLinks()) != 4 {
		t.Fatalf("item links=%v", collection.ItemLinks())
	}

	if _, err := out.Get(context.Background(), "naip-out", "catalog/wi-2017/d4.json"); err != nil {
		t.Fatalf("published item missing: %v", err)
	}
}

func TestRun_SecondRunExtendsWithoutDuplicating(t *testing.T) {
	src := newSource()
	out := objstore.NewMem()

	p1 := newPipeline(t, testConfig(t, "2019-06-15T00:00:00Z"), src, out, stubGate{})
	if _, err := p1.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	p2 := newPipeline(t, testConfig(t, "2020-01-01T00:00:00Z"), src, out, stubGate{})
	res, err := p2.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.CreatedCollection {
		t.Fatalf("second run must load the stored collection")
	}

	data, err := out.Get(context.Background(), "naip-out", "catalog/catalog.json")
	if err != nil {
		t.Fatal(err)
	}
	catalog, err := stac.ParseCatalog(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(catalog.Links) != 1 {
		t.Fatalf("child link duplicated: %v", catalog.Links)
	}

	data, err = out.Get(context.Background(), "naip-out", "catalog/wi-2017/catalog.json")
	if err != nil {
		t.Fatal(err)
	}
	collection, err := stac.ParseCollection(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(collection.ItemLinks()) != 4 {
		t.Fatalf("item links duplicated: %v", collection.ItemLinks())
	}
	if !reflect.DeepEqual(collection.Extent.Spatial, []float64{-91, 39, -89, 41}) {
		t.Fatalf("spatial shrank: %v", collection.Extent.Spatial)
	}
	tmp := collection.Extent.Temporal
	if *tmp[0] != "2019-06-15T00:00:00Z" || *tmp[1] != "2020-01-01T00:00:00Z" {
		t.Fatalf("temporal=%v want earliest kept, latest extended", []string{*tmp[0], *tmp[1]})
	}
}

func TestRun_ConversionRouting(t *testing.T) {
	src := newSource()
	out := objstore.NewMem()
	cfg := testConfig(t, "2019-06-15T00:00:00Z")

	gate := stubGate{pinned: map[string]cog.Resolution{
		"wi/2017/a1_x.tif": {Href: "s3://naip-out/wi-2017/a1_x_COG.TIF", State: cog.StatePublished},
		"wi/2017/b2_x.tif": {Href: cfg.AssetURL("wi/2017/b2_x.tif"), State: cog.StateConversionFailed},
	}}
	p := newPipeline(t, cfg, src, out, gate)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Converted != 1 || res.ConversionFailed != 1 {
		t.Fatalf("converted=%d failed=%d want 1/1", res.Converted, res.ConversionFailed)
	}

	data, err := out.Get(context.Background(), "naip-out", "catalog/wi-2017/a1.json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "s3://naip-out/wi-2017/a1_x_COG.TIF") {
		t.Fatalf("converted href not cataloged: %s", data)
	}

	// the asset that could not be converted is still cataloged with its
	// original URL
	data, err = out.Get(context.Background(), "naip-out", "catalog/wi-2017/b2.json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), cfg.AssetURL("wi/2017/b2_x.tif")) {
		t.Fatalf("original href not kept: %s", data)
	}
}

func TestRun_FootprintAndProjection(t *testing.T) {
	src := newSource()
	out := objstore.NewMem()
	p := newPipeline(t, testConfig(t, "2019-06-15T00:00:00Z"), src, out, stubGate{})

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := out.Get(context.Background(), "naip-out", "catalog/wi-2017/d4.json")
	if err != nil {
		t.Fatal(err)
	}
	doc := string(data)
	if !strings.Contains(doc, `"footprint_id": "4007746_ne"`) {
		t.Fatalf("footprint id missing: %s", doc)
	}
	// native UTM bounds went through the reprojector
	if !strings.Contains(doc, "-90.2") || !strings.Contains(doc, "40.2") {
		t.Fatalf("reprojected bounds missing: %s", doc)
	}
	if !strings.Contains(doc, `"eo:epsg": 26916`) {
		t.Fatalf("native epsg missing: %s", doc)
	}
}

func TestRun_MissingSidecarAbortsRun(t *testing.T) {
	src := newSource()
	out := objstore.NewMem()
	cfg := testConfig(t, "2019-06-15T00:00:00Z")
	// no .txt sidecars exist for the listed rasters
	cfg.SidecarRule = "NAIP_FGDC_FUNCTION"
	p := newPipeline(t, cfg, src, out, stubGate{})
	p.Enricher = &fgdc.Enricher{
		Store:   src,
		Bucket:  cfg.BucketName,
		Rule:    cfg.SidecarRule,
		Tool:    fgdc.NewMPTool(),
		WorkDir: t.TempDir(),
		Log:     zerolog.Nop(),
	}

	_, err := p.Run(context.Background())
	if err == nil {
		t.Fatalf("expected an unfetchable sidecar to abort the run")
	}
	if !strings.Contains(err.Error(), "sidecar") {
		t.Fatalf("error does not name the sidecar: %v", err)
	}
}

func TestRun_NoMatchingAssets(t *testing.T) {
	src := objstore.NewMem()
	src.PutBytes("naip-src", "wi/2017/readme.txt", []byte("notes"))
	out := objstore.NewMem()
	p := newPipeline(t, testConfig(t, ""), src, out, stubGate{})

	_, err := p.Run(context.Background())
	if err == nil {
		t.Fatalf("expected an empty filtered listing to fail the run")
	}
	if !strings.Contains(err.Error(), "no assets matching") {
		t.Fatalf("error not descriptive: %v", err)
	}
	if len(out.Objects) != 0 {
		t.Fatalf("documents published despite empty listing: %v", out.Objects)
	}
}

func TestRun_ListFailurePropagates(t *testing.T) {
	src := newSource()
	src.ForceNextMarker = true
	out := objstore.NewMem()
	p := newPipeline(t, testConfig(t, ""), src, out, stubGate{})

	if _, err := p.Run(context.Background()); err == nil {
		t.Fatalf("expected listing contract violation to fail the run")
	}
}
