// Package pipeline drives one catalog-generation run: list the source
// bucket, gate every asset through format validation, build items,
// accumulate the collection extent, persist the document tree locally,
// lint it, publish it, and lint the published copies.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/stac-tools/stacgen/internal/cog"
	"github.com/stac-tools/stacgen/internal/config"
	"github.com/stac-tools/stacgen/internal/fgdc"
	"github.com/stac-tools/stacgen/internal/keyrules"
	"github.com/stac-tools/stacgen/internal/lint"
	"github.com/stac-tools/stacgen/internal/logger"
	"github.com/stac-tools/stacgen/internal/objstore"
	"github.com/stac-tools/stacgen/internal/observability"
	"github.com/stac-tools/stacgen/internal/raster"
	"github.com/stac-tools/stacgen/internal/stac"
)

// Resolver decides the published URL and format state of one asset.
type Resolver interface {
	Resolve(ctx context.Context, key, url string) (cog.Resolution, error)
}

// Pipeline wires the run's collaborators. Config is read-only; every
// run-level outcome is reported through Result.
type Pipeline struct {
	Cfg         config.Config
	Source      objstore.Store
	Output      objstore.Store
	Gate        Resolver
	Reader      raster.MetadataReader
	Reprojector raster.Reprojector
	Enricher    *fgdc.Enricher
	Linter      lint.Linter
	Log         zerolog.Logger
}

// Result summarizes one run.
type Result struct {
	CatalogID         string
	CollectionID      string
	CreatedCollection bool
	Items             int
	Converted         int
	ConversionFailed  int
	Published         int
	Spatial           []float64
	Temporal          []*string
	LocalDir          string
}

func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	cfg := p.Cfg

	keys, err := objstore.ListKeys(ctx, p.Source, cfg.BucketName, cfg.BucketPrefix)
	if err != nil {
		return Result{}, err
	}
	keys = filterSuffix(keys, cfg.COGSuffix)
	if len(keys) == 0 {
		return Result{}, fmt.Errorf("no assets matching COG_SUFFIX %q under %s/%s", cfg.COGSuffix, cfg.BucketName, cfg.BucketPrefix)
	}
	p.Log.Info().Int("assets", len(keys)).Msg("source listing complete")

	collection, created, err := p.openCollection(ctx)
	if err != nil {
		return Result{}, err
	}
	catalog, err := p.openCatalog(ctx, collection.StacVersion())
	if err != nil {
		return Result{}, err
	}

	acc := stac.SeededAccumulator(collection)
	res := Result{
		CatalogID:         catalog.ID,
		CollectionID:      collection.ID(),
		CreatedCollection: created,
	}

	var items []*stac.Item
	for _, key := range keys {
		item, state, err := p.buildItem(ctx, key, collection.ID(), acc)
		if err != nil {
			return Result{}, fmt.Errorf("asset %s: %w", key, err)
		}
		switch state {
		case cog.StatePublished:
			res.Converted++
		case cog.StateConversionFailed:
			res.ConversionFailed++
		}
		items = append(items, item)
	}
	res.Items = len(items)

	collection.SetExtent(acc.Spatial, acc.Temporal)
	p.linkItems(collection, items)
	// only a freshly created collection gets linked; a stored catalog
	// already carries the child link
	if created {
		catalog.AddChild(collection.ID() + "/catalog.json")
	}

	localRoot := filepath.Join(cfg.WorkDir, "stac")
	if err := p.persist(localRoot, catalog, collection, items); err != nil {
		return Result{}, err
	}
	res.LocalDir = localRoot
	res.Spatial = acc.Spatial.Slice()
	res.Temporal = acc.Temporal.Slice()

	if !cfg.DisableSTACLint {
		if err := lint.LintTree(localRoot, p.Linter); err != nil {
			return Result{}, fmt.Errorf("local lint: %w", err)
		}
	}

	published, err := p.publish(ctx, localRoot)
	if err != nil {
		return Result{}, err
	}
	res.Published = published

	if !cfg.DisableSTACLint {
		if err := p.lintRemote(ctx); err != nil {
			return Result{}, fmt.Errorf("remote lint: %w", err)
		}
	}

	p.Log.Info().
		Int("items", res.Items).
		Int("converted", res.Converted).
		Int("published", res.Published).
		Msg("run complete")
	return res, nil
}

// openCollection loads the collection document from the output bucket, or
// starts a fresh one from the configured metadata when none is stored.
func (p *Pipeline) openCollection(ctx context.Context) (*stac.Collection, bool, error) {
	key := p.remoteKey(p.Cfg.CollectionID(), "catalog.json")
	data, err := p.Output.Get(ctx, p.Cfg.OutputBucketName, key)
	switch {
	case err == nil:
		c, err := stac.ParseCollection(data)
		if err != nil {
			return nil, false, fmt.Errorf("stored collection %s: %w", key, err)
		}
		return c, false, nil
	case isNotFound(err):
		p.Log.Info().Str("collection", p.Cfg.CollectionID()).Msg("no stored collection, creating")
		return stac.NewCollection(p.Cfg.CollectionMetadata), true, nil
	default:
		return nil, false, fmt.Errorf("load collection %s: %w", key, err)
	}
}

func (p *Pipeline) openCatalog(ctx context.Context, stacVersion string) (*stac.Catalog, error) {
	key := p.remoteKey("catalog.json")
	data, err := p.Output.Get(ctx, p.Cfg.OutputBucketName, key)
	switch {
	case err == nil:
		c, err := stac.ParseCatalog(data)
		if err != nil {
			return nil, fmt.Errorf("stored catalog %s: %w", key, err)
		}
		return c, nil
	case isNotFound(err):
		p.Log.Info().Str("catalog", p.Cfg.CatalogID).Msg("no stored catalog, creating")
		return stac.NewCatalog(p.Cfg.CatalogID, p.Cfg.CatalogDescription, stacVersion), nil
	default:
		return nil, fmt.Errorf("load catalog %s: %w", key, err)
	}
}

func (p *Pipeline) buildItem(ctx context.Context, key, collectionID string, acc *stac.Accumulator) (*stac.Item, cog.State, error) {
	ctx = logger.WithAsset(ctx, key)
	log := *logger.FromContext(ctx, &p.Log)

	resolution, err := p.Gate.Resolve(ctx, key, p.Cfg.AssetURL(key))
	if err != nil {
		return nil, cog.StateUnchecked, err
	}

	info, err := p.Reader.Read(ctx, resolution.Href)
	if err != nil {
		return nil, resolution.State, fmt.Errorf("read raster metadata: %w", err)
	}
	geo := info.Bounds
	if info.EPSG == nil || *info.EPSG != 4326 {
		geo, err = p.Reprojector.ToGeographic(ctx, info.CRS, info.Bounds)
		if err != nil {
			return nil, resolution.State, fmt.Errorf("reproject bounds: %w", err)
		}
	}
	bounds := stac.SpatialExtent{Left: geo.Left, Bottom: geo.Bottom, Right: geo.Right, Top: geo.Top}

	itemID, err := p.Cfg.ImageIDRule.Apply(key)
	if err != nil {
		return nil, resolution.State, err
	}

	collectionProp := collectionID
	if p.Cfg.ItemCollectionProperty != "" {
		collectionProp = p.Cfg.ItemCollectionProperty
	}
	item := stac.NewItem(itemID, resolution.Href, bounds, info.EPSG, p.configuredTimestamp(), collectionProp)

	if re := p.Cfg.FootprintRegex(); re != nil {
		if fp, ok := keyrules.FootprintID(re, key); ok {
			item.Properties.FootprintID = fp
		} else {
			log.Warn().Str("regex", re.String()).Msg("no footprint id in key, omitting")
		}
	}

	if p.Enricher != nil && p.Enricher.Enabled() {
		// only individual field extraction is tolerant; a sidecar that
		// cannot be fetched or converted aborts the run
		if err := p.Enricher.Enrich(ctx, key, item); err != nil {
			return nil, resolution.State, err
		}
	}

	acc.Spatial.Include(bounds)
	if err := acc.Temporal.ObserveValue(item.Properties.Datetime); err != nil {
		return nil, resolution.State, err
	}

	log.Debug().Str("item", itemID).Str("state", resolution.State.String()).Msg("item built")
	return item, resolution.State, nil
}

func (p *Pipeline) configuredTimestamp() *string {
	if p.Cfg.ItemTimestamp == "" {
		return nil
	}
	if t, err := stac.ParseTime(p.Cfg.ItemTimestamp); err == nil {
		s := t.Format(stac.TimeLayout)
		return &s
	}
	s := p.Cfg.ItemTimestamp
	return &s
}

// linkItems adds item links for documents the collection does not link
// yet, so re-runs over the same listing never duplicate links.
func (p *Pipeline) linkItems(c *stac.Collection, items []*stac.Item) {
	existing := map[string]bool{}
	for _, l := range c.ItemLinks() {
		existing[l.Href] = true
	}
	for _, item := range items {
		href := item.ID + ".json"
		if !existing[href] {
			c.AddItemLink(href)
			existing[href] = true
		}
	}
}

// persist writes the document tree under localRoot, catalog before
// collection before items.
func (p *Pipeline) persist(localRoot string, catalog *stac.Catalog, collection *stac.Collection, items []*stac.Item) error {
	data, err := catalog.MarshalIndent()
	if err != nil {
		return err
	}
	if err := writeDoc(filepath.Join(localRoot, "catalog.json"), data); err != nil {
		return err
	}

	data, err = json.MarshalIndent(collection, "", "  ")
	if err != nil {
		return err
	}
	collDir := filepath.Join(localRoot, filepath.FromSlash(collection.ID()))
	if err := writeDoc(filepath.Join(collDir, "catalog.json"), data); err != nil {
		return err
	}

	for _, item := range items {
		data, err := json.MarshalIndent(item, "", "  ")
		if err != nil {
			return err
		}
		itemPath := filepath.Join(collDir, filepath.FromSlash(item.ID)+".json")
		if err := writeDoc(itemPath, data); err != nil {
			return err
		}
	}
	return nil
}

// publish uploads every *.json under localRoot to the output bucket with
// its tree-relative key under ROOT_CATALOG_DIR.
func (p *Pipeline) publish(ctx context.Context, localRoot string) (int, error) {
	count := 0
	err := filepath.WalkDir(localRoot, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(fp, ".json") {
			return nil
		}
		rel, err := filepath.Rel(localRoot, fp)
		if err != nil {
			return err
		}
		key := p.remoteKey(filepath.ToSlash(rel))
		if err := p.Output.Upload(ctx, p.Cfg.OutputBucketName, key, fp, "application/json"); err != nil {
			return fmt.Errorf("publish %s: %w", key, err)
		}
		observability.ObserveDocumentPublished()
		count++
		return nil
	})
	return count, err
}

// lintRemote walks the published tree through its links, root catalog to
// collections to items, and reports every failing document.
func (p *Pipeline) lintRemote(ctx context.Context) error {
	var result *multierror.Error

	lintDoc := func(key string) ([]byte, error) {
		data, err := p.Output.Get(ctx, p.Cfg.OutputBucketName, key)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", key, err)
		}
		if err := p.Linter.Lint(data); err != nil {
			observability.ObserveLintFailure()
			result = multierror.Append(result, fmt.Errorf("%s: %w", key, err))
		}
		return data, nil
	}

	rootKey := p.remoteKey("catalog.json")
	data, err := lintDoc(rootKey)
	if err != nil {
		return err
	}
	catalog, err := stac.ParseCatalog(data)
	if err != nil {
		return err
	}

	for _, child := range catalog.Links {
		if child.Rel != "child" {
			continue
		}
		data, err := lintDoc(p.remoteKey(child.Href))
		if err != nil {
			return err
		}
		collection, err := stac.ParseCollection(data)
		if err != nil {
			return err
		}
		collDir := path.Dir(child.Href)
		for _, item := range collection.ItemLinks() {
			if _, err := lintDoc(p.remoteKey(collDir, item.Href)); err != nil {
				return err
			}
		}
	}
	return result.ErrorOrNil()
}

// remoteKey joins path elements under ROOT_CATALOG_DIR.
func (p *Pipeline) remoteKey(elem ...string) string {
	parts := append([]string{strings.Trim(p.Cfg.RootCatalogDir, "/")}, elem...)
	return path.Join(parts...)
}

func filterSuffix(keys []string, suffix string) []string {
	if suffix == "" {
		return keys
	}
	var out []string
	for _, k := range keys {
		if strings.HasSuffix(k, suffix) {
			out = append(out, k)
		}
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, objstore.ErrNotFound)
}

func writeDoc(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
