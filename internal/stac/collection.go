package stac

import (
	"encoding/json"
	"fmt"
	"time"
)

type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// Collection holds configuration-supplied metadata verbatim plus the two
// managed members: the aggregate extent and the link list. The metadata
// map is a copy owned by the collection; configuration is never written
// back to.
type Collection struct {
	Metadata map[string]any
	Extent   Extent
	Links    []Link
}

// Extent is the collection-level summary of all items.
type Extent struct {
	Spatial  []float64 `json:"spatial"`
	Temporal []*string `json:"temporal"`
}

// NewCollection copies the configured metadata into a fresh collection.
func NewCollection(metadata map[string]any) *Collection {
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if k == "extent" || k == "links" {
			continue
		}
		meta[k] = v
	}
	return &Collection{Metadata: meta}
}

func (c *Collection) ID() string {
	if id, ok := c.Metadata["id"].(string); ok {
		return id
	}
	return ""
}

func (c *Collection) StacVersion() string {
	if v, ok := c.Metadata["stac_version"].(string); ok {
		return v
	}
	return ""
}

// SetExtent overwrites the collection extent with accumulated values.
func (c *Collection) SetExtent(sp SpatialExtent, tmp TemporalExtent) {
	c.Extent = Extent{Spatial: sp.Slice(), Temporal: tmp.Slice()}
}

// AddItemLink appends a link to an item document, href relative to the
// collection directory.
func (c *Collection) AddItemLink(href string) {
	c.Links = append(c.Links, Link{Rel: "item", Href: href})
}

func (c *Collection) ItemLinks() []Link {
	var out []Link
	for _, l := range c.Links {
		if l.Rel == "item" {
			out = append(out, l)
		}
	}
	return out
}

// persistedSpatial reads a previously stored spatial extent; ok is false
// when none was stored or the stored shape is not a 4-tuple.
func (c *Collection) persistedSpatial() (SpatialExtent, bool) {
	if len(c.Extent.Spatial) != 4 {
		return SpatialExtent{}, false
	}
	s := c.Extent.Spatial
	return SpatialExtent{Left: s[0], Bottom: s[1], Right: s[2], Top: s[3]}, true
}

func (c *Collection) persistedTemporal() (earliest, latest *time.Time, ok bool) {
	if len(c.Extent.Temporal) != 2 {
		return nil, nil, false
	}
	parse := func(s *string) (*time.Time, bool) {
		if s == nil {
			return nil, true
		}
		t, err := ParseTime(*s)
		if err != nil {
			return nil, false
		}
		return &t, true
	}
	e, okE := parse(c.Extent.Temporal[0])
	l, okL := parse(c.Extent.Temporal[1])
	if !okE || !okL {
		return nil, nil, false
	}
	return e, l, true
}

// MarshalJSON renders the configured metadata with the managed extent and
// links members folded in.
func (c *Collection) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Metadata)+2)
	for k, v := range c.Metadata {
		out[k] = v
	}
	out["extent"] = c.Extent
	if c.Links == nil {
		out["links"] = []Link{}
	} else {
		out["links"] = c.Links
	}
	return json.Marshal(out)
}

func (c *Collection) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse collection: %w", err)
	}

	*c = Collection{Metadata: map[string]any{}}
	for k, v := range raw {
		switch k {
		case "extent":
			if err := json.Unmarshal(v, &c.Extent); err != nil {
				return fmt.Errorf("parse collection extent: %w", err)
			}
		case "links":
			if err := json.Unmarshal(v, &c.Links); err != nil {
				return fmt.Errorf("parse collection links: %w", err)
			}
		default:
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("parse collection field %q: %w", k, err)
			}
			c.Metadata[k] = val
		}
	}

	if c.ID() == "" {
		return fmt.Errorf("collection document has no id")
	}
	return nil
}

// ParseCollection decodes a stored collection document.
func ParseCollection(data []byte) (*Collection, error) {
	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
