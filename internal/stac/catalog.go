package stac

import (
	"encoding/json"
	"fmt"
)

// Catalog is the root document linking to child collections.
type Catalog struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	StacVersion string `json:"stac_version,omitempty"`
	Links       []Link `json:"links"`
}

func NewCatalog(id, description, stacVersion string) *Catalog {
	return &Catalog{ID: id, Description: description, StacVersion: stacVersion, Links: []Link{}}
}

// HasChild reports whether the catalog already links the given href.
func (c *Catalog) HasChild(href string) bool {
	for _, l := range c.Links {
		if l.Rel == "child" && l.Href == href {
			return true
		}
	}
	return false
}

// AddChild links a child collection exactly once. Linking an href that is
// already present is a no-op so re-runs never duplicate links.
func (c *Catalog) AddChild(href string) {
	if c.HasChild(href) {
		return
	}
	c.Links = append(c.Links, Link{Rel: "child", Href: href})
}

// ParseCatalog decodes a stored root catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if c.ID == "" {
		return nil, fmt.Errorf("catalog document has no id")
	}
	return &c, nil
}

func (c *Catalog) MarshalIndent() ([]byte, error) {
	if c.Links == nil {
		c.Links = []Link{}
	}
	return json.MarshalIndent(c, "", "  ")
}
