// Package config loads and validates the catalog-generation configuration.
// The document keys mirror the tool's JSON config file; ambient settings
// (logging, metrics, endpoints) come from the environment. Named
// derivation rules are resolved here so an unknown rule name fails the run
// before any storage call is made.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/stac-tools/stacgen/internal/keyrules"
)

type Config struct {
	BucketName    string `json:"BUCKET_NAME"`
	BucketPrefix  string `json:"BUCKET_PREFIX"`
	BucketRegion  string `json:"BUCKET_REGION"`
	BucketBaseURL string `json:"BUCKET_BASE_URL"`

	COGSuffix     string `json:"COG_SUFFIX"`
	RequesterPays bool   `json:"REQUESTER_PAYS"`

	ImageIDRule keyrules.ImageIDRule `json:"S3_KEY_TO_IMAGE_ID"`
	SidecarRule keyrules.SidecarRule `json:"S3_KEY_TO_FGDC_S3_KEY"`

	AllowCOGConversion bool   `json:"ALLOW_COG_CONVERSION"`
	FilenameRegex      string `json:"FILENAME_REGEX"`

	ItemTimestamp          string `json:"ITEM_TIMESTAMP"`
	ItemCollectionProperty string `json:"ITEM_COLLECTION_PROPERTY"`

	CatalogID          string         `json:"CATALOG_ID"`
	CatalogDescription string         `json:"CATALOG_DESCRIPTION"`
	CollectionMetadata map[string]any `json:"COLLECTION_METADATA"`

	OutputBucketName    string `json:"OUTPUT_BUCKET_NAME"`
	OutputBucketRegion  string `json:"OUTPUT_BUCKET_REGION"`
	OutputBucketBaseURL string `json:"OUTPUT_BUCKET_BASE_URL"`
	RootCatalogDir      string `json:"ROOT_CATALOG_DIR"`

	DisableSTACLint bool `json:"DISABLE_STAC_LINT"`

	// Ambient settings, environment only.
	LogLevel       string `json:"-"`
	LogConsole     bool   `json:"-"`
	MetricsEnabled bool   `json:"-"`
	MetricsAddr    string `json:"-"`
	WorkDir        string `json:"-"`
	S3Endpoint     string `json:"-"`
	SchemaDir      string `json:"-"`

	// compiled footprint regex, nil when FILENAME_REGEX is unset
	footprintRe *regexp.Regexp
}

// Load reads the JSON config document, overlays ambient environment
// settings, and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getenv("LOG_LEVEL", "info")
	c.LogConsole = getbool("LOG_CONSOLE", false)
	c.MetricsEnabled = getbool("METRICS_ENABLED", false)
	c.MetricsAddr = getenv("METRICS_ADDR", ":9090")
	c.WorkDir = getenv("WORK_DIR", "/work")
	c.S3Endpoint = getenv("S3_ENDPOINT", "")
	c.SchemaDir = getenv("STAC_SCHEMA_DIR", "")
}

// Validate applies defaults and rejects bad rule names and regexes.
// Identity defaulting follows the tool's historical behavior: generated
// UUIDs for a missing catalog id or collection id.
func (c *Config) Validate() error {
	if c.BucketName == "" {
		return fmt.Errorf("BUCKET_NAME is required")
	}
	if c.OutputBucketName == "" {
		return fmt.Errorf("OUTPUT_BUCKET_NAME is required")
	}

	if c.CatalogID == "" {
		c.CatalogID = uuid.NewString()
	}
	if c.CollectionMetadata == nil {
		c.CollectionMetadata = map[string]any{}
	}
	if id, _ := c.CollectionMetadata["id"].(string); id == "" {
		// the collection id doubles as part of the output key path
		c.CollectionMetadata["id"] = uuid.NewString()
	}

	if c.BucketBaseURL == "" {
		c.BucketBaseURL = bucketBaseURL(c.BucketName, c.BucketRegion)
	}
	if c.OutputBucketBaseURL == "" {
		c.OutputBucketBaseURL = bucketBaseURL(c.OutputBucketName, c.OutputBucketRegion)
	}

	if c.ImageIDRule == "" {
		c.ImageIDRule = keyrules.GenericImageID
	}
	if !c.ImageIDRule.Valid() {
		return fmt.Errorf("S3_KEY_TO_IMAGE_ID: unknown rule %q", string(c.ImageIDRule))
	}
	if !c.SidecarRule.Valid() {
		return fmt.Errorf("S3_KEY_TO_FGDC_S3_KEY: unknown rule %q", string(c.SidecarRule))
	}

	if c.FilenameRegex != "" {
		re, err := regexp.Compile(c.FilenameRegex)
		if err != nil {
			return fmt.Errorf("FILENAME_REGEX: %w", err)
		}
		c.footprintRe = re
	}
	return nil
}

// CollectionID returns the (possibly defaulted) collection identity.
func (c *Config) CollectionID() string {
	id, _ := c.CollectionMetadata["id"].(string)
	return id
}

func (c *Config) CollectionStacVersion() string {
	v, _ := c.CollectionMetadata["stac_version"].(string)
	return v
}

// FootprintRegex returns the compiled FILENAME_REGEX, nil when unset.
func (c *Config) FootprintRegex() *regexp.Regexp {
	return c.footprintRe
}

// AssetURL builds the URL an item's visual asset points at. Under
// requester pays the only way to reach the object is the S3 API, so the
// href uses the s3 scheme.
func (c *Config) AssetURL(key string) string {
	if c.RequesterPays {
		return "s3://" + c.BucketName + "/" + key
	}
	return c.BucketBaseURL + key
}

// S3EndpointHost returns the endpoint for the storage client, defaulting
// to the regional AWS host.
func (c *Config) S3EndpointHost() string {
	if c.S3Endpoint != "" {
		return c.S3Endpoint
	}
	region := c.BucketRegion
	if region == "" {
		region = "us-east-1"
	}
	return "s3." + region + ".amazonaws.com"
}

func bucketBaseURL(bucket, region string) string {
	return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/", region, bucket)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}
