package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/stac-tools/stacgen/internal/cog"
	"github.com/stac-tools/stacgen/internal/config"
	"github.com/stac-tools/stacgen/internal/fgdc"
	"github.com/stac-tools/stacgen/internal/lint"
	"github.com/stac-tools/stacgen/internal/logger"
	"github.com/stac-tools/stacgen/internal/objstore"
	"github.com/stac-tools/stacgen/internal/observability"
	"github.com/stac-tools/stacgen/internal/pipeline"
	"github.com/stac-tools/stacgen/internal/raster"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.json", "catalog config document")
	workDir := flag.String("workdir", "", "scratch directory override")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *workDir != "" {
		cfg.WorkDir = *workDir
	}

	log := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "stacgen",
	}, os.Stdout)

	observability.ExposeBuildInfo(Version)
	log.Info().
		Str("version", Version).
		Str("bucket", cfg.BucketName).
		Str("prefix", cfg.BucketPrefix).
		Str("collection", cfg.CollectionID()).
		Msg("starting catalog run")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithRunID(ctx, logger.NewID())

	if cfg.MetricsEnabled {
		go serveMetrics(cfg.MetricsAddr, log)
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		log.Error().Err(err).Str("dir", cfg.WorkDir).Msg("cannot create work dir")
		return 1
	}

	// custom endpoints (local stacks) are assumed plain http
	useSSL := cfg.S3Endpoint == ""
	source, err := objstore.NewMinio(objstore.MinioConfig{
		Endpoint:      cfg.S3EndpointHost(),
		Region:        cfg.BucketRegion,
		UseSSL:        useSSL,
		RequesterPays: cfg.RequesterPays,
	})
	if err != nil {
		log.Error().Err(err).Msg("source store setup failed")
		return 1
	}
	output, err := objstore.NewMinio(objstore.MinioConfig{
		Endpoint: endpointFor(cfg.S3Endpoint, cfg.OutputBucketRegion),
		Region:   cfg.OutputBucketRegion,
		UseSSL:   useSSL,
	})
	if err != nil {
		log.Error().Err(err).Msg("output store setup failed")
		return 1
	}

	linter, err := lint.NewSchemaLinter(cfg.SchemaDir)
	if err != nil {
		log.Error().Err(err).Msg("schema setup failed")
		return 1
	}

	rio := cog.NewRioCogeo()
	gate := &cog.Gatekeeper{
		Validator:       rio,
		Converter:       rio,
		Store:           source,
		Output:          output,
		AllowConversion: cfg.AllowCOGConversion,
		SourceBucket:    cfg.BucketName,
		OutputBucket:    cfg.OutputBucketName,
		CollectionID:    cfg.CollectionID(),
		WorkDir:         cfg.WorkDir,
		Log:             log,
	}

	var enricher *fgdc.Enricher
	if cfg.SidecarRule.Enabled() {
		enricher = &fgdc.Enricher{
			Store:   source,
			Bucket:  cfg.BucketName,
			Rule:    cfg.SidecarRule,
			Tool:    fgdc.NewMPTool(),
			WorkDir: cfg.WorkDir,
			Log:     log,
		}
	}

	gdal := raster.NewGDALTool()
	p := &pipeline.Pipeline{
		Cfg:         cfg,
		Source:      source,
		Output:      output,
		Gate:        gate,
		Reader:      gdal,
		Reprojector: gdal,
		Enricher:    enricher,
		Linter:      linter,
		Log:         log,
	}

	res, err := p.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("catalog run failed")
		return 1
	}

	log.Info().
		Str("catalog", res.CatalogID).
		Str("collection", res.CollectionID).
		Bool("created_collection", res.CreatedCollection).
		Int("items", res.Items).
		Int("converted", res.Converted).
		Int("conversion_failed", res.ConversionFailed).
		Int("published", res.Published).
		Msg("catalog published")
	return 0
}

func endpointFor(override, region string) string {
	if override != "" {
		return override
	}
	if region == "" {
		region = "us-east-1"
	}
	return "s3." + region + ".amazonaws.com"
}

func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("addr", addr).Msg("metrics listener up")
	if err := srv.ListenAndServe(); err != nil {
		log.Error().Err(err).Msg("metrics listener stopped")
	}
}
