package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/oan-rionegro/matchup/catalog"
	"github.com/oan-rionegro/matchup/catalog/entities"
	"github.com/oan-rionegro/matchup/downloader"
	"github.com/oan-rionegro/matchup/interface/catalog/sentinelhub"
	"github.com/oan-rionegro/matchup/interface/provider"
	"github.com/oan-rionegro/matchup/organizer"
	"github.com/oan-rionegro/matchup/service"
	"github.com/oan-rionegro/matchup/service/log"
)

type config struct {
	Mode string

	// Organizer
	StationsDir    string
	StationsCSV    string
	StationsCoords string
	Stations       string
	Campaigns      string
	CampaignsOut   string

	// Catalog
	CSV         string
	GeoJSON     string
	CatalogJSON string
	TimeDelta   int
	CloudCover  float64
	PointBuffer float64

	// Downloader
	OutputDir   string
	WorkingDir  string
	OnlyFirst   bool
	DownloadSCL bool

	Debug bool
}

type credentials struct {
	SHClientID     string `env:"SH_CLIENT_ID"`
	SHClientSecret string `env:"SH_CLIENT_SECRET"`
	S3AccessKey    string `env:"CDSE_S3_ACCESS_KEY"`
	S3SecretKey    string `env:"CDSE_S3_SECRET_KEY"`
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Mode, "mode", "", "one of organize, campaigns, catalog, download, all")

	// Organizer
	flag.StringVar(&config.StationsDir, "stations-dir", "", "directory with the automatic-station xlsx exports (Descarga*.xlsx)")
	flag.StringVar(&config.StationsCSV, "stations-csv", "", "output path of the concatenated station measurements")
	flag.StringVar(&config.StationsCoords, "stations-coords", "", "json file with the station coordinates")
	flag.StringVar(&config.Stations, "stations", "", "stations table (xlsx or csv) for the campaigns join")
	flag.StringVar(&config.Campaigns, "campaigns", "", "campaigns table (xlsx or csv)")
	flag.StringVar(&config.CampaignsOut, "campaigns-out", "campaigns_organized.csv", "output path of the organized campaigns")

	// Catalog
	flag.StringVar(&config.CSV, "csv", "", "input table: ';'-separated with date, longitud and latitud columns, or a ','-separated date column with -geojson")
	flag.StringVar(&config.GeoJSON, "geojson", "", "geojson file with the area of interest (optional, replaces the per-point search boxes)")
	flag.StringVar(&config.CatalogJSON, "catalog-json", "catalog.json", "path of the image catalog")
	flag.IntVar(&config.TimeDelta, "time-delta", 1, "days around each field date")
	flag.Float64Var(&config.CloudCover, "cloud-cover", 30, "strict cloud cover upper bound (percent)")
	flag.Float64Var(&config.PointBuffer, "point-buffer", entities.DefaultPointBuffer, "half-size of the search box around each sampling point (degrees)")

	// Downloader
	flag.StringVar(&config.OutputDir, "output", "images", "directory where the products are downloaded")
	flag.StringVar(&config.WorkingDir, "workdir", "/tmp", "working directory to store intermediate results")
	flag.BoolVar(&config.OnlyFirst, "only-first", false, "download only the closest image of each field date")
	flag.BoolVar(&config.DownloadSCL, "download-scl", true, "download the scene-classification band of each image")

	flag.BoolVar(&config.Debug, "debug", false, "debug logs")

	flag.Parse()

	if config.Mode == "" {
		return nil, fmt.Errorf("missing mode config flag")
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}
	if config.Debug {
		log.SetDebug()
	}

	creds := credentials{}
	if err := env.Parse(&creds); err != nil {
		return fmt.Errorf("env.Parse: %w", err)
	}

	for _, mode := range strings.Split(config.Mode, ",") {
		switch mode {
		case "organize":
			err = runOrganize(ctx, config)
		case "campaigns":
			err = runCampaigns(ctx, config)
		case "catalog":
			err = runCatalog(ctx, config, creds)
		case "download":
			err = runDownload(ctx, config, creds)
		case "all":
			if err = runCatalog(ctx, config, creds); err == nil {
				err = runDownload(ctx, config, creds)
			}
		default:
			err = fmt.Errorf("unknown mode: %s", mode)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func runOrganize(ctx context.Context, config *config) error {
	if config.StationsDir == "" || config.StationsCSV == "" {
		return fmt.Errorf("organize: missing stations-dir or stations-csv config flag")
	}
	coords := map[string]organizer.StationCoord{}
	if config.StationsCoords != "" {
		var err error
		if coords, err = organizer.LoadStationCoords(config.StationsCoords); err != nil {
			return fmt.Errorf("organize: %w", err)
		}
	}
	return organizer.BuildFinalCSV(ctx, config.StationsDir, config.StationsCSV, coords)
}

func runCampaigns(ctx context.Context, config *config) error {
	if config.Stations == "" || config.Campaigns == "" {
		return fmt.Errorf("campaigns: missing stations or campaigns config flag")
	}
	return organizer.OrganizeCampaigns(ctx, config.Stations, config.Campaigns, config.CampaignsOut)
}

func runCatalog(ctx context.Context, config *config, creds credentials) error {
	if creds.SHClientID == "" {
		return fmt.Errorf("catalog: missing SH_CLIENT_ID/SH_CLIENT_SECRET environment variables")
	}
	c := catalog.Catalog{
		Provider:    sentinelhub.NewProvider(ctx, creds.SHClientID, creds.SHClientSecret),
		TimeDelta:   config.TimeDelta,
		CloudCover:  config.CloudCover,
		PointBuffer: config.PointBuffer,
	}

	if config.CSV == "" {
		return fmt.Errorf("catalog: missing csv config flag")
	}

	if config.GeoJSON != "" {
		extent, err := service.LoadAreaExtent(config.GeoJSON)
		if err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		dates, err := catalog.ReadDates(config.CSV)
		if err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		return c.BuildCatalogForArea(ctx, dates, entities.BBoxFromExtent(extent), config.CatalogJSON)
	}

	observations, err := catalog.ReadObservations(config.CSV)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return c.BuildCatalog(ctx, observations, config.CatalogJSON)
}

func runDownload(ctx context.Context, config *config, creds credentials) error {
	// Load image providers
	var imageProviders []provider.ImageProvider
	var providerNames []string
	if creds.S3AccessKey != "" {
		providerNames = append(providerNames, "Eodata")
		imageProviders = append(imageProviders, provider.NewEodataImageProvider(creds.S3AccessKey, creds.S3SecretKey))
	}
	if creds.SHClientID != "" {
		providerNames = append(providerNames, "Copernicus")
		imageProviders = append(imageProviders, provider.NewCopernicusImageProvider(creds.SHClientID, creds.SHClientSecret, config.WorkingDir))
	}
	if len(imageProviders) == 0 {
		return fmt.Errorf("download: no image providers defined (set CDSE_S3_ACCESS_KEY/CDSE_S3_SECRET_KEY or SH_CLIENT_ID/SH_CLIENT_SECRET)")
	}

	fetcher := &provider.HTTPAssetFetcher{}
	if creds.SHClientID != "" {
		cfg := clientcredentials.Config{
			ClientID:     creds.SHClientID,
			ClientSecret: creds.SHClientSecret,
			TokenURL:     sentinelhub.TokenURL,
		}
		fetcher.Client = cfg.Client(ctx)
	}

	reconciler := downloader.Reconciler{
		Providers:   imageProviders,
		SCLFetcher:  fetcher,
		OnlyFirst:   config.OnlyFirst,
		DownloadSCL: config.DownloadSCL,
	}
	log.Logger(ctx).Debug("downloader starts, downloading images from " + strings.Join(providerNames, ", ") + " to " + config.OutputDir)
	_, err := reconciler.Run(ctx, config.CatalogJSON, config.OutputDir)
	return err
}
