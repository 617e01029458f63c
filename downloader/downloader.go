package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/oan-rionegro/matchup/catalog/entities"
	"github.com/oan-rionegro/matchup/common"
	"github.com/oan-rionegro/matchup/interface/provider"
	"github.com/oan-rionegro/matchup/service"
	"github.com/oan-rionegro/matchup/service/log"
)

// ErrCatalogFormat is returned when the catalog file cannot be decoded
type ErrCatalogFormat struct {
	Path string
	Err  error
}

func (e ErrCatalogFormat) Error() string {
	return fmt.Sprintf("catalog format: %s: %v", e.Path, e.Err)
}

func (e ErrCatalogFormat) Unwrap() error {
	return e.Err
}

// LoadCatalog reads a catalog file produced by the catalog builder
func LoadCatalog(path string) ([]entities.CatalogEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadCatalog.ReadFile: %w", err)
	}
	var catalog []entities.CatalogEntry
	if err := json.Unmarshal(b, &catalog); err != nil {
		return nil, ErrCatalogFormat{Path: path, Err: err}
	}
	return catalog, nil
}

// Reconciler downloads the products of a catalog that are not on disk yet.
// Providers are tried in order until one succeeds.
type Reconciler struct {
	Providers   []provider.ImageProvider
	SCLFetcher  provider.AssetFetcher
	OnlyFirst   bool // keep only the closest image of each field date
	DownloadSCL bool
}

// Run reconciles outputDir with the catalog and returns the download counters.
// It is safe to re-run: products already on disk are not downloaded again.
func (r *Reconciler) Run(ctx context.Context, catalogPath, outputDir string) (common.DownloadStats, error) {
	stats := common.DownloadStats{}

	catalog, err := LoadCatalog(catalogPath)
	if err != nil {
		return stats, fmt.Errorf("Run.%w", err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return stats, fmt.Errorf("Run.MkdirAll: %w", err)
	}

	for _, entry := range catalog {
		if len(entry.ImagesFound) == 0 {
			log.Logger(ctx).Sugar().Debugf("no images for field date %s", entry.FieldDate)
			continue
		}
		images := entry.ImagesFound
		if r.OnlyFirst {
			images = images[:1]
		}
		for _, img := range images {
			stats.TotalProcessed++
			ictx := log.With(ctx, "image", img.ID)
			if err := r.processImage(ictx, img, outputDir, &stats); err != nil {
				log.Logger(ictx).Warn("image not fully retrieved", zap.Error(err))
				stats.Errors++
			}
		}
	}

	log.Logger(ctx).Sugar().Infof("download finished: %s", stats.String())
	return stats, nil
}

// processImage retrieves the product bundle and, if requested, its cloud-mask band.
// The two retrievals are decided independently.
func (r *Reconciler) processImage(ctx context.Context, img entities.ImageMatch, outputDir string, stats *common.DownloadStats) error {
	var err error
	if SafePresent(outputDir, img.ID) {
		stats.AlreadyDownloaded++
	} else if err = r.downloadSafe(ctx, img, outputDir); err == nil {
		stats.SafeDownloaded++
	}

	if r.DownloadSCL {
		sclPath := filepath.Join(outputDir, common.SCLFileName(img.ID))
		if info, serr := os.Stat(sclPath); serr == nil && info.Size() > 0 {
			// already there
		} else if img.CloudMaskHref == "" {
			err = service.MergeErrors(true, err, fmt.Errorf("processImage: no cloud mask referenced for %s", img.ID))
		} else if ferr := r.SCLFetcher.Fetch(ctx, img.CloudMaskHref, sclPath); ferr != nil {
			err = service.MergeErrors(true, err, fmt.Errorf("processImage.Fetch: %w", ferr))
		} else {
			stats.SCLDownloaded++
		}
	}
	return err
}

// downloadSafe tries the providers in order, merging their errors
func (r *Reconciler) downloadSafe(ctx context.Context, img entities.ImageMatch, outputDir string) error {
	if len(r.Providers) == 0 {
		return fmt.Errorf("downloadSafe: no image provider configured")
	}
	var err error
	product := provider.Product{ID: img.ID, Href: img.Href}
	for _, p := range r.Providers {
		log.Logger(ctx).Sugar().Debugf("download %s from %s", img.ID, p.Name())
		newErr := p.Download(ctx, product, outputDir)
		if newErr == nil {
			return nil
		}
		err = service.MergeErrors(false, err, fmt.Errorf("downloadSafe[%s].%w", p.Name(), newErr))
	}
	return err
}

// SafePresent returns true if the product bundle is already on disk, either as
// a non-empty .SAFE directory or as a non-empty single file.
func SafePresent(outputDir, productID string) bool {
	for _, name := range []string{productID, common.ProductName(productID) + ".SAFE"} {
		p := filepath.Join(outputDir, name)
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.IsDir() {
			if entries, err := os.ReadDir(p); err == nil && len(entries) > 0 {
				return true
			}
		} else if info.Size() > 0 {
			return true
		}
	}
	return false
}
