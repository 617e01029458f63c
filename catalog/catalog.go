package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/araddon/dateparse"
	"go.uber.org/zap"

	"github.com/oan-rionegro/matchup/catalog/entities"
	"github.com/oan-rionegro/matchup/common"
	search "github.com/oan-rionegro/matchup/interface/catalog"
	"github.com/oan-rionegro/matchup/service"
	"github.com/oan-rionegro/matchup/service/log"
)

// Catalog searches the scenes around field dates and writes the match-up file
type Catalog struct {
	Provider    search.ScenesProvider
	TimeDelta   int     // days around the field date
	CloudCover  float64 // strict upper bound, percent
	PointBuffer float64 // degrees, entities.DefaultPointBuffer if 0
}

func (c *Catalog) pointBuffer() float64 {
	if c.PointBuffer == 0 {
		return entities.DefaultPointBuffer
	}
	return c.PointBuffer
}

// window is the [fieldDate-TimeDelta, fieldDate+TimeDelta] search interval
func (c *Catalog) window(fieldDate time.Time) (time.Time, time.Time) {
	return fieldDate.AddDate(0, 0, -c.TimeDelta), fieldDate.AddDate(0, 0, c.TimeDelta)
}

// SearchImages finds the L1C scenes matching the bbox around fieldDate and
// attaches the cloud-mask asset of the corresponding L2A products.
func (c *Catalog) SearchImages(ctx context.Context, bbox entities.BBox, fieldDate time.Time) ([]entities.ImageMatch, error) {
	start, end := c.window(fieldDate)
	log.Logger(ctx).Sugar().Infof("searching images between %s and %s (cloud < %g)", start.Format("2006-01-02"), end.Format("2006-01-02"), c.CloudCover)

	matches, err := c.Provider.SearchScenes(ctx, search.Query{
		BBox:          bbox,
		StartTime:     start,
		EndTime:       end,
		Level:         common.LevelL1C,
		MaxCloudCover: c.CloudCover,
	})
	if err != nil {
		return nil, fmt.Errorf("SearchImages.%w", err)
	}

	for i, match := range matches {
		acquired, err := dateparse.ParseAny(match.Datetime)
		if err != nil {
			return nil, fmt.Errorf("SearchImages.ParseAny[%s]: %w", match.ID, err)
		}
		matches[i].DeltaDays = entities.DeltaDays(acquired, fieldDate)

		if matches[i].CloudMaskHref == "" {
			href, err := c.searchCloudMask(ctx, bbox, acquired)
			if err != nil {
				log.Logger(ctx).Warn("cloud mask not found", zap.String("image", match.ID), zap.Error(err))
				continue
			}
			matches[i].CloudMaskHref = href
		}
	}
	return matches, nil
}

// searchCloudMask finds the scl asset of the L2A product acquired the same day
func (c *Catalog) searchCloudMask(ctx context.Context, bbox entities.BBox, acquired time.Time) (string, error) {
	day := acquired.UTC().Truncate(24 * time.Hour)
	matches, err := c.Provider.SearchScenes(ctx, search.Query{
		BBox:          bbox,
		StartTime:     day,
		EndTime:       day.AddDate(0, 0, 1),
		Level:         common.LevelL2A,
		MaxCloudCover: 100,
	})
	if err != nil {
		return "", fmt.Errorf("searchCloudMask.%w", err)
	}
	for _, match := range matches {
		if match.CloudMaskHref != "" {
			return match.CloudMaskHref, nil
		}
	}
	return "", fmt.Errorf("searchCloudMask: no scl asset for %s", day.Format("2006-01-02"))
}

// BuildCatalog searches the images around each field observation and writes the
// catalog to outputPath. Observations are deduplicated first.
func (c *Catalog) BuildCatalog(ctx context.Context, observations []entities.FieldObservation, outputPath string) error {
	observations = DedupObservations(observations)

	var catalog []entities.CatalogEntry
	for _, obs := range observations {
		octx := log.With(ctx, "field_date", obs.Date.Format("2006-01-02"))
		bbox := entities.BBoxFromPoint(obs.Longitude, obs.Latitude, c.pointBuffer())
		entry, err := c.buildEntry(octx, bbox, obs.Date)
		if err != nil {
			return fmt.Errorf("BuildCatalog.%w", err)
		}
		catalog = append(catalog, entry)
	}
	return c.writeCatalog(ctx, catalog, outputPath)
}

// BuildCatalogForArea searches the images over a fixed area around each field
// date and writes the catalog to outputPath.
func (c *Catalog) BuildCatalogForArea(ctx context.Context, dates []time.Time, bbox entities.BBox, outputPath string) error {
	dates = DedupDates(dates)

	var catalog []entities.CatalogEntry
	for _, date := range dates {
		octx := log.With(ctx, "field_date", date.Format("2006-01-02"))
		entry, err := c.buildEntry(octx, bbox, date)
		if err != nil {
			return fmt.Errorf("BuildCatalogForArea.%w", err)
		}
		catalog = append(catalog, entry)
	}
	return c.writeCatalog(ctx, catalog, outputPath)
}

func (c *Catalog) buildEntry(ctx context.Context, bbox entities.BBox, fieldDate time.Time) (entities.CatalogEntry, error) {
	images, err := c.SearchImages(ctx, bbox, fieldDate)
	if err != nil {
		return entities.CatalogEntry{}, err
	}
	if len(images) == 0 {
		log.Logger(ctx).Warn("no images found")
		images = []entities.ImageMatch{}
	}
	return entities.CatalogEntry{
		FieldDate:   fieldDate.Format("2006-01-02"),
		ImagesFound: images,
	}, nil
}

func (c *Catalog) writeCatalog(ctx context.Context, catalog []entities.CatalogEntry, outputPath string) error {
	if catalog == nil {
		catalog = []entities.CatalogEntry{}
	}
	if err := service.ToJSON(catalog, outputPath); err != nil {
		return fmt.Errorf("writeCatalog.%w", err)
	}

	images := 0
	for _, entry := range catalog {
		images += len(entry.ImagesFound)
	}
	log.Logger(ctx).Sugar().Infof("catalog written to %s: %d field dates, %d images (time_delta=%dd, cloud_cover<%g)", outputPath, len(catalog), images, c.TimeDelta, c.CloudCover)
	return nil
}
