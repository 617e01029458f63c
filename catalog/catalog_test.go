package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oan-rionegro/matchup/catalog/entities"
	"github.com/oan-rionegro/matchup/common"
	search "github.com/oan-rionegro/matchup/interface/catalog"
)

type fakeScenesProvider struct {
	queries []search.Query
	hits    map[common.Level][]entities.ImageMatch
}

func (p *fakeScenesProvider) SearchScenes(ctx context.Context, query search.Query) ([]entities.ImageMatch, error) {
	p.queries = append(p.queries, query)
	return append([]entities.ImageMatch{}, p.hits[query.Level]...), nil
}

func newFakeProvider() *fakeScenesProvider {
	return &fakeScenesProvider{hits: map[common.Level][]entities.ImageMatch{
		common.LevelL1C: {{
			ID:         "S2B_MSIL1C_20250802T134709_N0511_R024_T21HUB_20250802T152806",
			Datetime:   "2025-08-02T13:47:09Z",
			CloudCover: 12.3,
			Href:       "s3://eodata/Sentinel-2/MSI/L1C/2025/08/02/S2B_MSIL1C_20250802T134709_N0511_R024_T21HUB_20250802T152806.SAFE",
		}},
		common.LevelL2A: {{
			ID:            "S2B_MSIL2A_20250802T134709_N0511_R024_T21HUB_20250802T160101",
			Datetime:      "2025-08-02T13:47:09Z",
			CloudCover:    12.3,
			CloudMaskHref: "https://catalog.example.com/scl/T21HUB_20250802_SCL_20m.tif",
		}},
	}}
}

func TestSearchImages(t *testing.T) {
	provider := newFakeProvider()
	c := Catalog{Provider: provider, TimeDelta: 1, CloudCover: 30}

	fieldDate := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	bbox := entities.BBoxFromPoint(-56.5, -32.85, entities.DefaultPointBuffer)
	images, err := c.SearchImages(context.Background(), bbox, fieldDate)
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(images))
	}
	if images[0].DeltaDays != 1 {
		t.Errorf("expected delta_days=1, got %d", images[0].DeltaDays)
	}
	if images[0].CloudMaskHref != "https://catalog.example.com/scl/T21HUB_20250802_SCL_20m.tif" {
		t.Errorf("cloud mask not attached: %s", images[0].CloudMaskHref)
	}

	if len(provider.queries) != 2 {
		t.Fatalf("expected 2 queries (L1C + L2A), got %d", len(provider.queries))
	}
	q := provider.queries[0]
	if q.Level != common.LevelL1C || q.MaxCloudCover != 30 {
		t.Errorf("unexpected primary query: %+v", q)
	}
	if q.StartTime.Format("2006-01-02") != "2025-07-31" || q.EndTime.Format("2006-01-02") != "2025-08-02" {
		t.Errorf("unexpected search window: %s - %s", q.StartTime, q.EndTime)
	}
	if provider.queries[1].Level != common.LevelL2A {
		t.Errorf("expected a secondary L2A query")
	}
}

func TestBuildCatalog(t *testing.T) {
	provider := newFakeProvider()
	c := Catalog{Provider: provider, TimeDelta: 1, CloudCover: 30}

	date := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	observations := []entities.FieldObservation{
		{Date: date, Longitude: -56.5, Latitude: -32.85},
		{Date: date, Longitude: -56.5, Latitude: -32.85}, // duplicate
	}

	outputPath := filepath.Join(t.TempDir(), "catalog.json")
	if err := c.BuildCatalog(context.Background(), observations, outputPath); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	var catalog []entities.CatalogEntry
	if err := json.Unmarshal(b, &catalog); err != nil {
		t.Fatal(err)
	}
	if len(catalog) != 1 {
		t.Fatalf("duplicate observation not removed: %d entries", len(catalog))
	}
	if catalog[0].FieldDate != "2025-08-01" {
		t.Errorf("unexpected field_date: %s", catalog[0].FieldDate)
	}
	if len(catalog[0].ImagesFound) != 1 || catalog[0].ImagesFound[0].ID == "" {
		t.Errorf("unexpected images_found: %+v", catalog[0].ImagesFound)
	}
}

func TestBuildCatalogEmptyResults(t *testing.T) {
	provider := &fakeScenesProvider{hits: map[common.Level][]entities.ImageMatch{}}
	c := Catalog{Provider: provider, TimeDelta: 1, CloudCover: 30}

	outputPath := filepath.Join(t.TempDir(), "catalog.json")
	observations := []entities.FieldObservation{{Date: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), Longitude: -56.5, Latitude: -32.85}}
	if err := c.BuildCatalog(context.Background(), observations, outputPath); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(b, []byte(`"images_found": []`)) {
		t.Errorf("empty images_found must serialize as an array: %s", b)
	}
}

func TestBuildCatalogForArea(t *testing.T) {
	provider := newFakeProvider()
	c := Catalog{Provider: provider, TimeDelta: 1, CloudCover: 30}

	bbox := entities.BBox{-56.6, -32.9, -56.4, -32.8}
	dates := []time.Time{
		time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 8, 5, 0, 0, 0, 0, time.UTC),
	}
	outputPath := filepath.Join(t.TempDir(), "catalog.json")
	if err := c.BuildCatalogForArea(context.Background(), dates, bbox, outputPath); err != nil {
		t.Fatal(err)
	}

	var catalog []entities.CatalogEntry
	b, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(b, &catalog); err != nil {
		t.Fatal(err)
	}
	if len(catalog) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(catalog))
	}
	for _, q := range provider.queries {
		if q.BBox != bbox {
			t.Errorf("expected the area bbox for all queries, got %v", q.BBox)
		}
	}
}
