package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/oan-rionegro/matchup/catalog/entities"
	"github.com/oan-rionegro/matchup/common"
	"github.com/oan-rionegro/matchup/interface/provider"
	"github.com/oan-rionegro/matchup/service"
)

const (
	img1 = "S2B_MSIL1C_20250802T134709_N0511_R024_T21HUB_20250802T152806"
	img2 = "S2A_MSIL1C_20250806T134711_N0511_R024_T21HUB_20250806T153210"
	img3 = "S2B_MSIL1C_20250807T134709_N0511_R024_T21HUB_20250807T152806"
)

type fakeImageProvider struct {
	name  string
	calls []string
	fail  map[string]error
}

func (p *fakeImageProvider) Name() string { return p.name }

func (p *fakeImageProvider) Download(ctx context.Context, product provider.Product, localDir string) error {
	p.calls = append(p.calls, product.ID)
	if err := p.fail[product.ID]; err != nil {
		return err
	}
	dir := filepath.Join(localDir, common.ProductName(product.ID)+".SAFE")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "manifest.safe"), []byte("manifest"), 0644)
}

type fakeAssetFetcher struct {
	calls []string
	fail  error
}

func (f *fakeAssetFetcher) Fetch(ctx context.Context, href, localPath string) error {
	f.calls = append(f.calls, href)
	if f.fail != nil {
		return f.fail
	}
	return os.WriteFile(localPath, []byte("scl"), 0644)
}

func writeCatalog(t *testing.T, catalog []entities.CatalogEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := service.ToJSON(catalog, path); err != nil {
		t.Fatal(err)
	}
	return path
}

func testCatalog() []entities.CatalogEntry {
	return []entities.CatalogEntry{
		{FieldDate: "2025-08-01", ImagesFound: []entities.ImageMatch{
			{ID: img1, Href: "s3://eodata/Sentinel-2/MSI/L1C/2025/08/02/" + img1 + ".SAFE", DeltaDays: 1, CloudMaskHref: "https://example.com/scl1.tif"},
		}},
		{FieldDate: "2025-08-06", ImagesFound: []entities.ImageMatch{
			{ID: img2, Href: "s3://eodata/Sentinel-2/MSI/L1C/2025/08/06/" + img2 + ".SAFE", DeltaDays: 0, CloudMaskHref: "https://example.com/scl2.tif"},
			{ID: img3, Href: "s3://eodata/Sentinel-2/MSI/L1C/2025/08/07/" + img3 + ".SAFE", DeltaDays: 1, CloudMaskHref: "https://example.com/scl3.tif"},
		}},
		{FieldDate: "2025-08-10", ImagesFound: []entities.ImageMatch{}},
	}
}

func TestReconcilerOnlyFirst(t *testing.T) {
	ctx := context.Background()
	catalogPath := writeCatalog(t, testCatalog())
	outputDir := t.TempDir()

	p := &fakeImageProvider{name: "fake"}
	f := &fakeAssetFetcher{}
	r := Reconciler{Providers: []provider.ImageProvider{p}, SCLFetcher: f, OnlyFirst: true, DownloadSCL: true}

	stats, err := r.Run(ctx, catalogPath, outputDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.calls) != 2 || p.calls[0] != img1 || p.calls[1] != img2 {
		t.Errorf("expected downloads of %s and %s, got %v", img1, img2, p.calls)
	}
	expected := common.DownloadStats{TotalProcessed: 2, SafeDownloaded: 2, SCLDownloaded: 2}
	if stats != expected {
		t.Errorf("unexpected stats: %+v", stats)
	}
	for _, id := range []string{img1, img2} {
		if _, err := os.Stat(filepath.Join(outputDir, common.SCLFileName(id))); err != nil {
			t.Errorf("missing scl file for %s", id)
		}
	}

	// Re-running must not download anything again
	p.calls, f.calls = nil, nil
	stats, err = r.Run(ctx, catalogPath, outputDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.calls) != 0 || len(f.calls) != 0 {
		t.Errorf("second run downloaded again: %v %v", p.calls, f.calls)
	}
	expected = common.DownloadStats{TotalProcessed: 2, AlreadyDownloaded: 2}
	if stats != expected {
		t.Errorf("unexpected stats on second run: %+v", stats)
	}
}

func TestReconcilerMaskIndependent(t *testing.T) {
	ctx := context.Background()
	catalogPath := writeCatalog(t, testCatalog()[:1])
	outputDir := t.TempDir()

	// Bundle already on disk, mask missing
	dir := filepath.Join(outputDir, img1+".SAFE")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.safe"), []byte("manifest"), 0644); err != nil {
		t.Fatal(err)
	}

	p := &fakeImageProvider{name: "fake"}
	f := &fakeAssetFetcher{}
	r := Reconciler{Providers: []provider.ImageProvider{p}, SCLFetcher: f, DownloadSCL: true}

	stats, err := r.Run(ctx, catalogPath, outputDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.calls) != 0 {
		t.Errorf("bundle downloaded again: %v", p.calls)
	}
	if len(f.calls) != 1 {
		t.Errorf("expected 1 scl fetch, got %v", f.calls)
	}
	expected := common.DownloadStats{TotalProcessed: 1, AlreadyDownloaded: 1, SCLDownloaded: 1}
	if stats != expected {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestReconcilerProviderChain(t *testing.T) {
	ctx := context.Background()
	catalogPath := writeCatalog(t, testCatalog()[:1])
	outputDir := t.TempDir()

	p1 := &fakeImageProvider{name: "failing", fail: map[string]error{img1: fmt.Errorf("unavailable")}}
	p2 := &fakeImageProvider{name: "fallback"}
	r := Reconciler{Providers: []provider.ImageProvider{p1, p2}}

	stats, err := r.Run(ctx, catalogPath, outputDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(p1.calls) != 1 || len(p2.calls) != 1 {
		t.Errorf("expected both providers tried: %v %v", p1.calls, p2.calls)
	}
	if stats.SafeDownloaded != 1 || stats.Errors != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestReconcilerErrorContinues(t *testing.T) {
	ctx := context.Background()
	catalogPath := writeCatalog(t, testCatalog())
	outputDir := t.TempDir()

	p := &fakeImageProvider{name: "fake", fail: map[string]error{img2: fmt.Errorf("unavailable")}}
	r := Reconciler{Providers: []provider.ImageProvider{p}}

	stats, err := r.Run(ctx, catalogPath, outputDir)
	if err != nil {
		t.Fatal(err)
	}
	expected := common.DownloadStats{TotalProcessed: 3, SafeDownloaded: 2, Errors: 1}
	if stats != expected {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestReconcilerMissingMaskHref(t *testing.T) {
	ctx := context.Background()
	catalog := testCatalog()[:1]
	catalog[0].ImagesFound[0].CloudMaskHref = ""
	catalogPath := writeCatalog(t, catalog)
	outputDir := t.TempDir()

	p := &fakeImageProvider{name: "fake"}
	r := Reconciler{Providers: []provider.ImageProvider{p}, SCLFetcher: &fakeAssetFetcher{}, DownloadSCL: true}

	stats, err := r.Run(ctx, catalogPath, outputDir)
	if err != nil {
		t.Fatal(err)
	}
	// The bundle is still downloaded, only the mask fails
	if stats.SafeDownloaded != 1 || stats.Errors != 1 || stats.SCLDownloaded != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestLoadCatalogFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(`{"not": "a catalog"`), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadCatalog(path)
	var formatErr ErrCatalogFormat
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected ErrCatalogFormat, got %v", err)
	}
}

func TestSafePresent(t *testing.T) {
	outputDir := t.TempDir()
	if SafePresent(outputDir, img1) {
		t.Errorf("nothing on disk yet")
	}

	// Empty bundle directory does not count
	dir := filepath.Join(outputDir, img1+".SAFE")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if SafePresent(outputDir, img1) {
		t.Errorf("empty bundle directory must not count as present")
	}

	if err := os.WriteFile(filepath.Join(dir, "manifest.safe"), []byte("manifest"), 0644); err != nil {
		t.Fatal(err)
	}
	if !SafePresent(outputDir, img1) {
		t.Errorf("bundle not detected")
	}
	if !SafePresent(outputDir, img1+".SAFE") {
		t.Errorf("bundle not detected from the .SAFE id")
	}
}
