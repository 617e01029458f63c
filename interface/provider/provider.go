package provider

import (
	"context"
)

// Product identifies a remote product bundle
type Product struct {
	ID   string // product identifier, with or without the .SAFE extension
	Href string // locator returned by the catalog search
}

// ImageProvider downloads a product bundle into a local directory
type ImageProvider interface {
	Download(ctx context.Context, product Product, localDir string) error
	Name() string
}

// AssetFetcher streams a single remote asset to a local file
type AssetFetcher interface {
	Fetch(ctx context.Context, href, localPath string) error
}
