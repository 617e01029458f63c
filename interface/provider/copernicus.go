package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/oan-rionegro/matchup/common"
	"github.com/oan-rionegro/matchup/service"
)

const (
	copernicusCatalogue = "https://catalogue.dataspace.copernicus.eu/odata/v1"
	copernicusTokenURL  = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"
)

// CopernicusImageProvider downloads product zips through the CDSE OData API
type CopernicusImageProvider struct {
	tokenConfig clientcredentials.Config
	workdir     string
}

// NewCopernicusImageProvider creates a provider authenticated with CDSE client credentials.
// Zips are staged under workdir before extraction.
func NewCopernicusImageProvider(clientID, clientSecret, workdir string) *CopernicusImageProvider {
	return &CopernicusImageProvider{
		tokenConfig: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     copernicusTokenURL,
		},
		workdir: workdir,
	}
}

// Name implements ImageProvider
func (ip *CopernicusImageProvider) Name() string {
	return "Copernicus"
}

// Download implements ImageProvider
func (ip *CopernicusImageProvider) Download(ctx context.Context, product Product, localDir string) error {
	productName := common.ProductName(product.ID) + ".SAFE"

	productUUID, err := ip.lookupProduct(productName)
	if err != nil {
		return fmt.Errorf("Copernicus.%w", err)
	}

	token, err := ip.tokenConfig.Token(ctx)
	if err != nil {
		return service.MakeTemporary(fmt.Errorf("Copernicus.Token: %w", err))
	}

	scratch := filepath.Join(ip.workdir, uuid.New().String())
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return fmt.Errorf("Copernicus.MkdirAll: %w", err)
	}
	defer os.RemoveAll(scratch)

	downloadURL := fmt.Sprintf("%s/Products(%s)/$value", copernicusCatalogue, productUUID)
	if err := downloadZipWithAuth(ctx, downloadURL, scratch, localDir, common.ProductName(product.ID), ip.Name(), "Authorization", "Bearer "+token.AccessToken); err != nil {
		return fmt.Errorf("Copernicus.%w", err)
	}
	return nil
}

// lookupProduct resolves a product name to the OData product uuid
func (ip *CopernicusImageProvider) lookupProduct(productName string) (string, error) {
	query := fmt.Sprintf("%s/Products?$filter=%s", copernicusCatalogue, url.QueryEscape(fmt.Sprintf("Name eq '%s'", productName)))
	body, err := service.GetBodyRetry(query, 3)
	if err != nil {
		return "", fmt.Errorf("lookupProduct.%w", err)
	}

	results := struct {
		Value []struct {
			Id     string `json:"Id"`
			Online bool   `json:"Online"`
		} `json:"value"`
	}{}
	if err := json.Unmarshal(body, &results); err != nil {
		return "", fmt.Errorf("lookupProduct.Unmarshal: %w (response: %s)", err, body)
	}
	if len(results.Value) == 0 {
		return "", ErrProductNotFound{Product: productName}
	}
	if !results.Value[0].Online {
		return "", service.MakeTemporary(fmt.Errorf("lookupProduct: product is offline: %s", productName))
	}
	return results.Value[0].Id, nil
}
