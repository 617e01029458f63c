package sentinelhub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/oan-rionegro/matchup/catalog/entities"
	"github.com/oan-rionegro/matchup/common"
	"github.com/oan-rionegro/matchup/interface/catalog"
	"github.com/oan-rionegro/matchup/service"
	"github.com/oan-rionegro/matchup/service/log"
)

const (
	DefaultBaseURL = "https://sh.dataspace.copernicus.eu"
	TokenURL       = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"

	searchPath        = "/api/v1/catalog/1.0.0/search"
	SentinelHubLimit  = 100
	collectionL1C     = "sentinel-2-l1c"
	collectionL2A     = "sentinel-2-l2a"
	dataAssetKey      = "data"
	cloudMaskAssetKey = "scl"
)

// Provider implements catalog.ScenesProvider for the CDSE SentinelHub catalog API
type Provider struct {
	BaseURL    string
	HTTPClient *http.Client
	Limit      int // page size, SentinelHubLimit if 0
}

// NewProvider creates a Provider authenticated with the CDSE client-credentials flow
func NewProvider(ctx context.Context, clientID, clientSecret string) *Provider {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     TokenURL,
	}
	return &Provider{
		BaseURL:    DefaultBaseURL,
		HTTPClient: cfg.Client(ctx),
	}
}

func collection(level common.Level) (string, error) {
	switch level {
	case common.LevelL1C:
		return collectionL1C, nil
	case common.LevelL2A:
		return collectionL2A, nil
	}
	return "", fmt.Errorf("SentinelHub: level not supported: %s", level)
}

type searchRequest struct {
	BBox        entities.BBox `json:"bbox"`
	Datetime    string        `json:"datetime"`
	Collections []string      `json:"collections"`
	Limit       int           `json:"limit"`
	Filter      string        `json:"filter,omitempty"`
	FilterLang  string        `json:"filter-lang,omitempty"`
	Next        int           `json:"next,omitempty"`
}

type hit struct {
	ID         string `json:"id"`
	Properties struct {
		Datetime   string  `json:"datetime"`
		CloudCover float64 `json:"eo:cloud_cover"`
	} `json:"properties"`
	Assets map[string]struct {
		Href string `json:"href"`
	} `json:"assets"`
}

// SearchScenes implements catalog.ScenesProvider
func (p *Provider) SearchScenes(ctx context.Context, query catalog.Query) ([]entities.ImageMatch, error) {
	coll, err := collection(query.Level)
	if err != nil {
		return nil, fmt.Errorf("SearchScenes.%w", err)
	}
	limit := p.Limit
	if limit == 0 {
		limit = SentinelHubLimit
	}

	body := searchRequest{
		BBox:        query.BBox,
		Datetime:    fmt.Sprintf("%s/%s", query.StartTime.UTC().Format(time.RFC3339), query.EndTime.UTC().Format(time.RFC3339)),
		Collections: []string{coll},
		Limit:       limit,
		Filter:      fmt.Sprintf("eo:cloud_cover < %s", strconv.FormatFloat(query.MaxCloudCover, 'f', -1, 64)),
		FilterLang:  "cql2-text",
	}

	rawscenes, err := p.querySentinelHub(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("SearchScenes.%w", err)
	}

	matches := make([]entities.ImageMatch, len(rawscenes))
	for i, rawscene := range rawscenes {
		matches[i] = entities.ImageMatch{
			ID:            rawscene.ID,
			Datetime:      rawscene.Properties.Datetime,
			CloudCover:    rawscene.Properties.CloudCover,
			Href:          rawscene.Assets[dataAssetKey].Href,
			CloudMaskHref: rawscene.Assets[cloudMaskAssetKey].Href,
		}
	}
	return matches, nil
}

func (p *Provider) querySentinelHub(ctx context.Context, body searchRequest) ([]hit, error) {
	// Pagging
	var rawscenes []hit
	for page := 1; ; page++ {
		log.Logger(ctx).Sugar().Debugf("[SentinelHub] Search page %d", page)

		results := struct {
			Features []hit `json:"features"`
			Context  struct {
				Next int `json:"next"`
			} `json:"context"`
		}{}

		jsonResults, err := p.postSearchRetry(ctx, body, 3)
		if err != nil {
			return nil, fmt.Errorf("querySentinelHub: %w", err)
		}

		// Read results to retrieve scenes
		if err := json.Unmarshal(jsonResults, &results); err != nil {
			return nil, fmt.Errorf("querySentinelHub.Unmarshal : %w (response: %s)", err, jsonResults)
		}

		// Merge the results
		rawscenes = append(rawscenes, results.Features...)

		// Is there a next page ?
		if results.Context.Next == 0 {
			break
		}
		body.Next = results.Context.Next
	}

	return rawscenes, nil
}

// postSearchRetry posts the search request, recreating the body on each retry
func (p *Provider) postSearchRetry(ctx context.Context, body searchRequest, nbTries int) ([]byte, error) {
	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("Marshal: %w", err)
	}

	var results []byte
	err = service.Retriable(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", p.BaseURL+searchPath, bytes.NewReader(reqBody))
		if err != nil {
			return fmt.Errorf("NewRequest: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("ReadAll: %w", err)
		}
		if resp.StatusCode != 200 {
			return fmt.Errorf("%s: %s", resp.Status, b)
		}
		results = b
		return nil
	}, time.Second, nbTries)
	return results, err
}
