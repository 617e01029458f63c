package provider

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oan-rionegro/matchup/service"
	"github.com/oan-rionegro/matchup/service/log"
)

const (
	eodataBucket   = "eodata"
	eodataEndpoint = "https://eodata.dataspace.copernicus.eu"
	eodataRegion   = "default"
)

// ErrBadHref is returned when a catalog href cannot be mapped to the eodata store
type ErrBadHref struct {
	Href string
}

func (e ErrBadHref) Error() string {
	return fmt.Sprintf("href does not point into the eodata store: %s", e.Href)
}

// ParseEodataHref maps a catalog href to an object prefix in the eodata bucket.
// Both s3://eodata/... locators and https hrefs containing an /eodata/ segment are accepted.
func ParseEodataHref(href string) (string, error) {
	if rest, ok := strings.CutPrefix(href, "s3://"+eodataBucket+"/"); ok {
		if rest == "" {
			return "", ErrBadHref{Href: href}
		}
		return strings.TrimSuffix(rest, "/") + "/", nil
	}

	parts := strings.Split(href, "/")
	for i, part := range parts {
		if part == eodataBucket && i+1 < len(parts) {
			prefix := strings.TrimSuffix(strings.Join(parts[i+1:], "/"), "/")
			if prefix == "" {
				break
			}
			return prefix + "/", nil
		}
	}
	return "", ErrBadHref{Href: href}
}

// EodataImageProvider downloads SAFE products from the CDSE eodata object store
type EodataImageProvider struct {
	accessKeyId     string
	secretAccessKey string
	endpoint        string
}

// NewEodataImageProvider creates a provider authenticated with CDSE S3 keys
func NewEodataImageProvider(accessKeyId, secretAccessKey string) *EodataImageProvider {
	return &EodataImageProvider{
		accessKeyId:     accessKeyId,
		secretAccessKey: secretAccessKey,
		endpoint:        eodataEndpoint,
	}
}

// Name implements ImageProvider
func (ip *EodataImageProvider) Name() string {
	return "Eodata"
}

// Download implements ImageProvider
func (ip *EodataImageProvider) Download(ctx context.Context, product Product, localDir string) error {
	prefix, err := ParseEodataHref(product.Href)
	if err != nil {
		return fmt.Errorf("Eodata.%w", err)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(eodataRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ip.accessKeyId, ip.secretAccessKey, "")),
	)
	if err != nil {
		return fmt.Errorf("Eodata.LoadDefaultConfig: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(ip.endpoint)
		o.UsePathStyle = true
	})
	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = 10 * 1024 * 1024
	})

	productDir := filepath.Join(localDir, path.Base(strings.TrimSuffix(prefix, "/")))

	found := 0
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(eodataBucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(200),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return service.MakeTemporary(fmt.Errorf("Eodata.ListObjects[%s]: %w", prefix, err))
		}
		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			found++

			localPath := filepath.Join(productDir, filepath.FromSlash(strings.TrimPrefix(key, prefix)))
			if info, err := os.Stat(localPath); err == nil && info.Size() == aws.ToInt64(object.Size) {
				continue
			}
			log.Logger(ctx).Sugar().Debugf("Eodata: %s", strings.TrimPrefix(key, prefix))
			if err := ip.downloadObjectToFile(ctx, downloader, key, localPath); err != nil {
				return fmt.Errorf("Eodata.%w", err)
			}
		}
	}

	if found == 0 {
		return ErrProductNotFound{Product: product.ID}
	}
	return nil
}

func (ip *EodataImageProvider) downloadObjectToFile(ctx context.Context, downloader *manager.Downloader, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("MkdirAll: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("Create[%s]: %w", localPath, err)
	}
	defer f.Close()

	if _, err := downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(eodataBucket),
		Key:    aws.String(key),
	}); err != nil {
		os.Remove(localPath)
		return service.MakeTemporary(fmt.Errorf("Download[%s]: %w", key, err))
	}
	return nil
}
