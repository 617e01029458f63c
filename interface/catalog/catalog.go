package catalog

import (
	"context"
	"time"

	"github.com/oan-rionegro/matchup/catalog/entities"
	"github.com/oan-rionegro/matchup/common"
)

// Query is a space/time/cloud-cover filter over one product collection
type Query struct {
	BBox          entities.BBox
	StartTime     time.Time
	EndTime       time.Time
	Level         common.Level
	MaxCloudCover float64 // strict upper bound, percent
}

type ScenesProvider interface {
	SearchScenes(ctx context.Context, query Query) ([]entities.ImageMatch, error)
}
