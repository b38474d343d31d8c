package client

import (
	"context"

	"github.com/vler0ux/modetrend/pkg/types"
)

type SegmentationClient interface {
	Segment(ctx context.Context, imageBytes []byte) (*types.Result, error)
}
