package diskspace

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

// Info describes the volume holding a path.
type Info struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"usedPercent"`
}

// Usage returns capacity figures for the volume holding path.
func Usage(ctx context.Context, path string) (*Info, error) {
	stat, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage for %s: %w", path, err)
	}
	return &Info{
		Path:        path,
		Total:       stat.Total,
		Free:        stat.Free,
		UsedPercent: stat.UsedPercent,
	}, nil
}

// Free returns the bytes available on the volume holding path.
func Free(ctx context.Context, path string) (uint64, error) {
	info, err := Usage(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Free, nil
}
