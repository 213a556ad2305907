package planner

import (
	"context"

	"planboard/internal/clash"
	"planboard/internal/downtime"
	"planboard/internal/metrics"
	"planboard/internal/model"
)

// proposal is the finder and persister of one CreateDowntimeCommand. It
// remembers the clash list so the backend can resolve exactly those bookings.
type proposal struct {
	finder  clash.Finder
	local   func(*downtime.Downtime) bool
	backend Backend
	clashes []model.Clash
}

func (p *proposal) Find(ctx context.Context, d *downtime.Downtime) ([]model.Clash, error) {
	path := "remote"
	if p.local(d) {
		path = "local"
	}

	clashes, err := p.finder.Find(ctx, d)
	switch {
	case err != nil:
		metrics.IncClashCheck(path, "unknown")
		return nil, err
	case len(clashes) == 0:
		metrics.IncClashCheck(path, "no_clash")
	default:
		metrics.IncClashCheck(path, "clash")
		metrics.AddClashesFound(len(clashes))
	}
	p.clashes = clashes
	return clashes, nil
}

func (p *proposal) CreateDowntime(ctx context.Context, d *downtime.Downtime, resolution clash.Resolution) (*downtime.Downtime, error) {
	return p.backend.CreateDowntime(ctx, d, resolution, p.clashes)
}
