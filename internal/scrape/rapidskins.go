package scrape

import (
	"context"

	"github.com/xZoluGames/skinarb/internal/market"
)

// Rapidskins renders its market entirely client-side; without a browser
// there is nothing to parse, so the adapter publishes an empty snapshot
// with the reason recorded.
type Rapidskins struct{}

func (r *Rapidskins) Name() string { return market.Rapidskins }

func (r *Rapidskins) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	return FetchPlan{Kind: PlanDynamic, Reason: "dynamic content"}, nil
}

func (r *Rapidskins) Parse(raw []byte) ([]market.Listing, error) {
	return nil, nil
}
