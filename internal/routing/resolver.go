// Package routing resolves inbound tracking numbers to destination
// numbers and tenant identity.
package routing

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/voicelead/calltrack/internal/model"
)

// ErrNoRoute means no active route exists for the tracking number. This is
// an expected miss, not a failure: the webhook answers with a spoken
// decline instead of an error status.
var ErrNoRoute = eris.New("routing: no active route")

// RouteStore is the slice of the store the resolver needs.
type RouteStore interface {
	ActiveRoutes(ctx context.Context, trackingNumber string) ([]model.Route, error)
}

// Resolution is the outcome of a successful route lookup. OrganizationID
// is the sole source of tenant identity for everything downstream; it is
// never taken from caller-controlled parameters.
type Resolution struct {
	RouteID           string
	DestinationNumber string
	OrganizationID    string
	Campaign          *string
}

// Resolver maps (tracking number, campaign) pairs onto destinations.
type Resolver struct {
	store RouteStore
}

// NewResolver creates a Resolver over the given store.
func NewResolver(store RouteStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve picks the destination for a tracking number. A campaign-specific
// active route beats the generic (nil campaign) one; with no campaign
// match the generic route is used. Returns ErrNoRoute when nothing active
// exists.
func (r *Resolver) Resolve(ctx context.Context, trackingNumber, campaign string) (*Resolution, error) {
	routes, err := r.store.ActiveRoutes(ctx, trackingNumber)
	if err != nil {
		return nil, eris.Wrapf(err, "routing: lookup %s", trackingNumber)
	}
	if len(routes) == 0 {
		return nil, eris.Wrapf(ErrNoRoute, "tracking number %s", trackingNumber)
	}

	var generic *model.Route
	for i := range routes {
		route := &routes[i]
		if route.Campaign == nil {
			if generic == nil {
				generic = route
			}
			continue
		}
		if campaign != "" && *route.Campaign == campaign {
			zap.L().Info("route resolved",
				zap.String("tracking_number", trackingNumber),
				zap.String("campaign", campaign),
				zap.String("organization_id", route.OrganizationID),
			)
			return resolution(route), nil
		}
	}

	if generic == nil {
		return nil, eris.Wrapf(ErrNoRoute, "tracking number %s campaign %q", trackingNumber, campaign)
	}

	zap.L().Info("route resolved",
		zap.String("tracking_number", trackingNumber),
		zap.String("organization_id", generic.OrganizationID),
	)
	return resolution(generic), nil
}

func resolution(route *model.Route) *Resolution {
	return &Resolution{
		RouteID:           route.ID,
		DestinationNumber: route.DestinationNumber,
		OrganizationID:    route.OrganizationID,
		Campaign:          route.Campaign,
	}
}
