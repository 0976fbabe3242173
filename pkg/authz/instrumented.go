package authz

import (
	"context"
	"time"

	"github.com/postbox-io/postbox/pkg/observability"
)

// InstrumentedGateway records call counts and latencies for every gateway
// operation. It wraps any Gateway, usually the engine client.
type InstrumentedGateway struct {
	next    Gateway
	metrics *observability.Metrics
}

// Instrument wraps the gateway with metrics. A nil metrics registry returns
// the gateway unchanged.
func Instrument(next Gateway, metrics *observability.Metrics) Gateway {
	if metrics == nil {
		return next
	}
	return &InstrumentedGateway{next: next, metrics: metrics}
}

func (g *InstrumentedGateway) observe(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	g.metrics.GatewayCallsTotal.WithLabelValues(operation, status).Inc()
	g.metrics.GatewayCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (g *InstrumentedGateway) CreatePerms(ctx context.Context, tuples []Tuple) error {
	start := time.Now()
	err := g.next.CreatePerms(ctx, tuples)
	g.observe("create", start, err)
	return err
}

func (g *InstrumentedGateway) CheckSinglePerm(ctx context.Context, tuple Tuple) (bool, error) {
	start := time.Now()
	allowed, err := g.next.CheckSinglePerm(ctx, tuple)
	g.observe("check", start, err)
	return allowed, err
}

func (g *InstrumentedGateway) CheckPerms(ctx context.Context, tuples []Tuple) (bool, error) {
	start := time.Now()
	allowed, err := g.next.CheckPerms(ctx, tuples)
	g.observe("batch_check", start, err)
	return allowed, err
}

func (g *InstrumentedGateway) DeletePerms(ctx context.Context, tuples []Tuple) error {
	start := time.Now()
	err := g.next.DeletePerms(ctx, tuples)
	g.observe("delete", start, err)
	return err
}

var _ Gateway = (*InstrumentedGateway)(nil)
