package access

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/metrics"
	"github.com/systemshift/graphrest/internal/server/mutation"
	"github.com/systemshift/graphrest/internal/server/schema"
)

// Resolver finds grants by signature.
type Resolver struct {
	exec    *mutation.Executor
	policy  DefaultPolicy
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewResolver(exec *mutation.Executor, policy DefaultPolicy, logger *zap.Logger, collector *metrics.Collector) *Resolver {
	if policy == "" {
		policy = Allow
	}
	return &Resolver{exec: exec, policy: policy, logger: logger, metrics: collector}
}

// Resolve returns the single grant stored for signature. No grant is a nil
// grant without error. More than one grant is a configuration error: it is
// logged and treated as no grant.
func (r *Resolver) Resolve(ctx context.Context, signature string) (*Grant, error) {
	g, _, err := r.resolve(ctx, signature)
	return g, err
}

// resolve also reports whether the grants found for signature were unusable.
func (r *Resolver) resolve(ctx context.Context, signature string) (*Grant, bool, error) {
	var nodes []*graph.Node
	err := r.exec.Read(ctx, func(rd mutation.Reader) error {
		var err error
		nodes, err = rd.FindNodes(ctx, []graph.Predicate{
			graph.TypeIs(schema.ResourceAccessType),
			graph.Exact(schema.KeySignature, signature),
		})
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("looking up grant for %s: %w", signature, err)
	}

	switch len(nodes) {
	case 0:
		return nil, false, nil
	case 1:
		g, err := grantFromNode(nodes[0])
		if err != nil {
			r.logger.Error("unreadable grant", zap.String("signature", signature), zap.Error(err))
			return nil, true, nil
		}
		return g, false, nil
	}

	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	r.metrics.RecordGrantConfigError()
	r.logger.Error("invalid grant configuration: more than one grant for signature",
		zap.String("signature", signature),
		zap.Strings("grants", ids))
	return nil, true, nil
}

// Authorize returns ErrForbidden unless method may run on signature. Without a
// grant the default policy decides; a misconfigured grant always denies.
func (r *Resolver) Authorize(ctx context.Context, signature, method string) error {
	g, invalid, err := r.resolve(ctx, signature)
	if err != nil {
		return err
	}
	if invalid {
		return fmt.Errorf("%w: grant configuration for %s is invalid", ErrForbidden, signature)
	}
	if g == nil {
		if r.policy == Allow {
			return nil
		}
		return fmt.Errorf("%w: no grant for %s", ErrForbidden, signature)
	}
	if !g.Allows(method) {
		return fmt.Errorf("%w: %s not granted on %s", ErrForbidden, method, signature)
	}
	return nil
}
