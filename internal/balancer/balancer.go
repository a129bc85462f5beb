// Package balancer selects the least-loaded human agent for escalations.
package balancer

import (
	"context"
	"fmt"

	"github.com/eroshenko/chatdesk/internal/domain"
	"github.com/eroshenko/chatdesk/internal/store"
)

// Balancer computes agent load from live escalation counts. Loads are
// point-in-time reads, not reservations: two concurrent escalations may
// both pick the same least-loaded agent. That race is accepted.
type Balancer struct {
	repo store.Repository
}

// New creates a balancer backed by the given repository.
func New(repo store.Repository) *Balancer {
	return &Balancer{repo: repo}
}

// Select returns the candidate with the strictly minimal number of assigned
// escalations. Ties break by input order: the first minimum found is kept.
// An empty candidate list returns nil with no error.
func (b *Balancer) Select(ctx context.Context, candidates []domain.Agent) (*domain.Agent, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var selected *domain.Agent
	minLoad := 0
	for i := range candidates {
		agent := &candidates[i]
		load, err := b.repo.CountAssignedEscalations(ctx, agent.ID)
		if err != nil {
			return nil, fmt.Errorf("load for agent %d: %w", agent.ID, err)
		}
		if selected == nil || load < minLoad {
			selected = agent
			minLoad = load
		}
	}
	return selected, nil
}
