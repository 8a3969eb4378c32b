package consensus

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/swarmfabric/internal/eventbus"
)

// Supplemental algorithm retained from the teacher's bidding-based
// task allocation protocol (internal/orchestrator/consensus.go's
// StartContractNet/collectBids/selectBestBid). Nothing outside this
// package calls it; the swarm delegate uses a single-round
// WeightedMajority vote. It suits bids that carry richer
// cost/quality/deadline tradeoffs than a capability-match weight.

// ContractTask describes work to be auctioned to eligible agents.
type ContractTask struct {
	ID           string
	Description  string
	Requirements map[string]interface{}
	Deadline     time.Time
	Priority     int
}

// Bid is a contractor's offer for a ContractTask.
type Bid struct {
	TaskID    string
	AgentID   string
	Cost      float64
	Quality   float64
	Deadline  time.Time
	Reasoning string
	Timestamp time.Time
}

// Contract is an awarded ContractTask.
type Contract struct {
	ID         string
	TaskID     string
	Contractor string
	Bid        Bid
	AwardedAt  time.Time
}

// ContractNetCoordinator runs the announce/bid/award cycle over the
// shared event bus in place of the teacher's blackboard subscription.
type ContractNetCoordinator struct {
	bus  eventbus.Bus
	mu   sync.Mutex
	bids map[string][]Bid
}

func NewContractNetCoordinator(bus eventbus.Bus) *ContractNetCoordinator {
	c := &ContractNetCoordinator{bus: bus, bids: make(map[string][]Bid)}
	if bus != nil {
		_, _ = bus.Subscribe("consensus.contractnet.bid", func(ctx context.Context, evt eventbus.Event) error {
			return nil // bids are submitted directly via SubmitBid in this in-process deployment
		})
	}
	return c
}

// Announce publishes a task to eligible agents and returns the task id.
func (c *ContractNetCoordinator) Announce(ctx context.Context, task *ContractTask, eligibleAgents []string) (string, error) {
	if len(eligibleAgents) == 0 {
		return "", fmt.Errorf("contract net: no eligible agents")
	}
	task.ID = uuid.NewString()

	if c.bus != nil {
		_ = c.bus.Publish(ctx, "consensus.contractnet.announce", map[string]interface{}{
			"taskId":      task.ID,
			"description": task.Description,
			"deadline":    task.Deadline,
			"priority":    task.Priority,
			"eligible":    eligibleAgents,
		})
	}
	return task.ID, nil
}

// SubmitBid records a contractor's bid for an announced task.
func (c *ContractNetCoordinator) SubmitBid(bid Bid) error {
	if bid.AgentID == "" {
		return fmt.Errorf("contract net: agent id required")
	}
	if bid.Quality < 0 || bid.Quality > 1 {
		return fmt.Errorf("contract net: quality must be in [0,1]")
	}
	bid.Timestamp = time.Now()

	c.mu.Lock()
	c.bids[bid.TaskID] = append(c.bids[bid.TaskID], bid)
	c.mu.Unlock()
	return nil
}

// Award selects the best bid (cost 30%, quality 50%, deadline 20%,
// matching the teacher's selectBestBid weighting) and publishes the
// award notification; rejected bidders are not notified.
func (c *ContractNetCoordinator) Award(ctx context.Context, task *ContractTask) (*Contract, error) {
	c.mu.Lock()
	bids := append([]Bid(nil), c.bids[task.ID]...)
	c.mu.Unlock()

	if len(bids) == 0 {
		return nil, fmt.Errorf("contract net: no bids received for task %q", task.ID)
	}

	best := selectBestBid(bids, task)
	contract := &Contract{
		ID:         uuid.NewString(),
		TaskID:     task.ID,
		Contractor: best.AgentID,
		Bid:        best,
		AwardedAt:  time.Now(),
	}

	if c.bus != nil {
		_ = c.bus.Publish(ctx, "consensus.contractnet.awarded", contract)
	}
	return contract, nil
}

func selectBestBid(bids []Bid, task *ContractTask) Bid {
	if len(bids) == 1 {
		return bids[0]
	}

	maxCost := 0.0
	for _, b := range bids {
		if b.Cost > maxCost {
			maxCost = b.Cost
		}
	}

	type scored struct {
		bid   Bid
		score float64
	}
	results := make([]scored, 0, len(bids))
	for _, b := range bids {
		costScore := 1.0
		if maxCost > 0 {
			costScore = 1.0 - (b.Cost / maxCost)
		}
		deadlineScore := 0.0
		if b.Deadline.Before(task.Deadline) {
			buffer := task.Deadline.Sub(b.Deadline)
			deadlineScore = math.Min(1.0, buffer.Seconds()/3600.0)
		}
		total := costScore*0.3 + b.Quality*0.5 + deadlineScore*0.2
		results = append(results, scored{bid: b, score: total})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].bid.AgentID < results[j].bid.AgentID
	})

	return results[0].bid
}
