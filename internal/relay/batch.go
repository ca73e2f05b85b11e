package relay

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/messenger-relay/internal/channels/messenger"
	"github.com/wolfman30/messenger-relay/internal/settings"
)

var _ messenger.Dispatcher = (*Relay)(nil)

// HandleBatch runs one turn per message. Messages of the same
// sender/recipient pair run one after another in arrival order; distinct
// pairs run concurrently up to the configured limit. A failing turn never
// affects its siblings. Results are returned in input order.
func (r *Relay) HandleBatch(ctx context.Context, env Env, msgs []messenger.InboundMessage) []TurnResult {
	results := make([]TurnResult, len(msgs))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, idxs := range groupByConversation(msgs) {
		g.Go(func() error {
			for _, i := range idxs {
				results[i] = r.HandleInbound(ctx, env, msgs[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Dispatch processes a webhook delivery inline and returns once every turn
// has reached a terminal state. Turns outlive the caller's cancellation so a
// dropped webhook connection does not abort an answer in progress; the turn
// timeout still bounds each one.
func (r *Relay) Dispatch(ctx context.Context, scope settings.Scope, s settings.Settings, msgs []messenger.InboundMessage) error {
	results := r.HandleBatch(context.WithoutCancel(ctx), r.buildEnv(scope, s), msgs)

	counts := make(map[TurnState]int)
	for _, res := range results {
		counts[res.State]++
	}
	r.logger.Info("webhook batch processed",
		"organization_id", scope.OrganizationID,
		"agent_id", scope.AgentID,
		"messages", len(msgs),
		"delivered", counts[StateDelivered],
		"failed", counts[StateFailed],
		"skipped", counts[StateIgnored]+counts[StateDuplicate],
	)
	return nil
}

type pairKey struct {
	recipientID string
	senderID    string
}

// groupByConversation returns message indexes grouped by sender/recipient
// pair, groups ordered by first appearance.
func groupByConversation(msgs []messenger.InboundMessage) [][]int {
	index := make(map[pairKey]int)
	var groups [][]int
	for i, m := range msgs {
		k := pairKey{recipientID: m.RecipientID, senderID: m.SenderID}
		g, ok := index[k]
		if !ok {
			g = len(groups)
			index[k] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}
