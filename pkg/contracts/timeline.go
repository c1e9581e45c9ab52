package contracts

import "time"

// Timeline event kinds emitted by the governance pipeline. Substrate
// mutations get one event each; proposal transitions get one per transition.
const (
	EventProposalSubmitted  = "proposal.submitted"
	EventProposalApproved   = "proposal.approved"
	EventProposalRejected   = "proposal.rejected"
	EventBlockCreated       = "block.created"
	EventBlockRevised       = "block.revised"
	EventBlockArchived      = "block.archived"
	EventContextItemCreated = "context_item.created"
	EventContextItemUpdated = "context_item.updated"
	EventDumpCreated        = "dump.created"
)

// TimelineEvent is an immutable audit record of a state transition or
// substrate mutation. Events are append-only; the ordering key within a
// basket is (TS, ID) ascending.
type TimelineEvent struct {
	ID        string         `json:"id"`
	BasketID  string         `json:"basket_id"`
	Kind      string         `json:"kind"`
	RefID     string         `json:"ref_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	TS        time.Time      `json:"ts"`
	ActorID   string         `json:"actor_id,omitempty"`
	AgentType string         `json:"agent_type,omitempty"`
	Origin    Origin         `json:"origin"`
}
