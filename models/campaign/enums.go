package campaign

// CampaignStatus is the aggregate lifecycle state of a campaign.
type CampaignStatus string

const (
	StatusDraft           CampaignStatus = "draft"
	StatusSending         CampaignStatus = "sending"
	StatusCompleted       CampaignStatus = "completed"
	StatusPartiallyFailed CampaignStatus = "partially_failed"
	StatusCancelled       CampaignStatus = "cancelled"
)

// AttemptState is the per-recipient delivery state. Transitions are
// monotonic: a terminal state is never reverted.
type AttemptState string

const (
	AttemptPending        AttemptState = "pending"
	AttemptAttempting     AttemptState = "attempting"
	AttemptRetryScheduled AttemptState = "retry_scheduled"
	AttemptSent           AttemptState = "sent"
	AttemptFailed         AttemptState = "failed"
	AttemptSkipped        AttemptState = "skipped"
)

// DispatchableStates lists every state eligible for (re-)dispatch, for
// use in state-guarded queries.
var DispatchableStates = []AttemptState{AttemptPending, AttemptRetryScheduled, AttemptAttempting}

// IsTerminal reports whether the state admits no further transitions.
func (s AttemptState) IsTerminal() bool {
	return s == AttemptSent || s == AttemptFailed || s == AttemptSkipped
}

// Dispatchable reports whether a recipient in this state is eligible
// for (re-)dispatch when a campaign is started or resumed.
func (s AttemptState) Dispatchable() bool {
	// Attempting is included so that a run interrupted mid-dispatch is
	// retried on resume rather than stuck forever.
	return s == AttemptPending || s == AttemptRetryScheduled || s == AttemptAttempting
}
