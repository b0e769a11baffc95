package dispatcher

import (
	"context"
	"time"

	"eduops-notify/httpServices/mail"
	"eduops-notify/logger"
	"eduops-notify/services/ratelimit"
	"eduops-notify/types"
)

// Outcome classifies one transport call.
type Outcome string

const (
	OutcomeSent             Outcome = "sent"
	OutcomeTransientFailure Outcome = "transient_failure"
	OutcomePermanentFailure Outcome = "permanent_failure"
)

// Intent is one logical "send to recipient X" request.
type Intent struct {
	CampaignID    string
	AttemptID     string
	AttemptNumber int
	Message       mail.Message
}

// Dispatcher turns send intents into transport calls. It owns the
// shared rate limiter and the per-call timeout; retry policy belongs to
// the caller's state machine.
type Dispatcher struct {
	Transport   mail.Transport
	Limiter     ratelimit.Limiter
	AuditLogger *logger.AsyncLogger
	CallTimeout time.Duration
}

func NewDispatcher(transport mail.Transport, limiter ratelimit.Limiter, auditLogger *logger.AsyncLogger) *Dispatcher {
	return &Dispatcher{
		Transport:   transport,
		Limiter:     limiter,
		AuditLogger: auditLogger,
		CallTimeout: 30 * time.Second,
	}
}

// Send waits for a rate-limit slot, performs one transport call bounded
// by the call timeout, and records the attempt in the audit log. Every
// attempt is logged, success or failure.
func (d *Dispatcher) Send(ctx context.Context, intent Intent) (Outcome, error) {
	if err := d.Limiter.Wait(ctx); err != nil {
		// Cancelled while queued for a slot; nothing was sent.
		return OutcomeTransientFailure, mail.Transient("cancelled waiting for rate limit slot", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.CallTimeout)
	defer cancel()

	err := d.Transport.Deliver(callCtx, intent.Message)

	outcome := OutcomeSent
	transportMessage := "delivered"
	if err != nil {
		transportMessage = err.Error()
		if mail.IsPermanent(err) {
			outcome = OutcomePermanentFailure
		} else {
			// Timeouts and unclassified transport errors retry.
			outcome = OutcomeTransientFailure
		}
	}

	d.AuditLogger.Log(types.DeliveryLogEntry{
		CampaignID:       intent.CampaignID,
		AttemptID:        intent.AttemptID,
		Recipient:        intent.Message.To,
		Subject:          intent.Message.Subject,
		AttemptNumber:    intent.AttemptNumber,
		Outcome:          string(outcome),
		TransportMessage: transportMessage,
		CreatedAt:        time.Now(),
	})

	if err != nil {
		logger.Error("Delivery attempt failed for "+intent.Message.To, err)
	}

	return outcome, err
}
