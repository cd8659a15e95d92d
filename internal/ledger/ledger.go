// Package ledger records call lifecycle events keyed by call SID. Every
// write is idempotent: provider retries and out-of-order callbacks must
// never crash the webhook or duplicate rows.
package ledger

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/voicelead/calltrack/internal/model"
	"github.com/voicelead/calltrack/internal/store"
)

// CallStore is the slice of the store the ledger needs.
type CallStore interface {
	InsertCall(ctx context.Context, call model.Call) (bool, error)
	UpdateCallStatus(ctx context.Context, callSID string, status model.CallStatus, durationSeconds int) error
	UpdateCallRecording(ctx context.Context, callSID, recordingURL, recordingSID string, durationSeconds int) error
}

// Ledger persists call lifecycle events.
type Ledger struct {
	store CallStore
}

// New creates a Ledger over the given store.
func New(store CallStore) *Ledger {
	return &Ledger{store: store}
}

// InboundCall carries the fields recorded on the first inbound event.
type InboundCall struct {
	CallSID           string
	FromNumber        string
	ToNumber          string
	DestinationNumber string
	Status            model.CallStatus
	Campaign          string
	TrackingSourceID  string
	OrganizationID    string
}

// RecordInbound inserts the call row with insert-or-ignore semantics. A
// duplicate call SID (provider retry) is logged and reported as success.
func (l *Ledger) RecordInbound(ctx context.Context, in InboundCall) error {
	call := model.Call{
		CallSID:           in.CallSID,
		FromNumber:        in.FromNumber,
		ToNumber:          in.ToNumber,
		DestinationNumber: in.DestinationNumber,
		Status:            in.Status,
		OrganizationID:    in.OrganizationID,
	}
	if in.Campaign != "" {
		call.Campaign = &in.Campaign
	}
	if in.TrackingSourceID != "" {
		call.TrackingSourceID = &in.TrackingSourceID
	}

	inserted, err := l.store.InsertCall(ctx, call)
	if err != nil {
		return eris.Wrapf(err, "ledger: record inbound %s", in.CallSID)
	}
	if !inserted {
		zap.L().Info("call already recorded",
			zap.String("call_sid", in.CallSID),
			zap.String("organization_id", in.OrganizationID),
		)
		return nil
	}

	zap.L().Info("call recorded",
		zap.String("call_sid", in.CallSID),
		zap.String("from", in.FromNumber),
		zap.String("destination", in.DestinationNumber),
		zap.String("organization_id", in.OrganizationID),
	)
	return nil
}

// RecordStatus applies a lifecycle status callback. An unknown call SID is
// logged and swallowed: status events can arrive before or after the call
// row exists and the provider must still get its acknowledgement.
func (l *Ledger) RecordStatus(ctx context.Context, callSID, rawStatus string, durationSeconds int) error {
	status := model.NormalizeCallStatus(rawStatus)

	err := l.store.UpdateCallStatus(ctx, callSID, status, durationSeconds)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			zap.L().Warn("status callback for unknown call",
				zap.String("call_sid", callSID),
				zap.String("status", string(status)),
			)
			return nil
		}
		return eris.Wrapf(err, "ledger: record status %s", callSID)
	}

	zap.L().Info("call status updated",
		zap.String("call_sid", callSID),
		zap.String("status", string(status)),
		zap.Int("duration_seconds", durationSeconds),
	)
	return nil
}

// RecordRecording attaches recording metadata. The provider delivers a
// bare media URL; the playable .mp3 suffix is appended here. Recording
// callbacks may outrun the call insert, so an unknown SID is logged and
// swallowed like RecordStatus.
func (l *Ledger) RecordRecording(ctx context.Context, callSID, recordingURL, recordingSID string, durationSeconds int) error {
	if recordingURL != "" && !strings.HasSuffix(recordingURL, ".mp3") {
		recordingURL += ".mp3"
	}

	err := l.store.UpdateCallRecording(ctx, callSID, recordingURL, recordingSID, durationSeconds)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			zap.L().Warn("recording callback for unknown call",
				zap.String("call_sid", callSID),
				zap.String("recording_sid", recordingSID),
			)
			return nil
		}
		return eris.Wrapf(err, "ledger: record recording %s", callSID)
	}

	zap.L().Info("call recording attached",
		zap.String("call_sid", callSID),
		zap.String("recording_sid", recordingSID),
	)
	return nil
}
