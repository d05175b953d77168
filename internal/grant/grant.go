// Package grant settles consumption events. It asks the rule engine
// for the subsidy, charges the remainder to the user's account, and
// reverses granted subsidies when a consumption is refunded.
package grant

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/campuspay/subsidy-engine/internal/balance"
	"github.com/campuspay/subsidy-engine/internal/engine"
	"github.com/campuspay/subsidy-engine/internal/models"
)

// Settlement is the outcome of one consumption settlement.
type Settlement struct {
	Result    engine.CalculationResult `json:"result"`     // Engine outcome, audit rows included.
	NetAmount float64                  `json:"net_amount"` // Amount actually charged to the account.
	Charged   bool                     `json:"charged"`    // Whether the account was debited.
}

// Reversal is the outcome of one grant reversal.
type Reversal struct {
	RecordID     uint64  `json:"record_id"`     // Reversed ledger row.
	RefundAmount float64 `json:"refund_amount"` // Amount returned to the account.
	Refunded     bool    `json:"refunded"`      // Whether the account was credited.
}

// RecordLedger flips granted subsidy records to reversed. The
// gorm-backed implementation lives in internal/store.
type RecordLedger interface {
	ReverseRecord(ctx context.Context, recordID uint64) (*models.UserSubsidyRecord, error)
}

// Manager coordinates rule execution, account settlement, and grant
// reversal.
type Manager struct {
	engine  *engine.Engine
	balance balance.Service
	ledger  RecordLedger
}

// NewManager constructs a Manager. balanceService may be nil, in which
// case settlements compute subsidies but never touch accounts; ledger
// may be nil, in which case reversals are unavailable.
func NewManager(e *engine.Engine, balanceService balance.Service, ledger RecordLedger) *Manager {
	return &Manager{engine: e, balance: balanceService, ledger: ledger}
}

// Settle executes the rules for a consumption event and deducts the
// net amount, consume minus subsidy, from the user's account. The
// engine's audit rows are written regardless of how settlement ends;
// a deduction failure comes back as an error with the engine result
// preserved in the settlement.
func (m *Manager) Settle(ctx context.Context, input engine.CalculationInput) (Settlement, error) {
	result := m.engine.ExecuteRule(ctx, input)
	settlement := Settlement{Result: result}

	if !result.Success {
		return settlement, fmt.Errorf("grant: rule execution failed: %s", result.ErrorMessage)
	}

	net := input.ConsumeAmount - result.SubsidyAmount
	if net < 0 {
		net = 0
	}
	settlement.NetAmount = net

	if m.balance == nil || net == 0 {
		return settlement, nil
	}
	if err := m.balance.Deduct(ctx, input.UserID, net); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id":    input.UserID,
			"consume_id": input.ConsumeID,
			"net_amount": net,
		}).Error("settlement deduction failed")
		return settlement, fmt.Errorf("grant: deduct: %w", err)
	}
	settlement.Charged = true

	log.WithFields(log.Fields{
		"user_id":        input.UserID,
		"consume_id":     input.ConsumeID,
		"consume_amount": input.ConsumeAmount,
		"subsidy_amount": result.SubsidyAmount,
		"net_amount":     net,
	}).Info("consumption settled")
	return settlement, nil
}

// Reverse revokes a granted subsidy: the ledger row flips to reversed
// so the grant no longer counts toward subsidy totals, then the net
// amount the user paid, consume minus subsidy, is refunded to the
// account. The flip commits first; a refund failure comes back as an
// error with the reversal state preserved so the caller can retry the
// refund out of band.
func (m *Manager) Reverse(ctx context.Context, recordID uint64, reason string) (Reversal, error) {
	if m.ledger == nil {
		return Reversal{}, errors.New("grant: reversal not configured")
	}

	record, err := m.ledger.ReverseRecord(ctx, recordID)
	if err != nil {
		return Reversal{}, fmt.Errorf("grant: reverse record: %w", err)
	}
	reversal := Reversal{RecordID: record.ID}

	net := record.ConsumeAmount - record.SubsidyAmount
	if net < 0 {
		net = 0
	}
	reversal.RefundAmount = net

	if m.balance == nil || net == 0 {
		return reversal, nil
	}
	if errRefund := m.balance.Refund(ctx, record.UserID, net, reason); errRefund != nil {
		log.WithError(errRefund).WithFields(log.Fields{
			"user_id":       record.UserID,
			"record_id":     record.ID,
			"refund_amount": net,
		}).Error("reversal refund failed")
		return reversal, fmt.Errorf("grant: refund: %w", errRefund)
	}
	reversal.Refunded = true

	log.WithFields(log.Fields{
		"user_id":        record.UserID,
		"record_id":      record.ID,
		"subsidy_amount": record.SubsidyAmount,
		"refund_amount":  net,
		"reason":         reason,
	}).Info("subsidy grant reversed")
	return reversal, nil
}
