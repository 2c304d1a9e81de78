/**
 * @description
 * The settlement dispatcher turns the transfers of an approved lifecycle
 * decision into a single atomic ledger batch. Escrow-sourced legs are signed
 * with an authority re-derived from the campaign ID; wallet-sourced legs must
 * be debited from the caller.
 *
 * @dependencies
 * - github.com/google/uuid: Deterministic idempotency keys.
 * - pkg/escrow: Escrow address and authority derivation.
 * - pkg/ledgerclient: Token-ledger batch transfer types.
 */
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/transfa/ido-service/internal/domain"
	"github.com/transfa/ido-service/pkg/escrow"
	"github.com/transfa/ido-service/pkg/ledgerclient"
)

var (
	ErrEscrowMismatch = errors.New("escrow address does not match derived address")
	ErrSourceNotActor = fmt.Errorf("%w: transfer source is not the caller", domain.ErrUnauthorized)
)

// Ledger is the token-ledger collaborator.
type Ledger interface {
	ExecuteBatch(ctx context.Context, idempotencyKey, reason string, legs []ledgerclient.TransferLeg) (*ledgerclient.BatchTransferResponse, error)
	GetAvailableBalance(ctx context.Context, accountID, asset string) (uint64, error)
}

// Receipt describes a dispatched batch.
type Receipt struct {
	IdempotencyKey  string
	LedgerReference string
	Transfers       []domain.Transfer
}

// Dispatcher submits lifecycle transfers to the ledger.
type Dispatcher struct {
	ledger Ledger
	escrow *escrow.Deriver
}

// NewDispatcher creates a dispatcher backed by ledger and deriver.
func NewDispatcher(ledger Ledger, deriver *escrow.Deriver) *Dispatcher {
	return &Dispatcher{ledger: ledger, escrow: deriver}
}

// IdempotencyKey identifies one attempt of op by actor against a campaign
// version. Retrying after a failed persist reuses the key.
func IdempotencyKey(c domain.Campaign, op domain.Operation, actor string) string {
	name := fmt.Sprintf("ido:%s:%s:%s:%d", c.ID, op, actor, c.Version)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Dispatch sends the non-zero transfers as one batch. Nothing is sent when all
// amounts are zero. The ledger either applies every leg or returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, c domain.Campaign, op domain.Operation, actor string, transfers []domain.Transfer) (Receipt, error) {
	receipt := Receipt{IdempotencyKey: IdempotencyKey(c, op, actor)}

	legs := make([]ledgerclient.TransferLeg, 0, len(transfers))
	for _, tr := range transfers {
		if tr.Amount == 0 {
			continue
		}
		authority, err := d.authorize(c, actor, tr)
		if err != nil {
			return Receipt{}, err
		}
		legs = append(legs, ledgerclient.TransferLeg{
			Source:      tr.Source,
			Destination: tr.Destination,
			Asset:       tr.Asset,
			Amount:      tr.Amount,
			Authority:   authority,
		})
		receipt.Transfers = append(receipt.Transfers, tr)
	}
	if len(legs) == 0 {
		return receipt, nil
	}

	resp, err := d.ledger.ExecuteBatch(ctx, receipt.IdempotencyKey, fmt.Sprintf("ido %s %s", op, c.ID), legs)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to dispatch %s transfers: %w", op, err)
	}
	receipt.LedgerReference = resp.Data.ID
	return receipt, nil
}

func (d *Dispatcher) authorize(c domain.Campaign, actor string, tr domain.Transfer) (string, error) {
	if tr.SourceEscrow == "" {
		if tr.Source != actor {
			return "", ErrSourceNotActor
		}
		return actor, nil
	}
	if !d.escrow.Verify(c.ID, tr.SourceEscrow, tr.Source) {
		return "", fmt.Errorf("%w: campaign=%s label=%s", ErrEscrowMismatch, c.ID, tr.SourceEscrow)
	}
	return d.escrow.Authority(c.ID, tr.SourceEscrow).Credential, nil
}
