/**
 * @description
 * This file contains the core business logic for the ido-service. The `Service`
 * struct orchestrates every campaign operation: it locks the campaign, reads the
 * balances the guard needs from the ledger, asks the lifecycle guard for a
 * decision, dispatches the resulting transfers as one atomic batch and persists
 * the new campaign state together with a settlement record.
 *
 * Key features:
 * - One writer per campaign via store.Repository.WithCampaignLock.
 * - No state change without a successful ledger batch, and no ledger batch
 *   without a passing guard check.
 * - Publishes a domain event to RabbitMQ after every committed operation.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For campaign and settlement identifiers.
 * - internal/campaign, internal/settlement, internal/store: Guard, dispatcher and data access.
 * - pkg/escrow, pkg/rabbitmq: Escrow derivation and event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/ido-service/internal/campaign"
	"github.com/transfa/ido-service/internal/domain"
	"github.com/transfa/ido-service/internal/reserve"
	"github.com/transfa/ido-service/internal/settlement"
	"github.com/transfa/ido-service/internal/store"
	"github.com/transfa/ido-service/internal/telemetry"
	"github.com/transfa/ido-service/internal/vesting"
	"github.com/transfa/ido-service/pkg/escrow"
	"github.com/transfa/ido-service/pkg/rabbitmq"
)

// SchedulerActor is recorded as the actor of permissionless operations run by the sweeper.
const SchedulerActor = "scheduler"

// Clock supplies the current time. Tests replace it to move through a campaign's schedule.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Config holds the settlement parameters the service needs.
type Config struct {
	CurrencyAsset  string
	FeeRecipient   string
	EventsExchange string
	Reserve        reserve.Schedule
}

// Service provides the core business logic for campaigns.
type Service struct {
	repo          store.Repository
	ledger        settlement.Ledger
	dispatcher    *settlement.Dispatcher
	escrow        *escrow.Deriver
	eventProducer rabbitmq.Publisher
	metrics       *telemetry.Metrics
	clock         Clock
	cfg           Config
}

// NewService creates a new campaign service instance.
func NewService(repo store.Repository, ledger settlement.Ledger, deriver *escrow.Deriver, producer rabbitmq.Publisher, cfg Config) *Service {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	return &Service{
		repo:          repo,
		ledger:        ledger,
		dispatcher:    settlement.NewDispatcher(ledger, deriver),
		escrow:        deriver,
		eventProducer: producer,
		clock:         SystemClock{},
		cfg:           cfg,
	}
}

// SetClock replaces the service clock.
func (s *Service) SetClock(clock Clock) {
	s.clock = clock
}

// SetMetrics attaches operation metrics. A nil value disables them.
func (s *Service) SetMetrics(metrics *telemetry.Metrics) {
	s.metrics = metrics
}

// CreateCampaign validates req and stores a new campaign owned by caller.
func (s *Service) CreateCampaign(ctx context.Context, caller string, req domain.CreateCampaignRequest) (*domain.CampaignView, error) {
	started := time.Now()
	now := s.clock.Now().UTC()
	id := uuid.New()

	c, err := campaign.New(campaign.NewParams{
		ID:               id,
		Authority:        caller,
		CurrencyAsset:    s.cfg.CurrencyAsset,
		CurrencyTreasury: s.escrow.Address(id, escrow.LabelCurrencyTreasury),
		TokenTreasury:    s.escrow.Address(id, escrow.LabelTokenTreasury),
		Request:          req,
		Now:              now.Unix(),
	})
	if err != nil {
		s.metrics.RecordOperation(ctx, domain.OpCreate, time.Since(started), 0, err)
		return nil, err
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := s.repo.CreateCampaign(ctx, &c); err != nil {
		s.metrics.RecordOperation(ctx, domain.OpCreate, time.Since(started), 0, err)
		log.Printf("level=error component=app msg=\"campaign create failed\" authority=%s err=%v", caller, err)
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	s.metrics.RecordOperation(ctx, domain.OpCreate, time.Since(started), 0, nil)
	log.Printf("level=info component=app msg=\"campaign created\" campaign_id=%s authority=%s hard_cap=%d", c.ID, c.Authority, c.HardCap)

	view := domain.CampaignView{Campaign: c, State: campaign.StateAt(c, now.Unix())}
	s.publish(ctx, domain.CampaignEvent{
		EventID:    uuid.New(),
		CampaignID: c.ID,
		Operation:  domain.OpCreate,
		Actor:      caller,
		State:      view.State,
		OccurredAt: now,
	})
	return &view, nil
}

// GetCampaign returns a campaign with its current lifecycle state.
func (s *Service) GetCampaign(ctx context.Context, id uuid.UUID) (*domain.CampaignView, error) {
	c, err := s.repo.FindCampaignByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.CampaignView{Campaign: *c, State: campaign.StateAt(*c, s.clock.Now().Unix())}, nil
}

// GetParticipation returns a participant's record with the amount they could claim right now.
func (s *Service) GetParticipation(ctx context.Context, id uuid.UUID, participant string) (*domain.ParticipationView, error) {
	c, err := s.repo.FindCampaignByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.FindParticipation(ctx, id, participant)
	if err != nil {
		return nil, err
	}

	view := &domain.ParticipationView{Participation: *p}
	now := s.clock.Now().Unix()
	if campaign.Allowed(campaign.StateAt(*c, now), domain.OpClaim) && c.TotalSold >= c.SoftCap {
		claimable, err := vesting.Claimable(vesting.ScheduleOf(*c), p.EntitlementAmount, p.ClaimedAmount, now)
		if err != nil {
			return nil, err
		}
		view.Claimable = claimable
	}
	return view, nil
}

// ListSettlements returns the settlement audit trail of a campaign.
func (s *Service) ListSettlements(ctx context.Context, id uuid.UUID) ([]domain.SettlementRecord, error) {
	if _, err := s.repo.FindCampaignByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListSettlements(ctx, id)
}

// ListSoftCapCloseCandidates returns campaigns that ended below their soft cap and still need closing.
func (s *Service) ListSoftCapCloseCandidates(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return s.repo.ListSoftCapCloseCandidates(ctx, s.clock.Now().Unix(), limit)
}

// DepositTokens moves the full token supply from the owner into the token treasury.
func (s *Service) DepositTokens(ctx context.Context, id uuid.UUID, caller string) (*domain.OperationResult, error) {
	return s.execute(ctx, id, domain.OpDeposit, caller, func(ctx context.Context, tx store.CampaignTx, c domain.Campaign, now int64) (campaign.Decision, error) {
		balance, err := s.balance(ctx, caller, c.TokenMint)
		if err != nil {
			return campaign.Decision{}, err
		}
		return campaign.Deposit(c, campaign.DepositInput{Caller: caller, Now: now, OwnerTokenBalance: balance})
	})
}

// Join buys units allocations for participant.
func (s *Service) Join(ctx context.Context, id uuid.UUID, participant string, units uint64) (*domain.OperationResult, error) {
	return s.execute(ctx, id, domain.OpJoin, participant, func(ctx context.Context, tx store.CampaignTx, c domain.Campaign, now int64) (campaign.Decision, error) {
		existing, err := s.findParticipation(ctx, tx, participant)
		if err != nil {
			return campaign.Decision{}, err
		}
		reserveAmount, err := s.cfg.Reserve.ForParticipation()
		if err != nil {
			return campaign.Decision{}, err
		}
		balance, err := s.balance(ctx, participant, c.CurrencyAsset)
		if err != nil {
			return campaign.Decision{}, err
		}
		return campaign.Join(c, existing, campaign.JoinInput{
			Participant: participant,
			Units:       units,
			Now:         now,
			Balance:     balance,
			Reserve:     reserveAmount,
		})
	})
}

// Claim releases the participant's vested, unclaimed tokens.
func (s *Service) Claim(ctx context.Context, id uuid.UUID, participant string) (*domain.OperationResult, error) {
	return s.execute(ctx, id, domain.OpClaim, participant, func(ctx context.Context, tx store.CampaignTx, c domain.Campaign, now int64) (campaign.Decision, error) {
		p, err := s.findParticipation(ctx, tx, participant)
		if err != nil {
			return campaign.Decision{}, err
		}
		treasury, err := s.balance(ctx, c.TokenTreasury, c.TokenMint)
		if err != nil {
			return campaign.Decision{}, err
		}
		return campaign.Claim(c, p, campaign.ClaimInput{Participant: participant, Now: now, TokenTreasuryBalance: treasury})
	})
}

// Cancel closes a sale before it ends and returns the token supply to the owner.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, caller string) (*domain.OperationResult, error) {
	return s.execute(ctx, id, domain.OpCancel, caller, func(ctx context.Context, tx store.CampaignTx, c domain.Campaign, now int64) (campaign.Decision, error) {
		treasury, err := s.balance(ctx, c.TokenTreasury, c.TokenMint)
		if err != nil {
			return campaign.Decision{}, err
		}
		return campaign.Cancel(c, campaign.CancelInput{Caller: caller, Now: now, TokenTreasuryBalance: treasury})
	})
}

// CloseIfSoftCapNotReached closes an ended sale that missed its soft cap. Anyone may call it.
func (s *Service) CloseIfSoftCapNotReached(ctx context.Context, id uuid.UUID, caller string) (*domain.OperationResult, error) {
	return s.execute(ctx, id, domain.OpCloseSoftCap, caller, func(ctx context.Context, tx store.CampaignTx, c domain.Campaign, now int64) (campaign.Decision, error) {
		return campaign.CloseIfSoftCapNotReached(c, now)
	})
}

// Withdraw pays out a successful raise to the fee recipient and the owner.
func (s *Service) Withdraw(ctx context.Context, id uuid.UUID, caller string) (*domain.OperationResult, error) {
	return s.execute(ctx, id, domain.OpWithdraw, caller, func(ctx context.Context, tx store.CampaignTx, c domain.Campaign, now int64) (campaign.Decision, error) {
		currency, err := s.balance(ctx, c.CurrencyTreasury, c.CurrencyAsset)
		if err != nil {
			return campaign.Decision{}, err
		}
		tokens, err := s.balance(ctx, c.TokenTreasury, c.TokenMint)
		if err != nil {
			return campaign.Decision{}, err
		}
		return campaign.Withdraw(c, campaign.WithdrawInput{
			Caller:                  caller,
			Now:                     now,
			FeeRecipient:            s.cfg.FeeRecipient,
			CurrencyTreasuryBalance: currency,
			TokenTreasuryBalance:    tokens,
		})
	})
}

// RecoverTokens returns the token supply of a failed sale to the owner.
func (s *Service) RecoverTokens(ctx context.Context, id uuid.UUID, caller string) (*domain.OperationResult, error) {
	return s.execute(ctx, id, domain.OpRecoverTokens, caller, func(ctx context.Context, tx store.CampaignTx, c domain.Campaign, now int64) (campaign.Decision, error) {
		treasury, err := s.balance(ctx, c.TokenTreasury, c.TokenMint)
		if err != nil {
			return campaign.Decision{}, err
		}
		return campaign.RecoverTokens(c, campaign.RecoverInput{Caller: caller, Now: now, TokenTreasuryBalance: treasury})
	})
}

// Refund returns the participant's payment from a cancelled or failed sale.
func (s *Service) Refund(ctx context.Context, id uuid.UUID, participant string) (*domain.OperationResult, error) {
	return s.execute(ctx, id, domain.OpRefund, participant, func(ctx context.Context, tx store.CampaignTx, c domain.Campaign, now int64) (campaign.Decision, error) {
		p, err := s.findParticipation(ctx, tx, participant)
		if err != nil {
			return campaign.Decision{}, err
		}
		currency, err := s.balance(ctx, c.CurrencyTreasury, c.CurrencyAsset)
		if err != nil {
			return campaign.Decision{}, err
		}
		return campaign.Refund(c, p, campaign.RefundInput{Participant: participant, Now: now, CurrencyTreasuryBalance: currency})
	})
}

type decideFunc func(ctx context.Context, tx store.CampaignTx, c domain.Campaign, now int64) (campaign.Decision, error)

// execute runs one campaign operation under the campaign lock: decide, dispatch, persist.
func (s *Service) execute(ctx context.Context, id uuid.UUID, op domain.Operation, actor string, decide decideFunc) (*domain.OperationResult, error) {
	started := time.Now()
	var (
		result   *domain.OperationResult
		receipt  settlement.Receipt
		occurred time.Time
	)

	err := s.repo.WithCampaignLock(ctx, id, func(ctx context.Context, tx store.CampaignTx) error {
		occurred = s.clock.Now().UTC()
		now := occurred.Unix()
		current := tx.Campaign()

		decision, err := decide(ctx, tx, current, now)
		if err != nil {
			return err
		}

		receipt, err = s.dispatcher.Dispatch(ctx, current, op, actor, decision.Transfers)
		if err != nil {
			return err
		}

		updated := decision.Campaign
		updated.Version = current.Version + 1
		updated.UpdatedAt = occurred
		if err := tx.RecordSettlement(ctx, domain.SettlementRecord{
			ID:              uuid.New(),
			CampaignID:      updated.ID,
			Operation:       op,
			Actor:           actor,
			IdempotencyKey:  receipt.IdempotencyKey,
			LedgerReference: receipt.LedgerReference,
			Transfers:       receipt.Transfers,
			CreatedAt:       occurred,
		}); err != nil {
			return err
		}
		if err := tx.SaveCampaign(ctx, updated); err != nil {
			return err
		}
		if decision.Participation != nil {
			if err := tx.SaveParticipation(ctx, *decision.Participation); err != nil {
				return err
			}
		}

		result = &domain.OperationResult{
			Campaign:        domain.CampaignView{Campaign: updated, State: campaign.StateAt(updated, now)},
			Participation:   decision.Participation,
			Transfers:       receipt.Transfers,
			LedgerReference: receipt.LedgerReference,
		}
		return nil
	})

	s.metrics.RecordOperation(ctx, op, time.Since(started), len(receipt.Transfers), err)
	if err != nil {
		if receipt.LedgerReference != "" {
			// A retry against the same campaign version reuses the idempotency key.
			log.Printf("level=error component=app msg=\"CRITICAL: ledger batch applied but campaign state not persisted\" campaign_id=%s op=%s actor=%s ledger_ref=%s idempotency_key=%s err=%v",
				id, op, actor, receipt.LedgerReference, receipt.IdempotencyKey, err)
		} else {
			log.Printf("level=warn component=app msg=\"campaign operation rejected\" campaign_id=%s op=%s actor=%s err=%v", id, op, actor, err)
		}
		return nil, err
	}

	log.Printf("level=info component=app msg=\"campaign operation committed\" campaign_id=%s op=%s actor=%s transfers=%d ledger_ref=%s",
		id, op, actor, len(result.Transfers), result.LedgerReference)

	s.publish(ctx, domain.CampaignEvent{
		EventID:         uuid.New(),
		CampaignID:      id,
		Operation:       op,
		Actor:           actor,
		State:           result.Campaign.State,
		TotalSold:       result.Campaign.TotalSold,
		TotalClaimed:    result.Campaign.TotalClaimed,
		Transfers:       result.Transfers,
		LedgerReference: result.LedgerReference,
		OccurredAt:      occurred,
	})
	return result, nil
}

func (s *Service) findParticipation(ctx context.Context, tx store.CampaignTx, participant string) (*domain.Participation, error) {
	p, err := tx.FindParticipation(ctx, participant)
	if errors.Is(err, domain.ErrParticipationNotFound) {
		return nil, nil
	}
	return p, err
}

func (s *Service) balance(ctx context.Context, account, asset string) (uint64, error) {
	balance, err := s.ledger.GetAvailableBalance(ctx, account, asset)
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger balance for %s: %w", account, err)
	}
	return balance, nil
}

func (s *Service) publish(ctx context.Context, event domain.CampaignEvent) {
	if err := s.eventProducer.Publish(ctx, s.cfg.EventsExchange, event.RoutingKey(), event); err != nil {
		log.Printf("level=warn component=app msg=\"failed to publish campaign event\" campaign_id=%s op=%s err=%v", event.CampaignID, event.Operation, err)
	}
}
