package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transfa/ido-service/internal/domain"
	"github.com/transfa/ido-service/internal/reserve"
	"github.com/transfa/ido-service/internal/store"
	"github.com/transfa/ido-service/pkg/escrow"
	"github.com/transfa/ido-service/pkg/ledgerclient"
)

const (
	testOwner    = "owner"
	testAlice    = "alice"
	testBob      = "bob"
	testFees     = "platform-fees"
	testCurrency = "USDC"
	testToken    = "TKN"
	walletFunds  = 10_000_000
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(unix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(unix, 0)
}

// fakeLedger applies batches atomically and replays results for repeated idempotency keys.
type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]map[string]uint64
	applied  map[string]*ledgerclient.BatchTransferResponse
	batches  int
	failNext error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: map[string]map[string]uint64{},
		applied:  map[string]*ledgerclient.BatchTransferResponse{},
	}
}

func (l *fakeLedger) credit(account, asset string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[account] == nil {
		l.balances[account] = map[string]uint64{}
	}
	l.balances[account][asset] += amount
}

func (l *fakeLedger) balanceOf(account, asset string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account][asset]
}

func (l *fakeLedger) GetAvailableBalance(ctx context.Context, accountID, asset string) (uint64, error) {
	return l.balanceOf(accountID, asset), nil
}

func (l *fakeLedger) ExecuteBatch(ctx context.Context, idempotencyKey, reason string, legs []ledgerclient.TransferLeg) (*ledgerclient.BatchTransferResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.failNext; err != nil {
		l.failNext = nil
		return nil, err
	}
	if resp, ok := l.applied[idempotencyKey]; ok {
		return resp, nil
	}

	debits := map[string]uint64{}
	for _, leg := range legs {
		key := leg.Source + "/" + leg.Asset
		debits[key] += leg.Amount
		if l.balances[leg.Source][leg.Asset] < debits[key] {
			return nil, fmt.Errorf("insufficient ledger balance in %s", key)
		}
	}
	for _, leg := range legs {
		if l.balances[leg.Destination] == nil {
			l.balances[leg.Destination] = map[string]uint64{}
		}
		l.balances[leg.Source][leg.Asset] -= leg.Amount
		l.balances[leg.Destination][leg.Asset] += leg.Amount
	}

	l.batches++
	resp := &ledgerclient.BatchTransferResponse{}
	resp.Data.ID = fmt.Sprintf("batch-%d", l.batches)
	resp.Data.Type = "TransferBatch"
	l.applied[idempotencyKey] = resp
	return resp, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *recordingPublisher) Close() {}

type testEnv struct {
	svc       *Service
	repo      *store.MemoryRepository
	ledger    *fakeLedger
	clock     *fakeClock
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	deriver, err := escrow.NewDeriver("")
	require.NoError(t, err)

	env := &testEnv{
		repo:      store.NewMemoryRepository(),
		ledger:    newFakeLedger(),
		clock:     &fakeClock{},
		publisher: &recordingPublisher{},
	}
	env.svc = NewService(env.repo, env.ledger, deriver, env.publisher, Config{
		CurrencyAsset:  testCurrency,
		FeeRecipient:   testFees,
		EventsExchange: "ido_events",
		Reserve:        reserve.DefaultSchedule,
	})
	env.svc.SetClock(env.clock)
	env.clock.Set(1000)

	env.ledger.credit(testOwner, testToken, 1000)
	env.ledger.credit(testAlice, testCurrency, walletFunds)
	env.ledger.credit(testBob, testCurrency, walletFunds)
	return env
}

func testRequest() domain.CreateCampaignRequest {
	return domain.CreateCampaignRequest{
		TokenMint:                          testToken,
		StartSaleTime:                      2000,
		EndSaleTime:                        3000,
		Cliff:                              4000,
		VestingEndTime:                     5000,
		Price:                              2,
		Allocation:                         100,
		SoftCap:                            500,
		HardCap:                            1000,
		AvailableTokensAfterCliffPct:       20,
		AvailableAllocationsPerParticipant: 5,
	}
}

func (e *testEnv) createAndDeposit(t *testing.T) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	view, err := e.svc.CreateCampaign(ctx, testOwner, testRequest())
	require.NoError(t, err)
	require.Equal(t, domain.StatePreSale, view.State)

	e.clock.Set(1500)
	result, err := e.svc.DepositTokens(ctx, view.ID, testOwner)
	require.NoError(t, err)
	require.True(t, result.Campaign.TokenSupplyDeposited)
	require.Equal(t, uint64(1000), e.ledger.balanceOf(view.TokenTreasury, testToken))
	return view.ID
}

func TestService_SuccessfulSaleLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.createAndDeposit(t)

	env.clock.Set(2500)
	joined, err := env.svc.Join(ctx, id, testAlice, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(300), joined.Participation.EntitlementAmount)
	require.Equal(t, uint64(600), joined.Participation.PaidAmount)
	require.Equal(t, domain.StateOpen, joined.Campaign.State)

	_, err = env.svc.Join(ctx, id, testBob, 3)
	require.NoError(t, err)

	_, err = env.svc.Join(ctx, id, testAlice, 1)
	require.ErrorIs(t, err, domain.ErrUserAlreadyJoined)

	_, err = env.svc.Withdraw(ctx, id, testOwner)
	require.ErrorIs(t, err, domain.ErrSaleNotEnded)

	env.clock.Set(3500)
	_, err = env.svc.Withdraw(ctx, id, testAlice)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	withdrawn, err := env.svc.Withdraw(ctx, id, testOwner)
	require.NoError(t, err)
	require.Equal(t, domain.StateSettled, withdrawn.Campaign.State)
	require.Len(t, withdrawn.Transfers, 3)
	require.Equal(t, uint64(60), env.ledger.balanceOf(testFees, testCurrency))
	require.Equal(t, uint64(1140), env.ledger.balanceOf(testOwner, testCurrency))
	require.Equal(t, uint64(400), env.ledger.balanceOf(testOwner, testToken))

	_, err = env.svc.Withdraw(ctx, id, testOwner)
	require.ErrorIs(t, err, domain.ErrFundsAlreadyWithdrawn)

	env.clock.Set(4000)
	claimed, err := env.svc.Claim(ctx, id, testAlice)
	require.NoError(t, err)
	require.Equal(t, uint64(60), claimed.Transfers[0].Amount)

	env.clock.Set(4500)
	view, err := env.svc.GetParticipation(ctx, id, testAlice)
	require.NoError(t, err)
	require.Equal(t, uint64(120), view.Claimable)

	claimed, err = env.svc.Claim(ctx, id, testAlice)
	require.NoError(t, err)
	require.Equal(t, uint64(120), claimed.Transfers[0].Amount)

	_, err = env.svc.Claim(ctx, id, testAlice)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)

	env.clock.Set(5000)
	_, err = env.svc.Claim(ctx, id, testAlice)
	require.NoError(t, err)
	_, err = env.svc.Claim(ctx, id, testAlice)
	require.ErrorIs(t, err, domain.ErrFullyClaimed)

	final, err := env.svc.Claim(ctx, id, testBob)
	require.NoError(t, err)
	require.Equal(t, uint64(600), final.Campaign.TotalClaimed)
	require.Equal(t, uint64(300), env.ledger.balanceOf(testAlice, testToken))
	require.Equal(t, uint64(300), env.ledger.balanceOf(testBob, testToken))
	require.Equal(t, uint64(0), env.ledger.balanceOf(final.Campaign.TokenTreasury, testToken))

	records, err := env.svc.ListSettlements(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 8)
	require.Len(t, env.publisher.keys, 9)
	require.Equal(t, "ido.campaign.create", env.publisher.keys[0])
	require.Equal(t, "ido.campaign.claim", env.publisher.keys[8])
}

func TestService_FailedSaleRefundsAndRecovery(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.createAndDeposit(t)

	env.clock.Set(2500)
	_, err := env.svc.Join(ctx, id, testAlice, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(walletFunds-400), env.ledger.balanceOf(testAlice, testCurrency))

	env.clock.Set(3500)
	_, err = env.svc.Withdraw(ctx, id, testOwner)
	require.ErrorIs(t, err, domain.ErrSoftCapNotReached)
	_, err = env.svc.Refund(ctx, id, testAlice)
	require.ErrorIs(t, err, domain.ErrSaleNotClosed)
	_, err = env.svc.RecoverTokens(ctx, id, testOwner)
	require.ErrorIs(t, err, domain.ErrSaleNotClosed)

	closed, err := env.svc.CloseIfSoftCapNotReached(ctx, id, testBob)
	require.NoError(t, err)
	require.Equal(t, domain.StateClosedAwaitingSettlement, closed.Campaign.State)
	require.Empty(t, closed.Transfers)

	_, err = env.svc.CloseIfSoftCapNotReached(ctx, id, testBob)
	require.ErrorIs(t, err, domain.ErrSaleAlreadyClosed)

	_, err = env.svc.Refund(ctx, id, testBob)
	require.ErrorIs(t, err, domain.ErrParticipationNotFound)

	refunded, err := env.svc.Refund(ctx, id, testAlice)
	require.NoError(t, err)
	require.Equal(t, uint64(0), refunded.Participation.PaidAmount)
	require.Equal(t, uint64(walletFunds), env.ledger.balanceOf(testAlice, testCurrency))

	_, err = env.svc.Refund(ctx, id, testAlice)
	require.ErrorIs(t, err, domain.ErrNothingToRefund)

	_, err = env.svc.RecoverTokens(ctx, id, testAlice)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	recovered, err := env.svc.RecoverTokens(ctx, id, testOwner)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), recovered.Transfers[0].Amount)
	require.Equal(t, uint64(1000), env.ledger.balanceOf(testOwner, testToken))

	_, err = env.svc.RecoverTokens(ctx, id, testOwner)
	require.ErrorIs(t, err, domain.ErrFundsAlreadyWithdrawn)
}

func TestService_CancelReturnsSupplyAndAllowsRefunds(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.createAndDeposit(t)

	env.clock.Set(2500)
	_, err := env.svc.Join(ctx, id, testAlice, 1)
	require.NoError(t, err)

	_, err = env.svc.Cancel(ctx, id, testAlice)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	cancelled, err := env.svc.Cancel(ctx, id, testOwner)
	require.NoError(t, err)
	require.Equal(t, domain.StateCancelled, cancelled.Campaign.State)
	require.Equal(t, uint64(1000), env.ledger.balanceOf(testOwner, testToken))

	_, err = env.svc.Join(ctx, id, testBob, 1)
	require.ErrorIs(t, err, domain.ErrSaleCancelled)

	_, err = env.svc.Refund(ctx, id, testAlice)
	require.NoError(t, err)
	require.Equal(t, uint64(walletFunds), env.ledger.balanceOf(testAlice, testCurrency))
}

func TestService_JoinRequiresReserveAndOpenSale(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.createAndDeposit(t)

	_, err := env.svc.Join(ctx, id, testAlice, 1)
	require.ErrorIs(t, err, domain.ErrSaleNotStarted)

	env.clock.Set(2500)
	env.ledger.credit("carol", testCurrency, 200)
	_, err = env.svc.Join(ctx, id, "carol", 1)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = env.svc.Join(ctx, id, testAlice, 6)
	require.ErrorIs(t, err, domain.ErrInvalidNumberOfAllocations)

	_, err = env.svc.Join(ctx, uuid.New(), testAlice, 1)
	require.ErrorIs(t, err, domain.ErrCampaignNotFound)
}

func TestService_CreateCampaignValidation(t *testing.T) {
	env := newTestEnv(t)
	req := testRequest()
	req.HardCap = req.SoftCap

	_, err := env.svc.CreateCampaign(context.Background(), testOwner, req)
	require.ErrorIs(t, err, domain.ErrInvalidHardCap)
	require.ErrorIs(t, err, domain.ErrInvalidEconomicParameter)

	_, err = env.svc.CreateCampaign(context.Background(), "", testRequest())
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestService_LedgerFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.createAndDeposit(t)

	env.clock.Set(2500)
	env.ledger.failNext = errors.New("ledger unavailable")
	_, err := env.svc.Join(ctx, id, testAlice, 2)
	require.Error(t, err)

	view, err := env.svc.GetCampaign(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(0), view.TotalSold)
	require.Equal(t, uint64(0), view.TotalParticipants)
	require.Equal(t, uint64(walletFunds), env.ledger.balanceOf(testAlice, testCurrency))

	_, err = env.svc.GetParticipation(ctx, id, testAlice)
	require.ErrorIs(t, err, domain.ErrParticipationNotFound)

	records, err := env.svc.ListSettlements(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

// failOnceRepository fails the first SaveCampaign after the ledger batch was applied.
type failOnceRepository struct {
	store.Repository
	failed bool
}

type failingTx struct {
	store.CampaignTx
	repo *failOnceRepository
}

func (r *failOnceRepository) WithCampaignLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx store.CampaignTx) error) error {
	return r.Repository.WithCampaignLock(ctx, id, func(ctx context.Context, tx store.CampaignTx) error {
		return fn(ctx, &failingTx{CampaignTx: tx, repo: r})
	})
}

func (t *failingTx) SaveCampaign(ctx context.Context, c domain.Campaign) error {
	if !t.repo.failed {
		t.repo.failed = true
		return errors.New("disk full")
	}
	return t.CampaignTx.SaveCampaign(ctx, c)
}

func TestService_RetryAfterPersistFailureDoesNotMoveFundsTwice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.createAndDeposit(t)

	deriver, err := escrow.NewDeriver("")
	require.NoError(t, err)
	flaky := NewService(&failOnceRepository{Repository: env.repo}, env.ledger, deriver, env.publisher, env.svc.cfg)
	flaky.SetClock(env.clock)

	env.clock.Set(2500)
	_, err = flaky.Join(ctx, id, testAlice, 2)
	require.Error(t, err)
	require.Equal(t, uint64(walletFunds-400), env.ledger.balanceOf(testAlice, testCurrency))

	view, err := env.svc.GetCampaign(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(0), view.TotalSold)

	result, err := flaky.Join(ctx, id, testAlice, 2)
	require.NoError(t, err)
	require.Equal(t, "batch-2", result.LedgerReference)
	require.Equal(t, uint64(walletFunds-400), env.ledger.balanceOf(testAlice, testCurrency))
	require.Equal(t, uint64(200), result.Campaign.TotalSold)
}

func TestService_ConcurrentJoinsNeverExceedHardCap(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.createAndDeposit(t)
	env.clock.Set(2500)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 20; i++ {
		participant := fmt.Sprintf("buyer-%d", i)
		env.ledger.credit(participant, testCurrency, walletFunds)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.Join(ctx, id, participant, 5); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrAllocationNotAvailable)
			}
		}()
	}
	wg.Wait()

	view, err := env.svc.GetCampaign(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, successes)
	require.Equal(t, uint64(1000), view.TotalSold)
	require.Equal(t, uint64(2), view.TotalParticipants)
}

func TestService_ListSoftCapCloseCandidates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.createAndDeposit(t)

	ids, err := env.svc.ListSoftCapCloseCandidates(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, ids)

	env.clock.Set(3001)
	ids, err = env.svc.ListSoftCapCloseCandidates(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{id}, ids)
}
