package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/transfa/ido-service/internal/domain"
)

type participationKey struct {
	campaignID  uuid.UUID
	participant string
}

// MemoryRepository is an in-process Repository used when no database is
// configured and in tests. Each campaign has its own writer lock.
type MemoryRepository struct {
	mu             sync.RWMutex
	campaigns      map[uuid.UUID]domain.Campaign
	participations map[participationKey]domain.Participation
	settlements    map[uuid.UUID][]domain.SettlementRecord
	locks          map[uuid.UUID]*sync.Mutex
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		campaigns:      make(map[uuid.UUID]domain.Campaign),
		participations: make(map[participationKey]domain.Participation),
		settlements:    make(map[uuid.UUID][]domain.SettlementRecord),
		locks:          make(map[uuid.UUID]*sync.Mutex),
	}
}

func (r *MemoryRepository) CreateCampaign(ctx context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.campaigns[c.ID]; exists {
		return ErrCampaignExists
	}
	r.campaigns[c.ID] = *c
	r.locks[c.ID] = &sync.Mutex{}
	return nil
}

func (r *MemoryRepository) FindCampaignByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, domain.ErrCampaignNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) FindParticipation(ctx context.Context, campaignID uuid.UUID, participant string) (*domain.Participation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participations[participationKey{campaignID, participant}]
	if !ok {
		return nil, domain.ErrParticipationNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) ListSettlements(ctx context.Context, campaignID uuid.UUID) ([]domain.SettlementRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	records := make([]domain.SettlementRecord, len(r.settlements[campaignID]))
	copy(records, r.settlements[campaignID])
	return records, nil
}

func (r *MemoryRepository) ListSoftCapCloseCandidates(ctx context.Context, now int64, limit int) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var candidates []domain.Campaign
	for _, c := range r.campaigns {
		if !c.SaleClosed && !c.FundsWithdrawn && c.EndSaleTime <= now && c.TotalSold < c.SoftCap {
			candidates = append(candidates, c)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].EndSaleTime < candidates[j].EndSaleTime
	})
	ids := make([]uuid.UUID, 0, len(candidates))
	for _, c := range candidates {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (r *MemoryRepository) WithCampaignLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx CampaignTx) error) error {
	r.mu.RLock()
	lock, ok := r.locks[id]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrCampaignNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	snapshot := r.campaigns[id]
	r.mu.RUnlock()

	tx := &memoryTx{repo: r, campaign: snapshot, participations: map[string]domain.Participation{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tx.campaignDirty {
		r.campaigns[id] = tx.campaign
	}
	for participant, p := range tx.participations {
		r.participations[participationKey{id, participant}] = p
	}
	r.settlements[id] = append(r.settlements[id], tx.settlements...)
	return nil
}

// memoryTx buffers writes until the callback succeeds.
type memoryTx struct {
	repo           *MemoryRepository
	campaign       domain.Campaign
	campaignDirty  bool
	participations map[string]domain.Participation
	settlements    []domain.SettlementRecord
}

func (t *memoryTx) Campaign() domain.Campaign {
	return t.campaign
}

func (t *memoryTx) FindParticipation(ctx context.Context, participant string) (*domain.Participation, error) {
	if p, ok := t.participations[participant]; ok {
		return &p, nil
	}
	return t.repo.FindParticipation(ctx, t.campaign.ID, participant)
}

func (t *memoryTx) SaveCampaign(ctx context.Context, c domain.Campaign) error {
	if c.ID != t.campaign.ID {
		return ErrCampaignMismatch
	}
	t.campaign = c
	t.campaignDirty = true
	return nil
}

func (t *memoryTx) SaveParticipation(ctx context.Context, p domain.Participation) error {
	if p.CampaignID != t.campaign.ID {
		return ErrCampaignMismatch
	}
	t.participations[p.Participant] = p
	return nil
}

func (t *memoryTx) RecordSettlement(ctx context.Context, s domain.SettlementRecord) error {
	t.settlements = append(t.settlements, s)
	return nil
}
