package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/transfa/ido-service/internal/domain"
)

func newStoredCampaign(t *testing.T, repo *MemoryRepository, end int64, sold, softCap uint64) domain.Campaign {
	t.Helper()
	c := domain.Campaign{
		ID:          uuid.New(),
		Authority:   "owner",
		EndSaleTime: end,
		SoftCap:     softCap,
		HardCap:     softCap * 2,
		TotalSold:   sold,
	}
	if err := repo.CreateCampaign(context.Background(), &c); err != nil {
		t.Fatalf("failed to create campaign: %v", err)
	}
	return c
}

func TestMemoryRepository_CreateRejectsDuplicate(t *testing.T) {
	repo := NewMemoryRepository()
	c := newStoredCampaign(t, repo, 100, 0, 10)

	if err := repo.CreateCampaign(context.Background(), &c); !errors.Is(err, ErrCampaignExists) {
		t.Fatalf("expected ErrCampaignExists, got %v", err)
	}
}

func TestMemoryRepository_LockCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	c := newStoredCampaign(t, repo, 100, 0, 10)

	err := repo.WithCampaignLock(ctx, c.ID, func(ctx context.Context, tx CampaignTx) error {
		updated := tx.Campaign()
		updated.TotalSold = 4
		updated.TotalParticipants = 1
		if err := tx.SaveCampaign(ctx, updated); err != nil {
			return err
		}
		if err := tx.SaveParticipation(ctx, domain.Participation{CampaignID: c.ID, Participant: "alice", EntitlementAmount: 4}); err != nil {
			return err
		}
		p, err := tx.FindParticipation(ctx, "alice")
		if err != nil || p.EntitlementAmount != 4 {
			t.Fatalf("expected buffered participation to be visible, got %+v, %v", p, err)
		}
		return tx.RecordSettlement(ctx, domain.SettlementRecord{ID: uuid.New(), CampaignID: c.ID, Operation: domain.OpJoin})
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	stored, _ := repo.FindCampaignByID(ctx, c.ID)
	if stored.TotalSold != 4 || stored.TotalParticipants != 1 {
		t.Fatalf("expected committed counters, got %+v", stored)
	}
	if _, err := repo.FindParticipation(ctx, c.ID, "alice"); err != nil {
		t.Fatalf("expected participation to be committed, got %v", err)
	}
	records, _ := repo.ListSettlements(ctx, c.ID)
	if len(records) != 1 || records[0].Operation != domain.OpJoin {
		t.Fatalf("expected one join settlement, got %+v", records)
	}
}

func TestMemoryRepository_LockDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	c := newStoredCampaign(t, repo, 100, 0, 10)
	boom := errors.New("boom")

	err := repo.WithCampaignLock(ctx, c.ID, func(ctx context.Context, tx CampaignTx) error {
		updated := tx.Campaign()
		updated.SaleClosed = true
		_ = tx.SaveCampaign(ctx, updated)
		_ = tx.SaveParticipation(ctx, domain.Participation{CampaignID: c.ID, Participant: "alice"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	stored, _ := repo.FindCampaignByID(ctx, c.ID)
	if stored.SaleClosed {
		t.Fatal("expected campaign write to be discarded")
	}
	if _, err := repo.FindParticipation(ctx, c.ID, "alice"); !errors.Is(err, domain.ErrParticipationNotFound) {
		t.Fatalf("expected participation to be discarded, got %v", err)
	}
}

func TestMemoryRepository_LockRejectsForeignRecords(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	c := newStoredCampaign(t, repo, 100, 0, 10)

	err := repo.WithCampaignLock(ctx, c.ID, func(ctx context.Context, tx CampaignTx) error {
		return tx.SaveParticipation(ctx, domain.Participation{CampaignID: uuid.New(), Participant: "alice"})
	})
	if !errors.Is(err, ErrCampaignMismatch) {
		t.Fatalf("expected ErrCampaignMismatch, got %v", err)
	}
}

func TestMemoryRepository_LockUnknownCampaign(t *testing.T) {
	repo := NewMemoryRepository()
	err := repo.WithCampaignLock(context.Background(), uuid.New(), func(ctx context.Context, tx CampaignTx) error {
		t.Fatal("callback must not run for an unknown campaign")
		return nil
	})
	if !errors.Is(err, domain.ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
}

func TestMemoryRepository_LockSerializesWriters(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	c := newStoredCampaign(t, repo, 100, 0, 10)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.WithCampaignLock(ctx, c.ID, func(ctx context.Context, tx CampaignTx) error {
				updated := tx.Campaign()
				updated.TotalParticipants++
				return tx.SaveCampaign(ctx, updated)
			})
		}()
	}
	wg.Wait()

	stored, _ := repo.FindCampaignByID(ctx, c.ID)
	if stored.TotalParticipants != 50 {
		t.Fatalf("expected 50 serialized increments, got %d", stored.TotalParticipants)
	}
}

func TestMemoryRepository_ListSoftCapCloseCandidates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	late := newStoredCampaign(t, repo, 150, 1, 10)
	early := newStoredCampaign(t, repo, 120, 0, 10)
	newStoredCampaign(t, repo, 120, 10, 10) // soft cap reached
	newStoredCampaign(t, repo, 500, 0, 10)  // still running

	ids, err := repo.ListSoftCapCloseCandidates(ctx, 200, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != early.ID || ids[1] != late.ID {
		t.Fatalf("expected [early late], got %v", ids)
	}

	ids, _ = repo.ListSoftCapCloseCandidates(ctx, 200, 1)
	if len(ids) != 1 || ids[0] != early.ID {
		t.Fatalf("expected limit to keep the earliest candidate, got %v", ids)
	}
}
