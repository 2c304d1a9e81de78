package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/transfa/ido-service/internal/domain"
)

type closerStub struct {
	candidates []uuid.UUID
	listErr    error
	listLimit  int
	closeErrs  map[uuid.UUID]error
	onClose    func(id uuid.UUID)
	closed     []uuid.UUID
	actors     []string
}

func (s *closerStub) ListSoftCapCloseCandidates(ctx context.Context, limit int) ([]uuid.UUID, error) {
	s.listLimit = limit
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.candidates, nil
}

func (s *closerStub) CloseIfSoftCapNotReached(ctx context.Context, id uuid.UUID, caller string) (*domain.OperationResult, error) {
	s.actors = append(s.actors, caller)
	if s.onClose != nil {
		s.onClose(id)
	}
	if err := s.closeErrs[id]; err != nil {
		return nil, err
	}
	s.closed = append(s.closed, id)
	return &domain.OperationResult{}, nil
}

func newTestJobs(closer CampaignCloser, batchSize int) *Jobs {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewJobs(closer, "scheduler", batchSize, logger)
}

func TestRunSoftCapSweep_ClosesAllCandidates(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	stub := &closerStub{candidates: []uuid.UUID{a, b}}

	closed := newTestJobs(stub, 25).RunSoftCapSweep(context.Background())

	if closed != 2 {
		t.Fatalf("expected 2 campaigns closed, got %d", closed)
	}
	if stub.listLimit != 25 {
		t.Fatalf("expected batch size 25, got %d", stub.listLimit)
	}
	for _, actor := range stub.actors {
		if actor != "scheduler" {
			t.Fatalf("expected scheduler actor, got %q", actor)
		}
	}
}

func TestRunSoftCapSweep_ContinuesAfterFailures(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	stub := &closerStub{
		candidates: []uuid.UUID{a, b, c},
		closeErrs: map[uuid.UUID]error{
			a: domain.ErrSaleAlreadyClosed,
			b: errors.New("ledger unavailable"),
		},
	}

	closed := newTestJobs(stub, 0).RunSoftCapSweep(context.Background())

	if closed != 1 {
		t.Fatalf("expected 1 campaign closed, got %d", closed)
	}
	if len(stub.closed) != 1 || stub.closed[0] != c {
		t.Fatalf("expected only the last campaign to close, got %v", stub.closed)
	}
	if stub.listLimit != defaultSweepBatchSize {
		t.Fatalf("expected default batch size, got %d", stub.listLimit)
	}
}

func TestRunSoftCapSweep_ListFailure(t *testing.T) {
	stub := &closerStub{listErr: errors.New("database unavailable")}
	if closed := newTestJobs(stub, 10).RunSoftCapSweep(context.Background()); closed != 0 {
		t.Fatalf("expected nothing closed, got %d", closed)
	}
	if len(stub.actors) != 0 {
		t.Fatalf("expected no close attempts, got %d", len(stub.actors))
	}
}

func TestRunSoftCapSweep_StopsWhenContextDone(t *testing.T) {
	stub := &closerStub{candidates: []uuid.UUID{uuid.New(), uuid.New()}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if closed := newTestJobs(stub, 10).RunSoftCapSweep(ctx); closed != 0 {
		t.Fatalf("expected nothing closed after cancellation, got %d", closed)
	}
}

func TestRunSoftCapSweep_InterruptReportsUnattemptedCandidates(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stub := &closerStub{
		candidates: []uuid.UUID{a, b, c},
		closeErrs:  map[uuid.UUID]error{a: domain.ErrSaleAlreadyClosed},
		onClose: func(id uuid.UUID) {
			if id == a {
				cancel()
			}
		},
	}

	var logs bytes.Buffer
	jobs := NewJobs(stub, "scheduler", 10, slog.New(slog.NewTextHandler(&logs, nil)))

	if closed := jobs.RunSoftCapSweep(ctx); closed != 0 {
		t.Fatalf("expected nothing closed, got %d", closed)
	}
	if len(stub.actors) != 1 {
		t.Fatalf("expected a single close attempt, got %d", len(stub.actors))
	}
	if !strings.Contains(logs.String(), "remaining=2") {
		t.Fatalf("expected remaining=2 in interrupt log, got %q", logs.String())
	}
}

func TestScheduler_RejectsInvalidSchedule(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(newTestJobs(&closerStub{}, 10), logger, "not a schedule")
	if err := s.Start(); err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestScheduler_StartAndStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(newTestJobs(&closerStub{}, 10), logger, "@every 1h")
	if err := s.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-s.Stop().Done()
}
