/**
 * @description
 * This file defines the `Repository` interface for the data access layer.
 * Every state-changing campaign operation runs inside WithCampaignLock, which
 * serializes writers per campaign and commits all writes or none.
 *
 * @dependencies
 * - context: For managing request-scoped deadlines and cancellation.
 * - github.com/google/uuid: For campaign identifiers.
 * - internal/domain: Contains the domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/transfa/ido-service/internal/domain"
)

// Repository defines the interface for database operations.
type Repository interface {
	CreateCampaign(ctx context.Context, c *domain.Campaign) error
	FindCampaignByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	FindParticipation(ctx context.Context, campaignID uuid.UUID, participant string) (*domain.Participation, error)
	ListSettlements(ctx context.Context, campaignID uuid.UUID) ([]domain.SettlementRecord, error)

	// ListSoftCapCloseCandidates returns open-ended campaigns that ended below their soft cap.
	ListSoftCapCloseCandidates(ctx context.Context, now int64, limit int) ([]uuid.UUID, error)

	// WithCampaignLock runs fn with exclusive access to the campaign. Writes made
	// through tx are committed only when fn returns nil.
	WithCampaignLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx CampaignTx) error) error
}

// CampaignTx is the unit of work handed to WithCampaignLock callbacks.
type CampaignTx interface {
	Campaign() domain.Campaign
	FindParticipation(ctx context.Context, participant string) (*domain.Participation, error)
	SaveCampaign(ctx context.Context, c domain.Campaign) error
	SaveParticipation(ctx context.Context, p domain.Participation) error
	RecordSettlement(ctx context.Context, s domain.SettlementRecord) error
}
