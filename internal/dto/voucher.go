package dto

import (
	"github.com/noah-isme/swo-voucher-api/internal/models"
)

// CreateVoucherRequest payload for drafting a new voucher.
type CreateVoucherRequest struct {
	Title        string  `json:"title" validate:"required"`
	ClubName     string  `json:"club_name" validate:"required"`
	EventDate    string  `json:"event_date" validate:"required"`
	EventVenue   string  `json:"event_venue" validate:"required"`
	BudgetAmount float64 `json:"budget_amount" validate:"gte=0"`
	Description  string  `json:"description"`
}

// DecisionRequest carries an approver's optional comment.
type DecisionRequest struct {
	Comment string `json:"comment"`
}

// VoucherQuery mirrors supported listing filters.
type VoucherQuery struct {
	Status   []models.VoucherStatus
	ClubName string
	Search   string
	Page     int
	PageSize int
}

// ArtifactLink describes a signed download URL for a rendered voucher PDF.
type ArtifactLink struct {
	VoucherID string `json:"voucher_id"`
	Token     string `json:"token"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}
