package models

import "time"

// VoucherStatus captures the workflow state of a voucher.
type VoucherStatus string

const (
	VoucherStatusDraft          VoucherStatus = "DRAFT"
	VoucherStatusPendingFaculty VoucherStatus = "PENDING_FACULTY"
	VoucherStatusPendingDeanSWO VoucherStatus = "PENDING_DEAN_SWO"
	VoucherStatusPendingDeanSW  VoucherStatus = "PENDING_DEAN_SW"
	VoucherStatusPassed         VoucherStatus = "PASSED"
	VoucherStatusRejected       VoucherStatus = "REJECTED"
)

// Voucher stores a club event voucher moving through the approval chain.
type Voucher struct {
	ID            string        `db:"id" json:"id"`
	VoucherNumber string        `db:"voucher_number" json:"voucher_number"`
	Title         string        `db:"title" json:"title"`
	ClubName      string        `db:"club_name" json:"club_name"`
	EventDate     time.Time     `db:"event_date" json:"event_date"`
	EventVenue    string        `db:"event_venue" json:"event_venue"`
	BudgetAmount  float64       `db:"budget_amount" json:"budget_amount"`
	Description   string        `db:"description" json:"description"`
	Status        VoucherStatus `db:"status" json:"status"`
	Version       int           `db:"version" json:"version"`
	CreatedBy     string        `db:"created_by" json:"created_by"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`

	ApprovalHistory []ApprovalEntry `db:"-" json:"approval_history,omitempty"`
}

// ApprovalEntry is one append-only record of the voucher's audit trail.
type ApprovalEntry struct {
	ID         string        `db:"id" json:"id"`
	VoucherID  string        `db:"voucher_id" json:"voucher_id"`
	ActorID    string        `db:"actor_id" json:"actor_id"`
	ActorRole  UserRole      `db:"actor_role" json:"actor_role"`
	Action     string        `db:"action" json:"action"`
	FromStatus VoucherStatus `db:"from_status" json:"from_status"`
	ToStatus   VoucherStatus `db:"to_status" json:"to_status"`
	Comment    *string       `db:"comment" json:"comment,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// VoucherFilter constrains listing queries.
type VoucherFilter struct {
	Status    []VoucherStatus
	CreatedBy string
	ClubName  string
	Search    string
	Page      int
	PageSize  int
}
