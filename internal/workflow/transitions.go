package workflow

import (
	"github.com/noah-isme/swo-voucher-api/internal/models"
)

// Action is a requested operation against a voucher's workflow state.
type Action string

const (
	ActionSubmit  Action = "SUBMIT"
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
)

// Transition is one edge of the approval chain: who may take the action and
// where it leads.
type Transition struct {
	Role models.UserRole
	To   models.VoucherStatus
}

type transitionKey struct {
	From   models.VoucherStatus
	Action Action
}

// transitions enumerates every legal edge. Anything absent from this table is
// an invalid transition; terminal states have no outgoing edges.
var transitions = map[transitionKey]Transition{
	{models.VoucherStatusDraft, ActionSubmit}:           {models.RoleStudentHead, models.VoucherStatusPendingFaculty},
	{models.VoucherStatusPendingFaculty, ActionApprove}: {models.RoleFaculty, models.VoucherStatusPendingDeanSWO},
	{models.VoucherStatusPendingFaculty, ActionReject}:  {models.RoleFaculty, models.VoucherStatusRejected},
	{models.VoucherStatusPendingDeanSWO, ActionApprove}: {models.RoleDeanSWO, models.VoucherStatusPendingDeanSW},
	{models.VoucherStatusPendingDeanSWO, ActionReject}:  {models.RoleDeanSWO, models.VoucherStatusRejected},
	{models.VoucherStatusPendingDeanSW, ActionApprove}:  {models.RoleDeanSW, models.VoucherStatusPassed},
	{models.VoucherStatusPendingDeanSW, ActionReject}:   {models.RoleDeanSW, models.VoucherStatusRejected},
}

var validStatuses = map[models.VoucherStatus]bool{
	models.VoucherStatusDraft:          true,
	models.VoucherStatusPendingFaculty: true,
	models.VoucherStatusPendingDeanSWO: true,
	models.VoucherStatusPendingDeanSW:  true,
	models.VoucherStatusPassed:         true,
	models.VoucherStatusRejected:       true,
}

var terminalStatuses = map[models.VoucherStatus]bool{
	models.VoucherStatusPassed:   true,
	models.VoucherStatusRejected: true,
}

// pendingByRole names the status each approver role is waiting on.
var pendingByRole = map[models.UserRole]models.VoucherStatus{
	models.RoleFaculty: models.VoucherStatusPendingFaculty,
	models.RoleDeanSWO: models.VoucherStatusPendingDeanSWO,
	models.RoleDeanSW:  models.VoucherStatusPendingDeanSW,
}

// Resolve returns the table entry for a (status, action) pair.
func Resolve(from models.VoucherStatus, action Action) (Transition, bool) {
	t, ok := transitions[transitionKey{From: from, Action: action}]
	return t, ok
}

// IsValidStatus reports whether s belongs to the workflow enumeration.
func IsValidStatus(s models.VoucherStatus) bool {
	return validStatuses[s]
}

// IsTerminal reports whether s has no outgoing edges.
func IsTerminal(s models.VoucherStatus) bool {
	return terminalStatuses[s]
}

// PendingStatusFor returns the status an approver role reviews, if any.
func PendingStatusFor(role models.UserRole) (models.VoucherStatus, bool) {
	s, ok := pendingByRole[role]
	return s, ok
}

// stageRank orders the pending stages along the chain.
var stageRank = map[models.VoucherStatus]int{
	models.VoucherStatusPendingFaculty: 1,
	models.VoucherStatusPendingDeanSWO: 2,
	models.VoucherStatusPendingDeanSW:  3,
}

// VisibleStatusesFor returns the statuses an approver role may list: its own
// pending queue, every later pending stage, and the terminal outcomes. Drafts
// and stages upstream of the role are never visible; those vouchers have not
// reached the role yet.
func VisibleStatusesFor(role models.UserRole) ([]models.VoucherStatus, bool) {
	own, ok := pendingByRole[role]
	if !ok {
		return nil, false
	}
	visible := make([]models.VoucherStatus, 0, 5)
	for _, s := range []models.VoucherStatus{
		models.VoucherStatusPendingFaculty,
		models.VoucherStatusPendingDeanSWO,
		models.VoucherStatusPendingDeanSW,
	} {
		if stageRank[s] >= stageRank[own] {
			visible = append(visible, s)
		}
	}
	visible = append(visible, models.VoucherStatusPassed, models.VoucherStatusRejected)
	return visible, true
}
