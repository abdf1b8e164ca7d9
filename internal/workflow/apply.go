package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/swo-voucher-api/internal/models"
	appErrors "github.com/noah-isme/swo-voucher-api/pkg/errors"
)

// Principal is the authenticated actor attempting a transition. It is always
// passed in explicitly, never read from ambient context.
type Principal struct {
	ID   string
	Role models.UserRole
}

// Apply performs a guarded state transition on the voucher in memory: it
// validates the principal against the transition table, then sets the new
// status, refreshes UpdatedAt, and appends one approval entry. Persisting the
// result (and detecting concurrent writers) is the caller's job.
//
// Guards run in order and each failure leaves the voucher untouched:
// missing principal, creator check for SUBMIT, table lookup (absent edge or
// terminal status), role match.
func Apply(v *models.Voucher, actor Principal, action Action, comment string, now time.Time) (*models.ApprovalEntry, error) {
	if v == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "voucher is required")
	}
	if actor.ID == "" || actor.Role == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if !IsValidStatus(v.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("unknown voucher status %q", v.Status))
	}
	if action == ActionSubmit && v.CreatedBy != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the voucher creator may submit it")
	}

	transition, ok := Resolve(v.Status, action)
	if !ok {
		if IsTerminal(v.Status) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("voucher already finalized as %s", v.Status))
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("action %s is not allowed from status %s", action, v.Status))
	}
	if transition.Role != actor.Role {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("action %s from status %s requires role %s", action, v.Status, transition.Role))
	}

	entry := &models.ApprovalEntry{
		ID:         uuid.NewString(),
		VoucherID:  v.ID,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     string(action),
		FromStatus: v.Status,
		ToStatus:   transition.To,
		CreatedAt:  now,
	}
	if trimmed := strings.TrimSpace(comment); trimmed != "" {
		entry.Comment = &trimmed
	}

	v.Status = transition.To
	v.UpdatedAt = now
	v.ApprovalHistory = append(v.ApprovalHistory, *entry)

	return entry, nil
}
