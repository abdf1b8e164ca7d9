package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/swo-voucher-api/internal/models"
	appErrors "github.com/noah-isme/swo-voucher-api/pkg/errors"
)

func draftVoucher() *models.Voucher {
	return &models.Voucher{
		ID:        "voucher-1",
		Status:    models.VoucherStatusDraft,
		CreatedBy: "head-1",
	}
}

func TestApplyWalksFullApprovalChain(t *testing.T) {
	v := draftVoucher()
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	steps := []struct {
		actor  Principal
		action Action
		want   models.VoucherStatus
	}{
		{Principal{ID: "head-1", Role: models.RoleStudentHead}, ActionSubmit, models.VoucherStatusPendingFaculty},
		{Principal{ID: "fac-1", Role: models.RoleFaculty}, ActionApprove, models.VoucherStatusPendingDeanSWO},
		{Principal{ID: "swo-1", Role: models.RoleDeanSWO}, ActionApprove, models.VoucherStatusPendingDeanSW},
		{Principal{ID: "sw-1", Role: models.RoleDeanSW}, ActionApprove, models.VoucherStatusPassed},
	}

	for i, step := range steps {
		entry, err := Apply(v, step.actor, step.action, "", now.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		require.Equal(t, step.want, v.Status)
		require.Equal(t, step.want, entry.ToStatus)
	}

	require.Len(t, v.ApprovalHistory, len(steps))
	for i := 1; i < len(v.ApprovalHistory); i++ {
		assert.Equal(t, v.ApprovalHistory[i-1].ToStatus, v.ApprovalHistory[i].FromStatus)
	}
	assert.Equal(t, models.VoucherStatusDraft, v.ApprovalHistory[0].FromStatus)
}

func TestApplyRejectRecordsComment(t *testing.T) {
	v := draftVoucher()
	v.Status = models.VoucherStatusPendingFaculty

	entry, err := Apply(v, Principal{ID: "fac-1", Role: models.RoleFaculty}, ActionReject, "incomplete budget", time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, models.VoucherStatusRejected, v.Status)
	require.NotNil(t, entry.Comment)
	assert.Equal(t, "incomplete budget", *entry.Comment)
}

func TestApplySubmitRequiresCreator(t *testing.T) {
	v := draftVoucher()

	_, err := Apply(v, Principal{ID: "other-head", Role: models.RoleStudentHead}, ActionSubmit, "", time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.VoucherStatusDraft, v.Status)
	assert.Empty(t, v.ApprovalHistory)
}

func TestApplyRejectsMissingPrincipal(t *testing.T) {
	v := draftVoucher()

	_, err := Apply(v, Principal{}, ActionSubmit, "", time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.VoucherStatusDraft, v.Status)
}

func TestApplyRoleMismatchIsForbidden(t *testing.T) {
	v := draftVoucher()
	v.Status = models.VoucherStatusPendingDeanSWO

	// Edge exists for APPROVE from PENDING_DEAN_SWO, but faculty holds the wrong role.
	_, err := Apply(v, Principal{ID: "fac-1", Role: models.RoleFaculty}, ActionApprove, "", time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.VoucherStatusPendingDeanSWO, v.Status)
	assert.Empty(t, v.ApprovalHistory)
}

func TestApplyUndefinedEdgeIsInvalidTransition(t *testing.T) {
	v := draftVoucher()

	_, err := Apply(v, Principal{ID: "fac-1", Role: models.RoleFaculty}, ActionApprove, "", time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.VoucherStatusDraft, v.Status)
}

func TestApplyTerminalStatesAreFrozen(t *testing.T) {
	for _, status := range []models.VoucherStatus{models.VoucherStatusPassed, models.VoucherStatusRejected} {
		for _, action := range []Action{ActionSubmit, ActionApprove, ActionReject} {
			v := draftVoucher()
			v.Status = status

			actor := Principal{ID: "head-1", Role: models.RoleStudentHead}
			_, err := Apply(v, actor, action, "", time.Now().UTC())
			require.Error(t, err, "status=%s action=%s", status, action)
			assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
			assert.Equal(t, status, v.Status)
			assert.Empty(t, v.ApprovalHistory)
		}
	}
}

func TestApplyExhaustiveInvalidTriples(t *testing.T) {
	allStatuses := []models.VoucherStatus{
		models.VoucherStatusDraft,
		models.VoucherStatusPendingFaculty,
		models.VoucherStatusPendingDeanSWO,
		models.VoucherStatusPendingDeanSW,
		models.VoucherStatusPassed,
		models.VoucherStatusRejected,
	}
	allActions := []Action{ActionSubmit, ActionApprove, ActionReject}
	allRoles := []models.UserRole{models.RoleStudentHead, models.RoleFaculty, models.RoleDeanSWO, models.RoleDeanSW}

	for _, status := range allStatuses {
		for _, action := range allActions {
			for _, role := range allRoles {
				transition, edgeExists := Resolve(status, action)
				legal := edgeExists && transition.Role == role
				if action == ActionSubmit {
					legal = legal && role == models.RoleStudentHead
				}

				v := draftVoucher()
				v.Status = status
				actor := Principal{ID: "head-1", Role: role}

				_, err := Apply(v, actor, action, "", time.Now().UTC())
				if legal {
					require.NoError(t, err, "status=%s action=%s role=%s", status, action, role)
					continue
				}
				require.Error(t, err, "status=%s action=%s role=%s", status, action, role)
				assert.Equal(t, status, v.Status)
				assert.Empty(t, v.ApprovalHistory)
			}
		}
	}
}

func TestApplyRejectsUnknownStatus(t *testing.T) {
	v := draftVoucher()
	v.Status = models.VoucherStatus("WEIRD")

	_, err := Apply(v, Principal{ID: "head-1", Role: models.RoleStudentHead}, ActionSubmit, "", time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestTransitionTableShape(t *testing.T) {
	assert.True(t, IsTerminal(models.VoucherStatusPassed))
	assert.True(t, IsTerminal(models.VoucherStatusRejected))
	assert.False(t, IsTerminal(models.VoucherStatusDraft))

	status, ok := PendingStatusFor(models.RoleFaculty)
	require.True(t, ok)
	assert.Equal(t, models.VoucherStatusPendingFaculty, status)

	_, ok = PendingStatusFor(models.RoleStudentHead)
	assert.False(t, ok)
}

func TestVisibleStatusesExcludeDraftsAndUpstreamQueues(t *testing.T) {
	for role, expected := range map[models.UserRole][]models.VoucherStatus{
		models.RoleFaculty: {
			models.VoucherStatusPendingFaculty,
			models.VoucherStatusPendingDeanSWO,
			models.VoucherStatusPendingDeanSW,
			models.VoucherStatusPassed,
			models.VoucherStatusRejected,
		},
		models.RoleDeanSWO: {
			models.VoucherStatusPendingDeanSWO,
			models.VoucherStatusPendingDeanSW,
			models.VoucherStatusPassed,
			models.VoucherStatusRejected,
		},
		models.RoleDeanSW: {
			models.VoucherStatusPendingDeanSW,
			models.VoucherStatusPassed,
			models.VoucherStatusRejected,
		},
	} {
		visible, ok := VisibleStatusesFor(role)
		require.True(t, ok, "role=%s", role)
		assert.Equal(t, expected, visible, "role=%s", role)
		assert.NotContains(t, visible, models.VoucherStatusDraft, "role=%s", role)
	}

	_, ok := VisibleStatusesFor(models.RoleStudentHead)
	assert.False(t, ok)
}
