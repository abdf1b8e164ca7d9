package service

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/swo-voucher-api/internal/models"
	appErrors "github.com/noah-isme/swo-voucher-api/pkg/errors"
	"github.com/noah-isme/swo-voucher-api/pkg/jobs"
	"github.com/noah-isme/swo-voucher-api/pkg/storage"
)

func newArtifactFixture(t *testing.T, status models.VoucherStatus) (*ArtifactService, *voucherRepoStub, *models.Voucher) {
	t.Helper()

	repo := newVoucherRepoStub()
	voucher := &models.Voucher{
		ID:            "v-1",
		VoucherNumber: "SWO-2026-ABCD1234",
		Title:         "Annual Tech Fest",
		ClubName:      "Robotics Club",
		EventDate:     time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
		EventVenue:    "Main Auditorium",
		BudgetAmount:  25000,
		Status:        status,
		Version:       5,
		CreatedBy:     "student-1",
	}
	repo.vouchers[voucher.ID] = voucher

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	svc := NewArtifactService(repo, nil, store, signer, &auditStub{}, nil)
	return svc, repo, voucher
}

func TestArtifactServiceIssueLinkRequiresPassed(t *testing.T) {
	svc, _, voucher := newArtifactFixture(t, models.VoucherStatusPendingDeanSW)

	_, err := svc.IssueLink(context.Background(), voucher.ID, approverClaims("sw-1", models.RoleDeanSW))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrArtifactNotReady.Code, appErr.Code)
}

func TestArtifactServiceIssueLinkAndDownload(t *testing.T) {
	svc, _, voucher := newArtifactFixture(t, models.VoucherStatusPassed)
	ctx := context.Background()

	link, err := svc.IssueLink(ctx, voucher.ID, studentClaims("student-1"))
	require.NoError(t, err)
	require.Equal(t, voucher.ID, link.VoucherID)
	require.NotEmpty(t, link.Token)
	require.Contains(t, link.URL, link.Token)

	file, filename, err := svc.ServeDownload(ctx, link.Token)
	require.NoError(t, err)
	defer file.Close()
	require.Equal(t, "SWO-2026-ABCD1234.pdf", filename)

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestArtifactServiceIssueLinkScopesStudentHead(t *testing.T) {
	svc, _, voucher := newArtifactFixture(t, models.VoucherStatusPassed)

	_, err := svc.IssueLink(context.Background(), voucher.ID, studentClaims("student-2"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestArtifactServiceDownloadRejectsTamperedToken(t *testing.T) {
	svc, _, voucher := newArtifactFixture(t, models.VoucherStatusPassed)
	ctx := context.Background()

	link, err := svc.IssueLink(ctx, voucher.ID, approverClaims("sw-1", models.RoleDeanSW))
	require.NoError(t, err)

	_, _, err = svc.ServeDownload(ctx, link.Token+"x")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestArtifactServiceRenderJob(t *testing.T) {
	svc, _, voucher := newArtifactFixture(t, models.VoucherStatusPassed)

	err := svc.HandleRenderJob(context.Background(), renderJob(voucher.ID))
	require.NoError(t, err)
	require.True(t, svc.storage.Exists("vouchers/v-1.pdf"))
}

func TestArtifactServiceRenderJobSkipsUnfinishedVoucher(t *testing.T) {
	svc, _, voucher := newArtifactFixture(t, models.VoucherStatusPendingFaculty)

	err := svc.HandleRenderJob(context.Background(), renderJob(voucher.ID))
	require.Error(t, err)
	require.False(t, svc.storage.Exists("vouchers/v-1.pdf"))
}

func TestArtifactServiceDownloadRerendersMissingFile(t *testing.T) {
	svc, _, voucher := newArtifactFixture(t, models.VoucherStatusPassed)
	ctx := context.Background()

	link, err := svc.IssueLink(ctx, voucher.ID, approverClaims("sw-1", models.RoleDeanSW))
	require.NoError(t, err)

	// Simulate the cleanup job having purged the file behind the link.
	store, ok := svc.storage.(*storage.LocalStorage)
	require.True(t, ok)
	require.NoError(t, store.Delete("vouchers/v-1.pdf"))

	file, _, err := svc.ServeDownload(ctx, link.Token)
	require.NoError(t, err)
	file.Close()
}

func renderJob(voucherID string) jobs.Job {
	return jobs.Job{ID: "job-1", Type: JobTypeRenderArtifact, Payload: voucherID}
}
