package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/swo-voucher-api/internal/models"
)

func newVoucherRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func voucherRows(id string, status models.VoucherStatus, version int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "voucher_number", "title", "club_name", "event_date", "event_venue", "budget_amount", "description", "status", "version", "created_by", "created_at", "updated_at"}).
		AddRow(id, "SWO-2026-0001", "Robotics meet", "Robotics Club", now, "Auditorium", 15000.0, "", string(status), version, "head-1", now, now)
}

func TestVoucherRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newVoucherRepoMock(t)
	defer cleanup()

	repo := NewVoucherRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vouchers")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	voucher := &models.Voucher{
		VoucherNumber: "SWO-2026-0001",
		Title:         "Robotics meet",
		ClubName:      "Robotics Club",
		EventDate:     time.Now(),
		EventVenue:    "Auditorium",
		BudgetAmount:  15000,
		CreatedBy:     "head-1",
	}
	require.NoError(t, repo.Create(context.Background(), voucher))
	require.Equal(t, models.VoucherStatusDraft, voucher.Status)
	require.Equal(t, 1, voucher.Version)
	require.NotEmpty(t, voucher.ID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, voucher_number, title")).
		WithArgs(voucher.ID).
		WillReturnRows(voucherRows(voucher.ID, models.VoucherStatusDraft, 1))

	found, err := repo.GetByID(context.Background(), voucher.ID)
	require.NoError(t, err)
	require.Equal(t, voucher.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newVoucherRepoMock(t)
	defer cleanup()

	repo := NewVoucherRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, voucher_number, title")).
		WithArgs("PENDING_FACULTY").
		WillReturnRows(voucherRows("voucher-1", models.VoucherStatusPendingFaculty, 2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("PENDING_FACULTY").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.VoucherFilter{
		Status: []models.VoucherStatus{models.VoucherStatusPendingFaculty},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, total)
	require.Equal(t, "voucher-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepositoryCommitTransition(t *testing.T) {
	db, mock, cleanup := newVoucherRepoMock(t)
	defer cleanup()

	repo := NewVoucherRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE vouchers SET status")).
		WithArgs("PENDING_FACULTY", now, "voucher-1", "DRAFT", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO voucher_approvals")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.CommitTransition(context.Background(), TransitionParams{
		VoucherID:  "voucher-1",
		FromStatus: models.VoucherStatusDraft,
		ToStatus:   models.VoucherStatusPendingFaculty,
		Version:    1,
		UpdatedAt:  now,
		Entry: &models.ApprovalEntry{
			VoucherID:  "voucher-1",
			ActorID:    "head-1",
			ActorRole:  models.RoleStudentHead,
			Action:     "SUBMIT",
			FromStatus: models.VoucherStatusDraft,
			ToStatus:   models.VoucherStatusPendingFaculty,
			CreatedAt:  now,
		},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepositoryCommitTransitionConflict(t *testing.T) {
	db, mock, cleanup := newVoucherRepoMock(t)
	defer cleanup()

	repo := NewVoucherRepository(db)
	now := time.Now().UTC()

	// A concurrent writer already advanced the voucher past the read snapshot.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE vouchers SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CommitTransition(context.Background(), TransitionParams{
		VoucherID:  "voucher-1",
		FromStatus: models.VoucherStatusPendingFaculty,
		ToStatus:   models.VoucherStatusPendingDeanSWO,
		Version:    2,
		UpdatedAt:  now,
		Entry: &models.ApprovalEntry{
			VoucherID: "voucher-1",
			CreatedAt: now,
		},
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepositoryListApprovals(t *testing.T) {
	db, mock, cleanup := newVoucherRepoMock(t)
	defer cleanup()

	repo := NewVoucherRepository(db)
	rows := sqlmock.NewRows([]string{"id", "voucher_id", "actor_id", "actor_role", "action", "from_status", "to_status", "comment", "created_at"}).
		AddRow("app-1", "voucher-1", "head-1", "STUDENT_HEAD", "SUBMIT", "DRAFT", "PENDING_FACULTY", nil, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, voucher_id, actor_id")).
		WithArgs("voucher-1").
		WillReturnRows(rows)

	entries, err := repo.ListApprovals(context.Background(), "voucher-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, models.VoucherStatusDraft, entries[0].FromStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}
