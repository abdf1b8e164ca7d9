package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/swo-voucher-api/internal/dto"
	"github.com/noah-isme/swo-voucher-api/internal/models"
	appErrors "github.com/noah-isme/swo-voucher-api/pkg/errors"
	"github.com/noah-isme/swo-voucher-api/pkg/export"
	"github.com/noah-isme/swo-voucher-api/pkg/jobs"
	"github.com/noah-isme/swo-voucher-api/pkg/storage"
)

// JobTypeRenderArtifact identifies async PDF render jobs.
const JobTypeRenderArtifact = "artifact.render"

type artifactVoucherStore interface {
	GetByID(ctx context.Context, id string) (*models.Voucher, error)
	ListApprovals(ctx context.Context, voucherID string) ([]models.ApprovalEntry, error)
}

type artifactUserDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type artifactStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Exists(filename string) bool
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type artifactRenderer interface {
	Render(doc export.VoucherDocument) ([]byte, error)
}

// ArtifactService renders approved vouchers into PDFs and brokers
// signed download links for them.
type ArtifactService struct {
	vouchers artifactVoucherStore
	users    artifactUserDirectory
	storage  artifactStorage
	renderer artifactRenderer
	signer   *storage.SignedURLSigner
	audit    auditLogger
	queue    *jobs.Queue
	logger   *zap.Logger
	baseURL  string
}

// NewArtifactService constructs the artifact pipeline.
func NewArtifactService(
	vouchers artifactVoucherStore,
	users artifactUserDirectory,
	store artifactStorage,
	signer *storage.SignedURLSigner,
	audit auditLogger,
	logger *zap.Logger,
) *ArtifactService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactService{
		vouchers: vouchers,
		users:    users,
		storage:  store,
		renderer: export.NewVoucherPDFExporter(),
		signer:   signer,
		audit:    audit,
		logger:   logger,
		baseURL:  "/api/v1/artifacts",
	}
}

// AttachQueue wires the background render queue once it exists.
func (s *ArtifactService) AttachQueue(q *jobs.Queue) {
	s.queue = q
}

// IssueLink returns a signed, expiring download link for a passed voucher.
func (s *ArtifactService) IssueLink(ctx context.Context, voucherID string, actor *models.JWTClaims) (*dto.ArtifactLink, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	voucher, err := s.loadPassed(ctx, voucherID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudentHead && voucher.CreatedBy != actor.UserID {
		return nil, appErrors.ErrForbidden
	}

	relPath, err := s.ensureRendered(ctx, voucher)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(voucher.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign artifact link")
	}
	return &dto.ArtifactLink{
		VoucherID: voucher.ID,
		Token:     token,
		URL:       fmt.Sprintf("%s/%s", s.baseURL, token),
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// ServeDownload validates a signed token and opens the rendered artifact.
// The token itself is the authorization; no session is required.
func (s *ArtifactService) ServeDownload(ctx context.Context, token string) (*os.File, string, error) {
	voucherID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "artifact link is invalid or expired")
	}

	voucher, err := s.loadPassed(ctx, voucherID)
	if err != nil {
		return nil, "", err
	}

	if !s.storage.Exists(relPath) {
		// Expired cleanup may have removed the file; render again.
		if relPath, err = s.renderAndStore(ctx, voucher); err != nil {
			return nil, "", err
		}
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open artifact")
	}

	s.emitDownloadAudit(ctx, voucher)
	return file, fmt.Sprintf("%s.pdf", voucher.VoucherNumber), nil
}

// EnqueuePrerender schedules a background render so the artifact is
// already on disk the first time someone asks for it.
func (s *ArtifactService) EnqueuePrerender(voucherID string) {
	if s.queue == nil {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    JobTypeRenderArtifact,
		Payload: voucherID,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue artifact render", zap.String("voucher_id", voucherID), zap.Error(err))
	}
}

// HandleRenderJob is the queue handler for render jobs.
func (s *ArtifactService) HandleRenderJob(ctx context.Context, job jobs.Job) error {
	voucherID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("render job payload must be a voucher id, got %T", job.Payload)
	}
	voucher, err := s.loadPassed(ctx, voucherID)
	if err != nil {
		return err
	}
	_, err = s.renderAndStore(ctx, voucher)
	return err
}

// CleanupExpired removes rendered artifacts older than the retention window.
func (s *ArtifactService) CleanupExpired(retention time.Duration) {
	removed, err := s.storage.CleanupOlderThan(retention)
	if err != nil {
		s.logger.Warn("artifact cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("removed expired artifacts", zap.Int("count", len(removed)))
	}
}

func (s *ArtifactService) loadPassed(ctx context.Context, voucherID string) (*models.Voucher, error) {
	voucher, err := s.vouchers.GetByID(ctx, voucherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load voucher")
	}
	if voucher.Status != models.VoucherStatusPassed {
		return nil, appErrors.Clone(appErrors.ErrArtifactNotReady,
			fmt.Sprintf("voucher is %s; the artifact is only available once it has passed", voucher.Status))
	}
	return voucher, nil
}

func (s *ArtifactService) ensureRendered(ctx context.Context, voucher *models.Voucher) (string, error) {
	relPath := artifactPath(voucher.ID)
	if s.storage.Exists(relPath) {
		return relPath, nil
	}
	return s.renderAndStore(ctx, voucher)
}

func (s *ArtifactService) renderAndStore(ctx context.Context, voucher *models.Voucher) (string, error) {
	entries, err := s.vouchers.ListApprovals(ctx, voucher.ID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval trail")
	}

	doc := export.VoucherDocument{
		Number:      voucher.VoucherNumber,
		Title:       voucher.Title,
		ClubName:    voucher.ClubName,
		EventDate:   voucher.EventDate.Format("2006-01-02"),
		EventVenue:  voucher.EventVenue,
		Budget:      fmt.Sprintf("%.2f", voucher.BudgetAmount),
		Description: voucher.Description,
		Status:      string(voucher.Status),
		CreatedBy:   s.displayName(ctx, voucher.CreatedBy),
	}
	for _, entry := range entries {
		line := export.ApprovalLine{
			Actor:  s.displayName(ctx, entry.ActorID),
			Role:   string(entry.ActorRole),
			Action: entry.Action,
			From:   string(entry.FromStatus),
			To:     string(entry.ToStatus),
			At:     entry.CreatedAt.Format("2006-01-02 15:04"),
		}
		if entry.Comment != nil {
			line.Comment = *entry.Comment
		}
		doc.Approvals = append(doc.Approvals, line)
	}

	data, err := s.renderer.Render(doc)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render artifact")
	}
	relPath := artifactPath(voucher.ID)
	if _, err := s.storage.Save(relPath, data); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store artifact")
	}
	return relPath, nil
}

func (s *ArtifactService) displayName(ctx context.Context, userID string) string {
	if s.users == nil {
		return userID
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return userID
	}
	return user.FullName
}

func (s *ArtifactService) emitDownloadAudit(ctx context.Context, voucher *models.Voucher) {
	if s.audit == nil {
		return
	}
	id := voucher.ID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		Action:     models.AuditActionVoucherDownload,
		Resource:   "voucher_artifact",
		ResourceID: &id,
		IPAddress:  "system",
		UserAgent:  "artifact-service",
	}); err != nil {
		s.logger.Warn("failed to persist download audit log", zap.Error(err))
	}
}

func artifactPath(voucherID string) string {
	return fmt.Sprintf("vouchers/%s.pdf", voucherID)
}
