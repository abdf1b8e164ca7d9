package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/swo-voucher-api/internal/dto"
	"github.com/noah-isme/swo-voucher-api/internal/models"
	appErrors "github.com/noah-isme/swo-voucher-api/pkg/errors"
	"github.com/noah-isme/swo-voucher-api/pkg/response"
)

type artifactService interface {
	IssueLink(ctx context.Context, voucherID string, actor *models.JWTClaims) (*dto.ArtifactLink, error)
	ServeDownload(ctx context.Context, token string) (*os.File, string, error)
}

// ArtifactHandler serves signed links and downloads for voucher PDFs.
type ArtifactHandler struct {
	service artifactService
}

// NewArtifactHandler constructs the handler.
func NewArtifactHandler(service artifactService) *ArtifactHandler {
	return &ArtifactHandler{service: service}
}

// Link godoc
// @Summary Issue a signed download link for the voucher PDF
// @Tags Artifacts
// @Produce json
// @Param id path string true "Voucher ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /vouchers/{id}/pdf [get]
func (h *ArtifactHandler) Link(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	link, err := h.service.IssueLink(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download a voucher PDF via signed token
// @Tags Artifacts
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /artifacts/{token} [get]
func (h *ArtifactHandler) Download(c *gin.Context) {
	file, filename, err := h.service.ServeDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat artifact"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", file, nil)
}
