package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/univkit/registrar-api/internal/service"
	appErrors "github.com/univkit/registrar-api/pkg/errors"
	"github.com/univkit/registrar-api/pkg/response"
)

// GradeHandler exposes grade submission and grade change endpoints.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// Submit godoc
// @Summary Submit a final grade
// @Description Only the instructor of record or an admin may submit; non-admins are held to the term grade deadline.
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.SubmitGradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SubmitGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.SubmittedBy = claims.UserID

	enrollment, err := h.grades.SubmitGrade(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// BulkSubmit godoc
// @Summary Submit grades for a whole section
// @Description Rows that fail are reported individually; the rest are persisted.
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.BulkSubmitGradesRequest true "Bulk grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /grades/bulk [post]
func (h *GradeHandler) BulkSubmit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.BulkSubmitGradesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.SubmittedBy = claims.UserID

	result, err := h.grades.BulkSubmitGrades(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Distribution godoc
// @Summary Grade distribution for a section
// @Tags Grades
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sections/{id}/grades/distribution [get]
func (h *GradeHandler) Distribution(c *gin.Context) {
	distribution, err := h.grades.CalculateDistribution(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, distribution, nil)
}

// Progress godoc
// @Summary Grading progress for a section
// @Tags Grades
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sections/{id}/grades/progress [get]
func (h *GradeHandler) Progress(c *gin.Context) {
	progress, err := h.grades.GradingProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// ExportRoster godoc
// @Summary Export a section's grade roster as CSV
// @Tags Grades
// @Produce text/csv
// @Param id path string true "Section ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /sections/{id}/grades/export [get]
func (h *GradeHandler) ExportRoster(c *gin.Context) {
	sectionID := c.Param("id")
	data, err := h.grades.ExportSectionGrades(c.Request.Context(), sectionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=grades-"+sectionID+".csv")
	c.Data(http.StatusOK, "text/csv", data)
}

// RequestChange godoc
// @Summary Request a grade change
// @Description Opens a change request against an already-graded enrollment.
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.GradeChangeRequestInput true "Change request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /grades/changes [post]
func (h *GradeHandler) RequestChange(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var input service.GradeChangeRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	input.RequestedBy = claims.UserID

	request, err := h.grades.RequestGradeChange(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// ApproveChange godoc
// @Summary Approve a pending grade change
// @Tags Grades
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /grades/changes/{id}/approve [post]
func (h *GradeHandler) ApproveChange(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	enrollment, err := h.grades.ApproveGradeChange(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// DenyChange godoc
// @Summary Deny a pending grade change
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Change request ID"
// @Param payload body map[string]string true "Denial reason"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /grades/changes/{id}/deny [post]
func (h *GradeHandler) DenyChange(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "denial reason required"))
		return
	}

	request, err := h.grades.DenyGradeChange(c.Request.Context(), c.Param("id"), claims.UserID, payload.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
