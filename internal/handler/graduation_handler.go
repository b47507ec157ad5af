package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/univkit/registrar-api/internal/service"
	appErrors "github.com/univkit/registrar-api/pkg/errors"
	"github.com/univkit/registrar-api/pkg/response"
)

// GraduationHandler exposes the graduation clearance workflow.
type GraduationHandler struct {
	applications *service.GraduationClearanceService
}

// NewGraduationHandler constructs GraduationHandler.
func NewGraduationHandler(applications *service.GraduationClearanceService) *GraduationHandler {
	return &GraduationHandler{applications: applications}
}

// List godoc
// @Summary List graduation applications
// @Tags Graduation
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param termId query string false "Filter by term"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /graduation/applications [get]
func (h *GraduationHandler) List(c *gin.Context) {
	var req service.GraduationListRequest
	req.StudentID = c.Query("studentId")
	req.TermID = c.Query("termId")
	req.Status = strings.ToUpper(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		req.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		req.PageSize = size
	}

	applications, pagination, err := h.applications.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, applications, pagination)
}

// Get godoc
// @Summary Get graduation application by ID
// @Tags Graduation
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /graduation/applications/{id} [get]
func (h *GraduationHandler) Get(c *gin.Context) {
	application, err := h.applications.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, application, nil)
}

// Create godoc
// @Summary Open a graduation application
// @Tags Graduation
// @Accept json
// @Produce json
// @Param payload body service.CreateGraduationApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /graduation/applications [post]
func (h *GraduationHandler) Create(c *gin.Context) {
	var req service.CreateGraduationApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	application, err := h.applications.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, application)
}

// InitiateClearance godoc
// @Summary Start the clearance run for an application
// @Description Financial and library holds are checked automatically; registrar and academic sign off manually.
// @Tags Graduation
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /graduation/applications/{id}/clearance [post]
func (h *GraduationHandler) InitiateClearance(c *gin.Context) {
	application, err := h.applications.InitiateClearance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, application, nil)
}

// ClearDepartment godoc
// @Summary Record one department's clearance decision
// @Tags Graduation
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body service.ClearDepartmentRequest true "Clearance payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /graduation/applications/{id}/clearance/departments [post]
func (h *GraduationHandler) ClearDepartment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ClearDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.ApplicationID = c.Param("id")
	req.ClearedBy = claims.UserID

	application, err := h.applications.ClearDepartment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, application, nil)
}

// FinalApprove godoc
// @Summary Final-approve a fully cleared application
// @Tags Graduation
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /graduation/applications/{id}/approve [post]
func (h *GraduationHandler) FinalApprove(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	application, err := h.applications.FinalApprove(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, application, nil)
}
