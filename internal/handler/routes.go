package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/univkit/registrar-api/internal/middleware"
	"github.com/univkit/registrar-api/internal/models"
	"github.com/univkit/registrar-api/internal/service"
)

// Handlers groups everything RegisterRoutes needs to wire the API surface.
type Handlers struct {
	Auth        *AuthHandler
	Students    *StudentHandler
	Terms       *TermHandler
	Sections    *SectionHandler
	Enrollments *EnrollmentHandler
	Grades      *GradeHandler
	Approvals   *ApprovalHandler
	Graduation  *GraduationHandler
	Transcripts *TranscriptHandler
	Metrics     *MetricsHandler

	AuthService *service.AuthService
	AuditWriter middleware.AuditWriter
}

// RegisterRoutes mounts the versioned API under /api/v1. Everything except
// login, refresh and token-signed downloads sits behind JWT auth.
func RegisterRoutes(r *gin.Engine, h Handlers) {
	v1 := r.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)

	// Signed tokens carry their own authorization.
	v1.GET("/transcripts/download", h.Transcripts.Download)

	secured := v1.Group("")
	secured.Use(middleware.JWT(h.AuthService))

	secured.POST("/auth/logout", h.Auth.Logout)
	secured.POST("/auth/change-password",
		middleware.Audit(h.AuditWriter, models.AuditActionPasswordChange, "user"),
		h.Auth.ChangePassword)
	secured.GET("/auth/me", h.Auth.Me)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)

	students := secured.Group("/students")
	students.GET("", staff, h.Students.List)
	students.POST("", staff, h.Students.Create)
	students.GET("/:id", staff, h.Students.Get)
	students.PATCH("/:id/active", staff, h.Students.SetActive)
	students.GET("/:id/transcript", staff, h.Transcripts.Get)
	students.POST("/:id/transcript/export", staff, h.Transcripts.Export)

	terms := secured.Group("/terms")
	terms.GET("", h.Terms.List)
	terms.GET("/:id", h.Terms.Get)
	terms.POST("", staff, h.Terms.Create)
	terms.POST("/:id/activate", staff, h.Terms.Activate)

	sections := secured.Group("/sections")
	sections.GET("", h.Sections.List)
	sections.GET("/:id", h.Sections.Get)
	sections.POST("", staff, h.Sections.Create)
	sections.GET("/:id/grades/distribution",
		middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleFaculty),
		h.Grades.Distribution)
	sections.GET("/:id/grades/progress",
		middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleFaculty),
		h.Grades.Progress)
	sections.GET("/:id/grades/export",
		middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleFaculty),
		h.Grades.ExportRoster)

	enrollments := secured.Group("/enrollments")
	enrollments.GET("",
		middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleFaculty),
		h.Enrollments.List)
	enrollments.GET("/:id", h.Enrollments.Get)
	enrollments.POST("",
		middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleStudent),
		middleware.Audit(h.AuditWriter, models.AuditActionEnroll, "enrollment"),
		h.Enrollments.Create)
	enrollments.DELETE("/:id",
		middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleStudent),
		middleware.Audit(h.AuditWriter, models.AuditActionWithdraw, "enrollment"),
		h.Enrollments.Withdraw)

	grades := secured.Group("/grades")
	faculty := middleware.RequireRoles(models.RoleAdmin, models.RoleFaculty)
	grades.POST("", faculty,
		middleware.Audit(h.AuditWriter, models.AuditActionGradeSubmit, "enrollment"),
		h.Grades.Submit)
	grades.POST("/bulk", faculty,
		middleware.Audit(h.AuditWriter, models.AuditActionGradeSubmit, "section"),
		h.Grades.BulkSubmit)
	grades.POST("/changes", faculty, h.Grades.RequestChange)
	grades.POST("/changes/:id/approve", staff,
		middleware.Audit(h.AuditWriter, models.AuditActionGradeSubmit, "grade_change"),
		h.Grades.ApproveChange)
	grades.POST("/changes/:id/deny", staff, h.Grades.DenyChange)

	approvals := secured.Group("/approvals", staff)
	approvals.GET("", h.Approvals.List)
	approvals.GET("/:id", h.Approvals.Get)
	approvals.POST("", h.Approvals.Create)
	approvals.POST("/:id/approve",
		middleware.Audit(h.AuditWriter, models.AuditActionApprovalChange, "approval"),
		h.Approvals.Approve)
	approvals.POST("/:id/deny",
		middleware.Audit(h.AuditWriter, models.AuditActionApprovalChange, "approval"),
		h.Approvals.Deny)

	graduation := secured.Group("/graduation/applications")
	graduation.GET("", staff, h.Graduation.List)
	graduation.GET("/:id", h.Graduation.Get)
	graduation.POST("",
		middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleStudent),
		h.Graduation.Create)
	graduation.POST("/:id/clearance", staff,
		middleware.Audit(h.AuditWriter, models.AuditActionClearance, "graduation_application"),
		h.Graduation.InitiateClearance)
	graduation.POST("/:id/clearance/departments", staff,
		middleware.Audit(h.AuditWriter, models.AuditActionClearance, "graduation_application"),
		h.Graduation.ClearDepartment)
	graduation.POST("/:id/approve", staff,
		middleware.Audit(h.AuditWriter, models.AuditActionClearance, "graduation_application"),
		h.Graduation.FinalApprove)

	secured.GET("/admin/metrics",
		middleware.RequireRoles(models.RoleAdmin),
		h.Metrics.Snapshot)
}
