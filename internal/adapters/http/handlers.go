package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pressflow/internal/app"
	"pressflow/internal/domain"
)

// writeError maps a workflow error kind to an HTTP status. Transport is the
// only layer that knows about status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindAuthorization:
		status = http.StatusForbidden
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict, domain.KindSequence:
		status = http.StatusConflict
	}
	if errors.Is(err, domain.ErrLocked) {
		status = http.StatusLocked
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": domain.KindOf(err)})
}

type WorkflowHandler struct {
	workflows *app.WorkflowService
}

func NewWorkflowHandler(workflows *app.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows}
}

type StepRequest struct {
	StepNumber          int      `json:"stepNumber" binding:"required"`
	Name                string   `json:"name" binding:"required"`
	Description         string   `json:"description"`
	Required            bool     `json:"required"`
	TimeoutMinutes      int      `json:"timeoutMinutes" binding:"required"`
	MinApprovals        int      `json:"minApprovals" binding:"required"`
	AllowDelegation     bool     `json:"allowDelegation"`
	AuthorizedApprovers []string `json:"authorizedApprovers" binding:"required"`
}

type CreateWorkflowRequest struct {
	Name               string        `json:"name" binding:"required"`
	Description        string        `json:"description"`
	AutoApprove        bool          `json:"autoApprove"`
	RequiredApprovers  int           `json:"requiredApprovers"`
	AllowParallelSteps bool          `json:"allowParallelSteps"`
	GlobalTimeoutHours int           `json:"globalTimeoutHours"`
	Steps              []StepRequest `json:"steps" binding:"required"`
	CreatedBy          string        `json:"createdBy" binding:"required"`
}

func (h *WorkflowHandler) CreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	steps := make([]domain.StepDefinition, len(req.Steps))
	for i, s := range req.Steps {
		steps[i] = domain.StepDefinition{
			StepNumber:          s.StepNumber,
			Name:                s.Name,
			Description:         s.Description,
			Required:            s.Required,
			Timeout:             time.Duration(s.TimeoutMinutes) * time.Minute,
			MinApprovals:        s.MinApprovals,
			AllowDelegation:     s.AllowDelegation,
			AuthorizedApprovers: s.AuthorizedApprovers,
		}
	}

	wf := domain.NewWorkflowDefinition(req.Name, req.CreatedBy, steps)
	wf.Description = req.Description
	wf.AutoApprove = req.AutoApprove
	wf.AllowParallelSteps = req.AllowParallelSteps
	if req.RequiredApprovers > 0 {
		wf.RequiredApprovers = req.RequiredApprovers
	}
	if req.GlobalTimeoutHours > 0 {
		wf.GlobalTimeout = time.Duration(req.GlobalTimeoutHours) * time.Hour
	}

	created, err := h.workflows.CreateWorkflowDefinition(c, wf)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	wf, err := h.workflows.GetWorkflowDefinition(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (h *WorkflowHandler) ListWorkflows(c *gin.Context) {
	workflows, err := h.workflows.ListWorkflowDefinitions(c)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": workflows})
}

func (h *WorkflowHandler) DeactivateWorkflow(c *gin.Context) {
	if err := h.workflows.DeactivateWorkflowDefinition(c, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Workflow deactivated"})
}

type PublishingHandler struct {
	publishing *app.PublishingService
	conflicts  *app.ConflictService
}

func NewPublishingHandler(publishing *app.PublishingService, conflicts *app.ConflictService) *PublishingHandler {
	return &PublishingHandler{publishing: publishing, conflicts: conflicts}
}

type SubmitRequest struct {
	DocumentID         string               `json:"documentId" binding:"required"`
	WorkflowID         string               `json:"workflowId" binding:"required"`
	SubmittedBy        string               `json:"submittedBy" binding:"required"`
	Destinations       []domain.Destination `json:"destinations" binding:"required"`
	Urgency            domain.Urgency       `json:"urgency"`
	ScheduledPublishAt *time.Time           `json:"scheduledPublishAt"`
	ExpiresAt          *time.Time           `json:"expiresAt"`
	Notes              string               `json:"notes"`
	Metadata           map[string]string    `json:"metadata"`
}

func (h *PublishingHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inst, err := h.publishing.Submit(c, app.SubmitInput{
		DocumentID:         req.DocumentID,
		WorkflowID:         req.WorkflowID,
		Destinations:       req.Destinations,
		Urgency:            req.Urgency,
		ScheduledPublishAt: req.ScheduledPublishAt,
		ExpiresAt:          req.ExpiresAt,
		Notes:              req.Notes,
		Metadata:           req.Metadata,
	}, req.SubmittedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inst)
}

func (h *PublishingHandler) ListInstances(c *gin.Context) {
	status := c.Query("status")
	if status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status query parameter is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	instances, err := h.publishing.ListInstances(c, domain.PublishingStatus(status), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"instances": instances})
}

func (h *PublishingHandler) GetInstance(c *gin.Context) {
	inst, err := h.publishing.GetInstance(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

type DecisionRequest struct {
	StepNumber int                 `json:"stepNumber" binding:"required"`
	ApproverID string              `json:"approverId" binding:"required"`
	Decision   domain.DecisionKind `json:"decision" binding:"required"`
	Comments   string              `json:"comments"`
}

func (h *PublishingHandler) Decide(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inst, outcome, err := h.publishing.Decide(c, c.Param("id"), req.StepNumber, req.ApproverID, req.Decision, req.Comments)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"instance": inst, "stepOutcome": outcome})
}

func (h *PublishingHandler) Publish(c *gin.Context) {
	if err := h.publishing.PublishInstance(c, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Instance published"})
}

func (h *PublishingHandler) GetTimeline(c *gin.Context) {
	timeline, err := h.publishing.GetTimeline(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeline": timeline})
}

func (h *PublishingHandler) GetDashboard(c *gin.Context) {
	principal := c.Query("approverId")
	if principal == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "approverId query parameter is required"})
		return
	}
	dashboard, err := h.publishing.GetDashboard(c, principal)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (h *PublishingHandler) ListConflicts(c *gin.Context) {
	conflicts, err := h.conflicts.ListOpenConflicts(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": conflicts})
}

type ResolveConflictRequest struct {
	Kind           domain.ResolutionKind `json:"kind" binding:"required"`
	Notes          string                `json:"notes"`
	ResolvedBy     string                `json:"resolvedBy" binding:"required"`
	Substitutions  map[string]string     `json:"substitutions"`
	ExtensionHours int                   `json:"extensionHours"`
}

func (h *PublishingHandler) ResolveConflict(c *gin.Context) {
	var req ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resolved, err := h.conflicts.Resolve(c, app.ResolveInput{
		InstanceID:    c.Param("id"),
		ConflictID:    c.Param("conflictId"),
		Kind:          req.Kind,
		Notes:         req.Notes,
		ResolvedBy:    req.ResolvedBy,
		Substitutions: req.Substitutions,
		Extension:     time.Duration(req.ExtensionHours) * time.Hour,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": resolved})
}

type SessionHandler struct {
	locks *app.LockService
}

func NewSessionHandler(locks *app.LockService) *SessionHandler {
	return &SessionHandler{locks: locks}
}

type CreateSessionRequest struct {
	DocumentID   string   `json:"documentId" binding:"required"`
	Participants []string `json:"participants" binding:"required"`
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session, err := h.locks.CreateSession(c, req.DocumentID, req.Participants)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	session, err := h.locks.GetSession(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) CloseSession(c *gin.Context) {
	if err := h.locks.CloseSession(c, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session closed"})
}

type LockRequest struct {
	Principal  string `json:"principal" binding:"required"`
	TTLSeconds int    `json:"ttlSeconds"`
}

func (h *SessionHandler) AcquireLock(c *gin.Context) {
	var req LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acquired, err := h.locks.Acquire(c, c.Param("id"), req.Principal, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acquired": acquired})
}

func (h *SessionHandler) ReleaseLock(c *gin.Context) {
	var req LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	released, err := h.locks.Release(c, c.Param("id"), req.Principal)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": released})
}

type RecordChangeRequest struct {
	Principal   string            `json:"principal" binding:"required"`
	Kind        domain.ChangeKind `json:"kind" binding:"required"`
	Description string            `json:"description"`
	Payload     json.RawMessage   `json:"payload"`
}

func (h *SessionHandler) RecordChange(c *gin.Context) {
	var req RecordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recorded, err := h.locks.RecordChange(c, c.Param("id"), req.Principal, req.Kind, req.Description, req.Payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": recorded})
}

// RegisterRoutes mounts the full API surface on router; main and the
// integration tests share this table.
func RegisterRoutes(router *gin.Engine, workflows *WorkflowHandler, publishing *PublishingHandler, sessions *SessionHandler) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/workflows", workflows.CreateWorkflow)
		v1.GET("/workflows", workflows.ListWorkflows)
		v1.GET("/workflows/:id", workflows.GetWorkflow)
		v1.DELETE("/workflows/:id", workflows.DeactivateWorkflow)

		v1.POST("/publishing", publishing.Submit)
		v1.GET("/publishing", publishing.ListInstances)
		v1.GET("/publishing/:id", publishing.GetInstance)
		v1.POST("/publishing/:id/decisions", publishing.Decide)
		v1.POST("/publishing/:id/publish", publishing.Publish)
		v1.GET("/publishing/:id/timeline", publishing.GetTimeline)
		v1.GET("/publishing/:id/conflicts", publishing.ListConflicts)
		v1.POST("/publishing/:id/conflicts/:conflictId/resolve", publishing.ResolveConflict)

		v1.GET("/dashboard", publishing.GetDashboard)

		v1.POST("/sessions", sessions.CreateSession)
		v1.GET("/sessions/:id", sessions.GetSession)
		v1.DELETE("/sessions/:id", sessions.CloseSession)
		v1.POST("/sessions/:id/lock", sessions.AcquireLock)
		v1.DELETE("/sessions/:id/lock", sessions.ReleaseLock)
		v1.POST("/sessions/:id/changes", sessions.RecordChange)
	}
}
