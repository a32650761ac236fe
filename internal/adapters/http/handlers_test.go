package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"

	"pressflow/internal/adapters/cache"
	"pressflow/internal/adapters/database"
	"pressflow/internal/adapters/dispatch"
	"pressflow/internal/app"
	"pressflow/internal/domain"
	"pressflow/internal/testutil"
)

// noopQueue satisfies the notification port without a broker. Delivery is
// not under test here.
type noopQueue struct{}

func (noopQueue) Enqueue(_ context.Context, _ *domain.Notification) error { return nil }

type HTTPIntegrationTestSuite struct {
	suite.Suite
	container testcontainers.Container
	pool      *pgxpool.Pool
	router    *gin.Engine
}

func (s *HTTPIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()
	s.container, s.pool = testutil.SetupTestDatabase(s.T(), ctx)

	workflowRepo := database.NewPostgresWorkflowRepository(s.pool)
	instanceRepo := database.NewPostgresInstanceRepository(s.pool)
	decisionRepo := database.NewPostgresDecisionRepository(s.pool)
	conflictRepo := database.NewPostgresConflictRepository(s.pool)

	queue := noopQueue{}
	workflowService := app.NewWorkflowService(workflowRepo)
	publishingService := app.NewPublishingService(workflowRepo, instanceRepo, decisionRepo,
		queue, nil, dispatch.DefaultPublishers(nil))
	conflictService := app.NewConflictService(workflowRepo, instanceRepo, decisionRepo,
		conflictRepo, queue, publishingService)
	publishingService.SetConflictDetector(conflictService)
	lockService := app.NewLockService(cache.NewMemoryStore(), queue)

	gin.SetMode(gin.TestMode)
	s.router = gin.New()
	RegisterRoutes(s.router,
		NewWorkflowHandler(workflowService),
		NewPublishingHandler(publishingService, conflictService),
		NewSessionHandler(lockService))
}

func (s *HTTPIntegrationTestSuite) TearDownSuite() {
	testutil.CleanupTestDatabase(s.T(), context.Background(), s.container, s.pool)
}

func (s *HTTPIntegrationTestSuite) SetupTest() {
	testutil.TruncateTables(s.T(), context.Background(), s.pool)
}

// missingID is well formed but matches no row.
const missingID = "123e4567-e89b-12d3-a456-426614174000"

func (s *HTTPIntegrationTestSuite) request(method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		s.Require().NoError(err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HTTPIntegrationTestSuite) decode(w *httptest.ResponseRecorder, out any) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), out))
}

func (s *HTTPIntegrationTestSuite) createWorkflow(minApprovals int, approvers ...string) string {
	w := s.request(http.MethodPost, "/api/v1/workflows", CreateWorkflowRequest{
		Name:      "Editorial Review",
		CreatedBy: "editor-1",
		Steps: []StepRequest{{
			StepNumber:          1,
			Name:                "Content Review",
			TimeoutMinutes:      24 * 60,
			MinApprovals:        minApprovals,
			AuthorizedApprovers: approvers,
		}},
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var wf domain.WorkflowDefinition
	s.decode(w, &wf)
	return wf.ID
}

func (s *HTTPIntegrationTestSuite) submit(workflowID, documentID string) *domain.PublishingInstance {
	w := s.request(http.MethodPost, "/api/v1/publishing", SubmitRequest{
		DocumentID:   documentID,
		WorkflowID:   workflowID,
		SubmittedBy:  "editor-1",
		Destinations: []domain.Destination{{Kind: domain.DestinationPortal, Name: "Intranet"}},
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var inst domain.PublishingInstance
	s.decode(w, &inst)
	return &inst
}

func (s *HTTPIntegrationTestSuite) TestCreateWorkflowValidation() {
	w := s.request(http.MethodPost, "/api/v1/workflows", gin.H{"name": "No steps"})
	s.Equal(http.StatusBadRequest, w.Code)

	// Step numbers must be contiguous from 1.
	w = s.request(http.MethodPost, "/api/v1/workflows", CreateWorkflowRequest{
		Name:      "Broken",
		CreatedBy: "editor-1",
		Steps: []StepRequest{
			{StepNumber: 1, Name: "A", TimeoutMinutes: 60, MinApprovals: 1, AuthorizedApprovers: []string{"alice"}},
			{StepNumber: 3, Name: "B", TimeoutMinutes: 60, MinApprovals: 1, AuthorizedApprovers: []string{"bob"}},
		},
	})
	s.Equal(http.StatusBadRequest, w.Code)

	var body map[string]any
	s.decode(w, &body)
	s.Equal(string(domain.KindValidation), body["kind"])
}

func (s *HTTPIntegrationTestSuite) TestWorkflowLifecycle() {
	id := s.createWorkflow(1, "alice")

	w := s.request(http.MethodGet, "/api/v1/workflows/"+id, nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodGet, "/api/v1/workflows", nil)
	s.Equal(http.StatusOK, w.Code)
	var listing struct {
		Workflows []*domain.WorkflowDefinition `json:"workflows"`
	}
	s.decode(w, &listing)
	s.Len(listing.Workflows, 1)

	w = s.request(http.MethodDelete, "/api/v1/workflows/"+id, nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodGet, "/api/v1/workflows", nil)
	s.decode(w, &listing)
	s.Empty(listing.Workflows)

	w = s.request(http.MethodGet, "/api/v1/workflows/"+missingID, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HTTPIntegrationTestSuite) TestSubmitAndApproveToPublished() {
	workflowID := s.createWorkflow(1, "alice")
	inst := s.submit(workflowID, "doc-1")
	s.Equal(domain.StatusPendingApproval, inst.Status)

	w := s.request(http.MethodPost, "/api/v1/publishing/"+inst.ID+"/decisions", DecisionRequest{
		StepNumber: 1,
		ApproverID: "alice",
		Decision:   domain.DecisionApprove,
		Comments:   "looks good",
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var decided struct {
		Instance *domain.PublishingInstance `json:"instance"`
	}
	s.decode(w, &decided)
	s.Equal(domain.StatusPublished, decided.Instance.Status)

	// A terminal instance refuses further votes.
	w = s.request(http.MethodPost, "/api/v1/publishing/"+inst.ID+"/decisions", DecisionRequest{
		StepNumber: 1,
		ApproverID: "alice",
		Decision:   domain.DecisionApprove,
	})
	s.Equal(http.StatusConflict, w.Code)

	w = s.request(http.MethodGet, "/api/v1/publishing/"+inst.ID, nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodGet, "/api/v1/publishing?status=PUBLISHED", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var published struct {
		Instances []*domain.PublishingInstance `json:"instances"`
	}
	s.decode(w, &published)
	s.Len(published.Instances, 1)

	w = s.request(http.MethodGet, "/api/v1/publishing?status=BOGUS", nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.request(http.MethodGet, "/api/v1/publishing/"+inst.ID+"/timeline", nil)
	s.Equal(http.StatusOK, w.Code)
	var timeline struct {
		Timeline []app.TimelineEvent `json:"timeline"`
	}
	s.decode(w, &timeline)
	s.Require().NotEmpty(timeline.Timeline)
	s.Equal("SUBMITTED", timeline.Timeline[0].Event)
	s.Equal("PUBLISHED", timeline.Timeline[len(timeline.Timeline)-1].Event)
}

func (s *HTTPIntegrationTestSuite) TestDecideRejections() {
	workflowID := s.createWorkflow(1, "alice")
	inst := s.submit(workflowID, "doc-1")

	w := s.request(http.MethodPost, "/api/v1/publishing/"+inst.ID+"/decisions", DecisionRequest{
		StepNumber: 1,
		ApproverID: "mallory",
		Decision:   domain.DecisionApprove,
	})
	s.Equal(http.StatusForbidden, w.Code)

	w = s.request(http.MethodPost, "/api/v1/publishing/"+inst.ID+"/decisions", DecisionRequest{
		StepNumber: 1,
		ApproverID: "alice",
		Decision:   "ABSTAIN",
	})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.request(http.MethodPost, "/api/v1/publishing/"+missingID+"/decisions", DecisionRequest{
		StepNumber: 1,
		ApproverID: "alice",
		Decision:   domain.DecisionApprove,
	})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HTTPIntegrationTestSuite) TestSubmitConflicts() {
	workflowID := s.createWorkflow(1, "alice")
	s.submit(workflowID, "doc-1")

	w := s.request(http.MethodPost, "/api/v1/publishing", SubmitRequest{
		DocumentID:   "doc-1",
		WorkflowID:   workflowID,
		SubmittedBy:  "editor-1",
		Destinations: []domain.Destination{{Kind: domain.DestinationPortal, Name: "Intranet"}},
	})
	s.Equal(http.StatusConflict, w.Code)

	w = s.request(http.MethodPost, "/api/v1/publishing", SubmitRequest{
		DocumentID:   "doc-2",
		WorkflowID:   missingID,
		SubmittedBy:  "editor-1",
		Destinations: []domain.Destination{{Kind: domain.DestinationPortal, Name: "Intranet"}},
	})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HTTPIntegrationTestSuite) TestConflictListingAndResolution() {
	workflowID := s.createWorkflow(2, "alice", "bob")
	inst := s.submit(workflowID, "doc-1")

	w := s.request(http.MethodPost, "/api/v1/publishing/"+inst.ID+"/decisions", DecisionRequest{
		StepNumber: 1, ApproverID: "alice", Decision: domain.DecisionApprove,
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	w = s.request(http.MethodPost, "/api/v1/publishing/"+inst.ID+"/decisions", DecisionRequest{
		StepNumber: 1, ApproverID: "bob", Decision: domain.DecisionReject, Comments: "not ready",
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.request(http.MethodGet, "/api/v1/publishing/"+inst.ID+"/conflicts", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var listing struct {
		Conflicts []*domain.Conflict `json:"conflicts"`
	}
	s.decode(w, &listing)
	s.Require().Len(listing.Conflicts, 1)
	s.Equal(domain.ConflictApprovalDisagreement, listing.Conflicts[0].Kind)

	w = s.request(http.MethodPost,
		"/api/v1/publishing/"+inst.ID+"/conflicts/"+listing.Conflicts[0].ID+"/resolve",
		ResolveConflictRequest{
			Kind:       domain.ResolveEscalate,
			ResolvedBy: "chief-editor",
			Notes:      "raised with the desk",
		})
	s.Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.request(http.MethodPost,
		"/api/v1/publishing/"+inst.ID+"/conflicts/"+missingID+"/resolve",
		ResolveConflictRequest{Kind: domain.ResolveEscalate, ResolvedBy: "chief-editor"})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HTTPIntegrationTestSuite) TestDashboard() {
	w := s.request(http.MethodGet, "/api/v1/dashboard", nil)
	s.Equal(http.StatusBadRequest, w.Code)

	workflowID := s.createWorkflow(1, "alice")
	s.submit(workflowID, "doc-1")

	w = s.request(http.MethodGet, "/api/v1/dashboard?approverId=alice", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var dashboard app.Dashboard
	s.decode(w, &dashboard)
	s.Equal(1, dashboard.PendingApprovalCount)
	s.Len(dashboard.MyPendingDecisions, 1)
}

func (s *HTTPIntegrationTestSuite) TestSessionLocking() {
	w := s.request(http.MethodPost, "/api/v1/sessions", CreateSessionRequest{
		DocumentID:   "doc-1",
		Participants: []string{"alice", "bob"},
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var session domain.CollaborativeSession
	s.decode(w, &session)
	s.NotEmpty(session.SessionID)

	w = s.request(http.MethodPost, "/api/v1/sessions/"+session.SessionID+"/lock", LockRequest{Principal: "alice"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.request(http.MethodPost, "/api/v1/sessions/"+session.SessionID+"/lock", LockRequest{Principal: "bob"})
	s.Equal(http.StatusLocked, w.Code)

	w = s.request(http.MethodDelete, "/api/v1/sessions/"+session.SessionID+"/lock", LockRequest{Principal: "bob"})
	s.Equal(http.StatusForbidden, w.Code)

	w = s.request(http.MethodPost, "/api/v1/sessions/"+session.SessionID+"/changes", RecordChangeRequest{
		Principal:   "alice",
		Kind:        domain.ChangeContent,
		Description: "reworked the intro",
	})
	s.Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.request(http.MethodPost, "/api/v1/sessions/"+session.SessionID+"/changes", RecordChangeRequest{
		Principal: "mallory",
		Kind:      domain.ChangeContent,
	})
	s.Equal(http.StatusForbidden, w.Code)

	w = s.request(http.MethodDelete, "/api/v1/sessions/"+session.SessionID+"/lock", LockRequest{Principal: "alice"})
	s.Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodDelete, "/api/v1/sessions/"+session.SessionID, nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodGet, "/api/v1/sessions/"+session.SessionID, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func TestHTTPIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	suite.Run(t, new(HTTPIntegrationTestSuite))
}
