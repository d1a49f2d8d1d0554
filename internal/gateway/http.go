package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielohoh/sales-ai-agent/internal/approval"
	"github.com/danielohoh/sales-ai-agent/internal/executor"
	"github.com/danielohoh/sales-ai-agent/internal/observability"
	"github.com/danielohoh/sales-ai-agent/internal/plan"
	"github.com/danielohoh/sales-ai-agent/internal/service"
)

// ErrorResponse is the body of every non-plan error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// DecisionRequest approves or rejects a plan held by the server.
type DecisionRequest struct {
	UserID        string         `json:"user_id"`
	Modifications map[string]any `json:"modifications,omitempty"`
}

// ApprovalResponse reports the state a held plan reached.
type ApprovalResponse struct {
	PlanID string         `json:"plan_id"`
	State  approval.State `json:"state"`
	Result *plan.Result   `json:"result,omitempty"`
}

type Handlers struct {
	Service *service.Service
}

// NewRouter builds the HTTP API:
//
//	POST /v1/converse
//	POST /v1/execute
//	POST /v1/plans/:id/approve
//	POST /v1/plans/:id/reject
//	GET  /metrics
//	GET  /healthz
func NewRouter(svc *service.Service, debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	h := &Handlers{Service: svc}
	router := gin.New()
	router.Use(gin.Recovery())
	if debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	v1.POST("/converse", h.HandleConverse)
	v1.POST("/execute", h.HandleExecute)
	v1.POST("/plans/:id/approve", h.HandleApprove)
	v1.POST("/plans/:id/reject", h.HandleReject)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "process": observability.CurrentStatus()})
	})
	return router
}

// HandleConverse handles POST /v1/converse.
//
// Response:
//
//	200 OK: ConverseResponse, with action_plan when a plan awaits approval
//	400 Bad Request: malformed body, missing user_id or messages
func (h *Handlers) HandleConverse(c *gin.Context) {
	var req service.ConverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body: " + err.Error(), Code: plan.CodeInvalidInput})
		return
	}

	resp, err := h.Service.Converse(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: plan.CodeInvalidInput})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleExecute handles POST /v1/execute. The body is always an
// ActionPlanResult; the status code follows its code.
func (h *Handlers) HandleExecute(c *gin.Context) {
	var req executor.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, plan.Fail("", plan.CodeInvalidInput, "Invalid JSON body: "+err.Error()))
		return
	}

	res := h.Service.Execute(c.Request.Context(), req)
	c.JSON(StatusFor(res), res)
}

// HandleApprove handles POST /v1/plans/:id/approve.
func (h *Handlers) HandleApprove(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user_id is required", Code: plan.CodeInvalidInput})
		return
	}

	a, err := h.Service.Approve(c.Request.Context(), c.Param("id"), req.UserID, req.Modifications)
	if err != nil {
		writeApprovalError(c, err)
		return
	}
	c.JSON(StatusFor(a.Result), ApprovalResponse{PlanID: a.Plan.PlanID, State: a.State, Result: a.Result})
}

// HandleReject handles POST /v1/plans/:id/reject.
func (h *Handlers) HandleReject(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user_id is required", Code: plan.CodeInvalidInput})
		return
	}

	a, err := h.Service.Reject(c.Param("id"), req.UserID)
	if err != nil {
		writeApprovalError(c, err)
		return
	}
	c.JSON(http.StatusOK, ApprovalResponse{PlanID: a.Plan.PlanID, State: a.State})
}

func writeApprovalError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, approval.ErrUnknownPlan):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "unknown_plan"})
	case errors.Is(err, approval.ErrNotOwner):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error(), Code: "not_owner"})
	case errors.Is(err, approval.ErrInvalidTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "invalid_transition"})
	default:
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: err.Error(), Code: "unavailable"})
	}
}

// StatusFor maps an execution result to an HTTP status.
func StatusFor(res *plan.Result) int {
	if res == nil || res.Succeeded() {
		return http.StatusOK
	}
	switch res.Code {
	case plan.CodeInvalidInput:
		return http.StatusBadRequest
	case plan.CodeValidation, plan.CodeStepFailed:
		return http.StatusUnprocessableEntity
	case plan.CodeDuplicateClient, plan.CodeAlreadyExecuted:
		return http.StatusConflict
	case plan.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
