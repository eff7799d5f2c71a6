package rest

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/netloom/flowengine/internal/infrastructure/logger"
	"github.com/netloom/flowengine/internal/registry"
	"github.com/netloom/flowengine/internal/runcontroller"
	"github.com/netloom/flowengine/pkg/models"
)

// RunHandlers serves the run-lifecycle endpoints: start, stop, and
// read back the final outcome of a top-level service or workflow.
type RunHandlers struct {
	controller *runcontroller.Controller
	services   *registry.ServiceRegistry
	logger     *logger.Logger

	mu   sync.Mutex
	runs map[string]*models.Run
}

// NewRunHandlers builds a RunHandlers.
func NewRunHandlers(controller *runcontroller.Controller, services *registry.ServiceRegistry, log *logger.Logger) *RunHandlers {
	return &RunHandlers{
		controller: controller,
		services:   services,
		logger:     log,
		runs:       make(map[string]*models.Run),
	}
}

type startRunRequest struct {
	ServiceID     string         `json:"service_id" binding:"required"`
	TargetDevices []string       `json:"target_devices"`
	TargetPools   []string       `json:"target_pools"`
	StartServices []string       `json:"start_services"`
	Payload       map[string]any `json:"payload"`
	Creator       string         `json:"creator"`
}

// HandleStartRun handles POST /api/v1/runs.
func (h *RunHandlers) HandleStartRun(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "request_id": GetRequestID(c)})
		return
	}

	svc, workflow, ok := h.services.Lookup(req.ServiceID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "service not found", "request_id": GetRequestID(c)})
		return
	}

	runtime := h.controller.NewRuntime(time.Now())
	opts := runcontroller.StartOptions{
		Runtime:       runtime,
		Service:       svc,
		Workflow:      workflow,
		Creator:       req.Creator,
		Trigger:       models.TriggerREST,
		Payload:       req.Payload,
		TargetDevices: req.TargetDevices,
		TargetPools:   req.TargetPools,
		StartServices: req.StartServices,
	}

	h.track(runtime, &models.Run{Runtime: runtime, Status: models.RunStatusRunning})

	reqCtx := c.Request.Context()
	runLog := h.logger.WithRuntime(runtime).WithService(req.ServiceID).WithContext(reqCtx)
	go func() {
		run, _, err := h.controller.Start(reqCtx, opts)
		if err != nil {
			runLog.Error("run failed", "error", err)
		}
		if run != nil {
			h.track(runtime, run)
		}
	}()

	runLog.Info("run started", "request_id", GetRequestID(c))
	c.JSON(http.StatusAccepted, gin.H{"runtime": runtime, "status": models.RunStatusRunning})
}

// HandleGetRun handles GET /api/v1/runs/{runtime}.
func (h *RunHandlers) HandleGetRun(c *gin.Context) {
	runtime := c.Param("runtime")
	run, ok := h.lookup(runtime)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found", "request_id": GetRequestID(c)})
		return
	}
	c.JSON(http.StatusOK, run)
}

// HandleStopRun handles POST /api/v1/runs/{runtime}/stop.
func (h *RunHandlers) HandleStopRun(c *gin.Context) {
	runtime := c.Param("runtime")
	run, ok := h.lookup(runtime)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found", "request_id": GetRequestID(c)})
		return
	}
	h.controller.Stop(run)
	h.logger.WithRuntime(runtime).Info("run stop requested", "request_id", GetRequestID(c))
	c.JSON(http.StatusAccepted, gin.H{"runtime": runtime, "status": "stop_requested"})
}

func (h *RunHandlers) track(runtime string, run *models.Run) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs[runtime] = run
}

func (h *RunHandlers) lookup(runtime string) (*models.Run, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	run, ok := h.runs[runtime]
	return run, ok
}
