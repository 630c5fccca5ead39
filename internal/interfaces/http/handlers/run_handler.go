package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sitesim/reactor/internal/application/runservice"
	"github.com/sitesim/reactor/internal/domain/signature"
	"github.com/sitesim/reactor/pkg/errors"
)

// RunHandler exposes the REST surface SPEC_FULL §11 assigns to gin: submit a
// signature/parameter set, start/stop/query a run, and fetch its latest
// observable report.
type RunHandler struct {
	manager *runservice.Manager
}

// NewRunHandler builds a RunHandler over a run manager.
func NewRunHandler(manager *runservice.Manager) *RunHandler {
	return &RunHandler{manager: manager}
}

// createRunRequest is the JSON body accepted by POST /api/v1/runs.
type createRunRequest struct {
	Signature    string  `json:"signature" binding:"required"`
	Seed         uint64  `json:"seed"`
	SimLimit     float64 `json:"sim_limit"`
	SimLimitKind string  `json:"sim_limit_kind"`

	Volume            float64 `json:"volume"`
	Temperature       float64 `json:"temperature"`
	ReferenceVolume   float64 `json:"reference_volume"`
	ReferenceTemp     float64 `json:"reference_temp"`
	KdWeak            float64 `json:"kd_weak"`
	KdMedium          float64 `json:"kd_medium"`
	KdStrong          float64 `json:"kd_strong"`
	KOn               float64 `json:"k_on"`
	ResizeVolume      float64 `json:"resize_volume"`
	RescaleTemp       float64 `json:"rescale_temp"`
	RingClosureFactor float64 `json:"ring_closure_factor"`
}

// Create handles POST /api/v1/runs: parses the posted signature and
// parameters and starts a new tracked run, returning its ID immediately.
func (h *RunHandler) Create(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c.Writer, errors.InvalidParam(err.Error()))
		return
	}
	if req.SimLimitKind == "" {
		req.SimLimitKind = "time"
	}

	id, err := h.manager.StartRun(c.Request.Context(), runservice.StartRunRequest{
		SignatureText: req.Signature,
		Seed:          req.Seed,
		SimLimit:      req.SimLimit,
		SimLimitKind:  req.SimLimitKind,
		Parameters: signature.Parameters{
			Volume:            req.Volume,
			Temperature:       req.Temperature,
			ReferenceVolume:   req.ReferenceVolume,
			ReferenceTemp:     req.ReferenceTemp,
			KdWeak:            req.KdWeak,
			KdMedium:          req.KdMedium,
			KdStrong:          req.KdStrong,
			KOn:               req.KOn,
			ResizeVolume:      req.ResizeVolume,
			RescaleTemp:       req.RescaleTemp,
			RingClosureFactor: req.RingClosureFactor,
		},
	})
	if err != nil {
		writeAppError(c.Writer, err)
		return
	}

	writeJSON(c.Writer, http.StatusAccepted, gin.H{"run_id": id})
}

// Get handles GET /api/v1/runs/:id: returns a run's current status, clock,
// and event count.
func (h *RunHandler) Get(c *gin.Context) {
	state, err := h.manager.GetRun(c.Param("id"))
	if err != nil {
		writeAppError(c.Writer, err)
		return
	}
	writeJSON(c.Writer, http.StatusOK, state)
}

// Stop handles POST /api/v1/runs/:id/stop: cancels an in-flight run.
func (h *RunHandler) Stop(c *gin.Context) {
	if err := h.manager.StopRun(c.Param("id")); err != nil {
		writeAppError(c.Writer, err)
		return
	}
	writeJSON(c.Writer, http.StatusOK, gin.H{"status": "stopping"})
}

// reportResponse is the JSON shape returned by GET /api/v1/runs/:id/report:
// one time axis, and one named column per registered observable.
type reportResponse struct {
	Stamps     []float64            `json:"stamps"`
	Series     map[string][]float64 `json:"series"`
}

// Report handles GET /api/v1/runs/:id/report: returns every registered
// observable's sampled trajectory for a tracked run.
func (h *RunHandler) Report(c *gin.Context) {
	mon, err := h.manager.Report(c.Param("id"))
	if err != nil {
		writeAppError(c.Writer, err)
		return
	}

	resp := reportResponse{
		Stamps: mon.Stamps(),
		Series: make(map[string][]float64),
	}
	for _, obs := range mon.Observables() {
		if s, ok := mon.Series(obs.Name); ok {
			resp.Series[obs.Name] = s.Points
		}
	}
	writeJSON(c.Writer, http.StatusOK, resp)
}
