package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qudata/control/internal/domain"
	domainerrors "github.com/qudata/control/internal/domain/errors"
	"github.com/qudata/control/internal/usecase/provision"
)

type response struct {
	Ok    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type provisionRequest struct {
	SubscriptionID    string   `json:"subscription_id"`
	Shape             string   `json:"shape"`
	ImageID           string   `json:"image_id"`
	OCPUs             int      `json:"ocpus"`
	MemoryGB          int      `json:"memory_gb"`
	BootVolumeGB      int      `json:"boot_volume_gb"`
	SSHAuthorizedKeys []string `json:"ssh_authorized_keys"`
	SSHPrivateKey     string   `json:"ssh_private_key"`
}

type actionRequest struct {
	Action string `json:"action"`
}

type API struct {
	orchestrator *provision.Service
	logger       *slog.Logger
}

func NewAPI(orchestrator *provision.Service, logger *slog.Logger) *API {
	return &API{orchestrator: orchestrator, logger: logger}
}

func (a *API) RegisterRoutes(router *gin.Engine) {
	router.GET("/ping", a.ping)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/instances", a.provision)
	router.GET("/instances", a.listInstances)
	router.GET("/instances/:id", a.getInstance)
	router.POST("/instances/:id/actions", a.performAction)
	router.GET("/instances/:id/log", a.actionLog)
	router.DELETE("/boundaries/:name", a.teardown)
}

func (a *API) ping(c *gin.Context) {
	c.JSON(http.StatusOK, response{Ok: true})
}

func (a *API) provision(c *gin.Context) {
	userID := userID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: "user id is required"})
		return
	}

	var req provisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.logger.Warn("provision: invalid payload", "err", err)
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.Shape) == "" || strings.TrimSpace(req.ImageID) == "" {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: "shape and image_id are required"})
		return
	}

	spec := domain.LaunchSpec{
		SubscriptionID:    req.SubscriptionID,
		Shape:             req.Shape,
		ImageID:           req.ImageID,
		OCPUs:             req.OCPUs,
		MemoryGB:          req.MemoryGB,
		BootVolumeGB:      req.BootVolumeGB,
		SSHAuthorizedKeys: req.SSHAuthorizedKeys,
		SSHPrivateKey:     req.SSHPrivateKey,
	}

	inst, err := a.orchestrator.Provision(c.Request.Context(), userID, spec)
	if err != nil {
		a.fail(c, "provision", err)
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: inst})
}

func (a *API) listInstances(c *gin.Context) {
	userID := userID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: "user id is required"})
		return
	}

	instances, err := a.orchestrator.ListInstances(c.Request.Context(), userID)
	if err != nil {
		a.fail(c, "list instances", err)
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: instances})
}

func (a *API) getInstance(c *gin.Context) {
	inst, err := a.orchestrator.GetInstance(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		a.fail(c, "get instance", err)
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: inst})
}

func (a *API) performAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.logger.Warn("perform action: invalid payload", "err", err)
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: err.Error()})
		return
	}

	act, ok := parseAction(req.Action)
	if !ok {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: "unknown action " + req.Action})
		return
	}

	inst, err := a.orchestrator.PerformAction(c.Request.Context(), userID(c), c.Param("id"), act)
	if err != nil {
		a.fail(c, "perform action", err)
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: inst})
}

func (a *API) actionLog(c *gin.Context) {
	entries, err := a.orchestrator.ActionLog(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		a.fail(c, "action log", err)
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: entries})
}

func (a *API) teardown(c *gin.Context) {
	summary, err := a.orchestrator.Teardown(c.Request.Context(), c.Param("name"))
	if err != nil {
		a.fail(c, "teardown", err)
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: summary})
}

// userID is set by the upstream auth layer; cross-user access is already
// rejected before requests reach this service.
func userID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader("X-User-Id"))
}

func parseAction(s string) (domain.InstanceAction, bool) {
	switch strings.ToUpper(s) {
	case "START":
		return domain.ActionStart, true
	case "STOP":
		return domain.ActionStop, true
	case "RESTART":
		return domain.ActionRestart, true
	case "TERMINATE":
		return domain.ActionTerminate, true
	default:
		return "", false
	}
}

// fail maps the error taxonomy onto HTTP statuses: the caller learns
// whether retrying can help.
func (a *API) fail(c *gin.Context, op string, err error) {
	a.logger.Error(op+" failed", "err", err)

	status := http.StatusInternalServerError
	var clientErr domainerrors.ClientError
	var incompatErr domainerrors.IncompatibleShapeError
	var notReadyErr domainerrors.NotReadyError
	var capacityErr domainerrors.CapacityError
	var driftErr domainerrors.DriftError
	switch {
	case errors.As(err, &clientErr), errors.As(err, &incompatErr):
		status = http.StatusBadRequest
	case errors.As(err, &notReadyErr):
		status = http.StatusServiceUnavailable
	case errors.As(err, &capacityErr):
		status = http.StatusConflict
	case errors.As(err, &driftErr):
		status = http.StatusGone
	}
	c.JSON(status, response{Ok: false, Error: err.Error()})
}
