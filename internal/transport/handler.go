package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/sirupsen/logrus"

	"github.com/hubexhq/hubex/internal/auth"
	"github.com/hubexhq/hubex/internal/config"
	"github.com/hubexhq/hubex/internal/service"
	hublog "github.com/hubexhq/hubex/pkg/log"
)

type TransportHandler struct {
	serviceHandler *service.ServiceHandler
	log            logrus.FieldLogger
}

func NewTransportHandler(serviceHandler *service.ServiceHandler, log logrus.FieldLogger) *TransportHandler {
	return &TransportHandler{serviceHandler: serviceHandler, log: log}
}

// NewRouter assembles the full middleware chain and route table. The guard
// sits before per-route handlers but needs the finished router to resolve
// chi patterns, so it is wired in after assembly.
func NewRouter(h *TransportHandler, ws *WebsocketHandler, cfg *config.Config, log logrus.FieldLogger) chi.Router {
	guard := auth.NewGuard(h.serviceHandler.Store(), h.serviceHandler.JWT(), cfg.Auth.CapsEnforce, log)

	requestTimeout, err := time.ParseDuration(cfg.Service.RequestTimeout)
	if err != nil || requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(log),
		middleware.Recoverer,
		httprate.LimitByRealIP(cfg.Limits.APIRequestsPerMin, time.Minute),
		// Timeout precedes the guard so its token lookups run under the
		// request deadline too.
		middleware.Timeout(requestTimeout),
		guard.Handler,
	)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Get("/users/me", h.GetCurrentUser)

		r.Post("/devices/hello", h.DeviceHello)
		r.Get("/devices/whoami", h.DeviceWhoami)
		r.Get("/devices/lookup/{deviceUid}", h.LookupDevice)
		r.Get("/devices", h.ListDevices)
		r.Get("/devices/{deviceId}", h.GetDevice)
		r.Get("/devices/{deviceId}/telemetry/recent", h.RecentDeviceTelemetry)
		r.Get("/devices/{deviceId}/telemetry/ws", ws.DeviceTelemetry)

		r.Post("/devices/{deviceId}/tasks", h.CreateTask)
		r.Get("/devices/{deviceId}/tasks", h.ListDeviceTasks)
		r.Get("/devices/{deviceId}/current-task", h.CurrentTask)
		r.Get("/devices/{deviceId}/task-history", h.TaskHistory)
		r.Post("/devices/{deviceId}/tasks/{taskId}/cancel", h.CancelTask)

		// The devices/pairing aliases serve firmware that predates the
		// flat pairing routes.
		r.Post("/pairing/start", h.PairingStart)
		r.Post("/pairing/confirm", h.PairingConfirm)
		r.Post("/devices/pairing/start", h.PairingStart)
		r.Post("/devices/pairing/confirm", h.PairingConfirm)

		r.Post("/telemetry", h.IngestTelemetry)

		r.Get("/entities", h.ListEntities)
		r.Get("/entities/{entityId}", h.GetEntity)
		r.Get("/entities/{entityId}/devices", h.ListEntityDevices)

		r.Post("/tasks/poll", h.PollTasks)
		r.Post("/tasks/context/heartbeat", h.HeartbeatContext)
		r.Post("/tasks/{taskId}/renew", h.RenewTask)
		r.Post("/tasks/{taskId}/complete", h.CompleteTask)

		r.Get("/variables/definitions", h.ListVariableDefinitions)
		r.Post("/variables/definitions", h.CreateVariableDefinition)
		r.Get("/variables/value", h.GetVariableValue)
		r.Put("/variables/value", h.SetVariableValue)
		r.Post("/variables/set", h.SetVariableValue)
		r.Get("/variables/effective", h.EffectiveVariables)
		r.Get("/variables/snapshot", h.GetSnapshot)
		r.Post("/variables/applied", h.VariableApplied)
		r.Get("/variables/audit", h.ListVariableAudit)
		r.Get("/variables/effects", h.ListEffects)
		r.Get("/variables/effects/{effectId}", h.GetEffect)
		r.Post("/variables/effects/run-once", h.RunEffectsOnce)
	})

	guard.SetRouter(router)
	return router
}

func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(wrapped, r)
			hublog.WithReqIDFromCtx(r.Context(), log).WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   wrapped.Status(),
				"duration": time.Since(start).String(),
			}).Info("request handled")
		})
	}
}
