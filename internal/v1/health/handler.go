// Package health exposes the HTTP health surface: the full /health
// snapshot used by clients and the startup port-conflict probe, the
// /status config summary, and liveness/readiness probes for orchestration.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/bus"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/config"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/logging"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/transport"
)

// ServiceName identifies this server on /health. The startup probe keys
// compatibility off it.
const ServiceName = "ox-arena"

// Handler serves the health endpoints for one worker.
type Handler struct {
	hub   *transport.Hub
	cfg   *config.Config
	redis *bus.Service
}

// NewHandler creates a health handler. redis may be nil.
func NewHandler(hub *transport.Hub, cfg *config.Config, redis *bus.Service) *Handler {
	return &Handler{hub: hub, cfg: cfg, redis: redis}
}

// QuizSnapshot is the quiz section of the top-room report.
type QuizSnapshot struct {
	Active         bool   `json:"active"`
	Phase          string `json:"phase"`
	AutoMode       bool   `json:"autoMode"`
	AutoStartsAt   int64  `json:"autoStartsAt,omitempty"`
	QuestionIndex  int    `json:"questionIndex"`
	TotalQuestions int    `json:"totalQuestions"`
}

// TopRoomReport describes the busiest room.
type TopRoomReport struct {
	Code     string       `json:"code"`
	Players  int          `json:"players"`
	Capacity int          `json:"capacity"`
	HostName string       `json:"hostName,omitempty"`
	Quiz     QuizSnapshot `json:"quiz"`
}

// Report is the full /health response body.
type Report struct {
	OK              bool           `json:"ok"`
	Service         string         `json:"service"`
	Rooms           int            `json:"rooms"`
	Online          int            `json:"online"`
	TotalPlayers    int            `json:"totalPlayers"`
	ActiveQuizRooms int            `json:"activeQuizRooms"`
	CapacityPerRoom int            `json:"capacityPerRoom"`
	MaxActiveRooms  int            `json:"maxActiveRooms"`
	TickRate        int            `json:"tickRate"`
	TopRoom         *TopRoomReport `json:"topRoom,omitempty"`
	Now             int64          `json:"now"`
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	stats := h.hub.Stats()
	report := Report{
		OK:              true,
		Service:         ServiceName,
		Rooms:           stats.Rooms,
		Online:          stats.Online,
		TotalPlayers:    stats.TotalPlayers,
		ActiveQuizRooms: stats.ActiveQuizRooms,
		CapacityPerRoom: h.cfg.RoomCapacity,
		MaxActiveRooms:  h.cfg.MaxRooms,
		TickRate:        h.cfg.TickRate,
		Now:             time.Now().UnixMilli(),
	}
	if stats.TopRoom != nil {
		report.TopRoom = &TopRoomReport{
			Code:     string(stats.TopRoom.Code),
			Players:  stats.TopRoom.Players,
			Capacity: stats.TopRoom.Capacity,
			HostName: stats.TopRoom.HostName,
			Quiz: QuizSnapshot{
				Active:         stats.TopRoom.Quiz.Active,
				Phase:          string(stats.TopRoom.Quiz.Phase),
				AutoMode:       stats.TopRoom.Quiz.AutoMode,
				AutoStartsAt:   stats.TopRoom.Quiz.AutoStartsAt,
				QuestionIndex:  stats.TopRoom.Quiz.QuestionIndex,
				TotalQuestions: stats.TopRoom.Quiz.TotalQuestions,
			},
		}
	}
	c.JSON(http.StatusOK, report)
}

// Status handles GET /status and GET /: a configuration summary.
func (h *Handler) Status(c *gin.Context) {
	stats := h.hub.Stats()
	c.JSON(http.StatusOK, gin.H{
		"ok":               true,
		"service":          ServiceName,
		"port":             h.cfg.Port,
		"rooms":            stats.Rooms,
		"online":           stats.Online,
		"capacityPerRoom":  h.cfg.RoomCapacity,
		"participantLimit": h.cfg.ParticipantLimit,
		"maxActiveRooms":   h.cfg.MaxRooms,
		"tickRate":         h.cfg.TickRate,
		"redisEnabled":     h.cfg.RedisEnabled,
		"developmentMode":  h.cfg.DevelopmentMode,
	})
}

// NotFound handles unmatched routes with a plain text 404.
func (h *Handler) NotFound(c *gin.Context) {
	c.String(http.StatusNotFound, "not found")
}

// Liveness handles GET /health/live: the process is alive, no dependency
// checks.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready, verifying the room directory when
// one is configured.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"redis": "healthy"}
	statusCode := http.StatusOK
	status := "ready"

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			logging.Error(ctx, "Redis health check failed", zap.Error(err))
			checks["redis"] = "unhealthy"
			status = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Register attaches every health route to the engine.
func (h *Handler) Register(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/health/live", h.Liveness)
	router.GET("/health/ready", h.Readiness)
	router.GET("/status", h.Status)
	router.GET("/", h.Status)
	router.NoRoute(h.NotFound)
}

// ProbeCompatible asks the server already bound to baseURL whether it is
// another instance of this service. Used on port-conflict startup: a
// compatible server means exit 0, anything else exit 1.
func ProbeCompatible(baseURL string, timeout time.Duration) (bool, error) {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false, fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, nil
	}
	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return false, nil
	}
	return report.OK && report.Service == ServiceName, nil
}
