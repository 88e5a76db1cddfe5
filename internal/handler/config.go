package handler

import (
	"net/http"

	"github.com/unichat/internal/config"
)

// ConfigHandler exposes the public settings the client needs before logging in.
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

type RealtimeConfig struct {
	Transport      string `json:"transport"`
	PollIntervalMS int64  `json:"pollIntervalMs"`
}

// GetRealtimeConfig tells the client whether to open /ws or to poll.
func (h *ConfigHandler) GetRealtimeConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RealtimeConfig{
		Transport:      h.cfg.Realtime,
		PollIntervalMS: h.cfg.PollInterval.Milliseconds(),
	})
}
