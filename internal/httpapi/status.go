package httpapi

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

type readinessCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type readinessResponse struct {
	Status     string           `json:"status"`
	MemoryMode string           `json:"memory_mode"`
	Checks     []readinessCheck `json:"checks"`
}

// handleReady reports whether both storage directories accept writes. It
// answers 503 when any check is an error.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	checks := []readinessCheck{
		dirCheck("context_dir", "Session context directory", s.cfg.ContextDir, "CONTEXT_DIR"),
		dirCheck("event_log_dir", "Event log directory", s.cfg.EventLogDir, "EVENT_LOG_DIR"),
		s.memoryCheck(),
	}

	resp := readinessResponse{Status: "ready", MemoryMode: s.memoryMode, Checks: checks}
	status := http.StatusOK
	for _, c := range checks {
		if c.Status == "error" {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			break
		}
	}
	respondJSON(w, status, resp)
}

func (s *Server) memoryCheck() readinessCheck {
	switch s.memoryMode {
	case "postgres":
		return readinessCheck{ID: "memory_store", Status: "ok", Label: "Turn archive", Detail: "postgres"}
	case "":
		return readinessCheck{ID: "memory_store", Status: "warn", Label: "Turn archive", Detail: "disabled"}
	default:
		return readinessCheck{
			ID:     "memory_store",
			Status: "warn",
			Label:  "Turn archive",
			Detail: s.memoryMode + " only",
			Fix:    "Set DATABASE_URL to keep archived turns across restarts.",
		}
	}
}

// dirCheck checks dir is writable by creating and removing a temp file.
func dirCheck(id, label, dir, envKey string) readinessCheck {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return readinessCheck{
			ID:     id,
			Status: "error",
			Label:  label,
			Detail: envKey + " is empty",
			Fix:    fmt.Sprintf("Set %s to a writable directory.", envKey),
		}
	}
	f, err := os.CreateTemp(dir, ".ready-*")
	if err != nil {
		return readinessCheck{
			ID:     id,
			Status: "error",
			Label:  label,
			Detail: "not writable: " + err.Error(),
			Fix:    fmt.Sprintf("Check permissions on %s or point %s elsewhere.", filepath.Clean(dir), envKey),
		}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return readinessCheck{ID: id, Status: "ok", Label: label, Detail: filepath.Clean(dir)}
}
