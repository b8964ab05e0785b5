package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/piwardrive/piwardrive/internal/config"
	"github.com/piwardrive/piwardrive/internal/core/domain"
	"github.com/piwardrive/piwardrive/internal/core/services/auth"
	"github.com/piwardrive/piwardrive/internal/core/services/export"
	syncsvc "github.com/piwardrive/piwardrive/internal/core/services/sync"
)

const (
	defaultStatusSamples = 10
	defaultLogLines      = 200
	maxLogLines          = 1000
	defaultSyncLimit     = 100
)

// widgetIdentifiers are the dashboard widgets the UI may place.
var widgetIdentifiers = []string{
	"signal-strength", "detection-rate", "cpu-temp", "cpu-usage",
	"ram-usage", "disk-usage", "gps-status", "suspicious-activity",
	"network-density", "scanner-status",
}

var serviceAllowList = map[string]struct{}{
	"gpsd":      {},
	"kismet":    {},
	"bettercap": {},
}

var serviceActions = map[string]struct{}{
	"start":   {},
	"stop":    {},
	"restart": {},
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorPayload{Code: strconv.Itoa(code), Message: message})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// handleToken exchanges form credentials for a bearer token.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	token, err := s.auth.Login(r.Context(), username, password)
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	case err != nil:
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	samples, err := s.health.Recent(r.Context(), queryInt(r, "limit", defaultStatusSamples))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "health query failed")
		return
	}
	if samples == nil {
		samples = []*domain.HealthSample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) sample(w http.ResponseWriter, r *http.Request) (*domain.HealthSample, bool) {
	if s.sampler == nil {
		writeError(w, http.StatusServiceUnavailable, "health sampler unavailable")
		return nil, false
	}
	sample, err := s.sampler.Sample(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "health sample failed")
		return nil, false
	}
	return sample, true
}

func (s *Server) handleCPU(w http.ResponseWriter, r *http.Request) {
	sample, ok := s.sample(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"percent": sample.CPUPercent,
		"temp_c":  sample.CPUTempC,
	})
}

func (s *Server) handleRAM(w http.ResponseWriter, r *http.Request) {
	sample, ok := s.sample(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"percent": sample.MemoryPercent})
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	sample, ok := s.sample(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"percent": sample.DiskPercent})
}

func (s *Server) handleGPS(w http.ResponseWriter, r *http.Request) {
	if s.position == nil {
		writeError(w, http.StatusServiceUnavailable, "gps unavailable")
		return
	}
	payload := map[string]any{
		"fix": string(s.position.FixQuality(r.Context())),
	}
	if pos, ok := s.position.Position(r.Context()); ok {
		payload["lat"] = pos.Lat
		payload["lon"] = pos.Lon
	}
	if acc, ok := s.position.Accuracy(r.Context()); ok {
		payload["accuracy_m"] = acc
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleLogs tails an allow-listed log file.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" && len(s.logAllowList) > 0 {
		path = s.logAllowList[0]
	}
	if !s.pathAllowed(path) {
		writeError(w, http.StatusBadRequest, "path is not allow-listed")
		return
	}

	lines := queryInt(r, "lines", defaultLogLines)
	if lines > maxLogLines {
		lines = maxLogLines
	}
	tail, err := tailFile(path, lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "log read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "lines": tail})
}

// pathAllowed matches the cleaned absolute path against the allow list.
func (s *Server) pathAllowed(path string) bool {
	if path == "" {
		return false
	}
	cleaned := filepath.Clean(path)
	if !filepath.IsAbs(cleaned) {
		return false
	}
	for _, allowed := range s.logAllowList {
		if cleaned == filepath.Clean(allowed) {
			return true
		}
	}
	return false
}

func tailFile(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Snapshot())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if err := s.settings.Update(patch); err != nil {
		switch {
		case errors.Is(err, config.ErrUnknownKey), errors.Is(err, config.ErrBadValue):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "settings update failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, s.settings.Snapshot())
}

func (s *Server) handleGetWebhooks(w http.ResponseWriter, r *http.Request) {
	urls := s.settings.Snapshot().NotificationWebhooks
	if urls == nil {
		urls = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"urls": urls})
}

func (s *Server) handleSetWebhooks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URLs []string `json:"urls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	raw, err := json.Marshal(body.URLs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode failed")
		return
	}
	patch := map[string]json.RawMessage{"notification_webhooks": raw}
	if err := s.settings.Update(patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"urls": body.URLs})
}

func (s *Server) handleExportAPs(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("fmt")
	if format == "" {
		format = "geojson"
	}
	entries, err := s.aps.APCache(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ap cache query failed")
		return
	}

	var buf bytes.Buffer
	if err := export.Export(&buf, format, entries); err != nil {
		if errors.Is(err, export.ErrUnknownFormat) {
			writeError(w, http.StatusBadRequest, "unknown export format")
			return
		}
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", "attachment; filename=aps."+format)
	w.Write(buf.Bytes())
}

func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := serviceAllowList[name]; !ok {
		writeError(w, http.StatusBadRequest, "unknown service")
		return
	}
	out, err := s.serviceRunner(r.Context(), "is-active", name)
	active := err == nil && strings.TrimSpace(string(out)) == "active"
	writeJSON(w, http.StatusOK, map[string]any{"service": name, "active": active})
}

func (s *Server) handleServiceAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, action := vars["name"], vars["action"]
	if _, ok := serviceAllowList[name]; !ok {
		writeError(w, http.StatusBadRequest, "unknown service")
		return
	}
	if _, ok := serviceActions[action]; !ok {
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	if _, err := s.serviceRunner(r.Context(), action, name); err != nil {
		writeError(w, http.StatusInternalServerError, "service control failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"service": name, "action": action, "status": "ok"})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "sync unavailable")
		return
	}
	count, err := s.syncer.SyncNewRecords(r.Context(), queryInt(r, "limit", defaultSyncLimit))
	if err != nil {
		if errors.Is(err, syncsvc.ErrNoRemote) {
			writeError(w, http.StatusBadRequest, "remote_sync_url is not configured")
			return
		}
		writeError(w, http.StatusBadGateway, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"synced": count})
}

func (s *Server) handleWidgets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"widgets": widgetIdentifiers})
}

func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	settings, err := s.state.Dashboard(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "dashboard query failed")
		return
	}
	if settings == nil {
		settings = &domain.DashboardSettings{Widgets: []string{}}
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleSetDashboard(w http.ResponseWriter, r *http.Request) {
	var settings domain.DashboardSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	for _, widget := range settings.Widgets {
		if strings.ContainsAny(widget, "/\\") {
			writeError(w, http.StatusBadRequest, "widget names may not contain path separators")
			return
		}
	}
	if err := s.state.SaveDashboard(r.Context(), &settings); err != nil {
		writeError(w, http.StatusInternalServerError, "dashboard save failed")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// systemctlRunner is the default ServiceRunner.
func systemctlRunner(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "systemctl", args...).CombinedOutput()
}
