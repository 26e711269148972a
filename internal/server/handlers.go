package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/biotwin/biotwin/internal/store"
	"github.com/biotwin/biotwin/pkg/calendar"
	"github.com/biotwin/biotwin/pkg/scanner"
)

const maxUploadBytes = 20 << 20 // 20 MB

// apologyMessage hides internals from the chat surface; the real error
// goes to the log.
const apologyMessage = "Something went wrong on my end. Please try again in a moment."

// userID resolves the caller identity. The prototype frontend is
// single-user, so an absent header maps to a fixed identity.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "default"
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Bio-Twin Agentic Health System is Running",
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleScan accepts a multipart document image, extracts a biomarker
// report, and persists it as the user's latest scan.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file upload")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	report, err := s.scanner.Scan(r.Context(), imageFormat(header.Filename), data)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scan failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	raw, err := json.Marshal(report)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode report")
		return
	}

	if _, err := s.store.SaveScan(r.Context(), userID(r), string(raw)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist scan")
	}

	writeJSON(w, http.StatusOK, report)
}

// handleHealthData returns the dashboard view of the latest scan, or
// null when nothing has been scanned yet.
func (s *Server) handleHealthData(w http.ResponseWriter, r *http.Request) {
	scan, err := s.store.LatestScan(r.Context(), userID(r))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var report scanner.Report
	if err := json.Unmarshal([]byte(scan.Report), &report); err != nil {
		writeError(w, http.StatusInternalServerError, "stored scan is unreadable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       report.OverallStatus,
		"hydration":    report.HydrationLevel,
		"lastScan":     scan.CreatedAt.Format("2006-01-02 15:04"),
		"details":      report.Summary,
		"score":        report.HealthScore,
		"velocity":     report.Velocity,
		"riskFactor":   report.PrimaryRisk,
		"correlations": report.Correlations,
	})
}

type chatRequest struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	session, err := s.sessions(userID(r))
	if err != nil {
		s.logger.Error().Err(err).Msg("Session resolution failed")
		writeError(w, http.StatusInternalServerError, apologyMessage)
		return
	}

	reply, err := session.Reply(r.Context(), req.Message, req.Context)
	if err != nil {
		s.logger.Error().Err(err).Msg("Chat failed")
		writeError(w, http.StatusBadGateway, apologyMessage)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reply": reply})
}

type agentActRequest struct {
	Metrics map[string]any `json:"metrics"`
}

func (s *Server) handleAgentAct(w http.ResponseWriter, r *http.Request) {
	var req agentActRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	session, err := s.sessions(userID(r))
	if err != nil {
		s.logger.Error().Err(err).Msg("Session resolution failed")
		writeError(w, http.StatusInternalServerError, apologyMessage)
		return
	}

	response, err := session.Run(r.Context(), req.Metrics)
	if err != nil {
		s.logger.Error().Err(err).Msg("Agent run failed")
		writeError(w, http.StatusBadGateway, apologyMessage)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"agent_response": response})
}

func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil || s.oauth.ClientID == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"error":   "oauth is not configured",
			"message": "Set the Google client ID and secret in the configuration.",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"url": calendar.AuthURL(s.oauth, userID(r)),
	})
}

// handleAuthCallback exchanges the consent code and bounces the browser
// back to the frontend. The OAuth state carries the user identity.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code parameter")
		return
	}

	uid := r.URL.Query().Get("state")
	if uid == "" {
		uid = userID(r)
	}

	if err := calendar.ExchangeAndStore(r.Context(), s.oauth, s.store, uid, code); err != nil {
		s.logger.Error().Err(err).Msg("OAuth exchange failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	http.Redirect(w, r, s.frontendURL+"/?auth=success", http.StatusTemporaryRedirect)
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"connected": s.authorized(r.Context(), userID(r)),
	})
}

func (s *Server) handleHistoryAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "history analysis is not configured")
		return
	}

	analysis, err := s.analyzer.Analyze(r.Context(), userID(r))
	if err != nil {
		s.logger.Error().Err(err).Msg("History analysis failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"analysis": analysis})
}

// imageFormat maps an upload filename to the inline-data format tag the
// vision model expects.
func imageFormat(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "png"
	case ".webp":
		return "webp"
	default:
		return "jpeg"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
