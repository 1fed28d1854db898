package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fintel/internal/core"
	"fintel/internal/llm"
	"fintel/internal/services"
)

type monthlyRequest struct {
	UserID         string `json:"user_id"`
	Month          string `json:"month"`
	IncludeAI      any    `json:"include_ai"`
	IncludeCompare any    `json:"include_compare"`
}

type weeklyRequest struct {
	UserID    string `json:"user_id"`
	Start     string `json:"start"`
	End       string `json:"end"`
	IncludeAI any    `json:"include_ai"`
}

type reportResponse struct {
	Insights *core.Insights `json:"insights"`
	AI       *llm.Narration `json:"ai"`
}

// handleAgentMonthly serves POST /agent/monthly. The month defaults to
// the current one; a month without a stored budget is 404.
func (s *Server) handleAgentMonthly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req monthlyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	month := core.MonthOf(time.Now())
	if strings.TrimSpace(req.Month) != "" {
		var err error
		month, err = core.ParseMonth(req.Month)
		if err != nil {
			writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
	}

	// Comparison and narration are on unless the agent opts out.
	ins, err := s.reports.MonthlyReport(r.Context(), req.UserID, month, safeBool(req.IncludeCompare, true))
	if err != nil {
		if errors.Is(err, services.ErrBudgetNotFound) {
			writeError(w, http.StatusNotFound, "no budget found for month")
			return
		}
		slog.ErrorContext(r.Context(), "Monthly report failed", "user_id", req.UserID, "month", month.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "report computation failed")
		return
	}

	s.respondWithReport(w, r, req.UserID, ins, safeBool(req.IncludeAI, true))
}

// handleAgentWeekly serves POST /agent/weekly. Without explicit dates
// the report covers the last seven days, today included.
func (s *Server) handleAgentWeekly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req weeklyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	start, end := services.LastWeekRange(time.Now())
	if strings.TrimSpace(req.Start) != "" || strings.TrimSpace(req.End) != "" {
		var err error
		start, err = core.ParseDate(req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
			return
		}
		end, err = core.ParseDate(req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
			return
		}
		if !end.After(start) {
			writeError(w, http.StatusBadRequest, "end must be after start")
			return
		}
	}

	ins, err := s.reports.WeeklyReport(r.Context(), req.UserID, start, end)
	if err != nil {
		slog.ErrorContext(r.Context(), "Weekly report failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "report computation failed")
		return
	}

	s.respondWithReport(w, r, req.UserID, ins, safeBool(req.IncludeAI, true))
}

// respondWithReport attaches the narration when requested, announces the
// report on the broker, and writes the response.
func (s *Server) respondWithReport(w http.ResponseWriter, r *http.Request, userID string, ins *core.Insights, includeAI bool) {
	resp := reportResponse{Insights: ins}

	if includeAI && s.narrations != nil {
		n, err := s.narrations.Narrate(r.Context(), userID, ins)
		if err != nil {
			// The numbers are the product; narration failure degrades to ai: null.
			slog.WarnContext(r.Context(), "Narration failed", "user_id", userID, "period_key", ins.PeriodKey, "error", err)
		} else {
			resp.AI = n
		}
	}

	// Announce the report only when no narration is in hand yet, so the
	// worker can pre-warm it for the next request.
	if s.publisher != nil && resp.AI == nil {
		fp := services.Fingerprint(ins)
		if err := s.publisher.PublishReportGenerated(r.Context(), userID, ins.Period, ins.PeriodKey, fp); err != nil {
			slog.WarnContext(r.Context(), "Report event publish failed", "user_id", userID, "period_key", ins.PeriodKey, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
