/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the leave and payroll engine via REST API. Handles HTTP
  request/response and JSON serialization, and delegates to the engine.
  No engine package imports this one.

ENDPOINTS:
  Profiles:
    PUT    /api/employees/{id}/profile                       Upsert profile
    GET    /api/employees/{id}/profile                       Get profile

  Leave:
    GET    /api/employees/{id}/leave-summary                 Leave summary
    POST   /api/employees/{id}/attendance/{yearMonth}/preview Preview consumption
    PUT    /api/employees/{id}/attendance/{yearMonth}         Commit attendance
    GET    /api/employees/{id}/attendance/{yearMonth}         Get attendance
    POST   /api/employees/{id}/leave-requests                Submit request
    GET    /api/leave-requests                               List requests
    POST   /api/leave-requests/{id}/approve                  Approve
    POST   /api/leave-requests/{id}/reject                   Reject

  Payroll:
    PUT    /api/employees/{id}/bonus/{yearMonth}             Record bonus
    POST   /api/salary-slips                                 Get or generate slip
    GET    /api/salary-slips                                 Salary history
    POST   /api/payroll/close/{yearMonth}                    Month close

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid state transitions
  - 404: Not found
  - 409: Duplicate pending request, idempotency, concurrent modification
  - 422: Insufficient leave balance
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/payroll"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Attendance *leave.AttendanceService
	Requests   *leave.Workflow
	Slips      *payroll.SlipService
	Clock      generic.Clock
	Logger     *zap.Logger
}

// NewHandler creates a new handler over the engine services.
func NewHandler(attendance *leave.AttendanceService, requests *leave.Workflow, slips *payroll.SlipService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Attendance: attendance,
		Requests:   requests,
		Slips:      slips,
		Logger:     logger,
	}
}

// =============================================================================
// PROFILE ENDPOINTS
// =============================================================================

// PutProfile creates or replaces an employee profile.
// PUT /api/employees/{id}/profile
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	pf, err := payroll.ParsePFStatus(req.PFStatus)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	profile := payroll.Profile{
		EmployeeID:  generic.EntityID(chi.URLParam(r, "id")),
		Name:        req.Name,
		Department:  req.Department,
		Designation: req.Designation,
		BaseSalary:  req.BaseSalary,
		PF:          pf,
	}
	if req.PFStartDate != "" {
		start, err := generic.ParseYearMonth(req.PFStartDate)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		profile.PFStartDate = &start
	}

	if err := h.Slips.SaveProfile(r.Context(), profile); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	saved, err := h.Slips.GetProfile(r.Context(), profile.EmployeeID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(saved))
}

// GetProfile returns an employee profile.
// GET /api/employees/{id}/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Slips.GetProfile(r.Context(), generic.EntityID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(profile))
}

// =============================================================================
// LEAVE ENDPOINTS
// =============================================================================

// GetLeaveSummary returns used/total per leave type for the entitlement
// period containing ?yearMonth= (or January of ?year=, or the current month).
// GET /api/employees/{id}/leave-summary
func (h *Handler) GetLeaveSummary(w http.ResponseWriter, r *http.Request) {
	ym := generic.YearMonthOf(h.Clock.Now())
	q := r.URL.Query()
	if s := q.Get("yearMonth"); s != "" {
		parsed, err := generic.ParseYearMonth(s)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		ym = parsed
	} else if s := q.Get("year"); s != "" {
		year, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		ym = generic.NewYearMonth(year, time.January)
	}

	summary, err := h.Requests.Summary(r.Context(), generic.EntityID(chi.URLParam(r, "id")), ym)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// PreviewAttendance resolves leave consumption without committing it.
// POST /api/employees/{id}/attendance/{yearMonth}/preview
func (h *Handler) PreviewAttendance(w http.ResponseWriter, r *http.Request) {
	in, ok := h.attendanceInput(w, r)
	if !ok {
		return
	}
	result, err := h.Attendance.Preview(r.Context(), in)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SaveAttendance commits the month's attendance and its leave debits.
// PUT /api/employees/{id}/attendance/{yearMonth}
func (h *Handler) SaveAttendance(w http.ResponseWriter, r *http.Request) {
	in, ok := h.attendanceInput(w, r)
	if !ok {
		return
	}
	record, err := h.Attendance.Save(r.Context(), in)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(record))
}

// GetAttendance returns the committed attendance for a month.
// GET /api/employees/{id}/attendance/{yearMonth}
func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	ym, err := generic.ParseYearMonth(chi.URLParam(r, "yearMonth"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	record, err := h.Attendance.Get(r.Context(), generic.EntityID(chi.URLParam(r, "id")), ym)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(record))
}

func (h *Handler) attendanceInput(w http.ResponseWriter, r *http.Request) (leave.AttendanceInput, bool) {
	var req AttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return leave.AttendanceInput{}, false
	}
	ym, err := generic.ParseYearMonth(chi.URLParam(r, "yearMonth"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return leave.AttendanceInput{}, false
	}
	mode, err := leave.ParseMode(req.LeaveMode)
	if err != nil {
		h.writeEngineError(w, r, err)
		return leave.AttendanceInput{}, false
	}
	return leave.AttendanceInput{
		EmployeeID: generic.EntityID(chi.URLParam(r, "id")),
		YearMonth:  ym,
		AbsentDays: req.AbsentDays,
		Mode:       mode,
		RecordedBy: req.RecordedBy,
	}, true
}

// SubmitLeaveRequest creates a pending leave request.
// POST /api/employees/{id}/leave-requests
func (h *Handler) SubmitLeaveRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ym, err := generic.ParseYearMonth(req.YearMonth)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	leaveType, err := leave.ParseType(req.LeaveType)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	created, err := h.Requests.Submit(r.Context(), leave.SubmitInput{
		EmployeeID: generic.EntityID(chi.URLParam(r, "id")),
		YearMonth:  ym,
		Days:       req.Days,
		Type:       leaveType,
		Reason:     req.Reason,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveRequestDTO(created))
}

// ListLeaveRequests lists requests filtered by ?status=, ?employeeId= and ?yearMonth=.
// GET /api/leave-requests
func (h *Handler) ListLeaveRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := leave.RequestFilter{EmployeeID: generic.EntityID(q.Get("employeeId"))}
	if s := q.Get("status"); s != "" {
		status, err := leave.ParseStatus(s)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		filter.Status = status
	}
	if s := q.Get("yearMonth"); s != "" {
		ym, err := generic.ParseYearMonth(s)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		filter.YearMonth = ym
	}

	requests, err := h.Requests.List(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]LeaveRequestDTO, 0, len(requests))
	for i := range requests {
		dtos = append(dtos, toLeaveRequestDTO(&requests[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveLeaveRequest approves a pending request and debits the ledger.
// POST /api/leave-requests/{id}/approve
func (h *Handler) ApproveLeaveRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveLeaveRequest(w, r, h.Requests.Approve)
}

// RejectLeaveRequest rejects a pending request.
// POST /api/leave-requests/{id}/reject
func (h *Handler) RejectLeaveRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveLeaveRequest(w, r, h.Requests.Reject)
}

type resolveFunc func(ctx context.Context, id, approverID, comments string) (*leave.Request, error)

func (h *Handler) resolveLeaveRequest(w http.ResponseWriter, r *http.Request, resolve resolveFunc) {
	var req ResolveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	resolved, err := resolve(r.Context(), chi.URLParam(r, "id"), req.ApproverID, req.Comments)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(resolved))
}

// =============================================================================
// PAYROLL ENDPOINTS
// =============================================================================

// PutBonus records the bonus for an employee month.
// PUT /api/employees/{id}/bonus/{yearMonth}
func (h *Handler) PutBonus(w http.ResponseWriter, r *http.Request) {
	var req BonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ym, err := generic.ParseYearMonth(chi.URLParam(r, "yearMonth"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	bonus := payroll.Bonus{
		EmployeeID: generic.EntityID(chi.URLParam(r, "id")),
		YearMonth:  ym,
		Amount:     req.Amount,
		Note:       req.Note,
		RecordedBy: req.RecordedBy,
	}
	if err := h.Slips.SaveBonus(r.Context(), bonus); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"employeeId": bonus.EmployeeID,
		"yearMonth":  bonus.YearMonth,
		"amount":     bonus.Amount,
	})
}

// GenerateSlip returns the stored slip or generates one.
// POST /api/salary-slips
func (h *Handler) GenerateSlip(w http.ResponseWriter, r *http.Request) {
	var req GenerateSlipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "employeeId is required", nil)
		return
	}
	ym, err := generic.ParseYearMonth(req.YearMonth)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	result, err := h.Slips.GetOrCreate(r.Context(), generic.EntityID(req.EmployeeID), ym, req.ForceRegenerate)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Source == payroll.SourceGenerated {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// ListSlips returns stored slips newest first, filtered by ?employeeId=,
// ?department=, ?year= and ?month=.
// GET /api/salary-slips
func (h *Handler) ListSlips(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := payroll.SlipFilter{
		EmployeeID: generic.EntityID(q.Get("employeeId")),
		Department: q.Get("department"),
	}
	var err error
	if filter.Year, err = queryInt(q.Get("year")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	if filter.Month, err = queryInt(q.Get("month")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	slips, err := h.Slips.ListSlips(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if slips == nil {
		slips = []payroll.SalarySlip{}
	}
	writeJSON(w, http.StatusOK, slips)
}

// CloseMonth generates every missing slip for the month.
// POST /api/payroll/close/{yearMonth}
func (h *Handler) CloseMonth(w http.ResponseWriter, r *http.Request) {
	ym, err := generic.ParseYearMonth(chi.URLParam(r, "yearMonth"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	report, err := h.Slips.GenerateMonth(r.Context(), ym)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine errors onto HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *generic.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Code:  "insufficient_balance",
			Details: map[string]any{
				"available": insufficient.Available.Value,
				"requested": insufficient.Requested.Value,
			},
		})
	case generic.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, generic.ErrDuplicatePendingRequest):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "duplicate_pending_request"})
	case generic.IsConflict(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "conflict"})
	case errors.Is(err, generic.ErrInvalidState):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_state"})
	case generic.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_input"})
	default:
		h.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
