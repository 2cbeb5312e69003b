/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Engine types that
  already carry json tags (SalarySlip, ConsumptionResult, Summary) are
  returned as-is; the rest are mapped here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done by the engine, not in DTOs. DTOs are pure data carriers.
  Money values travel as decimal strings.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// PROFILES
// =============================================================================

// ProfileRequest is the body of PUT /api/employees/{id}/profile.
type ProfileRequest struct {
	Name        string          `json:"name"`
	Department  string          `json:"department"`
	Designation string          `json:"designation"`
	BaseSalary  decimal.Decimal `json:"baseSalary"`
	PFStatus    string          `json:"pfApplicable"`
	PFStartDate string          `json:"pfStartDate,omitempty"`
}

// ProfileDTO represents an employee payroll profile.
type ProfileDTO struct {
	EmployeeID  string          `json:"employeeId"`
	Name        string          `json:"name"`
	Department  string          `json:"department"`
	Designation string          `json:"designation"`
	BaseSalary  decimal.Decimal `json:"baseSalary"`
	PFStatus    string          `json:"pfApplicable"`
	PFStartDate string          `json:"pfStartDate,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func toProfileDTO(p *payroll.Profile) ProfileDTO {
	dto := ProfileDTO{
		EmployeeID:  string(p.EmployeeID),
		Name:        p.Name,
		Department:  p.Department,
		Designation: p.Designation,
		BaseSalary:  p.BaseSalary,
		PFStatus:    string(p.PF),
		UpdatedAt:   p.UpdatedAt,
	}
	if p.PFStartDate != nil {
		dto.PFStartDate = p.PFStartDate.String()
	}
	return dto
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// AttendanceRequest is the body of attendance preview and save.
type AttendanceRequest struct {
	AbsentDays int    `json:"absentDays"`
	LeaveMode  string `json:"leaveMode"`
	RecordedBy string `json:"recordedBy"`
}

// AttendanceDTO represents a committed attendance record.
type AttendanceDTO struct {
	EmployeeID  string                  `json:"employeeId"`
	YearMonth   generic.YearMonth       `json:"yearMonth"`
	AbsentDays  int                     `json:"absentDays"`
	LeaveMode   string                  `json:"leaveMode"`
	Consumption leave.ConsumptionResult `json:"consumption"`
	Revision    int                     `json:"revision"`
	RecordedBy  string                  `json:"recordedBy,omitempty"`
	UpdatedAt   time.Time               `json:"updatedAt"`
}

func toAttendanceDTO(r *leave.AttendanceRecord) AttendanceDTO {
	return AttendanceDTO{
		EmployeeID:  string(r.EmployeeID),
		YearMonth:   r.YearMonth,
		AbsentDays:  r.AbsentDays,
		LeaveMode:   string(r.Mode),
		Consumption: r.Consumption,
		Revision:    r.Revision,
		RecordedBy:  r.RecordedBy,
		UpdatedAt:   r.UpdatedAt,
	}
}

// =============================================================================
// BONUS
// =============================================================================

// BonusRequest is the body of PUT /api/employees/{id}/bonus/{yearMonth}.
type BonusRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note,omitempty"`
	RecordedBy string          `json:"recordedBy,omitempty"`
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

// SubmitLeaveRequest is the body of POST /api/employees/{id}/leave-requests.
type SubmitLeaveRequest struct {
	YearMonth string `json:"yearMonth"`
	Days      int    `json:"days"`
	LeaveType string `json:"leaveType"`
	Reason    string `json:"reason,omitempty"`
}

// ResolveRequest is the body of approve and reject.
type ResolveRequest struct {
	ApproverID string `json:"approvedBy"`
	Comments   string `json:"comments,omitempty"`
}

// LeaveRequestDTO represents a leave request.
type LeaveRequestDTO struct {
	ID         string            `json:"id"`
	EmployeeID string            `json:"employeeId"`
	YearMonth  generic.YearMonth `json:"yearMonth"`
	Days       int               `json:"days"`
	LeaveType  string            `json:"leaveType"`
	Status     string            `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	ApprovedBy string            `json:"approvedBy,omitempty"`
	Comments   string            `json:"comments,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	ResolvedAt *time.Time        `json:"resolvedAt,omitempty"`
}

func toLeaveRequestDTO(r *leave.Request) LeaveRequestDTO {
	return LeaveRequestDTO{
		ID:         r.ID,
		EmployeeID: string(r.EmployeeID),
		YearMonth:  r.YearMonth,
		Days:       r.Days,
		LeaveType:  string(r.Type),
		Status:     string(r.Status),
		Reason:     r.Reason,
		ApprovedBy: r.ApprovedBy,
		Comments:   r.Comments,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		ResolvedAt: r.ResolvedAt,
	}
}

// =============================================================================
// SALARY SLIPS
// =============================================================================

// GenerateSlipRequest is the body of POST /api/salary-slips.
type GenerateSlipRequest struct {
	EmployeeID      string `json:"employeeId"`
	YearMonth       string `json:"yearMonth"`
	ForceRegenerate bool   `json:"forceRegenerate"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
