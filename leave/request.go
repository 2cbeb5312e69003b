/*
request.go - Leave request workflow

PURPOSE:
  Ad-hoc leave applications. An employee submits, HR approves or rejects.
  Approval debits the ledger; rejection has no ledger effect.

STATE MACHINE:
  pending -> approved   (terminal, debits the ledger once)
  pending -> rejected   (terminal)

  Any transition out of a terminal state fails with InvalidStateError.

UNIQUENESS:
  At most one pending request per (employee, month). Submit checks first;
  RequestStore.CreateRequest enforces it again so a racing submit from
  another process still fails with ErrDuplicatePendingRequest.

EXACTLY-ONCE DEBIT:
  Approval writes ledger transactions referencing the request ID, under
  the per-employee lock, and flips the stored status with a compare-and-swap
  on "pending". A second approval cannot pass the state check. If the status
  write fails the debit is reversed under "<key>-undo" and the request stays
  pending; idempotency keys carry a per-attempt suffix so the retry is not
  rejected as a duplicate of the reversed attempt.

SEE ALSO:
  - ledger.go: Balance checks and atomic writes
  - attendance.go: The other ledger mutator
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/payroll-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// REQUEST
// =============================================================================

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func ParseStatus(s string) (RequestStatus, error) {
	switch RequestStatus(s) {
	case StatusPending, StatusApproved, StatusRejected:
		return RequestStatus(s), nil
	}
	return "", &generic.InvalidInputError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
}

// Request is one leave application.
type Request struct {
	ID         string
	EmployeeID generic.EntityID
	YearMonth  generic.YearMonth
	Days       int
	Type       Type
	Status     RequestStatus
	Reason     string
	ApprovedBy string
	Comments   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
}

// RequestFilter narrows ListRequests. Zero fields match everything.
type RequestFilter struct {
	EmployeeID generic.EntityID
	Status     RequestStatus
	YearMonth  generic.YearMonth
}

func (f RequestFilter) Matches(r Request) bool {
	if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.YearMonth.IsZero() && r.YearMonth != f.YearMonth {
		return false
	}
	return true
}

// RequestStore persists leave requests.
type RequestStore interface {
	// CreateRequest fails with ErrDuplicatePendingRequest if another pending
	// request exists for the same (EmployeeID, YearMonth).
	CreateRequest(ctx context.Context, req Request) error

	// UpdateRequest replaces the request only if its stored status still
	// equals expected. Otherwise it fails with ErrConcurrentModification.
	UpdateRequest(ctx context.Context, req Request, expected RequestStatus) error

	GetRequest(ctx context.Context, id string) (*Request, error)

	// FindPending returns the pending request for the month, or ErrNotFound.
	FindPending(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*Request, error)

	// ListRequests returns matching requests, newest first.
	ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error)
}

// SubmitInput is what an employee provides when applying.
type SubmitInput struct {
	EmployeeID generic.EntityID
	YearMonth  generic.YearMonth
	Days       int
	Type       Type
	Reason     string
}

func (in SubmitInput) validate() error {
	if in.EmployeeID == "" {
		return &generic.InvalidInputError{Field: "employeeId", Reason: "required"}
	}
	if !in.YearMonth.Valid() {
		return &generic.InvalidInputError{Field: "yearMonth", Reason: "missing or out of range"}
	}
	if in.Days <= 0 {
		return &generic.InvalidInputError{Field: "days", Reason: "must be positive"}
	}
	if in.Days > in.YearMonth.DaysIn() {
		return &generic.InvalidInputError{Field: "days", Reason: fmt.Sprintf("exceeds %d days in %s", in.YearMonth.DaysIn(), in.YearMonth)}
	}
	if _, err := ParseType(string(in.Type)); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// WORKFLOW
// =============================================================================

// Workflow drives the request state machine against the ledger.
type Workflow struct {
	Ledger *Ledger
	Store  RequestStore
	Audit  generic.AuditLog
	Clock  generic.Clock
	Logger *zap.Logger
}

func NewWorkflow(ledger *Ledger, store RequestStore, audit generic.AuditLog, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{Ledger: ledger, Store: store, Audit: audit, Logger: logger}
}

// Submit creates a pending request. Fails with ErrDuplicatePendingRequest if
// the month already has one, or InsufficientBalanceError if days exceeds the
// employee's total remaining leave.
func (w *Workflow) Submit(ctx context.Context, in SubmitInput) (*Request, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	unlock, err := w.Ledger.LockEmployee(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := w.Store.FindPending(ctx, in.EmployeeID, in.YearMonth); err == nil {
		return nil, fmt.Errorf("%w: employee %s already has a pending request for %s",
			generic.ErrDuplicatePendingRequest, in.EmployeeID, in.YearMonth)
	} else if !errors.Is(err, generic.ErrNotFound) {
		return nil, fmt.Errorf("failed to check pending requests: %w", err)
	}

	balances, err := w.Ledger.Balances(ctx, in.EmployeeID, in.YearMonth)
	if err != nil {
		return nil, err
	}
	if remaining := balances.LeavesRemaining(); in.Days > remaining {
		return nil, &generic.InsufficientBalanceError{
			EntityID:     in.EmployeeID,
			ResourceType: in.Type,
			Available:    generic.Days(remaining),
			Requested:    generic.Days(in.Days),
		}
	}

	now := w.Clock.Now()
	req := Request{
		ID:         uuid.NewString(),
		EmployeeID: in.EmployeeID,
		YearMonth:  in.YearMonth,
		Days:       in.Days,
		Type:       in.Type,
		Status:     StatusPending,
		Reason:     in.Reason,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := w.Store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create leave request: %w", err)
	}

	w.audit(ctx, generic.AuditRequestSubmitted, string(in.EmployeeID), req)
	w.Logger.Info("leave request submitted",
		zap.String("request_id", req.ID),
		zap.String("employee_id", string(req.EmployeeID)),
		zap.String("year_month", req.YearMonth.String()),
		zap.String("leave_type", string(req.Type)),
		zap.Int("days", req.Days),
	)
	return &req, nil
}

// Approve moves a pending request to approved and debits the ledger. If the
// debit fails the request stays pending.
func (w *Workflow) Approve(ctx context.Context, requestID, approverID, comments string) (*Request, error) {
	req, err := w.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	unlock, err := w.Ledger.LockEmployee(ctx, req.EmployeeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Re-read under the lock; another approver may have won.
	req, err = w.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, &generic.InvalidStateError{ID: req.ID, Current: string(req.Status), Action: "approve"}
	}

	ref := requestReference(req, approverID)
	if err := w.Ledger.ApplyLocked(ctx, req.EmployeeID, req.YearMonth, []Change{{Type: req.Type, Days: req.Days}}, ref); err != nil {
		return nil, err
	}

	updated := w.resolve(*req, StatusApproved, approverID, comments)
	if err := w.Store.UpdateRequest(ctx, updated, StatusPending); err != nil {
		undo := ref
		undo.Key = ref.Key + "-undo"
		undo.Reason = "rollback: " + ref.Reason
		if rbErr := w.Ledger.ApplyLocked(context.WithoutCancel(ctx), req.EmployeeID, req.YearMonth, []Change{{Type: req.Type, Days: -req.Days}}, undo); rbErr != nil {
			w.Logger.Error("failed to roll back approval debit",
				zap.String("request_id", req.ID),
				zap.Error(rbErr),
			)
		}
		return nil, fmt.Errorf("failed to update leave request: %w", err)
	}

	w.audit(ctx, generic.AuditRequestApproved, approverID, updated)
	w.Logger.Info("leave request approved",
		zap.String("request_id", updated.ID),
		zap.String("employee_id", string(updated.EmployeeID)),
		zap.String("approved_by", approverID),
		zap.String("leave_type", string(updated.Type)),
		zap.Int("days", updated.Days),
	)
	return &updated, nil
}

// Reject moves a pending request to rejected. No ledger effect.
func (w *Workflow) Reject(ctx context.Context, requestID, approverID, comments string) (*Request, error) {
	req, err := w.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	unlock, err := w.Ledger.LockEmployee(ctx, req.EmployeeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	req, err = w.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, &generic.InvalidStateError{ID: req.ID, Current: string(req.Status), Action: "reject"}
	}

	updated := w.resolve(*req, StatusRejected, approverID, comments)
	if err := w.Store.UpdateRequest(ctx, updated, StatusPending); err != nil {
		return nil, fmt.Errorf("failed to update leave request: %w", err)
	}

	w.audit(ctx, generic.AuditRequestRejected, approverID, updated)
	w.Logger.Info("leave request rejected",
		zap.String("request_id", updated.ID),
		zap.String("employee_id", string(updated.EmployeeID)),
		zap.String("rejected_by", approverID),
	)
	return &updated, nil
}

func (w *Workflow) Get(ctx context.Context, requestID string) (*Request, error) {
	return w.Store.GetRequest(ctx, requestID)
}

func (w *Workflow) List(ctx context.Context, filter RequestFilter) ([]Request, error) {
	return w.Store.ListRequests(ctx, filter)
}

// =============================================================================
// SUMMARY
// =============================================================================

// BucketSummary is used/total for one leave type.
type BucketSummary struct {
	Used      int `json:"used"`
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
}

// Summary is the employee-facing view of the year's leave.
type Summary struct {
	EmployeeID      generic.EntityID `json:"employeeId"`
	Period          string           `json:"period"`
	Casual          BucketSummary    `json:"casual"`
	Sick            BucketSummary    `json:"sick"`
	Earned          BucketSummary    `json:"earned"`
	LeavesRemaining int              `json:"leavesRemaining"`
	PendingRequests int              `json:"pendingRequests"`
}

// Summary reports balances for the period containing ym plus the number of
// pending requests in that period.
func (w *Workflow) Summary(ctx context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*Summary, error) {
	if employeeID == "" {
		return nil, &generic.InvalidInputError{Field: "employeeId", Reason: "required"}
	}
	balances, err := w.Ledger.Balances(ctx, employeeID, ym)
	if err != nil {
		return nil, err
	}
	pending, err := w.Store.ListRequests(ctx, RequestFilter{EmployeeID: employeeID, Status: StatusPending})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}

	bucket := func(t Type) BucketSummary {
		b := balances.ByType[t]
		return BucketSummary{Used: b.Used, Total: b.Total, Remaining: b.Remaining}
	}
	s := &Summary{
		EmployeeID:      employeeID,
		Period:          balances.Period.String(),
		Casual:          bucket(Casual),
		Sick:            bucket(Sick),
		Earned:          bucket(Earned),
		LeavesRemaining: balances.LeavesRemaining(),
	}
	for _, r := range pending {
		if balances.Period.Contains(r.YearMonth) {
			s.PendingRequests++
		}
	}
	return s, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (w *Workflow) resolve(req Request, status RequestStatus, approverID, comments string) Request {
	now := w.Clock.Now()
	req.Status = status
	req.ApprovedBy = approverID
	req.Comments = comments
	req.UpdatedAt = now
	req.ResolvedAt = &now
	return req
}

func (w *Workflow) audit(ctx context.Context, action generic.AuditAction, actor string, req Request) {
	if w.Audit == nil {
		return
	}
	entry := generic.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: req.UpdatedAt,
		ActorID:   actor,
		Action:    action,
		EntityID:  req.EmployeeID,
		Payload: map[string]any{
			"requestId": req.ID,
			"yearMonth": req.YearMonth.String(),
			"leaveType": string(req.Type),
			"days":      req.Days,
			"status":    string(req.Status),
		},
	}
	if err := w.Audit.AppendAudit(ctx, entry); err != nil {
		w.Logger.Warn("failed to write audit entry", zap.String("action", string(action)), zap.Error(err))
	}
}

func requestReference(req *Request, actor string) Reference {
	return Reference{
		ID:     req.ID,
		Key:    attemptKey("leave-request-" + req.ID),
		Reason: fmt.Sprintf("approved leave request: %d %s days", req.Days, req.Type),
		Actor:  actor,
	}
}
