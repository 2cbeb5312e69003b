// Package memory provides in-memory implementations of every store
// interface. Used by tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu           sync.RWMutex
	transactions map[generic.EntityID][]generic.Transaction
	idempotency  map[string]bool
	audit        []generic.AuditEntry
	profiles     map[generic.EntityID]payroll.Profile
	attendance   map[monthKey]leave.AttendanceRecord
	requests     map[string]leave.Request
	slips        map[monthKey]payroll.SalarySlip
	bonuses      map[monthKey]payroll.Bonus
}

type monthKey struct {
	EmployeeID generic.EntityID
	YearMonth  generic.YearMonth
}

var (
	_ generic.Store          = (*Store)(nil)
	_ generic.AuditLog       = (*Store)(nil)
	_ leave.AttendanceStore  = (*Store)(nil)
	_ leave.RequestStore     = (*Store)(nil)
	_ payroll.ProfileStore   = (*Store)(nil)
	_ payroll.BonusStore     = (*Store)(nil)
	_ payroll.SlipRepository = (*Store)(nil)
)

func New() *Store {
	return &Store{
		transactions: make(map[generic.EntityID][]generic.Transaction),
		idempotency:  make(map[string]bool),
		profiles:     make(map[generic.EntityID]payroll.Profile),
		attendance:   make(map[monthKey]leave.AttendanceRecord),
		requests:     make(map[string]leave.Request),
		slips:        make(map[monthKey]payroll.SalarySlip),
		bonuses:      make(map[monthKey]payroll.Bonus),
	}
}

// =============================================================================
// TRANSACTIONS (append-only)
// =============================================================================

func (m *Store) Append(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	m.appendLocked(tx)
	return nil
}

// AppendBatch adds multiple transactions atomically.
func (m *Store) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[tx.IdempotencyKey] || seen[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}
	for _, tx := range txs {
		m.appendLocked(tx)
	}
	return nil
}

// appendLocked keeps each entity's transactions ordered by EffectiveAt.
func (m *Store) appendLocked(tx generic.Transaction) {
	txs := m.transactions[tx.EntityID]
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].EffectiveAt.After(tx.EffectiveAt)
	})
	txs = append(txs, generic.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.EntityID] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
}

func (m *Store) Load(_ context.Context, entityID generic.EntityID) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]generic.Transaction, len(m.transactions[entityID]))
	copy(result, m.transactions[entityID])
	return result, nil
}

func (m *Store) LoadRange(_ context.Context, entityID generic.EntityID, from, to generic.YearMonth) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []generic.Transaction
	for _, tx := range m.transactions[entityID] {
		if !tx.EffectiveAt.Before(from) && !tx.EffectiveAt.After(to) {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *Store) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (m *Store) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Store) QueryAudit(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []generic.AuditEntry
	for _, e := range m.audit {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// PROFILES
// =============================================================================

func (m *Store) SaveProfile(_ context.Context, p payroll.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.EmployeeID] = copyProfile(p)
	return nil
}

func (m *Store) GetProfile(_ context.Context, employeeID generic.EntityID) (*payroll.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[employeeID]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "profile", Key: string(employeeID)}
	}
	out := copyProfile(p)
	return &out, nil
}

func (m *Store) ListProfiles(_ context.Context) ([]payroll.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payroll.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, copyProfile(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

func copyProfile(p payroll.Profile) payroll.Profile {
	if p.PFStartDate != nil {
		start := *p.PFStartDate
		p.PFStartDate = &start
	}
	return p
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (m *Store) SaveAttendance(_ context.Context, rec leave.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attendance[monthKey{rec.EmployeeID, rec.YearMonth}] = rec
	return nil
}

func (m *Store) GetAttendance(_ context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*leave.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.attendance[monthKey{employeeID, ym}]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "attendance", Key: string(employeeID) + "/" + ym.String()}
	}
	return &rec, nil
}

func (m *Store) ListAttendance(_ context.Context, employeeID generic.EntityID) ([]leave.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []leave.AttendanceRecord
	for k, rec := range m.attendance {
		if k.EmployeeID == employeeID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth.Before(out[j].YearMonth) })
	return out, nil
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

func (m *Store) CreateRequest(_ context.Context, req leave.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[req.ID]; ok {
		return generic.ErrDuplicateIdempotencyKey
	}
	if req.Status == leave.StatusPending {
		if _, ok := m.findPendingLocked(req.EmployeeID, req.YearMonth); ok {
			return generic.ErrDuplicatePendingRequest
		}
	}
	m.requests[req.ID] = copyRequest(req)
	return nil
}

func (m *Store) UpdateRequest(_ context.Context, req leave.Request, expected leave.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.requests[req.ID]
	if !ok {
		return &generic.NotFoundError{Kind: "leave request", Key: req.ID}
	}
	if cur.Status != expected {
		return generic.ErrConcurrentModification
	}
	m.requests[req.ID] = copyRequest(req)
	return nil
}

func (m *Store) GetRequest(_ context.Context, id string) (*leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "leave request", Key: id}
	}
	out := copyRequest(req)
	return &out, nil
}

func (m *Store) FindPending(_ context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.findPendingLocked(employeeID, ym)
	if !ok {
		return nil, &generic.NotFoundError{Kind: "pending leave request", Key: string(employeeID) + "/" + ym.String()}
	}
	out := copyRequest(req)
	return &out, nil
}

func (m *Store) findPendingLocked(employeeID generic.EntityID, ym generic.YearMonth) (leave.Request, bool) {
	for _, r := range m.requests {
		if r.EmployeeID == employeeID && r.YearMonth == ym && r.Status == leave.StatusPending {
			return r, true
		}
	}
	return leave.Request{}, false
}

func (m *Store) ListRequests(_ context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []leave.Request
	for _, r := range m.requests {
		if filter.Matches(r) {
			out = append(out, copyRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func copyRequest(r leave.Request) leave.Request {
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		r.ResolvedAt = &t
	}
	return r
}

// =============================================================================
// SLIPS AND BONUSES
// =============================================================================

func (m *Store) GetSlip(_ context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*payroll.SalarySlip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slips[monthKey{employeeID, ym}]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "salary slip", Key: payroll.SlipKey(employeeID, ym)}
	}
	out := copySlip(s)
	return &out, nil
}

func (m *Store) PutSlip(_ context.Context, slip payroll.SalarySlip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slips[monthKey{slip.EmployeeID, slip.YearMonth}] = copySlip(slip)
	return nil
}

func (m *Store) ListSlips(_ context.Context, filter payroll.SlipFilter) ([]payroll.SalarySlip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payroll.SalarySlip
	for _, s := range m.slips {
		if filter.Matches(s) {
			out = append(out, copySlip(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].YearMonth != out[j].YearMonth {
			return out[i].YearMonth.After(out[j].YearMonth)
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out, nil
}

func copySlip(s payroll.SalarySlip) payroll.SalarySlip {
	s.CalculationNotes = append([]string(nil), s.CalculationNotes...)
	return s
}

func (m *Store) SaveBonus(_ context.Context, b payroll.Bonus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bonuses[monthKey{b.EmployeeID, b.YearMonth}] = b
	return nil
}

func (m *Store) GetBonus(_ context.Context, employeeID generic.EntityID, ym generic.YearMonth) (*payroll.Bonus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bonuses[monthKey{employeeID, ym}]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "bonus", Key: payroll.SlipKey(employeeID, ym)}
	}
	return &b, nil
}
