package patient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patientcare/patient-service/internal/platform/billing"
)

// -- Mock Patient Repository --

// mockPatientRepo enforces email uniqueness on write like a real store.
type mockPatientRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*Patient
	order    []uuid.UUID

	existsByEmailCalls          int
	existsByEmailExcludingCalls int
	createCalls                 int
	updateCalls                 int
	err                         error
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) seed(p *Patient) *Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	m.patients[p.ID] = &cp
	m.order = append(m.order, p.ID)
	return p
}

func (m *mockPatientRepo) get(id uuid.UUID) *Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (m *mockPatientRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.patients)
}

func (m *mockPatientRepo) emailTaken(email string, exclude uuid.UUID) bool {
	for id, p := range m.patients {
		if p.Email == email && id != exclude {
			return true
		}
	}
	return false
}

func (m *mockPatientRepo) List(_ context.Context) ([]*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []*Patient{}
	for _, id := range m.order {
		if p, ok := m.patients[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsByEmailCalls++
	if m.err != nil {
		return false, m.err
	}
	return m.emailTaken(email, uuid.Nil), nil
}

func (m *mockPatientRepo) ExistsByEmailExcludingID(_ context.Context, email string, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsByEmailExcludingCalls++
	return m.emailTaken(email, id), nil
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.emailTaken(p.Email, uuid.Nil) {
		return &EmailConflictError{Email: p.Email}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.patients[p.ID] = &cp
	m.order = append(m.order, p.ID)
	return nil
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if _, ok := m.patients[p.ID]; !ok {
		return &NotFoundError{ID: p.ID}
	}
	if m.emailTaken(p.Email, p.ID) {
		return &EmailConflictError{Email: p.Email}
	}
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.patients, id)
	return nil
}

// racingRepo reports every email as free, as when two creates pass the
// existence check before either has written.
type racingRepo struct {
	PatientRepository
}

func (racingRepo) ExistsByEmail(context.Context, string) (bool, error) { return false, nil }

// -- Mock Billing --

type billingCall struct {
	PatientID string
	Name      string
	Email     string
}

type mockBilling struct {
	mu    sync.Mutex
	calls []billingCall
	err   error
	// onCall runs inside CreateBillingAccount, e.g. to inspect the store.
	onCall func(ctx context.Context, patientID string)
}

func (m *mockBilling) CreateBillingAccount(ctx context.Context, patientID, name, email string) (*billing.AccountResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, billingCall{PatientID: patientID, Name: name, Email: email})
	hook := m.onCall
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, patientID)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &billing.AccountResponse{AccountID: "acct-" + patientID, Status: billing.StatusActive}, nil
}

func (m *mockBilling) Calls() []billingCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]billingCall(nil), m.calls...)
}

// -- Mock Notifier --

type mockNotifier struct {
	mu       sync.Mutex
	patients []Patient
}

func (m *mockNotifier) PatientCreated(_ context.Context, p *Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients = append(m.patients, *p)
}

func (m *mockNotifier) Notified() []Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Patient(nil), m.patients...)
}

var errBillingDown = errors.New("billing service unavailable")
