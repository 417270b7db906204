package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/patientcare/patient-service/internal/platform/billing"
	"github.com/patientcare/patient-service/internal/platform/validation"
)

// BillingProvisioner opens a billing account for a newly stored patient.
// Any error is treated as a failed provisioning.
type BillingProvisioner interface {
	CreateBillingAccount(ctx context.Context, patientID, name, email string) (*billing.AccountResponse, error)
}

// Service orchestrates patient writes: it checks email uniqueness, persists
// the record and, on create only, provisions billing and then announces the
// new patient.
//
// A billing failure after the insert is returned to the caller and the
// stored record is kept. No compensation is attempted.
type Service struct {
	patients PatientRepository
	billing  BillingProvisioner
	notifier ChangeNotifier
	logger   zerolog.Logger
	metrics  *Metrics
	now      func() time.Time
}

func NewService(patients PatientRepository, billing BillingProvisioner, notifier ChangeNotifier, logger zerolog.Logger, metrics *Metrics) *Service {
	return &Service{
		patients: patients,
		billing:  billing,
		notifier: notifier,
		logger:   logger.With().Str("component", "patient").Logger(),
		metrics:  metrics,
		now:      time.Now,
	}
}

func (s *Service) ListPatients(ctx context.Context) ([]*Patient, error) {
	patients, err := s.patients.List(ctx)
	if err != nil {
		s.metrics.observe("list", outcomeStoreError)
		return nil, err
	}
	s.metrics.observe("list", outcomeOK)
	return patients, nil
}

func (s *Service) CreatePatient(ctx context.Context, in CreateInput) (*Patient, error) {
	if err := s.checkFields(in.Name, in.Email, in.Address, in.DateOfBirth, &in.RegisteredDate); err != nil {
		s.metrics.observe("create", outcomeInvalid)
		return nil, err
	}

	exists, err := s.patients.ExistsByEmail(ctx, in.Email)
	if err != nil {
		s.metrics.observe("create", outcomeStoreError)
		return nil, err
	}
	if exists {
		s.metrics.observe("create", outcomeConflict)
		return nil, &EmailConflictError{Email: in.Email}
	}

	p := &Patient{
		Name:           in.Name,
		Email:          in.Email,
		Address:        in.Address,
		DateOfBirth:    dateOnly(in.DateOfBirth),
		RegisteredDate: dateOnly(in.RegisteredDate),
	}
	// A concurrent create with the same email can pass the check above;
	// the store's unique constraint rejects the loser here.
	if err := s.patients.Create(ctx, p); err != nil {
		s.metrics.observe("create", outcomeFor(err))
		return nil, err
	}

	// The record is already stored, so billing runs to completion even if
	// the client goes away.
	start := time.Now()
	acct, err := s.billing.CreateBillingAccount(context.WithoutCancel(ctx), p.ID.String(), p.Name, p.Email)
	s.metrics.observeBilling(start)
	if err != nil {
		s.metrics.observe("create", outcomeBillingFailed)
		s.logger.Error().Err(err).
			Str("patient_id", p.ID.String()).
			Msg("billing provisioning failed; patient record kept without billing account")
		return nil, fmt.Errorf("%w for patient %s: %w", ErrBillingProvisioningFailed, p.ID, err)
	}
	s.logger.Info().
		Str("patient_id", p.ID.String()).
		Str("account_id", acct.AccountID).
		Str("status", acct.Status).
		Msg("billing account provisioned")

	s.notifier.PatientCreated(ctx, p)

	s.metrics.observe("create", outcomeOK)
	return p, nil
}

// UpdatePatient replaces the mutable fields of the record. It has no
// billing or notification side effects.
func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, in UpdateInput) (*Patient, error) {
	if err := s.checkFields(in.Name, in.Email, in.Address, in.DateOfBirth, in.RegisteredDate); err != nil {
		s.metrics.observe("update", outcomeInvalid)
		return nil, err
	}

	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		s.metrics.observe("update", outcomeFor(err))
		return nil, err
	}

	taken, err := s.patients.ExistsByEmailExcludingID(ctx, in.Email, id)
	if err != nil {
		s.metrics.observe("update", outcomeStoreError)
		return nil, err
	}
	if taken {
		s.metrics.observe("update", outcomeConflict)
		return nil, &EmailConflictError{Email: in.Email}
	}

	p.Name = in.Name
	p.Email = in.Email
	p.Address = in.Address
	p.DateOfBirth = dateOnly(in.DateOfBirth)
	if in.RegisteredDate != nil {
		p.RegisteredDate = dateOnly(*in.RegisteredDate)
	}

	if err := s.patients.Update(ctx, p); err != nil {
		s.metrics.observe("update", outcomeFor(err))
		return nil, err
	}
	s.metrics.observe("update", outcomeOK)
	return p, nil
}

// DeletePatient removes the record if present. Unknown ids are not an
// error; whether a missing record matters is up to the caller.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	if err := s.patients.Delete(ctx, id); err != nil {
		s.metrics.observe("delete", outcomeStoreError)
		return err
	}
	s.metrics.observe("delete", outcomeOK)
	return nil
}

// checkFields guards the record invariants for callers that bypass the
// HTTP validator. registered may be nil on update.
func (s *Service) checkFields(name, email, address string, dob time.Time, registered *time.Time) error {
	errs := validation.Errors{}
	if strings.TrimSpace(name) == "" {
		errs["name"] = "is required"
	}
	if strings.TrimSpace(email) == "" {
		errs["email"] = "is required"
	}
	if strings.TrimSpace(address) == "" {
		errs["address"] = "is required"
	}
	if dob.IsZero() {
		errs["dateOfBirth"] = "is required"
	} else if dateOnly(dob).After(dateOnly(s.now())) {
		errs["dateOfBirth"] = "must not be in the future"
	}
	if registered != nil && registered.IsZero() {
		errs["registeredDate"] = "is required"
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrEmailAlreadyExists):
		return outcomeConflict
	case errors.Is(err, ErrPatientNotFound):
		return outcomeNotFound
	default:
		return outcomeStoreError
	}
}
