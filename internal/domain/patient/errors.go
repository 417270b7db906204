package patient

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/patientcare/patient-service/internal/platform/validation"
)

var (
	ErrEmailAlreadyExists        = errors.New("email already exists")
	ErrPatientNotFound           = errors.New("patient not found")
	ErrBillingProvisioningFailed = errors.New("billing provisioning failed")
	ErrValidationFailed          = validation.ErrInvalid
)

// EmailConflictError reports an email already held by another record.
type EmailConflictError struct {
	Email string
}

func (e *EmailConflictError) Error() string {
	return "A patient with this email already exists: " + e.Email
}

func (e *EmailConflictError) Unwrap() error { return ErrEmailAlreadyExists }

type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Patient not found with ID: %s", e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrPatientNotFound }
