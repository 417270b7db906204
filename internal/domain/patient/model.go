package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/patientcare/patient-service/internal/platform/validation"
)

// Patient is a stored patient record. DateOfBirth and RegisteredDate are
// calendar dates held as UTC midnight.
type Patient struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Address        string    `json:"address"`
	DateOfBirth    time.Time `json:"date_of_birth"`
	RegisteredDate time.Time `json:"registered_date"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreateInput carries the fields of a new record, already parsed.
type CreateInput struct {
	Name           string
	Email          string
	Address        string
	DateOfBirth    time.Time
	RegisteredDate time.Time
}

// UpdateInput replaces the mutable fields of a record. A nil
// RegisteredDate keeps the stored value.
type UpdateInput struct {
	Name           string
	Email          string
	Address        string
	DateOfBirth    time.Time
	RegisteredDate *time.Time
}

// CreateRequest is the POST /patients body.
type CreateRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	Email          string `json:"email" validate:"required,email,max=320"`
	Address        string `json:"address" validate:"required"`
	DateOfBirth    string `json:"dateOfBirth" validate:"required,isodate,notfuture"`
	RegisteredDate string `json:"registeredDate" validate:"required,isodate"`
}

// UpdateRequest is the PUT /patients/:id body. registeredDate may be
// omitted.
type UpdateRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	Email          string `json:"email" validate:"required,email,max=320"`
	Address        string `json:"address" validate:"required"`
	DateOfBirth    string `json:"dateOfBirth" validate:"required,isodate,notfuture"`
	RegisteredDate string `json:"registeredDate" validate:"omitempty,isodate"`
}

// Response is the external representation of a patient.
type Response struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Address        string `json:"address"`
	DateOfBirth    string `json:"dateOfBirth"`
	RegisteredDate string `json:"registeredDate"`
}

func (p *Patient) ToResponse() Response {
	return Response{
		ID:             p.ID.String(),
		Name:           p.Name,
		Email:          p.Email,
		Address:        p.Address,
		DateOfBirth:    p.DateOfBirth.Format(validation.DateLayout),
		RegisteredDate: p.RegisteredDate.Format(validation.DateLayout),
	}
}

func (r *CreateRequest) ToInput() (CreateInput, error) {
	dob, err := validation.ParseDate(r.DateOfBirth)
	if err != nil {
		return CreateInput{}, validation.Errors{"dateOfBirth": "must be a date in YYYY-MM-DD format"}
	}
	reg, err := validation.ParseDate(r.RegisteredDate)
	if err != nil {
		return CreateInput{}, validation.Errors{"registeredDate": "must be a date in YYYY-MM-DD format"}
	}
	return CreateInput{
		Name:           r.Name,
		Email:          r.Email,
		Address:        r.Address,
		DateOfBirth:    dob,
		RegisteredDate: reg,
	}, nil
}

func (r *UpdateRequest) ToInput() (UpdateInput, error) {
	dob, err := validation.ParseDate(r.DateOfBirth)
	if err != nil {
		return UpdateInput{}, validation.Errors{"dateOfBirth": "must be a date in YYYY-MM-DD format"}
	}
	in := UpdateInput{
		Name:        r.Name,
		Email:       r.Email,
		Address:     r.Address,
		DateOfBirth: dob,
	}
	if r.RegisteredDate != "" {
		reg, err := validation.ParseDate(r.RegisteredDate)
		if err != nil {
			return UpdateInput{}, validation.Errors{"registeredDate": "must be a date in YYYY-MM-DD format"}
		}
		in.RegisteredDate = &reg
	}
	return in, nil
}

// dateOnly truncates t to its UTC calendar date.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
