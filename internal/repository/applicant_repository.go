package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Pawieee/microbank/internal/domain"

	"github.com/jmoiron/sqlx"
)

const applicantColumns = `applicant_id, first_name, middle_name, last_name, date_of_birth, email, phone_num,
		address, gender, civil_status, id_type, id_image_ref, employment_status, monthly_income, credit_score, created_at`

type applicantRepository struct {
	db sqlx.ExtContext
}

func NewApplicantRepository(db sqlx.ExtContext) ApplicantRepository {
	return &applicantRepository{db: db}
}

func (r *applicantRepository) Create(ctx context.Context, a *domain.Applicant) error {
	query := `
		INSERT INTO applicants (` + applicantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.ExecContext(ctx, query,
		a.ApplicantID,
		a.FirstName,
		a.MiddleName,
		a.LastName,
		a.DateOfBirth,
		a.Email,
		a.PhoneNum,
		a.Address,
		a.Gender,
		a.CivilStatus,
		a.IDType,
		a.IDImageRef,
		a.EmploymentStatus,
		a.MonthlyIncome,
		a.CreditScore,
		a.CreatedAt,
	)

	return err
}

func (r *applicantRepository) GetByID(ctx context.Context, applicantID string) (*domain.Applicant, error) {
	query := `SELECT ` + applicantColumns + ` FROM applicants WHERE applicant_id = $1`

	var a domain.Applicant
	if err := sqlx.GetContext(ctx, r.db, &a, query, applicantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &a, nil
}
