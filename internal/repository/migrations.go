package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// schema is applied on startup. Tables are created parents first for the
// foreign keys.
const schema = `
CREATE TABLE IF NOT EXISTS applicants (
    applicant_id      UUID PRIMARY KEY,
    first_name        VARCHAR(100) NOT NULL,
    middle_name       VARCHAR(100) NOT NULL DEFAULT '',
    last_name         VARCHAR(100) NOT NULL,
    date_of_birth     DATE NOT NULL,
    email             VARCHAR(255) NOT NULL,
    phone_num         VARCHAR(32) NOT NULL,
    address           TEXT NOT NULL,
    gender            VARCHAR(32) NOT NULL DEFAULT '',
    civil_status      VARCHAR(32) NOT NULL DEFAULT '',
    id_type           VARCHAR(64) NOT NULL,
    id_image_ref      TEXT NOT NULL,
    employment_status VARCHAR(32) NOT NULL,
    monthly_income    NUMERIC(14,2) NOT NULL CHECK (monthly_income >= 0),
    credit_score      VARCHAR(16) NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS loans (
    loan_id                     UUID PRIMARY KEY,
    applicant_id                UUID NOT NULL REFERENCES applicants(applicant_id) ON DELETE CASCADE,
    loan_plan_lvl               SMALLINT NOT NULL,
    principal                   NUMERIC(14,2) NOT NULL CHECK (principal > 0),
    interest_rate               NUMERIC(5,2) NOT NULL,
    total_loan                  NUMERIC(14,2) NOT NULL,
    payment_amount              NUMERIC(14,2) NOT NULL,
    payment_time_period         INTEGER NOT NULL CHECK (payment_time_period >= 1),
    payment_schedule            VARCHAR(16) NOT NULL CHECK (payment_schedule IN ('Weekly', 'Bi-Weekly', 'Monthly')),
    loan_purpose                VARCHAR(255) NOT NULL,
    disbursement_method         VARCHAR(64) NOT NULL,
    disbursement_account_number VARCHAR(64) NOT NULL DEFAULT '',
    status                      VARCHAR(16) NOT NULL CHECK (status IN ('Pending', 'For Release', 'Approved', 'Rejected', 'Settled')),
    application_date            TIMESTAMPTZ NOT NULL,
    payment_start_date          DATE,
    remarks                     TEXT,
    updated_at                  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS loan_details (
    loan_detail_id     UUID PRIMARY KEY,
    loan_id            UUID NOT NULL REFERENCES loans(loan_id) ON DELETE CASCADE,
    balance            NUMERIC(14,2) NOT NULL CHECK (balance >= 0),
    due_amount         NUMERIC(14,2) NOT NULL CHECK (due_amount >= 0),
    next_due           DATE,
    payments_remaining INTEGER NOT NULL CHECK (payments_remaining >= 0),
    is_current         BOOLEAN NOT NULL DEFAULT true,
    created_at         TIMESTAMPTZ NOT NULL,
    CHECK ((balance = 0) = (payments_remaining = 0)),
    CHECK ((balance = 0) = (next_due IS NULL))
);

CREATE TABLE IF NOT EXISTS payments (
    payment_id       UUID PRIMARY KEY,
    loan_id          UUID NOT NULL REFERENCES loans(loan_id) ON DELETE CASCADE,
    amount_paid      NUMERIC(14,2) NOT NULL CHECK (amount_paid > 0),
    transaction_date TIMESTAMPTZ NOT NULL,
    remarks          VARCHAR(32) NOT NULL CHECK (remarks IN ('Partial Payment', 'On-Time Payment', 'Settled', 'Final Payment Scheduled'))
);

CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(status);
CREATE INDEX IF NOT EXISTS idx_loans_applicant_id ON loans(applicant_id);
CREATE UNIQUE INDEX IF NOT EXISTS uq_loan_details_current ON loan_details(loan_id) WHERE is_current;
CREATE INDEX IF NOT EXISTS idx_loan_details_loan_id ON loan_details(loan_id, created_at);
CREATE INDEX IF NOT EXISTS idx_loan_details_next_due ON loan_details(next_due) WHERE is_current;
CREATE INDEX IF NOT EXISTS idx_payments_loan_id ON payments(loan_id, transaction_date DESC);
`

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
