package identity

import (
	"context"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// clearPendingCodeSQL uses raw SQL because the ORM update path will not
// write NULLs into nullzero columns.
var clearPendingCodeSQL = `UPDATE "accounts" AS "acc"
SET
	"pending_code_digest" = NULL,
	"pending_code_purpose" = NULL,
	"pending_code_channel" = NULL,
	"pending_code_issued_at" = NULL,
	"last_updated_at" = ?,
	"last_updated_by" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND (
	"acc"."id" = ?
);`

var trackSuccessfulLoginSQL = `UPDATE "accounts" AS "acc"
SET
	"loggedin_at" = ?,
	"login_attempt_at" = NULL,
	"login_attempts" = 0
WHERE
	("acc"."id" = ?)
	AND "acc"."deleted_at" IS NULL;`

var resetPasswordSQL = `UPDATE "accounts" AS "acc"
SET
	"password_hash" = ?,
	"login_attempts" = 0,
	"login_attempt_at" = NULL,
	"last_updated_at" = ?,
	"last_updated_by" = ?
WHERE
	("acc"."id" = ?)
	AND "acc"."deleted_at" IS NULL;`

var removePhoneSQL = `UPDATE "accounts" AS "acc"
SET
	"phone_number" = NULL,
	"is_phone_confirmed" = FALSE,
	"default_mfa_channel" = ?,
	"last_updated_at" = ?,
	"last_updated_by" = ?
WHERE
	("acc"."id" = ?)
	AND "acc"."deleted_at" IS NULL;`

// Accounts is the account store. All mutating methods have Tx variants so
// they can participate in a caller-owned unit of work.
type Accounts interface {
	repository.Repository[*Account]

	GetByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string, criteria ...repository.SelectCriteria) (*Account, error)
	GetByIDWithRoles(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByIDWithRolesTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)

	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	AssignRoleTx(ctx context.Context, tx bun.IDB, accountID, roleID uuid.UUID) error

	TrackAttemptedLogin(ctx context.Context, account *Account) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, account *Account) error
	TrackSuccessfulLogin(ctx context.Context, account *Account) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error

	SavePendingCodeTx(ctx context.Context, tx bun.IDB, account *Account) error
	ClearPendingCodeTx(ctx context.Context, tx bun.IDB, account *Account) error
	UpdateAccountTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error)
	ResetPasswordTx(ctx context.Context, tx bun.IDB, account *Account, passwordHash string) error

	SetMFATx(ctx context.Context, tx bun.IDB, account *Account) error
	SavePhoneChangeTx(ctx context.Context, tx bun.IDB, account *Account) error
	ConfirmPhoneTx(ctx context.Context, tx bun.IDB, account *Account) error
	RemovePhoneTx(ctx context.Context, tx bun.IDB, account *Account) error

	PhoneInUseTx(ctx context.Context, tx bun.IDB, phone string, excludeID uuid.UUID) (bool, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus) (*Account, error)
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

// NewAccountsRepository builds the account store on top of the generic
// bun repository.
func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) GetByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email, criteria...)
}

func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string, criteria ...repository.SelectCriteria) (*Account, error) {
	record := &Account{}
	q := tx.NewSelect().Model(record).Relation("Roles")

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": NormalizeEmail(email)})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) GetByIDWithRoles(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.GetByIDWithRolesTx(ctx, a.db, id)
}

func (a *accounts) GetByIDWithRolesTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Relation("Roles").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

// CreateTx normalizes identifiers, enforces uniqueness among live
// accounts, and inserts the record.
func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)

	if taken, err := a.identifierTaken(ctx, tx, "email", record.Email, uuid.Nil); err != nil {
		return nil, err
	} else if taken {
		return nil, NewDuplicateError("email", record.Email)
	}

	if taken, err := a.identifierTaken(ctx, tx, "username", record.Username, uuid.Nil); err != nil {
		return nil, err
	} else if taken {
		return nil, NewDuplicateError("username", record.Username)
	}

	if record.Phone != "" {
		if taken, err := a.identifierTaken(ctx, tx, "phone_number", record.Phone, uuid.Nil); err != nil {
			return nil, err
		} else if taken {
			return nil, NewDuplicateError("phone_number", record.Phone)
		}
	}

	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *accounts) AssignRoleTx(ctx context.Context, tx bun.IDB, accountID, roleID uuid.UUID) error {
	_, err := tx.NewInsert().
		Model(&AccountRole{AccountID: accountID, RoleID: roleID}).
		Exec(ctx)
	return err
}

func (a *accounts) TrackAttemptedLogin(ctx context.Context, account *Account) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, account)
}

func (a *accounts) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, account *Account) error {
	record := &Account{}
	record.ID = account.ID
	record.LoginAttempts = account.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(account.ID.String()))
	return err
}

func (a *accounts) TrackSuccessfulLogin(ctx context.Context, account *Account) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, account)
}

func (a *accounts) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error {
	loggedInAt := time.Now()
	_, err := tx.NewRaw(trackSuccessfulLoginSQL, loggedInAt, account.ID).Exec(ctx)
	return err
}

// SavePendingCodeTx persists the one-time artifact columns set on the
// account, replacing whatever was there.
func (a *accounts) SavePendingCodeTx(ctx context.Context, tx bun.IDB, account *Account) error {
	_, err := tx.NewUpdate().
		Model(account).
		Column("pending_code_digest", "pending_code_purpose", "pending_code_channel",
			"pending_code_issued_at", "last_updated_at", "last_updated_by").
		WherePK().
		Exec(ctx)
	return err
}

func (a *accounts) ClearPendingCodeTx(ctx context.Context, tx bun.IDB, account *Account) error {
	now := time.Now()
	_, err := tx.NewRaw(clearPendingCodeSQL, now, account.LastUpdatedBy, account.ID).Exec(ctx)
	if err != nil {
		return err
	}
	account.ClearPendingCode()
	return nil
}

func (a *accounts) UpdateAccountTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error) {
	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(record.ID.String()))
}

// ResetPasswordTx uses raw SQL so the login counters actually reset; the
// ORM update path drops zero values.
func (a *accounts) ResetPasswordTx(ctx context.Context, tx bun.IDB, account *Account, passwordHash string) error {
	_, err := tx.NewRaw(resetPasswordSQL, passwordHash, account.LastUpdatedAt, account.LastUpdatedBy, account.ID).Exec(ctx)
	if err != nil {
		return err
	}
	account.PasswordHash = passwordHash
	account.LoginAttempts = 0
	account.LoginAttemptAt = nil
	return nil
}

// SetMFATx writes the two-factor columns explicitly so disabling (a zero
// value) persists.
func (a *accounts) SetMFATx(ctx context.Context, tx bun.IDB, account *Account) error {
	_, err := tx.NewUpdate().
		Model(account).
		Column("is_two_factor_enabled", "default_mfa_channel", "last_updated_at", "last_updated_by").
		WherePK().
		Exec(ctx)
	return err
}

// SavePhoneChangeTx stores the unconfirmed phone number together with its
// verification artifact.
func (a *accounts) SavePhoneChangeTx(ctx context.Context, tx bun.IDB, account *Account) error {
	_, err := tx.NewUpdate().
		Model(account).
		Column("phone_number", "is_phone_confirmed",
			"pending_code_digest", "pending_code_purpose", "pending_code_channel",
			"pending_code_issued_at", "last_updated_at", "last_updated_by").
		WherePK().
		Exec(ctx)
	return err
}

func (a *accounts) ConfirmPhoneTx(ctx context.Context, tx bun.IDB, account *Account) error {
	_, err := tx.NewUpdate().
		Model(account).
		Column("is_phone_confirmed", "last_updated_at", "last_updated_by").
		WherePK().
		Exec(ctx)
	return err
}

// RemovePhoneTx needs raw SQL because the unique phone column must go
// back to NULL, not empty string.
func (a *accounts) RemovePhoneTx(ctx context.Context, tx bun.IDB, account *Account) error {
	_, err := tx.NewRaw(removePhoneSQL, account.DefaultMFAChannel, account.LastUpdatedAt, account.LastUpdatedBy, account.ID).Exec(ctx)
	return err
}

func (a *accounts) PhoneInUseTx(ctx context.Context, tx bun.IDB, phone string, excludeID uuid.UUID) (bool, error) {
	return a.identifierTaken(ctx, tx, "phone_number", phone, excludeID)
}

func (a *accounts) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus) (*Account, error) {
	record := &Account{
		ID:     id,
		Status: status,
	}
	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (a *accounts) identifierTaken(ctx context.Context, tx bun.IDB, column, value string, excludeID uuid.UUID) (bool, error) {
	if value == "" {
		return false, nil
	}

	q := tx.NewSelect().
		Model((*Account)(nil)).
		Where("?TableAlias."+column+" = ?", value).
		Where("?TableAlias.deleted_at IS NULL")

	if excludeID != uuid.Nil {
		q = q.Where("?TableAlias.id != ?", excludeID)
	}

	count, err := q.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)
	record.Username = NormalizeUsername(record.Username)
	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
