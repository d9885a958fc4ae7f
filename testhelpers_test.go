package identity_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	identity "github.com/barrettc/go-identity"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const testPassword = "super-secret-pw"

// testPasswordHash is computed once; bcrypt at production cost is too slow
// to rehash per test.
var testPasswordHash = mustHash(testPassword)

func mustHash(password string) string {
	hash, err := identity.HashPassword(password)
	if err != nil {
		panic(err)
	}
	return hash
}

var accountSeq atomic.Int64

const sqliteCreateAccounts = `CREATE TABLE accounts (
    id TEXT NOT NULL PRIMARY KEY,
    first_name TEXT,
    last_name TEXT,
    username TEXT NOT NULL,
    email TEXT NOT NULL,
    phone_number TEXT,
    password_hash TEXT,
    is_email_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
    is_phone_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
    is_two_factor_enabled BOOLEAN NOT NULL DEFAULT FALSE,
    default_mfa_channel TEXT,
    status TEXT,
    login_attempts INTEGER NOT NULL DEFAULT 0,
    login_attempt_at TIMESTAMP,
    loggedin_at TIMESTAMP,
    pending_code_digest TEXT,
    pending_code_purpose TEXT,
    pending_code_channel TEXT,
    pending_code_issued_at TIMESTAMP,
    last_updated_at TIMESTAMP,
    last_updated_by TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    deleted_at TIMESTAMP
);
CREATE UNIQUE INDEX ux_accounts_username ON accounts (username) WHERE deleted_at IS NULL;
CREATE UNIQUE INDEX ux_accounts_email ON accounts (email) WHERE deleted_at IS NULL;
CREATE UNIQUE INDEX ux_accounts_phone_number ON accounts (phone_number) WHERE deleted_at IS NULL;`

const sqliteCreateRoles = `CREATE TABLE roles (
    id TEXT NOT NULL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    priority INTEGER NOT NULL DEFAULT 0
);`

const sqliteCreateAccountRoles = `CREATE TABLE account_roles (
    account_id TEXT NOT NULL,
    role_id TEXT NOT NULL,
    PRIMARY KEY (account_id, role_id)
);`

// setupRepo builds an in-memory database with the full schema, seeds the
// default roles, and returns the repository manager plus the raw handle
// for Tx method calls.
func setupRepo(t *testing.T) (identity.RepositoryManager, *bun.DB) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	for _, stmt := range []string{sqliteCreateAccounts, sqliteCreateRoles, sqliteCreateAccountRoles} {
		_, err = bunDB.Exec(stmt)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	repo := identity.NewRepositoryManager(bunDB)
	require.NoError(t, repo.Validate())
	require.NoError(t, repo.Roles().Seed(context.Background()))

	return repo, bunDB
}

func newTestConfig() *identity.SimpleConfig {
	return &identity.SimpleConfig{
		SigningKey: "test-signing-key-0123456789abcdef",
		Issuer:     "test-issuer",
		Audience:   []string{"test:audience"},
	}
}

// seedAccount creates an active, email-confirmed account with the User
// role. mutate adjusts the record before insert.
func seedAccount(t *testing.T, repo identity.RepositoryManager, db *bun.DB, mutate func(*identity.Account)) *identity.Account {
	t.Helper()
	ctx := context.Background()

	n := accountSeq.Add(1)
	account := &identity.Account{
		FirstName:      "Pat",
		LastName:       "Tester",
		Username:       fmt.Sprintf("pat.tester%d", n),
		Email:          fmt.Sprintf("pat.tester%d@example.com", n),
		PasswordHash:   testPasswordHash,
		Status:         identity.AccountStatusActive,
		EmailConfirmed: true,
	}
	if mutate != nil {
		mutate(account)
	}

	account, err := repo.Accounts().Create(ctx, account)
	require.NoError(t, err)

	role, err := repo.Roles().GetByName(ctx, identity.RoleNameUser)
	require.NoError(t, err)
	require.NoError(t, repo.Accounts().AssignRoleTx(ctx, db, account.ID, role.ID))

	reloaded, err := repo.Accounts().GetByIDWithRoles(ctx, account.ID)
	require.NoError(t, err)

	return reloaded
}
