package identity_test

import (
	"context"
	"testing"

	identity "github.com/barrettc/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commandPassword = "a-long-enough-password"

func TestRegisterAccountCommand(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)
	notifier := &captureNotifier{}

	handler := identity.NewRegisterAccountHandler(repo, newTestConfig(),
		identity.NewAccountEventHandler(notifier).WithLogger(quietLogger{})).
		WithLogger(quietLogger{})

	t.Run("creates a pending account with role and invitation", func(t *testing.T) {
		var created *identity.Account
		err := handler.Execute(ctx, identity.RegisterAccountMessage{
			FirstName:  "New",
			LastName:   "Person",
			Email:      "new.person@example.com",
			Password:   commandPassword,
			OnResponse: func(account *identity.Account) { created = account },
		})
		require.NoError(t, err)
		require.NotNil(t, created)

		stored, err := repo.Accounts().GetByEmail(ctx, "new.person@example.com")
		require.NoError(t, err)

		assert.Equal(t, identity.AccountStatusPending, stored.Status)
		assert.False(t, stored.EmailConfirmed)
		// username derived from email local part
		assert.Equal(t, "new.person", stored.Username)
		assert.Equal(t, []string{identity.RoleNameUser}, stored.RoleNames())
		assert.Equal(t, identity.PurposeActivation, stored.PendingCodePurpose)
		assert.NotEmpty(t, stored.PendingCodeDigest)

		// the committed event produced the invitation, code included
		sent, ok := notifier.last()
		require.True(t, ok)
		assert.Equal(t, identity.ActivityCreated, sent.Activity)
		assert.NotEmpty(t, sent.Code)
		assert.NotContains(t, stored.PendingCodeDigest, sent.Code)
	})

	t.Run("rejects a duplicate email", func(t *testing.T) {
		before := notifier.count()
		err := handler.Execute(ctx, identity.RegisterAccountMessage{
			Email:    "new.person@example.com",
			Password: commandPassword,
		})
		assert.True(t, identity.IsDuplicateIdentifier(err))
		// failed registration sends nothing
		assert.Equal(t, before, notifier.count())
	})

	t.Run("rejects an invalid payload", func(t *testing.T) {
		err := handler.Execute(ctx, identity.RegisterAccountMessage{
			Email:    "not-an-email",
			Password: commandPassword,
		})
		assert.Error(t, err)
	})

	t.Run("rejects a short password", func(t *testing.T) {
		err := handler.Execute(ctx, identity.RegisterAccountMessage{
			Email:    "short.pw@example.com",
			Password: "short",
		})
		assert.Error(t, err)
	})

	t.Run("rejects an unknown role", func(t *testing.T) {
		err := handler.Execute(ctx, identity.RegisterAccountMessage{
			Email:    "strange.role@example.com",
			Password: commandPassword,
			Role:     "Overlord",
		})
		assert.Error(t, err)
	})
}

func TestActivateAccountCommand(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)
	notifier := &captureNotifier{}
	cfg := newTestConfig()

	register := identity.NewRegisterAccountHandler(repo, cfg,
		identity.NewAccountEventHandler(notifier).WithLogger(quietLogger{})).
		WithLogger(quietLogger{})
	activate := identity.NewActivateAccountHandler(repo, cfg,
		identity.NewAccountEventHandler(notifier).WithLogger(quietLogger{})).
		WithLogger(quietLogger{})

	require.NoError(t, register.Execute(ctx, identity.RegisterAccountMessage{
		Email:    "invitee@example.com",
		Password: commandPassword,
	}))
	invite, ok := notifier.last()
	require.True(t, ok)

	t.Run("wrong token is rejected", func(t *testing.T) {
		err := activate.Execute(ctx, identity.ActivateAccountMessage{
			Email:    "invitee@example.com",
			Token:    "bogus",
			Password: commandPassword,
		})
		assert.True(t, identity.IsInvalidToken(err))
	})

	t.Run("unknown email is rejected like a wrong token", func(t *testing.T) {
		err := activate.Execute(ctx, identity.ActivateAccountMessage{
			Email:    "ghost@example.com",
			Token:    invite.Code,
			Password: commandPassword,
		})
		assert.True(t, identity.IsInvalidToken(err))
	})

	t.Run("valid token activates the account", func(t *testing.T) {
		err := activate.Execute(ctx, identity.ActivateAccountMessage{
			Email:    "invitee@example.com",
			Token:    invite.Code,
			Password: "brand-new-password",
		})
		require.NoError(t, err)

		stored, err := repo.Accounts().GetByEmail(ctx, "invitee@example.com")
		require.NoError(t, err)
		assert.Equal(t, identity.AccountStatusActive, stored.Status)
		assert.True(t, stored.EmailConfirmed)
		assert.Empty(t, stored.PendingCodeDigest)
		assert.NoError(t, identity.ComparePasswordAndHash("brand-new-password", stored.PasswordHash))

		sent, ok := notifier.last()
		require.True(t, ok)
		assert.Equal(t, identity.ActivityActivated, sent.Activity)
	})

	t.Run("the invitation token is single use", func(t *testing.T) {
		err := activate.Execute(ctx, identity.ActivateAccountMessage{
			Email:    "invitee@example.com",
			Token:    invite.Code,
			Password: commandPassword,
		})
		assert.True(t, identity.IsInvalidToken(err))
	})
}

func TestReinviteAccountCommand(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)
	notifier := &captureNotifier{}
	cfg := newTestConfig()

	register := identity.NewRegisterAccountHandler(repo, cfg,
		identity.NewAccountEventHandler(notifier).WithLogger(quietLogger{})).
		WithLogger(quietLogger{})
	reinvite := identity.NewReinviteAccountHandler(repo, cfg,
		identity.NewAccountEventHandler(notifier).WithLogger(quietLogger{})).
		WithLogger(quietLogger{})
	activate := identity.NewActivateAccountHandler(repo, cfg,
		identity.NewAccountEventHandler(notifier).WithLogger(quietLogger{})).
		WithLogger(quietLogger{})

	require.NoError(t, register.Execute(ctx, identity.RegisterAccountMessage{
		Email:    "slowpoke@example.com",
		Password: commandPassword,
	}))
	first, _ := notifier.last()

	t.Run("replaces the activation artifact", func(t *testing.T) {
		require.NoError(t, reinvite.Execute(ctx, identity.ReinviteAccountMessage{
			Email: "slowpoke@example.com",
		}))

		second, ok := notifier.last()
		require.True(t, ok)
		assert.Equal(t, identity.ActivityReinviteRequested, second.Activity)
		assert.NotEqual(t, first.Code, second.Code)

		// old invitation no longer works, the fresh one does
		err := activate.Execute(ctx, identity.ActivateAccountMessage{
			Email:    "slowpoke@example.com",
			Token:    first.Code,
			Password: commandPassword,
		})
		assert.True(t, identity.IsInvalidToken(err))

		require.NoError(t, activate.Execute(ctx, identity.ActivateAccountMessage{
			Email:    "slowpoke@example.com",
			Token:    second.Code,
			Password: commandPassword,
		}))
	})

	t.Run("active accounts cannot be reinvited", func(t *testing.T) {
		err := reinvite.Execute(ctx, identity.ReinviteAccountMessage{
			Email: "slowpoke@example.com",
		})
		assert.Error(t, err)
	})

	t.Run("unknown email is rejected", func(t *testing.T) {
		err := reinvite.Execute(ctx, identity.ReinviteAccountMessage{
			Email: "ghost@example.com",
		})
		assert.ErrorIs(t, err, identity.ErrAccountNotFound)
	})
}

func TestPasswordResetCommands(t *testing.T) {
	ctx := context.Background()
	repo, db := setupRepo(t)
	notifier := &captureNotifier{}
	cfg := newTestConfig()

	initialize := identity.NewInitializePasswordResetHandler(repo, cfg,
		identity.NewAccountEventHandler(notifier).WithLogger(quietLogger{})).
		WithLogger(quietLogger{})
	finalize := identity.NewFinalizePasswordResetHandler(repo, cfg,
		identity.NewAccountEventHandler(notifier).WithLogger(quietLogger{})).
		WithLogger(quietLogger{})

	account := seedAccount(t, repo, db, nil)

	t.Run("unknown email succeeds without a notification", func(t *testing.T) {
		var resp *identity.InitializePasswordResetResponse
		err := initialize.Execute(ctx, identity.InitializePasswordResetMessage{
			Email:      "ghost@example.com",
			OnResponse: func(r *identity.InitializePasswordResetResponse) { resp = r },
		})
		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.True(t, resp.Success)
		assert.Equal(t, 0, notifier.count())
	})

	t.Run("initialization stores the artifact and notifies", func(t *testing.T) {
		err := initialize.Execute(ctx, identity.InitializePasswordResetMessage{
			Email: account.Email,
		})
		require.NoError(t, err)

		sent, ok := notifier.last()
		require.True(t, ok)
		assert.Equal(t, identity.ActivityPasswordResetRequested, sent.Activity)
		require.NotEmpty(t, sent.Code)

		stored, err := repo.Accounts().GetByIDWithRoles(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, identity.PurposePasswordReset, stored.PendingCodePurpose)
	})

	t.Run("finalize rejects a wrong token", func(t *testing.T) {
		err := finalize.Execute(ctx, identity.FinalizePasswordResetMessage{
			Email:    account.Email,
			Token:    "bogus",
			Password: "replacement-password",
		})
		assert.True(t, identity.IsInvalidToken(err))
	})

	t.Run("finalize replaces the password and resets lockout", func(t *testing.T) {
		// drive the account into the locked counters first
		attempted, err := repo.Accounts().GetByIDWithRoles(ctx, account.ID)
		require.NoError(t, err)
		require.NoError(t, repo.Accounts().TrackAttemptedLogin(ctx, attempted))

		sent, _ := notifier.last()
		err = finalize.Execute(ctx, identity.FinalizePasswordResetMessage{
			Email:    account.Email,
			Token:    sent.Code,
			Password: "replacement-password",
		})
		require.NoError(t, err)

		stored, err := repo.Accounts().GetByIDWithRoles(ctx, account.ID)
		require.NoError(t, err)
		assert.NoError(t, identity.ComparePasswordAndHash("replacement-password", stored.PasswordHash))
		assert.Zero(t, stored.LoginAttempts)
		assert.Empty(t, stored.PendingCodeDigest)

		done, ok := notifier.last()
		require.True(t, ok)
		assert.Equal(t, identity.ActivityPasswordReset, done.Activity)
	})

	t.Run("the reset token is single use", func(t *testing.T) {
		// notifier history: [reset-requested, password-reset]; grab the code again
		err := finalize.Execute(ctx, identity.FinalizePasswordResetMessage{
			Email:    account.Email,
			Token:    "already-used",
			Password: "replacement-password",
		})
		assert.True(t, identity.IsInvalidToken(err))
	})
}
