package identity_test

import (
	"context"
	"testing"

	identity "github.com/barrettc/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func newMFAManager(t *testing.T) (*identity.MFAManager, identity.RepositoryManager, *bun.DB, *captureNotifier) {
	t.Helper()

	repo, db := setupRepo(t)
	notifier := &captureNotifier{}

	manager := identity.NewMFAManager(repo, newTestConfig()).
		WithLogger(quietLogger{}).
		WithEventHandlers(identity.NewAccountEventHandler(notifier).WithLogger(quietLogger{}))

	return manager, repo, db, notifier
}

func TestMFAManagerEnableDisable(t *testing.T) {
	ctx := context.Background()
	manager, repo, db, _ := newMFAManager(t)

	account := seedAccount(t, repo, db, nil)

	require.NoError(t, manager.EnableMFA(ctx, account.ID, identity.MFAChannelEmail))

	stored, err := repo.Accounts().GetByIDWithRoles(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, stored.TwoFactorEnabled)
	assert.Equal(t, identity.MFAChannelEmail, stored.DefaultMFAChannel)

	require.NoError(t, manager.DisableMFA(ctx, account.ID))

	stored, err = repo.Accounts().GetByIDWithRoles(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, stored.TwoFactorEnabled)
}

func TestMFAManagerEnableRequiresConfirmedChannel(t *testing.T) {
	ctx := context.Background()
	manager, repo, db, _ := newMFAManager(t)

	t.Run("unconfirmed email", func(t *testing.T) {
		account := seedAccount(t, repo, db, func(a *identity.Account) {
			a.EmailConfirmed = false
		})

		err := manager.EnableMFA(ctx, account.ID, identity.MFAChannelEmail)
		assert.True(t, identity.IsInvalidChannel(err))
	})

	t.Run("unconfirmed phone", func(t *testing.T) {
		account := seedAccount(t, repo, db, nil)

		err := manager.EnableMFA(ctx, account.ID, identity.MFAChannelPhone)
		assert.True(t, identity.IsInvalidChannel(err))
	})

	t.Run("bogus channel", func(t *testing.T) {
		account := seedAccount(t, repo, db, nil)

		err := manager.EnableMFA(ctx, account.ID, identity.MFAChannel("carrier-pigeon"))
		assert.True(t, identity.IsInvalidChannel(err))
	})
}

func TestMFAManagerListChannels(t *testing.T) {
	ctx := context.Background()
	manager, repo, db, _ := newMFAManager(t)

	t.Run("email only", func(t *testing.T) {
		account := seedAccount(t, repo, db, nil)

		channels, err := manager.ListChannels(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, []identity.MFAChannel{identity.MFAChannelEmail}, channels)
	})

	t.Run("email and phone", func(t *testing.T) {
		account := seedAccount(t, repo, db, func(a *identity.Account) {
			a.Phone = "+12125551234"
			a.PhoneConfirmed = true
		})

		channels, err := manager.ListChannels(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, []identity.MFAChannel{identity.MFAChannelEmail, identity.MFAChannelPhone}, channels)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := manager.ListChannels(ctx, uuid.New())
		assert.ErrorIs(t, err, identity.ErrAccountNotFound)
	})
}

func TestMFAManagerPhoneVerificationFlow(t *testing.T) {
	ctx := context.Background()
	manager, repo, db, notifier := newMFAManager(t)

	account := seedAccount(t, repo, db, nil)

	require.NoError(t, manager.RequestPhoneVerification(ctx, account.ID, "(212) 555-1234"))

	// notification carries the cleartext code
	sent, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, identity.ActivityPhoneChangeRequested, sent.Activity)
	require.NotEmpty(t, sent.Code)

	stored, err := repo.Accounts().GetByIDWithRoles(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "+12125551234", stored.Phone)
	assert.False(t, stored.PhoneConfirmed)
	assert.Equal(t, identity.PurposePhoneChange, stored.PendingCodePurpose)

	t.Run("wrong code is rejected", func(t *testing.T) {
		err := manager.VerifyPhoneNumber(ctx, account.ID, "+12125551234", "000000")
		assert.True(t, identity.IsInvalidToken(err))
	})

	t.Run("wrong number is rejected", func(t *testing.T) {
		err := manager.VerifyPhoneNumber(ctx, account.ID, "+13105551234", sent.Code)
		assert.True(t, identity.IsInvalidToken(err))
	})

	t.Run("right code confirms the number", func(t *testing.T) {
		require.NoError(t, manager.VerifyPhoneNumber(ctx, account.ID, "+12125551234", sent.Code))

		stored, err := repo.Accounts().GetByIDWithRoles(ctx, account.ID)
		require.NoError(t, err)
		assert.True(t, stored.PhoneConfirmed)
		assert.Empty(t, stored.PendingCodeDigest)
	})

	t.Run("the code is single use", func(t *testing.T) {
		err := manager.VerifyPhoneNumber(ctx, account.ID, "+12125551234", sent.Code)
		assert.True(t, identity.IsInvalidToken(err))
	})
}

func TestMFAManagerPhoneUniqueness(t *testing.T) {
	ctx := context.Background()
	manager, repo, db, _ := newMFAManager(t)

	seedAccount(t, repo, db, func(a *identity.Account) {
		a.Phone = "+12125551234"
		a.PhoneConfirmed = true
	})
	account := seedAccount(t, repo, db, nil)

	err := manager.RequestPhoneVerification(ctx, account.ID, "+12125551234")
	assert.True(t, identity.IsDuplicateIdentifier(err))
}

func TestMFAManagerRemovePhoneNumber(t *testing.T) {
	ctx := context.Background()
	manager, repo, db, _ := newMFAManager(t)

	account := seedAccount(t, repo, db, func(a *identity.Account) {
		a.Phone = "+12125551234"
		a.PhoneConfirmed = true
		a.TwoFactorEnabled = true
		a.DefaultMFAChannel = identity.MFAChannelPhone
	})

	t.Run("unknown number is rejected", func(t *testing.T) {
		err := manager.RemovePhoneNumber(ctx, account.ID, "+13105551234")
		assert.ErrorIs(t, err, identity.ErrAccountNotFound)
	})

	t.Run("removal falls back to the email channel", func(t *testing.T) {
		require.NoError(t, manager.RemovePhoneNumber(ctx, account.ID, "+12125551234"))

		stored, err := repo.Accounts().GetByIDWithRoles(ctx, account.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.Phone)
		assert.False(t, stored.PhoneConfirmed)
		assert.Equal(t, identity.MFAChannelEmail, stored.DefaultMFAChannel)
	})
}
