package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuthResult is what the service layer gets back from a successful login
// or verification step. Kind tells the caller whether Token is a full
// session or only the MFA-intermediate token.
type AuthResult struct {
	Kind        TokenKind
	Token       string
	DisplayName string
}

// Authenticator drives the login protocol: credential verification,
// step-up MFA challenge issuance, and one-time code verification.
// All operations are stateless and safe for concurrent use across
// different accounts.
type Authenticator struct {
	repo      RepositoryManager
	verifier  CredentialVerifier
	tokens    TokenService
	codes     *CodeIssuer
	handlers  []EventHandler
	auditSink AuditSink
	logger    Logger
}

// NewAuthenticator wires the authenticator from its collaborators.
func NewAuthenticator(repo RepositoryManager, verifier CredentialVerifier, tokens TokenService, cfg Config) *Authenticator {
	return &Authenticator{
		repo:      repo,
		verifier:  verifier,
		tokens:    tokens,
		codes:     NewCodeIssuer(cfg),
		auditSink: noopAuditSink{},
		logger:    defLogger{},
	}
}

// WithLogger overrides the fallback logger.
func (a *Authenticator) WithLogger(logger Logger) *Authenticator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// WithAuditSink configures an AuditSink for auth events.
func (a *Authenticator) WithAuditSink(sink AuditSink) *Authenticator {
	a.auditSink = normalizeAuditSink(sink)
	return a
}

// WithEventHandlers registers handlers that receive the domain events each
// operation's unit of work produces, e.g. the notification router.
func (a *Authenticator) WithEventHandlers(handlers ...EventHandler) *Authenticator {
	a.handlers = append(a.handlers, handlers...)
	return a
}

// WithCodeIssuer overrides the code issuer (useful for tests).
func (a *Authenticator) WithCodeIssuer(codes *CodeIssuer) *Authenticator {
	if codes != nil {
		a.codes = codes
	}
	return a
}

// Login verifies credentials and either mints a full session token or,
// for MFA-enabled accounts, issues a one-time code on the default channel
// and returns an intermediate token. Unknown emails and wrong passwords
// are indistinguishable to the caller.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	account, err := a.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			a.emitAudit(ctx, AuditEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
				"email": NormalizeEmail(email),
			})
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account lookup failed")
	}

	result, err := a.verifier.SignIn(ctx, account, password)
	if err != nil {
		return nil, err
	}

	if blocked := a.mapSignInFailure(account, result); blocked != nil {
		a.emitAudit(ctx, AuditEventLoginFailure, actorForAccount(account), account.ID.String(), map[string]any{
			"error": blocked.Error(),
		})
		return nil, blocked
	}

	if result.RequiresTwoFactor {
		return a.issueMFAChallenge(ctx, account)
	}

	token, err := a.tokens.Issue(account, SessionToken())
	if err != nil {
		return nil, err
	}

	a.emitAudit(ctx, AuditEventLoginSuccess, actorForAccount(account), account.ID.String(), nil)

	return &AuthResult{
		Kind:        TokenKindSession,
		Token:       token,
		DisplayName: account.DisplayName(),
	}, nil
}

// ResendMFACode regenerates a one-time code on the requested channel,
// invalidating any previously issued code. Only callable while the caller
// holds a valid intermediate token; enforcing that is the service layer's
// job via AuthClaims.IsMFAIntermediate.
func (a *Authenticator) ResendMFACode(ctx context.Context, accountID uuid.UUID, channel MFAChannel) error {
	account, err := a.repo.Accounts().GetByIDWithRoles(ctx, accountID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account lookup failed")
	}

	if err := channelEligible(account, channel); err != nil {
		return err
	}

	if err := a.storeChallenge(ctx, account, channel); err != nil {
		return err
	}

	a.emitAudit(ctx, AuditEventChallengeReissued, actorForAccount(account), account.ID.String(), map[string]any{
		"channel": string(channel),
	})
	return nil
}

// VerifyTwoFactor checks a presented one-time code and completes the
// login, minting a full session token. Wrong, expired, consumed, and
// wrong-channel codes all fail with the same ErrInvalidToken.
func (a *Authenticator) VerifyTwoFactor(ctx context.Context, accountID uuid.UUID, channel MFAChannel, code string) (*AuthResult, error) {
	account, err := a.repo.Accounts().GetByIDWithRoles(ctx, accountID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account lookup failed")
	}

	if account.PendingCodePurpose != PurposeMFALogin || account.PendingCodeChannel != channel {
		a.emitAudit(ctx, AuditEventMFAVerifyFailure, actorForAccount(account), account.ID.String(), nil)
		return nil, ErrInvalidToken
	}

	if err := a.codes.Verify(code, account.PendingCodeDigest, account.PendingCodeIssuedAt); err != nil {
		a.emitAudit(ctx, AuditEventMFAVerifyFailure, actorForAccount(account), account.ID.String(), nil)
		return nil, err
	}

	uow := a.newUnitOfWork()
	err = uow.Commit(ctx, func(ctx context.Context, tx bun.Tx) error {
		account.Touch(account.Email)
		if err := a.repo.Accounts().ClearPendingCodeTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume one-time code")
		}
		return a.repo.Accounts().TrackSuccessfulLoginTx(ctx, tx, account)
	})
	if err != nil {
		return nil, err
	}

	token, err := a.tokens.Issue(account, SessionToken())
	if err != nil {
		return nil, err
	}

	a.emitAudit(ctx, AuditEventMFAVerified, actorForAccount(account), account.ID.String(), map[string]any{
		"channel": string(channel),
	})

	return &AuthResult{
		Kind:        TokenKindSession,
		Token:       token,
		DisplayName: account.DisplayName(),
	}, nil
}

func (a *Authenticator) issueMFAChallenge(ctx context.Context, account *Account) (*AuthResult, error) {
	channel := account.DefaultMFAChannel
	if !channel.IsValid() {
		channel = MFAChannelEmail
	}

	if err := a.storeChallenge(ctx, account, channel); err != nil {
		return nil, err
	}

	token, err := a.tokens.Issue(account, MFAToken(channel))
	if err != nil {
		return nil, err
	}

	a.emitAudit(ctx, AuditEventMFAChallenge, actorForAccount(account), account.ID.String(), map[string]any{
		"channel": string(channel),
	})

	return &AuthResult{
		Kind:        TokenKindMFA,
		Token:       token,
		DisplayName: account.DisplayName(),
	}, nil
}

// storeChallenge generates a one-time code, persists its digest on the
// account under a unit of work, and lets the post-commit event carry the
// cleartext to the notification handler.
func (a *Authenticator) storeChallenge(ctx context.Context, account *Account, channel MFAChannel) error {
	code, digest, err := a.codes.Generate()
	if err != nil {
		return err
	}

	uow := a.newUnitOfWork()
	return uow.Commit(ctx, func(ctx context.Context, tx bun.Tx) error {
		account.SetPendingCode(digest, PurposeMFALogin, channel, time.Now())
		account.IssuedCode = code
		account.Activity = mfaActivityFor(channel)
		account.Touch(account.Email)

		if err := a.repo.Accounts().SavePendingCodeTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist one-time code")
		}

		uow.RegisterUpdated(account)
		return nil
	})
}

func (a *Authenticator) mapSignInFailure(account *Account, result SignInResult) error {
	switch {
	case result.IsLockedOut:
		return ErrAccountLocked
	case result.IsNotAllowed:
		if err := statusAuthError(account.Status); err != nil {
			return err
		}
		return ErrInvalidCredentials
	case !result.Succeeded:
		return ErrInvalidCredentials
	default:
		return nil
	}
}

func (a *Authenticator) newUnitOfWork() *UnitOfWork {
	outbox := NewOutbox(a.handlers...).WithLogger(a.logger)
	return NewUnitOfWork(a.repo, outbox)
}

func (a *Authenticator) emitAudit(ctx context.Context, eventType AuditEventType, actor ActorRef, accountID string, metadata map[string]any) {
	sink := normalizeAuditSink(a.auditSink)
	event := AuditEvent{
		EventType:  eventType,
		Actor:      actor,
		AccountID:  accountID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := sink.Record(ctx, event); err != nil {
		a.logger.Warn("audit sink record error: %v", err)
	}
}

func actorForAccount(account *Account) ActorRef {
	if account == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: account.ID.String(), Type: "account"}
}

func mfaActivityFor(channel MFAChannel) Activity {
	if channel == MFAChannelPhone {
		return ActivityMFACodeToPhone
	}
	return ActivityMFACodeToEmail
}

func channelEligible(account *Account, channel MFAChannel) error {
	switch channel {
	case MFAChannelEmail:
		if !account.EmailConfirmed {
			return ErrInvalidChannel
		}
	case MFAChannelPhone:
		if !account.PhoneConfirmed {
			return ErrInvalidChannel
		}
	default:
		return ErrInvalidChannel
	}
	return nil
}
