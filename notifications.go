package identity

import (
	"context"
)

// AccountEventHandler translates committed account events into outbound
// notifications. Which message goes out depends on the event kind and the
// Activity marker set on the snapshot; events with no matching message
// are ignored.
type AccountEventHandler struct {
	notifier Notifier
	logger   Logger
}

var _ EventHandler = (*AccountEventHandler)(nil)

// NewAccountEventHandler builds the handler around a notifier.
func NewAccountEventHandler(notifier Notifier) *AccountEventHandler {
	return &AccountEventHandler{
		notifier: notifier,
		logger:   defLogger{},
	}
}

// WithLogger overrides the fallback logger.
func (h *AccountEventHandler) WithLogger(logger Logger) *AccountEventHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// Handle implements EventHandler.
func (h *AccountEventHandler) Handle(ctx context.Context, event DomainEvent) error {
	account, ok := event.Account()
	if !ok || account == nil {
		return nil
	}

	activity := account.Activity
	if event.Kind == EventCreated && activity == "" {
		activity = ActivityCreated
	}

	if !h.wantsNotification(activity) {
		h.logger.Debug("no notification for activity %q on account %s", activity, account.ID)
		return nil
	}

	if h.notifier == nil {
		return nil
	}

	return h.notifier.Notify(ctx, account, activity, account.IssuedCode)
}

func (h *AccountEventHandler) wantsNotification(activity Activity) bool {
	switch activity {
	case ActivityCreated,
		ActivityActivated,
		ActivityReinviteRequested,
		ActivityPasswordResetRequested,
		ActivityPasswordReset,
		ActivityMFACodeToEmail,
		ActivityMFACodeToPhone,
		ActivityPhoneChangeRequested:
		return true
	default:
		return false
	}
}
