package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Account *Account
	From    AccountState
	To      AccountState
	At      time.Time
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// AccountStateMachine governs Unregistered -> Unverified -> Verified.
type AccountStateMachine interface {
	CurrentState(account *Account) AccountState
	CanTransition(from, to AccountState) bool
	Transition(ctx context.Context, account *Account, target AccountState) error
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineIDGenerator overrides how ids are assigned on registration.
func WithStateMachineIDGenerator(gen func(*Account) (uuid.UUID, error)) StateMachineOption {
	return func(sm *accountStateMachine) {
		if gen != nil {
			sm.newID = gen
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the account is mutated.
// A hook error aborts the transition.
func WithBeforeTransitionHook(h TransitionHook) StateMachineOption {
	return func(sm *accountStateMachine) {
		if h != nil {
			sm.beforeHooks = append(sm.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the account is mutated.
func WithAfterTransitionHook(h TransitionHook) StateMachineOption {
	return func(sm *accountStateMachine) {
		if h != nil {
			sm.afterHooks = append(sm.afterHooks, h)
		}
	}
}

// WithStateMachineLogger overrides the logger.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// NewAccountStateMachine returns the default implementation.
func NewAccountStateMachine(opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		transitions: map[AccountState]map[AccountState]struct{}{
			AccountUnregistered: {
				AccountUnverified: {},
			},
			AccountUnverified: {
				AccountVerified: {},
			},
		},
		now: time.Now,
		newID: func(*Account) (uuid.UUID, error) {
			return uuid.New(), nil
		},
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	transitions map[AccountState]map[AccountState]struct{}
	now         func() time.Time
	newID       func(*Account) (uuid.UUID, error)
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
	logger      Logger
}

func (sm *accountStateMachine) CurrentState(account *Account) AccountState {
	return account.State()
}

func (sm *accountStateMachine) CanTransition(from, to AccountState) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Transition moves account to target and applies the field changes the
// target implies. Re-entering the current state is a no-op.
func (sm *accountStateMachine) Transition(ctx context.Context, account *Account, target AccountState) error {
	if account == nil {
		return ErrInvariantViolation.Clone().WithMetadata(map[string]any{
			"target": target,
			"reason": "account is nil",
		})
	}

	from := account.State()
	if from == target {
		return nil
	}

	if !sm.CanTransition(from, target) {
		return ErrInvariantViolation.Clone().WithMetadata(map[string]any{
			"from":   from,
			"to":     target,
			"reason": "transition not allowed",
		})
	}

	tc := TransitionContext{
		Account: account,
		From:    from,
		To:      target,
		At:      sm.now().UTC(),
	}

	if err := sm.runHooks(ctx, sm.beforeHooks, tc); err != nil {
		return err
	}

	if err := sm.apply(tc); err != nil {
		return err
	}

	if err := sm.runHooks(ctx, sm.afterHooks, tc); err != nil {
		return err
	}

	sm.logger.Debug("account state transition", "account_id", account.ID, "from", from, "to", target)

	return nil
}

func (sm *accountStateMachine) apply(tc TransitionContext) error {
	account := tc.Account
	at := tc.At

	switch tc.To {
	case AccountUnverified:
		if !account.HasPendingVerification() {
			return ErrInvariantViolation.Clone().WithMetadata(map[string]any{
				"to":     tc.To,
				"reason": "registration requires a pending verification token",
			})
		}
		id, err := sm.newID(account)
		if err != nil {
			return asRichError(err, "failed to assign account id")
		}
		account.ID = id
		account.CreatedAt = &at
		account.UpdatedAt = &at
	case AccountVerified:
		account.EmailVerifiedAt = &at
		account.VerificationToken = ""
		account.UpdatedAt = &at
	}

	return nil
}

func (sm *accountStateMachine) runHooks(ctx context.Context, hooks []TransitionHook, tc TransitionContext) error {
	for _, hook := range hooks {
		if err := hook(ctx, tc); err != nil {
			return asRichError(err, "account transition hook failed")
		}
	}
	return nil
}
