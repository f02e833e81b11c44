// Package payment implements the card-payment reservation protocol: a
// linear per-checkout state machine with a verification-code step and a
// one-shot abandonment finalizer guaranteeing pending-order cancellation.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"bassinshop-storefront/internal/apiclient"
	"bassinshop-storefront/internal/domain"
	"bassinshop-storefront/internal/store"
)

const (
	maxResends     = 3
	defaultCodeTTL = 10 * time.Minute
	pendingTTL     = 30 * time.Minute
)

var (
	// ErrIllegalTransition rejects an operation out of protocol order.
	ErrIllegalTransition = errors.New("illegal payment state transition")
	// ErrCardExpired rejects a card whose expiry is in the past.
	ErrCardExpired = errors.New("card expired")
	// ErrMaxResends is returned when the resend cap forces cancellation.
	ErrMaxResends = errors.New("resend limit reached")
	// ErrNoPendingOrder means Resume found nothing usable in the store.
	ErrNoPendingOrder = errors.New("no pending order")
)

type paymentAPI interface {
	InitiatePayment(ctx context.Context, req apiclient.InitiatePaymentRequest) (*domain.Transaction, error)
	VerifyCode(ctx context.Context, transactionID int64, code string) (*apiclient.VerifyResult, error)
	ResendCode(ctx context.Context, transactionID int64) error
	CodeExpiry(ctx context.Context, transactionID int64) (time.Time, error)
	CancelOrder(ctx context.Context, number string) error
}

// Flow is one checkout attempt's payment protocol. The finalized flag is
// the single one-shot gate shared by every abandonment trigger: whichever
// of unload, navigation or teardown fires first wins, the rest no-op.
type Flow struct {
	api       paymentAPI
	store     store.Store
	logger    *log.Logger
	now       func() time.Time
	tickEvery time.Duration

	finalized atomic.Bool

	mu          sync.Mutex
	state       State
	orderID     int64
	orderNumber string
	txID        int64
	reference   string
	resends     int
	deadline    time.Time
}

// NewFlow starts a flow at FORM_ENTRY.
func NewFlow(api paymentAPI, st store.Store, logger *log.Logger) *Flow {
	return &Flow{
		api:       api,
		store:     st,
		logger:    logger,
		now:       time.Now,
		tickEvery: time.Second,
		state:     StateFormEntry,
	}
}

// State returns the current protocol state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// OrderNumber returns the pending order's human-readable number.
func (f *Flow) OrderNumber() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orderNumber
}

// Reference returns the payment reference once VERIFIED.
func (f *Flow) Reference() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reference
}

// Begin records the created pending order and persists the session record
// so the flow survives a reload.
func (f *Flow) Begin(ctx context.Context, order *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.state.canTransition(StateOrderCreated) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, f.state, StateOrderCreated)
	}
	f.state = StateOrderCreated
	f.orderID = order.ID
	f.orderNumber = order.Number
	f.persistLocked(ctx)
	return nil
}

// SubmitCard validates the expiry client-side, initiates the transaction
// and fetches the code deadline, falling back to the 10-minute default
// when the expiry endpoint fails.
func (f *Flow) SubmitCard(ctx context.Context, card domain.CardDetails) (*domain.Transaction, error) {
	f.mu.Lock()
	if !f.state.canTransition(StateCardSubmitted) {
		state := f.state
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, state, StateCardSubmitted)
	}
	orderID := f.orderID
	f.mu.Unlock()

	if !card.ExpiryValid(f.now()) {
		return nil, ErrCardExpired
	}

	tx, err := f.api.InitiatePayment(ctx, apiclient.InitiatePaymentRequest{OrderID: orderID, Card: card})
	if err != nil {
		return nil, fmt.Errorf("initiate payment: %w", err)
	}

	f.mu.Lock()
	f.state = StateCardSubmitted
	f.txID = tx.ID
	f.persistLocked(ctx)
	f.mu.Unlock()

	deadline, derr := f.api.CodeExpiry(ctx, tx.ID)
	if derr != nil || deadline.IsZero() {
		if derr != nil {
			f.logger.Printf("code expiry fetch failed, using %s default: %v", defaultCodeTTL, derr)
		}
		deadline = f.now().Add(defaultCodeTTL)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateCodeSent
	f.deadline = deadline
	f.persistLocked(ctx)
	return tx, nil
}

// Remaining returns the time left on the current verification code.
func (f *Flow) Remaining() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deadline.IsZero() {
		return 0
	}
	d := f.deadline.Sub(f.now())
	if d < 0 {
		return 0
	}
	return d
}

// Countdown emits the remaining code lifetime every second. When it
// reaches zero an automatic resend is attempted if attempts remain,
// otherwise the flow is finalized. The channel closes on ctx cancellation
// or when the flow reaches a terminal state.
func (f *Flow) Countdown(ctx context.Context) <-chan time.Duration {
	out := make(chan time.Duration, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(f.tickEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if f.State().Terminal() {
					return
				}
				remaining := f.Remaining()
				select {
				case out <- remaining:
				default:
				}
				if remaining > 0 {
					continue
				}
				if err := f.Resend(ctx); err != nil {
					f.logger.Printf("code expired, flow closed: %v", err)
					return
				}
			}
		}
	}()
	return out
}

// Resend requests a fresh code. The cap is 3; exceeding it cancels the
// pending order.
func (f *Flow) Resend(ctx context.Context) error {
	f.mu.Lock()
	if f.state != StateCodeSent {
		state := f.state
		f.mu.Unlock()
		return fmt.Errorf("%w: resend in %s", ErrIllegalTransition, state)
	}
	f.resends++
	over := f.resends > maxResends
	f.mu.Unlock()

	if over {
		if err := f.Finalize(ctx, "resend limit exceeded"); err != nil {
			f.logger.Printf("finalize after resend limit: %v", err)
		}
		return ErrMaxResends
	}

	if err := f.api.ResendCode(ctx, f.transactionID()); err != nil {
		return fmt.Errorf("resend code: %w", err)
	}

	deadline, err := f.api.CodeExpiry(ctx, f.transactionID())
	if err != nil || deadline.IsZero() {
		deadline = f.now().Add(defaultCodeTTL)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadline = deadline
	f.persistLocked(ctx)
	return nil
}

// Verify submits the 6-digit code. Success finalizes the flow as VERIFIED
// and purges the session record; a max-attempts failure cancels the order.
func (f *Flow) Verify(ctx context.Context, code string) (string, error) {
	f.mu.Lock()
	if f.state != StateCodeSent {
		state := f.state
		f.mu.Unlock()
		return "", fmt.Errorf("%w: verify in %s", ErrIllegalTransition, state)
	}
	txID := f.txID
	f.mu.Unlock()

	res, err := f.api.VerifyCode(ctx, txID, code)
	if err != nil {
		if apiclient.PaymentFailureOf(err) == apiclient.PaymentMaxAttempts {
			if ferr := f.Finalize(ctx, "verification attempts exhausted"); ferr != nil {
				f.logger.Printf("finalize after max attempts: %v", ferr)
			}
		}
		return "", fmt.Errorf("verify code: %w", err)
	}
	if res == nil || !res.Validated {
		// A 200 with validated=false is still a rejection; stay in
		// CODE_SENT so the user can retry.
		return "", fmt.Errorf("verify code: transaction not validated")
	}

	// Claim the one-shot so no abandonment trigger can cancel a paid order.
	f.finalized.Store(true)
	f.mu.Lock()
	f.state = StateVerified
	f.reference = res.Reference
	f.mu.Unlock()
	f.purge(ctx)
	return res.Reference, nil
}

// Finalize is the single idempotent abandonment entry point. The first
// caller cancels the pending order; every later call is a no-op, so the
// order is cancelled exactly once no matter how many triggers fire.
func (f *Flow) Finalize(ctx context.Context, reason string) error {
	if !f.finalized.CompareAndSwap(false, true) {
		return nil
	}

	f.mu.Lock()
	number := f.orderNumber
	state := f.state
	f.state = StateCancelled
	f.mu.Unlock()

	f.purge(ctx)
	if number == "" || state == StateFormEntry {
		return nil
	}
	f.logger.Printf("cancelling pending order %s (%s)", number, reason)
	if err := f.api.CancelOrder(ctx, number); err != nil {
		return fmt.Errorf("cancel order %s: %w", number, err)
	}
	return nil
}

// Resume restores a flow from the session record after a reload. An
// expired record is cancellable garbage: the order is finalized and
// ErrNoPendingOrder returned.
func (f *Flow) Resume(ctx context.Context) error {
	var rec domain.PendingOrder
	if err := store.GetJSON(ctx, f.store, store.KeyPendingPayment, &rec); err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return ErrNoPendingOrder
		}
		return fmt.Errorf("read pending order: %w", err)
	}

	if f.now().After(rec.ExpiresAt) {
		f.mu.Lock()
		f.orderID = rec.OrderID
		f.orderNumber = rec.OrderNumber
		f.state = StateOrderCreated
		f.mu.Unlock()
		if err := f.Finalize(ctx, "pending order expired"); err != nil {
			f.logger.Printf("finalize expired pending order: %v", err)
		}
		return ErrNoPendingOrder
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderID = rec.OrderID
	f.orderNumber = rec.OrderNumber
	f.txID = rec.TransactionID
	f.resends = rec.ResendCount
	f.state = State(rec.State)
	return nil
}

func (f *Flow) transactionID() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txID
}

// persistLocked writes the session record. Caller holds f.mu.
func (f *Flow) persistLocked(ctx context.Context) {
	rec := domain.PendingOrder{
		OrderID:       f.orderID,
		OrderNumber:   f.orderNumber,
		TransactionID: f.txID,
		State:         string(f.state),
		ResendCount:   f.resends,
		ExpiresAt:     f.now().Add(pendingTTL),
	}
	if err := store.SetJSON(ctx, f.store, store.KeyPendingPayment, rec, pendingTTL); err != nil {
		f.logger.Printf("persist pending order: %v", err)
	}
}

func (f *Flow) purge(ctx context.Context) {
	if err := f.store.Delete(ctx, store.KeyPendingPayment); err != nil {
		f.logger.Printf("purge pending order record: %v", err)
	}
}
