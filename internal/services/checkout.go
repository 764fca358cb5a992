package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"brewbar/internal/cart"
	"brewbar/internal/domain"
	applog "brewbar/internal/log"
	"brewbar/internal/repos"
	"brewbar/internal/validate"
)

var ErrCheckoutInProgress = errors.New("checkout already in progress for this cart")

type CheckoutState string

const (
	StateIdle       CheckoutState = "idle"
	StateValidating CheckoutState = "validating"
	StateWriting    CheckoutState = "writing"
	StateSucceeded  CheckoutState = "succeeded"
	StateFailed     CheckoutState = "failed"
)

func (s CheckoutState) busy() bool { return s == StateValidating || s == StateWriting }

type CardDetails struct {
	Number     string `json:"card_number"`
	Expiry     string `json:"expiry_date"`
	CVV        string `json:"cvv"`
	Cardholder string `json:"cardholder_name"`
}

type CheckoutRequest struct {
	PickupTime    time.Time            `json:"pickup_time"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Card          CardDetails          `json:"card"`
	Notes         string               `json:"notes"`
}

// Locker guards a cart across instances. *cache.SubmitLock satisfies it.
type Locker interface {
	Acquire(ctx context.Context, key, token string) (bool, error)
	Release(ctx context.Context, key, token string) error
}

// finishedStateTTL is how long a succeeded or failed state stays readable.
const finishedStateTTL = 15 * time.Minute

type stateEntry struct {
	state CheckoutState
	at    time.Time
}

// CheckoutService turns a cart into a persisted order. When Orders also
// implements repos.TxOrderWriter all writes share one transaction; otherwise
// a failed later stage deletes the order it already wrote.
type CheckoutService struct {
	Orders        repos.OrderWriter
	Lock          Locker
	Now           func() time.Time
	Timeout       time.Duration
	MinPickupLead time.Duration

	mu     sync.Mutex
	states map[string]stateEntry
}

func NewCheckoutService(orders repos.OrderWriter, timeout, minPickupLead time.Duration) *CheckoutService {
	return &CheckoutService{
		Orders:        orders,
		Now:           time.Now,
		Timeout:       timeout,
		MinPickupLead: minPickupLead,
		states:        map[string]stateEntry{},
	}
}

// State reports the running or last finished checkout state for a cart.
// Finished states are forgotten after finishedStateTTL.
func (s *CheckoutService) State(cartID string) CheckoutState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[cartID]
	if !ok {
		return StateIdle
	}
	if !st.state.busy() && s.now().Sub(st.at) >= finishedStateTTL {
		delete(s.states, cartID)
		return StateIdle
	}
	return st.state
}

// begin marks the cart as validating and returns the entry it replaced.
func (s *CheckoutService) begin(cartID string) (stateEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states == nil {
		s.states = map[string]stateEntry{}
	}
	now := s.now()
	s.pruneLocked(now)
	prev, had := s.states[cartID]
	if prev.state.busy() {
		return prev, had, ErrCheckoutInProgress
	}
	s.states[cartID] = stateEntry{state: StateValidating, at: now}
	return prev, had, nil
}

func (s *CheckoutService) set(cartID string, st CheckoutState) {
	s.mu.Lock()
	s.states[cartID] = stateEntry{state: st, at: s.now()}
	s.mu.Unlock()
}

// restore puts back the entry begin replaced.
func (s *CheckoutService) restore(cartID string, prev stateEntry, had bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if had {
		s.states[cartID] = prev
		return
	}
	delete(s.states, cartID)
}

func (s *CheckoutService) pruneLocked(now time.Time) {
	for id, st := range s.states {
		if !st.state.busy() && now.Sub(st.at) >= finishedStateTTL {
			delete(s.states, id)
		}
	}
}

func (s *CheckoutService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Submit validates the cart and request, writes order, lines and payment,
// and takes the ordered lines out of the cart only once everything is
// stored.
func (s *CheckoutService) Submit(ctx context.Context, engine *cart.Engine, user *domain.User, req CheckoutRequest) (order domain.Order, err error) {
	cartID := engine.ID()
	prev, had, err := s.begin(cartID)
	if err != nil {
		return domain.Order{}, err
	}
	heldElsewhere := false
	defer func() {
		if heldElsewhere {
			s.restore(cartID, prev, had)
			return
		}
		if err != nil {
			s.set(cartID, StateFailed)
			return
		}
		s.set(cartID, StateSucceeded)
	}()

	if s.Lock != nil {
		token := uuid.NewString()
		ok, lerr := s.Lock.Acquire(ctx, cartID, token)
		switch {
		case lerr != nil:
			applog.Warn(nil, "checkout.lock.unavailable", lerr, map[string]any{"cart_id": cartID})
		case !ok:
			heldElsewhere = true
			return domain.Order{}, ErrCheckoutInProgress
		default:
			defer func() {
				if rerr := s.Lock.Release(context.WithoutCancel(ctx), cartID, token); rerr != nil {
					applog.Warn(nil, "checkout.lock.release", rerr, map[string]any{"cart_id": cartID})
				}
			}()
		}
	}

	snap := engine.Snapshot()
	card, err := s.validate(snap, user, req)
	if err != nil {
		return domain.Order{}, err
	}

	s.set(cartID, StateWriting)
	order, payment := buildOrder(snap, user, req, card)
	order.OrderDate = s.now()

	wctx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	if err := s.write(wctx, &order, &payment); err != nil {
		applog.Error(nil, "checkout.write.fail", err, map[string]any{"cart_id": cartID, "user_id": user.ID})
		return domain.Order{}, err
	}

	engine.Subtract(snap)
	applog.Audit(nil, "order.place", map[string]any{
		"order_id":       order.ID,
		"user_id":        user.ID,
		"total":          order.Total.StringFixed(2),
		"items":          snap.ItemCount,
		"payment_method": string(order.PaymentMethod),
		"payment_status": string(order.PaymentStatus),
	})
	return order, nil
}

// validate checks preconditions in a fixed order and returns the normalised
// card number for card payments.
func (s *CheckoutService) validate(snap cart.Snapshot, user *domain.User, req CheckoutRequest) (string, error) {
	if snap.Empty() {
		return "", domain.ErrEmptyCart
	}
	if user == nil {
		return "", domain.ErrNotAuthenticated
	}

	now := s.now()
	switch {
	case req.PickupTime.IsZero():
		return "", domain.ErrPickupTimeRequired
	case !req.PickupTime.After(now):
		return "", domain.ErrPickupTimeInPast
	case req.PickupTime.Before(now.Add(s.MinPickupLead)):
		return "", domain.ErrPickupTooSoon
	}

	if !req.PaymentMethod.Valid() {
		return "", domain.ErrPaymentMethodInvalid
	}
	if req.PaymentMethod != domain.PaymentCard {
		return "", nil
	}

	c := req.Card
	if strings.TrimSpace(c.Number) == "" {
		return "", domain.ErrCardNumberRequired
	}
	number, ok := validate.CardNumber(c.Number)
	if !ok {
		return "", domain.ErrCardNumberInvalid
	}
	if strings.TrimSpace(c.Expiry) == "" {
		return "", domain.ErrCardExpiryRequired
	}
	if !validate.Expiry(c.Expiry, now) {
		return "", domain.ErrCardExpiryInvalid
	}
	if strings.TrimSpace(c.CVV) == "" {
		return "", domain.ErrCVVRequired
	}
	if !validate.CVV(c.CVV) {
		return "", domain.ErrCVVInvalid
	}
	if strings.TrimSpace(c.Cardholder) == "" {
		return "", domain.ErrCardholderRequired
	}
	return number, nil
}

func buildOrder(snap cart.Snapshot, user *domain.User, req CheckoutRequest, cardNumber string) (domain.Order, domain.Payment) {
	pickup := req.PickupTime.UTC()
	o := domain.Order{
		UserID:        user.ID,
		Total:         snap.Total,
		Status:        domain.OrderConfirmed,
		PaymentStatus: domain.PaymentPending,
		PaymentMethod: req.PaymentMethod,
		PickupTime:    &pickup,
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		o.Notes = &notes
	}
	for _, l := range snap.Lines {
		o.Lines = append(o.Lines, domain.OrderLine{
			ItemID:         l.Item.ID,
			Item:           l.Item,
			Quantity:       l.Quantity,
			Price:          l.Item.Price,
			Customizations: domain.Customizations(l.Customizations),
		})
	}

	p := domain.Payment{
		Amount: snap.Total,
		Status: domain.PaymentRecordPending,
		Method: req.PaymentMethod,
	}
	if req.PaymentMethod == domain.PaymentCard {
		o.PaymentStatus = domain.PaymentPaid
		p.Status = domain.PaymentRecordCompleted
		txn := "txn_" + uuid.NewString()
		last4 := validate.Last4(cardNumber)
		p.TransactionID = &txn
		p.CardLast4 = &last4
	}
	return o, p
}

func (s *CheckoutService) write(ctx context.Context, o *domain.Order, p *domain.Payment) error {
	if tx, ok := s.Orders.(repos.TxOrderWriter); ok {
		err := tx.WithinTx(ctx, func(w repos.OrderWriter) error {
			return writeStages(ctx, w, o, p)
		})
		if err != nil && !domain.IsBackend(err) {
			return &domain.BackendError{Stage: domain.StageCommit, Err: err}
		}
		return err
	}

	err := writeStages(ctx, s.Orders, o, p)
	if err != nil && o.ID != "" && !errors.Is(err, domain.ErrCreateOrder) {
		s.compensate(ctx, o.ID)
	}
	return err
}

func writeStages(ctx context.Context, w repos.OrderWriter, o *domain.Order, p *domain.Payment) error {
	if err := w.CreateOrder(ctx, o); err != nil {
		return &domain.BackendError{Stage: domain.StageCreateOrder, Err: err}
	}
	if err := w.CreateOrderLines(ctx, o.ID, o.Lines); err != nil {
		return &domain.BackendError{Stage: domain.StageCreateOrderLines, Err: err}
	}
	p.OrderID = o.ID
	if err := w.RecordPayment(ctx, p); err != nil {
		return &domain.BackendError{Stage: domain.StageRecordPayment, Err: err}
	}
	return nil
}

// compensate removes a partially written order. It runs detached from the
// request context since that may already be past its deadline.
func (s *CheckoutService) compensate(ctx context.Context, orderID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Orders.DeleteOrder(cctx, orderID); err != nil {
		applog.Error(nil, "checkout.compensate.fail", err, map[string]any{"order_id": orderID})
		return
	}
	applog.Info(nil, "checkout.compensate", map[string]any{"order_id": orderID})
}
