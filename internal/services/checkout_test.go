package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"brewbar/internal/cart"
	"brewbar/internal/domain"
	"brewbar/internal/repos"
	"brewbar/internal/services"
)

var (
	clock = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	ada   = &domain.User{ID: "u-ada", Email: "ada@brewbar.test", FullName: "Ada", Role: domain.RoleCustomer}
)

func memdb(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func menuItem(t *testing.T, db *sqlx.DB, id string) domain.CatalogItem {
	t.Helper()
	it, err := repos.NewCatalogRepo(db).ByID(context.Background(), id)
	if err != nil {
		t.Fatalf("menu item %s: %v", id, err)
	}
	return it
}

func fixedItem(id, price string) domain.CatalogItem {
	return domain.CatalogItem{ID: id, Name: id, Price: decimal.RequireFromString(price), Category: domain.CategoryEspresso, Available: true}
}

func newCheckout(w repos.OrderWriter) *services.CheckoutService {
	s := services.NewCheckoutService(w, time.Second, 30*time.Minute)
	s.Now = func() time.Time { return clock }
	return s
}

func cashRequest() services.CheckoutRequest {
	return services.CheckoutRequest{PickupTime: clock.Add(time.Hour), PaymentMethod: domain.PaymentCash}
}

func cardRequest() services.CheckoutRequest {
	return services.CheckoutRequest{
		PickupTime:    clock.Add(time.Hour),
		PaymentMethod: domain.PaymentCard,
		Card:          services.CardDetails{Number: "4242 4242 4242 4242", Expiry: "12/28", CVV: "123", Cardholder: "Ada Lovelace"},
	}
}

func TestCheckout_CashOrderIsPendingAndClearsCart(t *testing.T) {
	db := memdb(t)
	ctx := context.Background()
	orders := repos.NewOrderRepo(db)
	svc := newCheckout(orders)

	e := cart.New()
	_ = e.AddItem(menuItem(t, db, "classic-espresso"), 2)
	_ = e.AddItem(menuItem(t, db, "vanilla-latte"), 1, "oat milk")

	o, err := svc.Submit(ctx, e, ada, cashRequest())
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != domain.OrderConfirmed || o.PaymentStatus != domain.PaymentPending {
		t.Fatalf("want confirmed/pending, got %s/%s", o.Status, o.PaymentStatus)
	}
	if !o.Total.Equal(decimal.RequireFromString("11.95")) {
		t.Fatalf("want 11.95, got %s", o.Total)
	}
	if !e.Snapshot().Empty() {
		t.Fatal("cart should be cleared after success")
	}
	if svc.State(e.ID()) != services.StateSucceeded {
		t.Fatalf("want succeeded, got %s", svc.State(e.ID()))
	}

	hist, err := orders.ListOrdersForUser(ctx, ada.ID)
	if err != nil || len(hist) != 1 {
		t.Fatalf("history: %v %v", hist, err)
	}
	sum := decimal.Zero
	for _, l := range hist[0].Lines {
		sum = sum.Add(l.Subtotal())
	}
	if !sum.Equal(decimal.RequireFromString("11.95")) || len(hist[0].Lines) != 2 {
		t.Fatalf("lines do not add up: %s over %d lines", sum, len(hist[0].Lines))
	}
	if hist[0].PickupTime == nil || !hist[0].PickupTime.Equal(clock.Add(time.Hour)) {
		t.Fatalf("pickup time not stored: %v", hist[0].PickupTime)
	}

	var pay domain.Payment
	if err := db.Get(&pay, `SELECT id, order_id, amount, status, payment_method, transaction_id, card_last4, created_at FROM payments WHERE order_id = ?`, o.ID); err != nil {
		t.Fatal(err)
	}
	if pay.Status != domain.PaymentRecordPending || pay.CardLast4 != nil || !pay.Amount.Equal(o.Total) {
		t.Fatalf("unexpected payment %+v", pay)
	}
}

func TestCheckout_CardOrderIsPaid(t *testing.T) {
	db := memdb(t)
	svc := newCheckout(repos.NewOrderRepo(db))

	e := cart.New()
	_ = e.AddItem(menuItem(t, db, "mocha-delight"), 1)

	o, err := svc.Submit(context.Background(), e, ada, cardRequest())
	if err != nil {
		t.Fatal(err)
	}
	if o.PaymentStatus != domain.PaymentPaid || o.PaymentMethod != domain.PaymentCard {
		t.Fatalf("want paid card order, got %+v", o)
	}
	var last4 string
	if err := db.Get(&last4, `SELECT card_last4 FROM payments WHERE order_id = ?`, o.ID); err != nil {
		t.Fatal(err)
	}
	if last4 != "4242" {
		t.Fatalf("want last4 4242, got %q", last4)
	}
}

func TestCheckout_PriceSnapshotSurvivesCatalogChange(t *testing.T) {
	db := memdb(t)
	ctx := context.Background()
	orders := repos.NewOrderRepo(db)
	svc := newCheckout(orders)

	e := cart.New()
	_ = e.AddItem(menuItem(t, db, "classic-espresso"), 2)
	o, err := svc.Submit(ctx, e, ada, cashRequest())
	if err != nil {
		t.Fatal(err)
	}
	if err := repos.NewCatalogRepo(db).UpdatePrice(ctx, "classic-espresso", decimal.RequireFromString("4.00")); err != nil {
		t.Fatal(err)
	}

	got, err := orders.Get(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Lines[0].Price.Equal(decimal.RequireFromString("3.50")) || !got.Total.Equal(decimal.RequireFromString("7.00")) {
		t.Fatalf("order changed with catalog: line %s total %s", got.Lines[0].Price, got.Total)
	}
}

func TestCheckout_Preconditions(t *testing.T) {
	full := cart.New()
	_ = full.AddItem(fixedItem("espresso", "3.50"), 1)

	mod := func(f func(*services.CheckoutRequest)) services.CheckoutRequest {
		r := cardRequest()
		f(&r)
		return r
	}

	cases := []struct {
		name   string
		engine *cart.Engine
		user   *domain.User
		req    services.CheckoutRequest
		want   error
	}{
		{"empty cart wins over missing user", cart.New(), nil, cashRequest(), domain.ErrEmptyCart},
		{"no user", full, nil, cashRequest(), domain.ErrNotAuthenticated},
		{"no pickup", full, ada, mod(func(r *services.CheckoutRequest) { r.PickupTime = time.Time{} }), domain.ErrPickupTimeRequired},
		{"pickup now", full, ada, mod(func(r *services.CheckoutRequest) { r.PickupTime = clock }), domain.ErrPickupTimeInPast},
		{"pickup past", full, ada, mod(func(r *services.CheckoutRequest) { r.PickupTime = clock.Add(-time.Minute) }), domain.ErrPickupTimeInPast},
		{"pickup too soon", full, ada, mod(func(r *services.CheckoutRequest) { r.PickupTime = clock.Add(10 * time.Minute) }), domain.ErrPickupTooSoon},
		{"bad method", full, ada, mod(func(r *services.CheckoutRequest) { r.PaymentMethod = "cheque" }), domain.ErrPaymentMethodInvalid},
		{"no card number", full, ada, mod(func(r *services.CheckoutRequest) { r.Card.Number = " " }), domain.ErrCardNumberRequired},
		{"bad card number", full, ada, mod(func(r *services.CheckoutRequest) { r.Card.Number = "42" }), domain.ErrCardNumberInvalid},
		{"no expiry", full, ada, mod(func(r *services.CheckoutRequest) { r.Card.Expiry = "" }), domain.ErrCardExpiryRequired},
		{"expired", full, ada, mod(func(r *services.CheckoutRequest) { r.Card.Expiry = "01/26" }), domain.ErrCardExpiryInvalid},
		{"no cvv", full, ada, mod(func(r *services.CheckoutRequest) { r.Card.CVV = "" }), domain.ErrCVVRequired},
		{"bad cvv", full, ada, mod(func(r *services.CheckoutRequest) { r.Card.CVV = "12" }), domain.ErrCVVInvalid},
		{"no holder", full, ada, mod(func(r *services.CheckoutRequest) { r.Card.Cardholder = "" }), domain.ErrCardholderRequired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := &stubWriter{}
			svc := newCheckout(w)
			_, err := svc.Submit(context.Background(), tc.engine, tc.user, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
			if w.calls() != 0 {
				t.Fatalf("precondition failure must not write, got %d calls", w.calls())
			}
		})
	}
	if full.Snapshot().ItemCount != 1 {
		t.Fatal("failed checkouts must not touch the cart")
	}
}

func TestCheckout_CardlessCashIgnoresCardFields(t *testing.T) {
	w := &stubWriter{}
	svc := newCheckout(w)
	e := cart.New()
	_ = e.AddItem(fixedItem("espresso", "3.50"), 1)

	if _, err := svc.Submit(context.Background(), e, ada, cashRequest()); err != nil {
		t.Fatal(err)
	}
}

func TestCheckout_OrderStageFailure(t *testing.T) {
	w := &stubWriter{failOrder: errors.New("db down")}
	svc := newCheckout(w)
	e := cart.New()
	_ = e.AddItem(fixedItem("espresso", "3.50"), 2)

	_, err := svc.Submit(context.Background(), e, ada, cashRequest())
	if !errors.Is(err, domain.ErrCreateOrder) || errors.Is(err, domain.ErrCreateOrderLines) {
		t.Fatalf("want create_order stage, got %v", err)
	}
	if !domain.IsBackend(err) {
		t.Fatalf("want BackendError, got %T", err)
	}
	if e.Snapshot().ItemCount != 2 {
		t.Fatal("cart must survive a failed checkout")
	}
	if len(w.deleted) != 0 {
		t.Fatal("nothing to compensate when the order was never written")
	}
	if svc.State(e.ID()) != services.StateFailed {
		t.Fatalf("want failed, got %s", svc.State(e.ID()))
	}
}

func TestCheckout_LineStageFailureCompensates(t *testing.T) {
	w := &stubWriter{failLines: errors.New("constraint")}
	svc := newCheckout(w)
	e := cart.New()
	_ = e.AddItem(fixedItem("espresso", "3.50"), 1)

	_, err := svc.Submit(context.Background(), e, ada, cashRequest())
	if !errors.Is(err, domain.ErrCreateOrderLines) {
		t.Fatalf("want create_order_lines stage, got %v", err)
	}
	if len(w.deleted) != 1 || w.deleted[0] != w.created[0] {
		t.Fatalf("orphaned order not deleted: created %v deleted %v", w.created, w.deleted)
	}
	if e.Snapshot().Empty() {
		t.Fatal("cart must survive a failed checkout")
	}
}

func TestCheckout_TxRollbackOnLineFailure(t *testing.T) {
	db := memdb(t)
	svc := newCheckout(repos.NewOrderRepo(db))

	e := cart.New()
	_ = e.AddItem(menuItem(t, db, "classic-espresso"), 1)
	_ = e.AddItem(fixedItem("not-on-menu", "1.00"), 1)

	_, err := svc.Submit(context.Background(), e, ada, cashRequest())
	if !errors.Is(err, domain.ErrCreateOrderLines) {
		t.Fatalf("want create_order_lines stage, got %v", err)
	}
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM orders`); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("transaction left %d orders behind", n)
	}
	if e.Snapshot().ItemCount != 2 {
		t.Fatal("cart must survive a failed checkout")
	}
}

func TestCheckout_TimeoutIsBackendError(t *testing.T) {
	w := &stubWriter{blockOrder: true}
	svc := newCheckout(w)
	svc.Timeout = 20 * time.Millisecond
	e := cart.New()
	_ = e.AddItem(fixedItem("espresso", "3.50"), 1)

	_, err := svc.Submit(context.Background(), e, ada, cashRequest())
	if !errors.Is(err, domain.ErrCreateOrder) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want create_order deadline, got %v", err)
	}
}

func TestCheckout_DoubleSubmitRejected(t *testing.T) {
	w := &stubWriter{gate: make(chan struct{}), entered: make(chan struct{})}
	svc := newCheckout(w)
	e := cart.New()
	_ = e.AddItem(fixedItem("espresso", "3.50"), 1)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), e, ada, cashRequest())
		done <- err
	}()
	<-w.entered

	if svc.State(e.ID()) != services.StateWriting {
		t.Fatalf("want writing, got %s", svc.State(e.ID()))
	}
	if _, err := svc.Submit(context.Background(), e, ada, cashRequest()); !errors.Is(err, services.ErrCheckoutInProgress) {
		t.Fatalf("want ErrCheckoutInProgress, got %v", err)
	}

	close(w.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if w.orderCount() != 1 {
		t.Fatalf("want exactly one order, got %d", w.orderCount())
	}
	// a finished checkout does not block the next attempt
	if _, err := svc.Submit(context.Background(), e, ada, cashRequest()); !errors.Is(err, domain.ErrEmptyCart) {
		t.Fatalf("want ErrEmptyCart on the next attempt, got %v", err)
	}
}

func TestCheckout_DistributedLockHeld(t *testing.T) {
	w := &stubWriter{}
	svc := newCheckout(w)
	svc.Lock = &fakeLock{held: true}
	e := cart.New()
	_ = e.AddItem(fixedItem("espresso", "3.50"), 1)

	if _, err := svc.Submit(context.Background(), e, ada, cashRequest()); !errors.Is(err, services.ErrCheckoutInProgress) {
		t.Fatalf("want ErrCheckoutInProgress, got %v", err)
	}
	if w.calls() != 0 {
		t.Fatal("no writes while another instance holds the lock")
	}
	if svc.State(e.ID()) != services.StateIdle {
		t.Fatalf("a lock held elsewhere must not mark the cart failed, got %s", svc.State(e.ID()))
	}
}

func TestCheckout_LockHeldKeepsPreviousState(t *testing.T) {
	lock := &fakeLock{}
	svc := newCheckout(&stubWriter{})
	svc.Lock = lock
	e := cart.New()
	_ = e.AddItem(fixedItem("espresso", "3.50"), 1)
	if _, err := svc.Submit(context.Background(), e, ada, cashRequest()); err != nil {
		t.Fatal(err)
	}

	lock.held = true
	_ = e.AddItem(fixedItem("espresso", "3.50"), 1)
	if _, err := svc.Submit(context.Background(), e, ada, cashRequest()); !errors.Is(err, services.ErrCheckoutInProgress) {
		t.Fatalf("want ErrCheckoutInProgress, got %v", err)
	}
	if svc.State(e.ID()) != services.StateSucceeded {
		t.Fatalf("want previous succeeded state, got %s", svc.State(e.ID()))
	}
}

func TestCheckout_ItemAddedDuringWriteStaysInCart(t *testing.T) {
	e := cart.New()
	_ = e.AddItem(fixedItem("espresso", "3.50"), 2)
	w := &stubWriter{duringOrder: func() {
		_ = e.AddItem(fixedItem("latte", "4.95"), 1)
		_ = e.AddItem(fixedItem("espresso", "3.50"), 1)
	}}
	svc := newCheckout(w)

	o, err := svc.Submit(context.Background(), e, ada, cashRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(o.Lines) != 1 || !o.Total.Equal(decimal.RequireFromString("7.00")) {
		t.Fatalf("order should hold the cart as submitted: %d lines, total %s", len(o.Lines), o.Total)
	}
	snap := e.Snapshot()
	if snap.ItemCount != 2 || !snap.Total.Equal(decimal.RequireFromString("8.45")) {
		t.Fatalf("later additions must stay in the cart, got %d items / %s", snap.ItemCount, snap.Total)
	}
}

func TestCheckout_FinishedStateExpires(t *testing.T) {
	now := clock
	svc := newCheckout(&stubWriter{})
	svc.Now = func() time.Time { return now }
	e := cart.New()
	_ = e.AddItem(fixedItem("espresso", "3.50"), 1)
	if _, err := svc.Submit(context.Background(), e, ada, cashRequest()); err != nil {
		t.Fatal(err)
	}
	if svc.State(e.ID()) != services.StateSucceeded {
		t.Fatalf("want succeeded, got %s", svc.State(e.ID()))
	}

	now = now.Add(time.Hour)
	if svc.State(e.ID()) != services.StateIdle {
		t.Fatalf("finished state should expire, got %s", svc.State(e.ID()))
	}
}

func TestCheckout_LockReleasedAfterSuccess(t *testing.T) {
	lock := &fakeLock{}
	svc := newCheckout(&stubWriter{})
	svc.Lock = lock
	e := cart.New()
	_ = e.AddItem(fixedItem("espresso", "3.50"), 1)

	if _, err := svc.Submit(context.Background(), e, ada, cashRequest()); err != nil {
		t.Fatal(err)
	}
	if lock.released != 1 {
		t.Fatalf("want one release, got %d", lock.released)
	}
}

// stubWriter records calls and fails on demand. It has no WithinTx, so
// checkout takes the compensating path.
type stubWriter struct {
	mu          sync.Mutex
	failOrder   error
	failLines   error
	blockOrder  bool
	gate        chan struct{}
	entered     chan struct{}
	duringOrder func()
	created     []string
	deleted     []string
	n           int
}

func (w *stubWriter) calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

func (w *stubWriter) orderCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.created)
}

func (w *stubWriter) CreateOrder(ctx context.Context, o *domain.Order) error {
	w.mu.Lock()
	w.n++
	w.mu.Unlock()
	if w.entered != nil {
		close(w.entered)
	}
	if w.gate != nil {
		<-w.gate
	}
	if w.duringOrder != nil {
		w.duringOrder()
	}
	if w.blockOrder {
		<-ctx.Done()
		return ctx.Err()
	}
	if w.failOrder != nil {
		return w.failOrder
	}
	o.ID = "order-" + o.UserID
	w.mu.Lock()
	w.created = append(w.created, o.ID)
	w.mu.Unlock()
	return nil
}

func (w *stubWriter) CreateOrderLines(_ context.Context, _ string, _ []domain.OrderLine) error {
	w.mu.Lock()
	w.n++
	w.mu.Unlock()
	return w.failLines
}

func (w *stubWriter) RecordPayment(_ context.Context, _ *domain.Payment) error {
	w.mu.Lock()
	w.n++
	w.mu.Unlock()
	return nil
}

func (w *stubWriter) DeleteOrder(_ context.Context, id string) error {
	w.mu.Lock()
	w.deleted = append(w.deleted, id)
	w.mu.Unlock()
	return nil
}

type fakeLock struct {
	held     bool
	released int
}

func (l *fakeLock) Acquire(context.Context, string, string) (bool, error) { return !l.held, nil }

func (l *fakeLock) Release(context.Context, string, string) error {
	l.released++
	return nil
}
