// Package mirror is the client-resident cart cache. It gives the UI instant
// feedback: every mutation lands in the local state first, is persisted and
// broadcast so sibling browsing contexts converge, and is then pushed to the
// server in the background. The server cart stays authoritative; the mirror
// is advisory and never trusted back.
package mirror

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/metrics"
)

// Entry is one mirrored line, keyed by product id. HasPrice distinguishes a
// known price (including a legitimate 0.00 for a free item) from "not known
// yet"; only known prices are transmitted to the server.
type Entry struct {
	ProductID int64           `json:"productId"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	HasPrice  bool            `json:"hasPrice,omitempty"`
	ImageURL  string          `json:"imageUrl,omitempty"`
	Code      string          `json:"code,omitempty"`
	Qty       int             `json:"qty"`
}

// State is the persisted mirror: the server cart identity this client
// believes it owns, plus the line entries.
type State struct {
	CartID   int64           `json:"cartId,omitempty"`
	GuestKey string          `json:"guestKey,omitempty"`
	Entries  map[int64]Entry `json:"entries"`
}

func (s State) clone() State {
	out := s
	out.Entries = make(map[int64]Entry, len(s.Entries))
	for k, v := range s.Entries {
		out.Entries[k] = v
	}
	return out
}

// CartAPI is the server side of the sync protocol, implemented over HTTP in
// a real client or directly against the services in-process.
type CartAPI interface {
	// EnsureCart returns the active cart id for the guest key, creating a
	// cart (and possibly a key) when absent.
	EnsureCart(ctx context.Context, guestKey string) (cartID int64, newGuestKey string, err error)
	// A nil price means "unknown, keep whatever the server has recorded".
	AddItem(ctx context.Context, cartID, productID int64, qty int, price *decimal.Decimal) error
	SetItem(ctx context.Context, cartID, productID int64, qty int, price *decimal.Decimal) error
	RemoveItem(ctx context.Context, cartID, productID int64) error
	ClearItems(ctx context.Context, cartID int64) error
}

// Options tune a Mirror. All fields are optional.
type Options struct {
	Logger  *log.Logger
	Metrics *metrics.Metrics

	// OnSyncError observes a sync that failed for good: either a
	// non-recoverable server error or a second failure after the cart
	// identity was re-established. The local optimistic state is kept
	// regardless.
	OnSyncError func(error)
}

type Mirror struct {
	store Store
	bus   Bus
	api   CartAPI
	opts  Options

	mu    sync.Mutex
	state State

	wg     sync.WaitGroup
	cancel func()
}

// New loads the persisted state and subscribes to the broadcast bus so this
// mirror refreshes whenever any sibling mutates.
func New(ctx context.Context, store Store, bus Bus, api CartAPI, opts Options) (*Mirror, error) {
	state, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if state.Entries == nil {
		state.Entries = make(map[int64]Entry)
	}

	m := &Mirror{store: store, bus: bus, api: api, opts: opts, state: state}
	cancel, err := bus.Subscribe(func(Notice) { m.refresh(context.Background()) })
	if err != nil {
		return nil, err
	}
	m.cancel = cancel
	return m, nil
}

// Add applies the entry optimistically (accumulating quantity, capped) and
// schedules the server sync. The sync carries the caller's delta, never the
// accumulated local total: the server accumulates on its side too, so pushing
// the total would double-count every repeated add.
func (m *Mirror) Add(ctx context.Context, e Entry) error {
	delta := e.Qty
	if err := m.applyLocal(ctx, func(s *State) {
		next := e
		if cur, ok := s.Entries[e.ProductID]; ok {
			next.Qty += cur.Qty
			if !next.HasPrice && cur.HasPrice {
				next.Price = cur.Price
				next.HasPrice = true
			}
		}
		if next.Qty > domain.MaxLineQuantity {
			next.Qty = domain.MaxLineQuantity
		}
		s.Entries[e.ProductID] = next
	}); err != nil {
		return err
	}
	m.goSync(func(ctx context.Context, cartID int64) error {
		return m.api.AddItem(ctx, cartID, e.ProductID, delta, pricePtr(e))
	})
	return nil
}

// SetQty replaces the quantity for an already-mirrored product.
func (m *Mirror) SetQty(ctx context.Context, productID int64, qty int) error {
	if qty > domain.MaxLineQuantity {
		qty = domain.MaxLineQuantity
	}
	var price *decimal.Decimal
	if err := m.applyLocal(ctx, func(s *State) {
		e, ok := s.Entries[productID]
		if !ok {
			e = Entry{ProductID: productID}
		}
		e.Qty = qty
		s.Entries[productID] = e
		price = pricePtr(e)
	}); err != nil {
		return err
	}
	m.goSync(func(ctx context.Context, cartID int64) error {
		return m.api.SetItem(ctx, cartID, productID, qty, price)
	})
	return nil
}

func pricePtr(e Entry) *decimal.Decimal {
	if !e.HasPrice {
		return nil
	}
	p := e.Price
	return &p
}

func (m *Mirror) Remove(ctx context.Context, productID int64) error {
	if err := m.applyLocal(ctx, func(s *State) {
		delete(s.Entries, productID)
	}); err != nil {
		return err
	}
	m.goSync(func(ctx context.Context, cartID int64) error {
		return m.api.RemoveItem(ctx, cartID, productID)
	})
	return nil
}

func (m *Mirror) Clear(ctx context.Context) error {
	if err := m.applyLocal(ctx, func(s *State) {
		s.Entries = make(map[int64]Entry)
	}); err != nil {
		return err
	}
	m.goSync(func(ctx context.Context, cartID int64) error {
		return m.api.ClearItems(ctx, cartID)
	})
	return nil
}

// Entries returns the mirrored lines ordered by product id.
func (m *Mirror) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.state.Entries))
	for _, e := range m.state.Entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Count sums quantities. Derived on read, never stored, so it cannot drift.
func (m *Mirror) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.state.Entries {
		n += e.Qty
	}
	return n
}

// Total sums quantity times price across entries.
func (m *Mirror) Total() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, e := range m.state.Entries {
		total = total.Add(e.Price.Mul(decimal.NewFromInt(int64(e.Qty))))
	}
	return total
}

// CartID returns the server cart this mirror currently maps to, zero when
// not yet established.
func (m *Mirror) CartID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CartID
}

// Flush waits for all in-flight syncs. Useful on checkout and in tests.
func (m *Mirror) Flush() {
	m.wg.Wait()
}

// Close unsubscribes from the bus and waits for in-flight syncs.
func (m *Mirror) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.Flush()
}

// applyLocal mutates the in-memory state, persists it, and broadcasts. The
// broadcast tells every sibling context to re-read the persisted mirror.
func (m *Mirror) applyLocal(ctx context.Context, fn func(*State)) error {
	m.mu.Lock()
	fn(&m.state)
	snapshot := m.state.clone()
	m.mu.Unlock()

	if err := m.store.Save(ctx, snapshot); err != nil {
		return err
	}
	if err := m.bus.Publish(ctx, Notice{}); err != nil {
		m.logf("mirror: broadcast failed: %v", err)
	}
	return nil
}

func (m *Mirror) refresh(ctx context.Context) {
	state, err := m.store.Load(ctx)
	if err != nil {
		m.logf("mirror: refresh failed: %v", err)
		return
	}
	if state.Entries == nil {
		state.Entries = make(map[int64]Entry)
	}
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *Mirror) goSync(op func(ctx context.Context, cartID int64) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.sync(context.Background(), op); err != nil {
			m.logf("mirror: sync failed, keeping local state: %v", err)
			if m.opts.OnSyncError != nil {
				m.opts.OnSyncError(err)
			}
		}
	}()
}

// sync pushes one mutation to the server. When the referenced cart is gone
// or cancelled, the stored identity is discarded, a fresh cart is ensured,
// and the mutation is retried exactly once. A second failure is surfaced,
// not retried further.
func (m *Mirror) sync(ctx context.Context, op func(ctx context.Context, cartID int64) error) error {
	cartID, err := m.ensureCart(ctx, false)
	if err != nil {
		return err
	}

	err = op(ctx, cartID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	m.opts.Metrics.RecordMirrorRetry(ctx)
	cartID, err = m.ensureCart(ctx, true)
	if err != nil {
		return err
	}
	return op(ctx, cartID)
}

func (m *Mirror) ensureCart(ctx context.Context, discardCurrent bool) (int64, error) {
	m.mu.Lock()
	if discardCurrent {
		m.state.CartID = 0
	}
	cartID := m.state.CartID
	guestKey := m.state.GuestKey
	m.mu.Unlock()

	if cartID != 0 {
		return cartID, nil
	}

	cartID, newKey, err := m.api.EnsureCart(ctx, guestKey)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.state.CartID = cartID
	if newKey != "" {
		m.state.GuestKey = newKey
	}
	snapshot := m.state.clone()
	m.mu.Unlock()

	if err := m.store.Save(ctx, snapshot); err != nil {
		m.logf("mirror: persist cart identity failed: %v", err)
	}
	return cartID, nil
}

func (m *Mirror) logf(format string, args ...interface{}) {
	if m.opts.Logger != nil {
		m.opts.Logger.Printf(format, args...)
	}
}
