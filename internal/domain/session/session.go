// Package session binds POS terminals to in-progress orders and wires the
// orders to their external collaborators.
package session

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/salon-pos/internal/domain/catalog"
	"github.com/xenking/salon-pos/internal/domain/customer"
	"github.com/xenking/salon-pos/internal/domain/order"
	"github.com/xenking/salon-pos/internal/domain/pricing"
	"github.com/xenking/salon-pos/internal/domain/promotion"
	"github.com/xenking/salon-pos/internal/domain/settings"
	"github.com/xenking/salon-pos/internal/domain/tax"
)

// PromotionSource supplies branch promotions.
type PromotionSource interface {
	Get(ctx context.Context, branchID string) ([]promotion.Promotion, error)
	Refresh(ctx context.Context, branchID string) ([]promotion.Promotion, error)
}

// Session is one terminal's open order.
type Session struct {
	ID         string
	BranchID   string
	TerminalID string
	OpenedAt   time.Time
	Restored   bool
	Order      *order.Order
}

// Deps are the collaborators of a Manager. Drafts may be nil to disable
// draft persistence.
type Deps struct {
	Catalog    catalog.Repository
	Promotions PromotionSource
	Customers  customer.Repository
	Settings   settings.Repository
	Bridge     order.Bridge
	Drafts     DraftStore
	Meter      metric.MeterProvider
}

// Options tune a Manager.
type Options struct {
	DraftTTL      time.Duration
	SubmitTimeout time.Duration
}

type metrics struct {
	recompute      metric.Int64Counter
	submit         metric.Int64Counter
	submitDuration metric.Float64Histogram
}

// Manager owns the open sessions.
type Manager struct {
	lg   *zap.Logger
	deps Deps
	opts Options
	now  func() time.Time

	engine  *promotion.Engine
	metrics metrics

	mu       sync.RWMutex
	sessions map[string]*Session

	unsubscribe func()
}

// NewManager creates a Manager. When the promotion source supports
// subscriptions, refreshed promotions are pushed into open sessions.
func NewManager(lg *zap.Logger, deps Deps, opts Options) (*Manager, error) {
	if deps.Meter == nil {
		deps.Meter = noop.NewMeterProvider()
	}
	meter := deps.Meter.Meter("github.com/xenking/salon-pos/internal/domain/session")

	var (
		mt  metrics
		err error
	)
	if mt.recompute, err = meter.Int64Counter("pos.order.recompute",
		metric.WithDescription("Order mutations followed by a pricing recompute"),
	); err != nil {
		return nil, errors.Wrap(err, "create recompute counter")
	}
	if mt.submit, err = meter.Int64Counter("pos.order.submit",
		metric.WithDescription("Order submissions by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "create submit counter")
	}
	if mt.submitDuration, err = meter.Float64Histogram("pos.order.submit.duration",
		metric.WithDescription("Order submission latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "create submit histogram")
	}

	m := &Manager{
		lg:       lg,
		deps:     deps,
		opts:     opts,
		now:      time.Now,
		engine:   promotion.NewEngine(),
		metrics:  mt,
		sessions: map[string]*Session{},
	}
	if s, ok := deps.Promotions.(interface {
		Subscribe(promotion.Listener) func()
	}); ok {
		m.unsubscribe = s.Subscribe(m.onPromotions)
	}
	return m, nil
}

// Open starts a session for a terminal. A draft saved by the same terminal
// less than DraftTTL ago is restored.
func (m *Manager) Open(ctx context.Context, branchID, terminalID string) (*Session, error) {
	if branchID == "" || terminalID == "" {
		return nil, ErrInvalidTerminal
	}
	lg := m.lg.With(zap.String("branch_id", branchID), zap.String("terminal_id", terminalID))

	o, restored := m.restore(ctx, lg, branchID, terminalID)
	s := &Session{
		ID:         ulid.Make().String(),
		BranchID:   branchID,
		TerminalID: terminalID,
		OpenedAt:   m.now(),
		Restored:   restored,
		Order:      o,
	}

	m.loadSettings(ctx, lg, s)
	m.loadPromotions(ctx, lg, s, false)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	lg.Info("Session opened", zap.String("session_id", s.ID), zap.Bool("restored", restored))
	return s, nil
}

func (m *Manager) restore(ctx context.Context, lg *zap.Logger, branchID, terminalID string) (*order.Order, bool) {
	fresh := order.New(m.engine, nil)
	if m.deps.Drafts == nil {
		return fresh, false
	}

	data, err := m.deps.Drafts.Load(ctx, draftKey(branchID, terminalID))
	if err != nil {
		lg.Warn("Load draft failed", zap.Error(err))
		return fresh, false
	}
	if data == nil {
		return fresh, false
	}
	d, err := decodeDraft(data)
	if err != nil {
		lg.Warn("Discarding unreadable draft", zap.Error(err))
		return fresh, false
	}
	if d.Expired(m.now(), m.opts.DraftTTL) || d.State.IsEmpty() {
		return fresh, false
	}
	return order.Restore(m.engine, nil, d.State), true
}

func (m *Manager) loadSettings(ctx context.Context, lg *zap.Logger, s *Session) {
	company, err := m.deps.Settings.Company(ctx)
	if err != nil {
		lg.Warn("Company settings unavailable, tax disabled", zap.Error(err))
		s.Order.SetAggregator(pricing.NewAggregator(nil))
		s.Order.SetWarning(SourceSettings, "tax settings unavailable, tax not applied")
		return
	}
	s.Order.SetAggregator(pricing.NewAggregator(tax.NewResolver(company.TaxConfig(), nil)))
	s.Order.ClearWarning(SourceSettings)
}

func (m *Manager) loadPromotions(ctx context.Context, lg *zap.Logger, s *Session, refresh bool) {
	get := m.deps.Promotions.Get
	if refresh {
		get = m.deps.Promotions.Refresh
	}

	promos, err := get(ctx, s.BranchID)
	if err != nil {
		lg.Warn("Promotions unavailable", zap.Error(err))
		s.Order.SetWarning(SourcePromotions, "promotions unavailable, not applied")
		if !refresh {
			if err := s.Order.SetPromotions(nil); err != nil {
				lg.Debug("Apply promotions skipped", zap.Error(err))
			}
		}
		return
	}
	if err := s.Order.SetPromotions(promos); err != nil {
		lg.Debug("Apply promotions skipped", zap.Error(err))
		return
	}
	s.Order.ClearWarning(SourcePromotions)
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Sessions returns the open sessions ordered by id.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Session) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Close abandons a session. Its draft is kept for the next Open.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	m.saveDraft(ctx, s)
	m.lg.Info("Session closed", zap.String("session_id", id))
	return nil
}

// Do runs a local mutation on the session order, then records the recompute
// and saves the draft.
func (m *Manager) Do(ctx context.Context, id, op string, fn func(o *order.Order) error) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if err := fn(s.Order); err != nil {
		return s, err
	}

	m.metrics.recompute.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	m.saveDraft(ctx, s)
	return s, nil
}

// AddItem looks the item up in the catalog and adds it to the order. Lookup
// failures leave the order unchanged.
func (m *Manager) AddItem(ctx context.Context, id, itemID string) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	it, err := m.deps.Catalog.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return s, err
		}
		sessionLogger(m.lg, s).Warn("Catalog lookup failed", zap.String("item_id", itemID), zap.Error(err))
		return s, &ExternalServiceError{Source: "catalog", Err: err}
	}

	return m.Do(ctx, id, "add_item", func(o *order.Order) error {
		return o.AddItem(*it)
	})
}

// SetCustomer selects a customer by id. An empty id clears the customer. A
// failed lookup selects the customer with the same-state jurisdiction and
// records a warning.
func (m *Manager) SetCustomer(ctx context.Context, id, customerID string) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return m.Do(ctx, id, "set_customer", func(o *order.Order) error {
			o.ClearWarning(SourceCustomer)
			return o.SetCustomer(nil)
		})
	}

	tc, err := m.deps.Customers.GetTaxContext(ctx, s.BranchID, customerID)
	degraded := false
	switch {
	case errors.Is(err, customer.ErrNotFound):
		return s, err
	case err != nil:
		sessionLogger(m.lg, s).Warn("Customer lookup failed, assuming same state",
			zap.String("customer_id", customerID),
			zap.Error(err),
		)
		fallback := customer.Default()
		fallback.CustomerID = customerID
		tc = &fallback
		degraded = true
	}

	return m.Do(ctx, id, "set_customer", func(o *order.Order) error {
		if err := o.SetCustomer(tc); err != nil {
			return err
		}
		if degraded {
			o.SetWarning(SourceCustomer, "customer tax details unavailable, same-state tax applied")
		} else {
			o.ClearWarning(SourceCustomer)
		}
		return nil
	})
}

// RefreshPromotions refetches the branch promotions and re-applies them. On
// failure the current promotions stay and a warning is recorded.
func (m *Manager) RefreshPromotions(ctx context.Context, id string) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if s.Order.Busy() {
		return s, order.ErrBusy
	}
	m.loadPromotions(ctx, sessionLogger(m.lg, s), s, true)
	m.metrics.recompute.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "refresh_promotions")))
	m.saveDraft(ctx, s)
	return s, nil
}

// ReloadSettings refetches company settings for the session.
func (m *Manager) ReloadSettings(ctx context.Context, id string) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	m.loadSettings(ctx, sessionLogger(m.lg, s), s)
	return s, nil
}

// Submit hands the order to the persistence bridge under the submit timeout.
func (m *Manager) Submit(ctx context.Context, id string, status order.Status) (*order.Receipt, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	lg := sessionLogger(m.lg, s)

	if m.opts.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.SubmitTimeout)
		defer cancel()
	}

	start := m.now()
	bridge := terminalBridge{next: m.deps.Bridge, branchID: s.BranchID, terminalID: s.TerminalID}
	receipt, err := s.Order.Submit(ctx, bridge, status)
	outcome := "success"
	var verr *order.ValidationError
	switch {
	case errors.As(err, &verr):
		return nil, err
	case errors.Is(err, order.ErrBusy):
		return nil, err
	case err != nil:
		outcome = "failure"
		lg.Error("Submit order failed", zap.Error(err))
	default:
		lg.Info("Order submitted", zap.String("sale_id", receipt.ID), zap.String("status", string(status)))
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome), attribute.String("status", string(status)))
	m.metrics.submit.Add(ctx, 1, attrs)
	m.metrics.submitDuration.Record(ctx, m.now().Sub(start).Seconds(), attrs)

	if err != nil {
		return nil, err
	}
	m.saveDraft(ctx, s)
	return receipt, nil
}

// Shutdown saves every open draft and stops listening for promotion updates.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	for _, s := range m.Sessions() {
		m.saveDraft(ctx, s)
	}
}

// saveDraft persists the session order. Empty orders delete the draft.
// Failures are logged only.
func (m *Manager) saveDraft(ctx context.Context, s *Session) {
	if m.deps.Drafts == nil {
		return
	}
	lg := sessionLogger(m.lg, s)
	key := draftKey(s.BranchID, s.TerminalID)

	st := s.Order.State()
	if st.IsEmpty() {
		if err := m.deps.Drafts.Delete(ctx, key); err != nil {
			lg.Warn("Delete draft failed", zap.Error(err))
		}
		return
	}

	data, err := encodeDraft(Draft{State: st, SavedAt: m.now()})
	if err == nil {
		err = m.deps.Drafts.Save(ctx, key, data, m.opts.DraftTTL)
	}
	if err != nil {
		lg.Warn("Save draft failed", zap.Error(err))
	}
}

func (m *Manager) onPromotions(branchID string, promos []promotion.Promotion) {
	for _, s := range m.Sessions() {
		if s.BranchID != branchID {
			continue
		}
		if err := s.Order.SetPromotions(promos); err != nil {
			m.lg.Debug("Promotion push skipped", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		s.Order.ClearWarning(SourcePromotions)
	}
}

// terminalBridge stamps the session's branch and terminal on the payload.
type terminalBridge struct {
	next       order.Bridge
	branchID   string
	terminalID string
}

func (b terminalBridge) SubmitOrder(ctx context.Context, p order.Payload, status order.Status) (*order.Receipt, error) {
	p.BranchID = b.branchID
	p.TerminalID = b.terminalID
	return b.next.SubmitOrder(ctx, p, status)
}

func sessionLogger(lg *zap.Logger, s *Session) *zap.Logger {
	return lg.With(zap.String("session_id", s.ID), zap.String("branch_id", s.BranchID))
}
