package order

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/rihla-backoffice/internal/domain"
	"github.com/xenking/rihla-backoffice/internal/domain/auth"
	"github.com/xenking/rihla-backoffice/internal/domain/brand"
	"github.com/xenking/rihla-backoffice/internal/domain/customer"
	"github.com/xenking/rihla-backoffice/internal/domain/inventory"
	"github.com/xenking/rihla-backoffice/internal/domain/pricing"
	"github.com/xenking/rihla-backoffice/internal/domain/product"
)

const instrumentationName = "github.com/xenking/rihla-backoffice/internal/domain/order"

// ErrRequestInFlight is returned when another request with the same
// idempotency key is still being placed.
var ErrRequestInFlight = errors.New("an order with this idempotency key is already being placed")

// NumberIssuer hands out order numbers.
type NumberIssuer interface {
	Issue() (string, error)
}

// IdempotencyStore remembers which order an idempotency key produced.
type IdempotencyStore interface {
	// Claim reserves key. If the key was claimed before it returns the order id
	// recorded for it, or an empty id while that placement is still running.
	Claim(ctx context.Context, key string) (orderID string, claimed bool, err error)
	Complete(ctx context.Context, key, orderID string) error
	Release(ctx context.Context, key string) error
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Customer       CustomerSnapshot
	BrandID        string
	Items          []LineRequest
	Currency       string
	ApplyTax       bool
	Shipping       decimal.Decimal
	PaymentMethod  string
	Status         string
	IdempotencyKey string
}

// LineRequest is a requested (product, quantity) pair.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order    *Order
	Customer *customer.Customer
	// Replayed is set when the order was created by an earlier request with
	// the same idempotency key.
	Replayed bool
}

// ServiceConfig tunes placement.
type ServiceConfig struct {
	DefaultCurrency string
	MaxAttempts     int
	RetryBackoff    time.Duration
}

// ServiceDeps lists the collaborators of Service.
type ServiceDeps struct {
	Products  product.Repository
	Brands    brand.Directory
	Ledger    *inventory.Ledger
	Customers *customer.Aggregator
	Orders    Repository
	Tx        domain.Transactor
	Numbers   NumberIssuer
	Pricing   *pricing.Calculator
}

// ServiceOption configures optional Service behaviour.
type ServiceOption func(*Service)

// WithIdempotency enables Idempotency-Key handling.
func WithIdempotency(store IdempotencyStore) ServiceOption {
	return func(s *Service) { s.idem = store }
}

// WithTelemetry sets the meter and tracer providers.
func WithTelemetry(mp metric.MeterProvider, tp trace.TracerProvider) ServiceOption {
	return func(s *Service) {
		s.meterProvider = mp
		s.tracerProvider = tp
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// Service places orders and updates their status.
//
// Placement runs the stages validating, pricing, reserving, persisting and
// aggregating_customer. Nothing is written before reserving. Reserving,
// persisting and aggregating_customer share one store transaction, so a
// failure in any of them rolls all three back. Conflicts reported by the
// store are retried with jittered backoff up to MaxAttempts.
type Service struct {
	deps ServiceDeps
	cfg  ServiceConfig
	idem IdempotencyStore
	now  func() time.Time

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	placed         metric.Int64Counter
	failed         metric.Int64Counter
	retries        metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(deps ServiceDeps, cfg ServiceConfig, opts ...ServiceOption) (*Service, error) {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = pricing.DefaultCurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 20 * time.Millisecond
	}

	s := &Service{
		deps:           deps,
		cfg:            cfg,
		now:            time.Now,
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	meter := s.meterProvider.Meter(instrumentationName)

	var err error
	if s.placed, err = meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders placed successfully"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.placed counter")
	}
	if s.failed, err = meter.Int64Counter("orders.failed",
		metric.WithDescription("Order placements that failed, by stage"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.failed counter")
	}
	if s.retries, err = meter.Int64Counter("orders.retries",
		metric.WithDescription("Placement attempts retried after a store conflict"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.retries counter")
	}

	return s, nil
}

// PlaceOrder runs the placement stages for req. With an idempotency key, a
// repeated request returns the order created by the first one.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()

	if req.IdempotencyKey == "" || s.idem == nil {
		return s.place(ctx, span, req)
	}

	key := idempotencyScope(ctx, req.IdempotencyKey)
	orderID, claimed, err := s.idem.Claim(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "claim idempotency key")
	}
	if !claimed {
		if orderID == "" {
			return nil, ErrRequestInFlight
		}
		o, err := s.deps.Orders.GetByID(ctx, orderID)
		if err != nil {
			return nil, errors.Wrapf(err, "replay order %s", orderID)
		}
		span.SetAttributes(attribute.Bool("order.replayed", true))
		return &PlaceOrderResult{Order: o, Replayed: true}, nil
	}

	res, err := s.place(ctx, span, req)
	// The key must settle even when the caller has gone away.
	settleCtx := context.WithoutCancel(ctx)
	if err != nil {
		if relErr := s.idem.Release(settleCtx, key); relErr != nil {
			zctx.From(ctx).Warn("Release idempotency key", zap.String("key", key), zap.Error(relErr))
		}
		return nil, err
	}
	s.completeKey(settleCtx, key, res.Order.ID)
	return res, nil
}

// completeKey records orderID under key, trying twice. When both attempts
// fail the key is released so a retry places a fresh order instead of being
// refused as in flight until the key expires.
func (s *Service) completeKey(ctx context.Context, key, orderID string) {
	lg := zctx.From(ctx)
	var err error
	for range 2 {
		if err = s.idem.Complete(ctx, key, orderID); err == nil {
			return
		}
		lg.Warn("Complete idempotency key", zap.String("key", key), zap.Error(err))
	}
	if err := s.idem.Release(ctx, key); err != nil {
		lg.Warn("Release idempotency key", zap.String("key", key), zap.Error(err))
	}
}

// draft is a validated request ready for pricing and commit.
type draft struct {
	customer      CustomerSnapshot
	brandID       string
	brandName     string
	items         []Item
	currency      string
	applyTax      bool
	shipping      decimal.Decimal
	paymentMethod string
	status        Status
	createdBy     string
}

func (s *Service) place(ctx context.Context, span trace.Span, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	lg := zctx.From(ctx)

	d, err := s.validate(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, span, stageErr(StageValidating, err))
	}
	span.AddEvent(string(StageValidating))

	lines := make([]pricing.Line, len(d.items))
	for i, it := range d.items {
		lines[i] = pricing.Line{ProductID: it.ProductID, UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}
	quote, err := s.deps.Pricing.Quote(pricing.Request{
		Lines:    lines,
		Currency: d.currency,
		ApplyTax: d.applyTax,
		Shipping: d.shipping,
	})
	if err != nil {
		return nil, s.fail(ctx, span, stageErr(StagePricing, err))
	}
	span.AddEvent(string(StagePricing))

	for attempt := 1; ; attempt++ {
		res, err := s.commit(ctx, d, quote)
		if err == nil {
			span.AddEvent(string(StageDone))
			span.SetAttributes(
				attribute.String("order.id", res.Order.ID),
				attribute.String("order.number", res.Order.OrderNumber),
				attribute.Int("order.attempts", attempt),
			)
			s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("currency", res.Order.Currency)))
			lg.Info("Order placed",
				zap.String("order_id", res.Order.ID),
				zap.String("order_number", res.Order.OrderNumber),
				zap.String("total", res.Order.Total.StringFixed(2)),
				zap.String("currency", res.Order.Currency),
				zap.Int("attempts", attempt),
			)
			return res, nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt >= s.cfg.MaxAttempts {
			return nil, s.fail(ctx, span, err)
		}

		s.retries.Add(ctx, 1)
		lg.Warn("Retrying order placement after conflict", zap.Int("attempt", attempt), zap.Error(err))
		if err := sleep(ctx, s.backoff(attempt)); err != nil {
			return nil, s.fail(ctx, span, err)
		}
	}
}

func (s *Service) validate(ctx context.Context, req PlaceOrderRequest) (*draft, error) {
	email, err := customer.NormalizeEmail(req.Customer.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Customer.Name)
	if name == "" {
		return nil, domain.Invalid("customer_name", "is required")
	}

	status := StatusPending
	if req.Status != "" {
		if status, err = ParseStatus(req.Status); err != nil {
			return nil, err
		}
	}

	currency := pricing.NormalizeCurrency(req.Currency)
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	paymentMethod := strings.TrimSpace(req.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = DefaultPaymentMethod
	}

	brandName, err := brand.ResolveName(ctx, s.deps.Brands, req.BrandID)
	if err != nil {
		return nil, err
	}

	items, err := s.resolveItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	var createdBy string
	if p, ok := auth.PrincipalFrom(ctx); ok {
		createdBy = p.ID
	}

	return &draft{
		customer: CustomerSnapshot{
			Name:    name,
			Email:   email,
			Phone:   strings.TrimSpace(req.Customer.Phone),
			Address: strings.TrimSpace(req.Customer.Address),
		},
		brandID:       req.BrandID,
		brandName:     brandName,
		items:         items,
		currency:      currency,
		applyTax:      req.ApplyTax,
		shipping:      req.Shipping,
		paymentMethod: paymentMethod,
		status:        status,
		createdBy:     createdBy,
	}, nil
}

// resolveItems loads every referenced product in one batch and snapshots its
// name, SKU and price onto the line.
func (s *Service) resolveItems(ctx context.Context, reqs []LineRequest) ([]Item, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(reqs))
	seen := make(map[string]struct{}, len(reqs))
	for _, r := range reqs {
		if _, ok := seen[r.ProductID]; ok {
			continue
		}
		seen[r.ProductID] = struct{}{}
		ids = append(ids, r.ProductID)
	}

	fetched, err := s.deps.Products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]Item, len(reqs))
	totals := make(map[string]int, len(ids))
	for i, r := range reqs {
		p, ok := byID[r.ProductID]
		if !ok {
			return nil, &inventory.ProductNotFoundError{ProductID: r.ProductID}
		}
		if r.Quantity > inventory.MaxQuantity-totals[r.ProductID] {
			return nil, domain.Invalid("quantity", fmt.Sprintf("total for product %s exceeds %d", r.ProductID, inventory.MaxQuantity))
		}
		totals[r.ProductID] += max(r.Quantity, 0)
		items[i] = Item{
			ProductID:   p.ID,
			ProductName: p.Name,
			SKU:         p.SKU,
			Quantity:    r.Quantity,
			UnitPrice:   p.Price,
			LineTotal:   p.Price.Mul(decimal.NewFromInt(int64(r.Quantity))).Round(2),
		}
	}
	return items, nil
}

// commit runs reserving, persisting and aggregating_customer in one
// transaction.
func (s *Service) commit(ctx context.Context, d *draft, q pricing.Quote) (*PlaceOrderResult, error) {
	var res PlaceOrderResult
	err := s.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		demands := make([]inventory.Demand, len(d.items))
		for i, it := range d.items {
			demands[i] = inventory.Demand{ProductID: it.ProductID, Quantity: it.Quantity}
		}
		if err := s.deps.Ledger.Reserve(ctx, demands); err != nil {
			return stageErr(StageReserving, err)
		}

		number, err := s.deps.Numbers.Issue()
		if err != nil {
			return stageErr(StagePersisting, errors.Wrap(err, "issue order number"))
		}
		now := s.now().UTC()
		o := &Order{
			ID:            uuid.NewString(),
			OrderNumber:   number,
			Customer:      d.customer,
			BrandID:       d.brandID,
			BrandName:     d.brandName,
			Items:         d.items,
			Currency:      q.Currency,
			ApplyTax:      d.applyTax,
			Subtotal:      q.Subtotal,
			TaxRate:       q.TaxRate,
			TaxAmount:     q.TaxAmount,
			Shipping:      q.Shipping,
			Total:         q.Total,
			PaymentMethod: d.paymentMethod,
			Status:        d.status,
			CreatedBy:     d.createdBy,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.deps.Orders.Create(ctx, o); err != nil {
			return stageErr(StagePersisting, errors.Wrap(err, "create order"))
		}

		c, err := s.deps.Customers.Upsert(ctx, d.customer.Email, d.customer.Name, d.customer.Phone, o.Total)
		if err != nil {
			return stageErr(StageAggregatingCustomer, err)
		}

		res = PlaceOrderResult{Order: o, Customer: c}
		return nil
	})
	if err != nil {
		var se *StageError
		if !errors.As(err, &se) {
			// Commit failures surface after the last stage ran.
			err = stageErr(StageAggregatingCustomer, err)
		}
		return nil, err
	}
	return &res, nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, err error) error {
	stage := "unknown"
	var se *StageError
	if errors.As(err, &se) {
		stage = string(se.Stage)
	}
	s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
	zctx.From(ctx).Debug("Order placement failed", zap.String("stage", stage), zap.Error(err))
	return err
}

func (s *Service) backoff(attempt int) time.Duration {
	base := s.cfg.RetryBackoff << (attempt - 1)
	return base + rand.N(s.cfg.RetryBackoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func idempotencyScope(ctx context.Context, key string) string {
	caller := "anonymous"
	if p, ok := auth.PrincipalFrom(ctx); ok {
		caller = p.ID
	}
	return caller + ":" + key
}

// UpdateStatus overwrites the order's status. Any known status may replace any
// other.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*Order, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	o, err := s.deps.Orders.UpdateStatus(ctx, id, st, s.now().UTC())
	if err != nil {
		return nil, errors.Wrapf(err, "update order %s status", id)
	}
	zctx.From(ctx).Info("Order status updated", zap.String("order_id", id), zap.String("status", string(st)))
	return o, nil
}

// GetOrder returns the order with the given id.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := s.deps.Orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return o, nil
}

// List limits.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// ListOrders returns orders matching f, newest first.
func (s *Service) ListOrders(ctx context.Context, f Filter) ([]Order, error) {
	if f.Status != "" {
		st, err := ParseStatus(string(f.Status))
		if err != nil {
			return nil, err
		}
		f.Status = st
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}
	orders, err := s.deps.Orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}
