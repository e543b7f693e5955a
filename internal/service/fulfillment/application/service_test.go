package application_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"codevend/internal/service/fulfillment/application"
	"codevend/internal/service/fulfillment/domain"
)

// ---- 测试替身 ----

type fakeLedger struct {
	mu        sync.Mutex
	processed map[string]bool
	inflight  map[string]bool

	failHasProcessed bool
	denyAcquire      bool
	recordOnCheck    bool

	markProcessedCalls int
	releaseCalls       int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{processed: map[string]bool{}, inflight: map[string]bool{}}
}

func (l *fakeLedger) HasProcessed(_ context.Context, orderID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failHasProcessed {
		return false, errors.Wrap(domain.ErrStoreUnavailable, "ledger down")
	}
	if l.recordOnCheck {
		// 模拟并发重投在检查之后、抢占之前抢先落账
		l.processed[orderID] = true
		return false, nil
	}
	return l.processed[orderID], nil
}

func (l *fakeLedger) AcquireOrder(_ context.Context, orderID string, _ time.Duration) (domain.AcquireStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.processed[orderID] {
		return domain.AcquireAlreadyProcessed, nil
	}
	if l.denyAcquire || l.inflight[orderID] {
		return domain.AcquireHeld, nil
	}
	l.inflight[orderID] = true
	return domain.AcquireAcquired, nil
}

func (l *fakeLedger) ReleaseOrder(_ context.Context, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inflight, orderID)
	l.releaseCalls++
	return nil
}

func (l *fakeLedger) MarkProcessed(_ context.Context, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.processed[orderID] = true
	l.markProcessedCalls++
	return nil
}

type containsEngine struct{}

func (containsEngine) Evaluate(expression, title string) (bool, error) {
	return strings.Contains(title, strings.TrimPrefix(expression, "contains:")), nil
}

type fakePool struct {
	mu        sync.Mutex
	entries   []domain.CodeEntry
	readCalls int
}

func (p *fakePool) ReadRange(_ context.Context, pool, subRange string) ([]domain.CodeEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readCalls++
	var out []domain.CodeEntry
	for _, e := range p.entries {
		if e.Pool == pool && e.SubRange == subRange {
			out = append(out, e)
		}
	}
	return out, nil
}

func (p *fakePool) MarkClaimed(_ context.Context, pool, subRange string, position int, orderID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.entries {
		e := &p.entries[i]
		if e.Pool == pool && e.SubRange == subRange && e.Position == position && !e.Claimed {
			e.Claimed = true
			e.OrderID = orderID
			return true, nil
		}
	}
	return false, nil
}

func (p *fakePool) FindClaimedByOrder(_ context.Context, orderID, pool, subRange string) ([]domain.CodeEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.CodeEntry
	for _, e := range p.entries {
		if e.Pool == pool && e.SubRange == subRange && e.Claimed && e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (p *fakePool) Seed(context.Context, string, string, []string) error { return nil }

func (p *fakePool) claimedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.entries {
		if e.Claimed {
			n++
		}
	}
	return n
}

type passthroughLocker struct{}

func (passthroughLocker) WithLock(_ context.Context, _, _ string, fn func() error) error {
	return fn()
}

type fakeNotifier struct {
	deliverErr error
	confirmErr error

	deliveredCodes []string
	confirmCalls   int
}

func (n *fakeNotifier) Deliver(_ context.Context, _, _, _ string, codes []string) error {
	if n.deliverErr != nil {
		return n.deliverErr
	}
	n.deliveredCodes = codes
	return nil
}

func (n *fakeNotifier) ConfirmShipment(context.Context, string, string, string) error {
	if n.confirmErr != nil {
		return n.confirmErr
	}
	n.confirmCalls++
	return nil
}

type fakeEvents struct {
	publishErr error
	published  []*domain.FulfillmentCompleted
}

func (e *fakeEvents) PublishFulfillmentCompleted(_ context.Context, event *domain.FulfillmentCompleted) error {
	if e.publishErr != nil {
		return e.publishErr
	}
	e.published = append(e.published, event)
	return nil
}

// ---- 装配 ----

type fixture struct {
	service  *application.FulfillmentApplicationService
	ledger   *fakeLedger
	pool     *fakePool
	notifier *fakeNotifier
	events   *fakeEvents
}

func newFixture() *fixture {
	ledger := newFakeLedger()
	pool := &fakePool{entries: []domain.CodeEntry{
		{Pool: "Game1", SubRange: "A:B", Position: 0, Value: "CODE-1"},
		{Pool: "Game1", SubRange: "A:B", Position: 1, Value: "CODE-2"},
	}}
	notifier := &fakeNotifier{}
	events := &fakeEvents{}

	classifier := domain.NewClassifier(containsEngine{},
		[]domain.GameRule{{Pool: "Game1", When: "contains:game1"}},
		[]domain.CodeTypeRule{{SubRange: "A:B", When: "contains:item32"}},
	)
	allocator := domain.NewAllocator(pool, passthroughLocker{})

	service := application.NewFulfillmentApplicationService(
		ledger, classifier, allocator, notifier, events,
		noop.NewTracerProvider().Tracer("test"),
		5*time.Second,
	)
	return &fixture{service: service, ledger: ledger, pool: pool, notifier: notifier, events: events}
}

func saleEvent() *domain.SaleNotificationReceived {
	return &domain.SaleNotificationReceived{
		EventID:       "evt-1",
		OrderID:       "order-1",
		TransactionID: "txn-1",
		ItemID:        "item-1",
		ItemTitle:     "Game1 Item32",
		BuyerID:       "buyer-1",
		PaymentStatus: "NoPaymentFailure",
		Quantity:      1,
		ReceivedAt:    time.Now(),
	}
}

// ---- 用例 ----

func TestHandleSaleNotification_FullSuccess(t *testing.T) {
	f := newFixture()

	err := f.service.HandleSaleNotification(context.Background(), saleEvent())
	require.NoError(t, err)

	assert.Equal(t, []string{"CODE-1"}, f.notifier.deliveredCodes)
	assert.Equal(t, 1, f.notifier.confirmCalls)
	assert.Equal(t, 1, f.ledger.markProcessedCalls)
	// 落账后抢占键被释放
	assert.Empty(t, f.ledger.inflight)

	require.Len(t, f.events.published, 1)
	assert.Equal(t, "order-1", f.events.published[0].OrderID)
	assert.Equal(t, 1, f.events.published[0].CodesIssued)
}

func TestHandleSaleNotification_DuplicateIsSkipped(t *testing.T) {
	f := newFixture()
	f.ledger.processed["order-1"] = true

	err := f.service.HandleSaleNotification(context.Background(), saleEvent())
	require.NoError(t, err)

	assert.Zero(t, f.pool.readCalls, "allocator must not run for a duplicate")
	assert.Nil(t, f.notifier.deliveredCodes)
	assert.Empty(t, f.events.published)
}

func TestHandleSaleNotification_LostDedupRaceIsSkipped(t *testing.T) {
	f := newFixture()
	f.ledger.denyAcquire = true

	err := f.service.HandleSaleNotification(context.Background(), saleEvent())
	require.NoError(t, err)

	assert.Zero(t, f.pool.readCalls)
	assert.Zero(t, f.ledger.markProcessedCalls)
}

func TestHandleSaleNotification_RecordLandsBetweenCheckAndAcquire(t *testing.T) {
	f := newFixture()
	f.ledger.recordOnCheck = true

	err := f.service.HandleSaleNotification(context.Background(), saleEvent())
	require.NoError(t, err)

	// 对方已经落账，这一侧既不发码也不重复落账
	assert.Zero(t, f.pool.readCalls)
	assert.Zero(t, f.ledger.markProcessedCalls)
	assert.Nil(t, f.notifier.deliveredCodes)
}

func TestHandleSaleNotification_UnpaidIsSkippedAndGateReleased(t *testing.T) {
	f := newFixture()
	event := saleEvent()
	event.PaymentStatus = "BuyerECheckBounced"

	err := f.service.HandleSaleNotification(context.Background(), event)
	require.NoError(t, err)

	assert.Zero(t, f.pool.readCalls, "unpaid order must not touch the pool")
	assert.Zero(t, f.ledger.markProcessedCalls)
	// 补偿释放了抢占键，支付完成后的重投可以立即处理
	assert.Empty(t, f.ledger.inflight)
	assert.Empty(t, f.events.published)
}

func TestHandleSaleNotification_LedgerOutageFailsClosed(t *testing.T) {
	f := newFixture()
	f.ledger.failHasProcessed = true

	err := f.service.HandleSaleNotification(context.Background(), saleEvent())
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	assert.Zero(t, f.pool.readCalls, "must not allocate when dedup cannot be verified")
	assert.Nil(t, f.notifier.deliveredCodes)
}

func TestHandleSaleNotification_UnknownGameFails(t *testing.T) {
	f := newFixture()
	event := saleEvent()
	event.ItemTitle = "Mystery Item"

	err := f.service.HandleSaleNotification(context.Background(), event)
	require.ErrorIs(t, err, domain.ErrUnknownGame)

	assert.Zero(t, f.ledger.markProcessedCalls)
	assert.Empty(t, f.ledger.inflight, "gate released so a corrected redrive can run")
}

func TestHandleSaleNotification_DeliveryFailureKeepsClaims(t *testing.T) {
	f := newFixture()
	f.notifier.deliverErr = errors.Wrap(domain.ErrDeliveryFailed, "marketplace 503")

	err := f.service.HandleSaleNotification(context.Background(), saleEvent())
	require.ErrorIs(t, err, domain.ErrDeliveryFailed)

	assert.Zero(t, f.ledger.markProcessedCalls, "failed order must stay redrivable")
	assert.Empty(t, f.ledger.inflight)
	// 认领不回滚：重投会按订单号复用同一批码
	assert.Equal(t, 1, f.pool.claimedCount())
}

func TestHandleSaleNotification_RetryAfterDeliveryFailureReusesCodes(t *testing.T) {
	f := newFixture()
	f.notifier.deliverErr = errors.Wrap(domain.ErrDeliveryFailed, "marketplace 503")

	require.Error(t, f.service.HandleSaleNotification(context.Background(), saleEvent()))

	f.notifier.deliverErr = nil
	require.NoError(t, f.service.HandleSaleNotification(context.Background(), saleEvent()))

	assert.Equal(t, []string{"CODE-1"}, f.notifier.deliveredCodes)
	assert.Equal(t, 1, f.pool.claimedCount(), "retry must not claim a second batch")
}

func TestHandleSaleNotification_InsufficientCodes(t *testing.T) {
	f := newFixture()
	event := saleEvent()
	event.Quantity = 3

	err := f.service.HandleSaleNotification(context.Background(), event)
	require.ErrorIs(t, err, domain.ErrInsufficientCodes)

	assert.Nil(t, f.notifier.deliveredCodes)
	assert.Zero(t, f.ledger.markProcessedCalls)
}

func TestHandleSaleNotification_PublishFailureDoesNotFailFlow(t *testing.T) {
	f := newFixture()
	f.events.publishErr = errors.New("kafka down")

	err := f.service.HandleSaleNotification(context.Background(), saleEvent())
	require.NoError(t, err)
	assert.Equal(t, 1, f.ledger.markProcessedCalls)
}

func TestHandleSaleNotification_MalformedEvent(t *testing.T) {
	f := newFixture()
	event := saleEvent()
	event.BuyerID = ""

	err := f.service.HandleSaleNotification(context.Background(), event)
	require.ErrorIs(t, err, domain.ErrMalformedNotification)
}
