package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crosslist/backend/internal/domain/catalog"
	"github.com/crosslist/backend/internal/domain/coordination"
	"github.com/crosslist/backend/internal/domain/ledger"
	"github.com/crosslist/backend/internal/domain/order"
	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/recovery"
	"github.com/crosslist/backend/internal/domain/shared"
)

// In-memory repository fakes. They honor the same contracts as the GORM
// implementations (not-found sentinels, uniqueness guards) so application
// services can be tested without a database.

// MemoryProductRepository is an in-memory catalog.ProductRepository.
type MemoryProductRepository struct {
	mu       sync.Mutex
	products map[uuid.UUID]catalog.Product
}

// NewMemoryProductRepository creates an empty in-memory product repository.
func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{products: make(map[uuid.UUID]catalog.Product)}
}

// FindByID finds a product by ID.
func (r *MemoryProductRepository) FindByID(_ context.Context, id uuid.UUID) (*catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

// FindByIDForShop finds a product by ID within a shop.
func (r *MemoryProductRepository) FindByIDForShop(ctx context.Context, shopID, id uuid.UUID) (*catalog.Product, error) {
	p, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.ShopID != shopID {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

// FindByIDForUpdate behaves like FindByID; there is no row locking in memory.
func (r *MemoryProductRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	return r.FindByID(ctx, id)
}

// FindBySKU finds a product by SKU within a shop.
func (r *MemoryProductRepository) FindBySKU(_ context.Context, shopID uuid.UUID, sku string) (*catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.products {
		if p.ShopID == shopID && p.SKU == sku {
			cp := p
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

// FindAllForShop lists all products of a shop.
func (r *MemoryProductRepository) FindAllForShop(_ context.Context, shopID uuid.UUID, _ shared.Filter) ([]catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []catalog.Product
	for _, p := range r.products {
		if p.ShopID == shopID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// FindActiveIDs returns the IDs of all non-draft products for a shop.
func (r *MemoryProductRepository) FindActiveIDs(_ context.Context, shopID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uuid.UUID
	for _, p := range r.products {
		if p.ShopID == shopID && p.Status != catalog.ProductStatusDraft {
			out = append(out, p.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].String(), out[j].String()) < 0 })
	return out, nil
}

// Save creates or updates a product.
func (r *MemoryProductRepository) Save(_ context.Context, product *catalog.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[product.ID] = *product
	return nil
}

// MemoryTransactionRepository is an in-memory ledger.TransactionRepository.
// Create enforces the same order-reference uniqueness the database index does.
type MemoryTransactionRepository struct {
	mu  sync.Mutex
	txs []ledger.Transaction
}

// NewMemoryTransactionRepository creates an empty in-memory ledger.
func NewMemoryTransactionRepository() *MemoryTransactionRepository {
	return &MemoryTransactionRepository{}
}

// Create appends a transaction, rejecting a duplicate order reference.
func (r *MemoryTransactionRepository) Create(_ context.Context, tx *ledger.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tx.Type != ledger.TransactionTypeAllocationFailed && tx.PlatformOrderID != "" {
		for i := range r.txs {
			e := &r.txs[i]
			if e.ProductID == tx.ProductID && e.Type == tx.Type &&
				e.Platform == tx.Platform && e.PlatformOrderID == tx.PlatformOrderID &&
				e.PlatformItemID == tx.PlatformItemID {
				return shared.ErrDuplicateOperation
			}
		}
	}
	r.txs = append(r.txs, *tx)
	return nil
}

// FindByOrderRef finds the transaction bound to a (product, order item) pair.
func (r *MemoryTransactionRepository) FindByOrderRef(_ context.Context, productID uuid.UUID, txType ledger.TransactionType, code platform.Code, orderID, itemID string) (*ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.txs {
		e := &r.txs[i]
		if e.ProductID == productID && e.Type == txType &&
			e.Platform == code && e.PlatformOrderID == orderID && e.PlatformItemID == itemID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

// FindByProduct lists all transactions of a product, oldest first.
func (r *MemoryTransactionRepository) FindByProduct(_ context.Context, productID uuid.UUID) ([]ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ledger.Transaction
	for i := range r.txs {
		if r.txs[i].ProductID == productID {
			out = append(out, r.txs[i])
		}
	}
	return out, nil
}

// FindUnprocessed lists transactions of a product not yet marked processed.
func (r *MemoryTransactionRepository) FindUnprocessed(_ context.Context, productID uuid.UUID) ([]ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ledger.Transaction
	for i := range r.txs {
		if r.txs[i].ProductID == productID && !r.txs[i].Processed {
			out = append(out, r.txs[i])
		}
	}
	return out, nil
}

// MarkProcessedForProduct flags all unprocessed transactions of a product.
func (r *MemoryTransactionRepository) MarkProcessedForProduct(_ context.Context, productID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.txs {
		if r.txs[i].ProductID == productID && !r.txs[i].Processed {
			r.txs[i].Processed = true
			n++
		}
	}
	return n, nil
}

// All returns a snapshot of every stored transaction.
func (r *MemoryTransactionRepository) All() []ledger.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.Transaction, len(r.txs))
	copy(out, r.txs)
	return out
}

// MemoryMirrorRepository is an in-memory platform.MirrorRepository.
type MemoryMirrorRepository struct {
	mu      sync.Mutex
	mirrors map[uuid.UUID]platform.Mirror
}

// NewMemoryMirrorRepository creates an empty in-memory mirror repository.
func NewMemoryMirrorRepository() *MemoryMirrorRepository {
	return &MemoryMirrorRepository{mirrors: make(map[uuid.UUID]platform.Mirror)}
}

// FindByProduct lists all mirrors of a product.
func (r *MemoryMirrorRepository) FindByProduct(_ context.Context, productID uuid.UUID) ([]platform.Mirror, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []platform.Mirror
	for _, m := range r.mirrors {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

// FindByProductAndPlatform finds the mirror of a product on one marketplace.
func (r *MemoryMirrorRepository) FindByProductAndPlatform(_ context.Context, productID uuid.UUID, code platform.Code) (*platform.Mirror, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mirrors {
		if m.ProductID == productID && m.Platform == code {
			cp := m
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

// FindByPlatformItem resolves a marketplace-native item ID to its mirror.
func (r *MemoryMirrorRepository) FindByPlatformItem(_ context.Context, shopID uuid.UUID, code platform.Code, platformItemID string) (*platform.Mirror, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mirrors {
		if m.ShopID == shopID && m.Platform == code && m.PlatformItemID == platformItemID {
			cp := m
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

// Save creates or updates a mirror.
func (r *MemoryMirrorRepository) Save(_ context.Context, mirror *platform.Mirror) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mirrors[mirror.ID] = *mirror
	return nil
}

// MemoryOrderRepository is an in-memory order.Repository.
type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]order.Order
}

// NewMemoryOrderRepository creates an empty in-memory order repository.
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[uuid.UUID]order.Order)}
}

// FindByID finds an order with its items.
func (r *MemoryOrderRepository) FindByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &o, nil
}

// FindByPlatformOrder finds an order by its marketplace-native ID within a shop.
func (r *MemoryOrderRepository) FindByPlatformOrder(_ context.Context, shopID uuid.UUID, code platform.Code, platformOrderID string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.ShopID == shopID && o.Platform == code && o.PlatformOrderID == platformOrderID {
			cp := o
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

// Save creates or updates an order together with its items.
func (r *MemoryOrderRepository) Save(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = *o
	return nil
}

// MemoryFailureRecordRepository is an in-memory recovery.FailureRecordRepository.
type MemoryFailureRecordRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]recovery.SyncFailureRecord
}

// NewMemoryFailureRecordRepository creates an empty in-memory failure record repository.
func NewMemoryFailureRecordRepository() *MemoryFailureRecordRepository {
	return &MemoryFailureRecordRepository{records: make(map[uuid.UUID]recovery.SyncFailureRecord)}
}

// FindByID finds a failure record by ID.
func (r *MemoryFailureRecordRepository) FindByID(_ context.Context, id uuid.UUID) (*recovery.SyncFailureRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &rec, nil
}

// FindOpenByProduct finds the non-terminal record of a product, or nil.
func (r *MemoryFailureRecordRepository) FindOpenByProduct(_ context.Context, productID uuid.UUID) (*recovery.SyncFailureRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ProductID == productID && !rec.Status.IsTerminal() {
			cp := rec
			return &cp, nil
		}
	}
	return nil, nil
}

// FindDue lists non-terminal records whose next retry is at or before now.
func (r *MemoryFailureRecordRepository) FindDue(_ context.Context, now time.Time, limit int) ([]recovery.SyncFailureRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recovery.SyncFailureRecord
	for _, rec := range r.records {
		if rec.IsDue(now) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextRetryAt.Before(*out[j].NextRetryAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Save creates or updates a failure record.
func (r *MemoryFailureRecordRepository) Save(_ context.Context, record *recovery.SyncFailureRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.ID] = *record
	return nil
}

// All returns a snapshot of every stored failure record.
func (r *MemoryFailureRecordRepository) All() []recovery.SyncFailureRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recovery.SyncFailureRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}

// MemoryLockManager is an in-memory shared.LockManager. Acquire does not
// poll: a held lock fails immediately with LockTimeout, which is what lock
// contention tests want to observe.
type MemoryLockManager struct {
	mu    sync.Mutex
	locks map[string]string
	seq   int

	// AcquireErr, when set, is returned by every Acquire call.
	AcquireErr error
	// Acquired counts successful Acquire calls.
	Acquired int
	// Released counts Release calls with a matching token.
	Released int
}

// NewMemoryLockManager creates an in-memory lock manager.
func NewMemoryLockManager() *MemoryLockManager {
	return &MemoryLockManager{locks: make(map[string]string)}
}

// Acquire takes the lock or fails immediately when it is held.
func (m *MemoryLockManager) Acquire(_ context.Context, key string, _, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AcquireErr != nil {
		return "", m.AcquireErr
	}
	if _, held := m.locks[key]; held {
		return "", shared.ErrLockTimeout
	}
	m.seq++
	token := uuid.New().String()
	m.locks[key] = token
	m.Acquired++
	return token, nil
}

// Release frees the lock when the token still owns it.
func (m *MemoryLockManager) Release(_ context.Context, key string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] == token {
		delete(m.locks, key)
		m.Released++
	}
	return nil
}

// Held reports whether the key is currently locked.
func (m *MemoryLockManager) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, held := m.locks[key]
	return held
}

// MemoryOperationCache is an in-memory shared.OperationCache. TTLs are ignored.
type MemoryOperationCache struct {
	mu      sync.Mutex
	entries map[string][]byte

	// Hits counts Get calls that found an entry.
	Hits int
	// Sets counts Set calls.
	Sets int
}

// NewMemoryOperationCache creates an in-memory operation cache.
func NewMemoryOperationCache() *MemoryOperationCache {
	return &MemoryOperationCache{entries: make(map[string][]byte)}
}

// Get returns the cached payload for the key.
func (c *MemoryOperationCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.entries[key]
	if ok {
		c.Hits++
	}
	return payload, ok, nil
}

// Set stores the payload under the key.
func (c *MemoryOperationCache) Set(_ context.Context, key string, payload []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = payload
	c.Sets++
	return nil
}

// Delete removes the key.
func (c *MemoryOperationCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Close is a no-op.
func (c *MemoryOperationCache) Close() error { return nil }

// Len returns the number of cached entries.
func (c *MemoryOperationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RecordingNotifier is a platform.Notifier that records every notification.
type RecordingNotifier struct {
	mu            sync.Mutex
	notifications []platform.Notification

	// Err, when set, is returned by every Notify call.
	Err error
}

// NewRecordingNotifier creates a recording notifier.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

// Notify records the notification.
func (n *RecordingNotifier) Notify(_ context.Context, notification platform.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return n.Err
}

// Notifications returns a snapshot of recorded notifications.
func (n *RecordingNotifier) Notifications() []platform.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]platform.Notification, len(n.notifications))
	copy(out, n.notifications)
	return out
}

// FakeAdapter is a platform.Adapter whose behavior is scripted per test.
type FakeAdapter struct {
	mu   sync.Mutex
	code platform.Code

	// PushErr, when set, is returned by every PushQuantity call.
	PushErr error
	// EndErr, when set, is returned by every EndListing call.
	EndErr error

	pushes []int64
	ended  []string
}

// NewFakeAdapter creates a fake adapter for the given marketplace.
func NewFakeAdapter(code platform.Code) *FakeAdapter {
	return &FakeAdapter{code: code}
}

// Code returns the marketplace this adapter targets.
func (a *FakeAdapter) Code() platform.Code { return a.code }

// PushQuantity records the pushed quantity.
func (a *FakeAdapter) PushQuantity(_ context.Context, _ *platform.Mirror, desiredQuantity int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.PushErr != nil {
		return a.PushErr
	}
	a.pushes = append(a.pushes, desiredQuantity)
	return nil
}

// EndListing records the ended listing.
func (a *FakeAdapter) EndListing(_ context.Context, mirror *platform.Mirror, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.EndErr != nil {
		return a.EndErr
	}
	a.ended = append(a.ended, mirror.PlatformItemID)
	return nil
}

// Pushes returns the recorded quantity pushes.
func (a *FakeAdapter) Pushes() []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int64, len(a.pushes))
	copy(out, a.pushes)
	return out
}

// Ended returns the platform item IDs whose listings were ended.
func (a *FakeAdapter) Ended() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.ended))
	copy(out, a.ended)
	return out
}

// MemoryCoordinator is an in-memory coordination.Coordinator enforcing the
// same conflict table as the redis implementation, without TTLs.
type MemoryCoordinator struct {
	mu    sync.Mutex
	slots map[string]*coordination.JobIdentity
}

// NewMemoryCoordinator creates an in-memory job coordinator.
func NewMemoryCoordinator() *MemoryCoordinator {
	return &MemoryCoordinator{slots: make(map[string]*coordination.JobIdentity)}
}

func coordSlotKey(shopID uuid.UUID, kind coordination.JobKind) string {
	return shopID.String() + ":" + kind.String()
}

// AcquireJobLock takes the job slot, failing fast on any conflict.
func (c *MemoryCoordinator) AcquireJobLock(_ context.Context, shopID uuid.UUID, kind coordination.JobKind) (*coordination.JobIdentity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.slots[coordSlotKey(shopID, kind)]; held {
		return nil, shared.ErrJobConflict
	}
	for _, other := range coordination.ConflictsWith(kind) {
		if _, held := c.slots[coordSlotKey(shopID, other)]; held {
			return nil, shared.ErrJobConflict
		}
	}
	identity := &coordination.JobIdentity{
		JobID:      uuid.New(),
		Kind:       kind,
		ShopID:     shopID,
		AcquiredAt: time.Now(),
	}
	c.slots[coordSlotKey(shopID, kind)] = identity
	return identity, nil
}

// ReleaseJobLock frees the slot when the identity still owns it.
func (c *MemoryCoordinator) ReleaseJobLock(_ context.Context, identity *coordination.JobIdentity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := coordSlotKey(identity.ShopID, identity.Kind)
	if held, ok := c.slots[key]; ok && held.JobID == identity.JobID {
		delete(c.slots, key)
	}
	return nil
}

// Interface guards.
var (
	_ catalog.ProductRepository        = (*MemoryProductRepository)(nil)
	_ ledger.TransactionRepository     = (*MemoryTransactionRepository)(nil)
	_ platform.MirrorRepository        = (*MemoryMirrorRepository)(nil)
	_ order.Repository                 = (*MemoryOrderRepository)(nil)
	_ recovery.FailureRecordRepository = (*MemoryFailureRecordRepository)(nil)
	_ shared.LockManager               = (*MemoryLockManager)(nil)
	_ shared.OperationCache            = (*MemoryOperationCache)(nil)
	_ platform.Notifier                = (*RecordingNotifier)(nil)
	_ platform.Adapter                 = (*FakeAdapter)(nil)
	_ coordination.Coordinator         = (*MemoryCoordinator)(nil)
)
