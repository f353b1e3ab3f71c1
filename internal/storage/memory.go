package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bazaarpay/bazaarpay/internal/ledger"
	"github.com/bazaarpay/bazaarpay/internal/marketplace"
	"github.com/bazaarpay/bazaarpay/internal/money"
	"github.com/bazaarpay/bazaarpay/internal/wallet"
)

// Memory is an in-process backend for development and tests. Each wallet and
// item has its own context-aware lock; a unit stages its writes and publishes
// them in one step on success, so a failed unit leaves no trace.
type Memory struct {
	mu      sync.RWMutex
	wallets map[string]wallet.Wallet
	txs     map[string]ledger.Transaction
	seq     map[string]int64
	nextSeq int64
	keys    map[string]ledger.Claim
	items   map[string]marketplace.Item
	sales   []marketplace.Sale

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	now func() time.Time
}

// NewMemory returns an empty backend.
func NewMemory() *Memory {
	return &Memory{
		wallets: make(map[string]wallet.Wallet),
		txs:     make(map[string]ledger.Transaction),
		seq:     make(map[string]int64),
		keys:    make(map[string]ledger.Claim),
		items:   make(map[string]marketplace.Item),
		locks:   make(map[string]chan struct{}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run implements Runner.
func (m *Memory) Run(ctx context.Context, locks LockSet, fn func(ctx context.Context, u Unit) error) error {
	locks = locks.normalized()

	keys := make([]string, 0, len(locks.Owners)+len(locks.Items))
	for _, owner := range locks.Owners {
		keys = append(keys, "wallet:"+owner)
	}
	for _, id := range locks.Items {
		keys = append(keys, "item:"+id)
	}

	held := make([]chan struct{}, 0, len(keys))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}()
	for _, key := range keys {
		ch := m.lockFor(key)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	u := m.newUnit(locks)
	for _, owner := range locks.Owners {
		if _, err := u.walletStore.GetOrCreate(ctx, owner); err != nil {
			return err
		}
	}
	for _, id := range locks.Items {
		if _, err := u.inventory.Lock(ctx, id); err != nil {
			return err
		}
	}

	if err := fn(ctx, u); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.commit(u)
	return nil
}

func (m *Memory) lockFor(key string) chan struct{} {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	ch, ok := m.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[key] = ch
	}
	return ch
}

func (m *Memory) commit(u *memUnit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for owner, w := range u.wallets {
		m.wallets[owner] = w
	}
	for _, id := range u.txOrder {
		if _, exists := m.seq[id]; !exists {
			m.nextSeq++
			m.seq[id] = m.nextSeq
		}
		m.txs[id] = u.txs[id]
	}
	for k, claim := range u.keys {
		m.keys[k] = claim
	}
	for id, item := range u.items {
		m.items[id] = item
	}
	m.sales = append(m.sales, u.sales...)
}

// PutItem adds or replaces a listing. Listing CRUD belongs to the marketplace
// service; this exists for development seeding and tests.
func (m *Memory) PutItem(item marketplace.Item) {
	if item.Status == "" {
		item.Status = marketplace.ItemAvailable
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = m.now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

// Seed credits owner with an opening balance through a regular ledger row so
// the balance still equals the sum of the owner's rows.
func (m *Memory) Seed(ctx context.Context, owner string, amount money.Amount) error {
	return m.Run(ctx, LockSet{Owners: []string{owner}}, func(ctx context.Context, u Unit) error {
		if _, err := u.Wallets().Credit(ctx, owner, amount); err != nil {
			return err
		}
		_, err := u.Ledger().Append(ctx, ledger.Transaction{
			OwnerID:     owner,
			Direction:   ledger.Credit,
			Kind:        ledger.KindTopUp,
			Amount:      amount,
			Description: "Opening balance",
			Reference:   "SEED_" + owner,
			Status:      ledger.StatusCompleted,
		})
		return err
	})
}

// Sales returns every recorded sale in commit order.
func (m *Memory) Sales() []marketplace.Sale {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]marketplace.Sale, len(m.sales))
	copy(out, m.sales)
	return out
}

// Wallets returns a committed-state wallet reader.
func (m *Memory) Wallets() wallet.Reader { return memWalletReader{m: m} }

// Transactions returns a committed-state ledger reader.
func (m *Memory) Transactions() ledger.Reader { return memLedgerReader{m: m} }

// Catalog returns a committed-state listing reader.
func (m *Memory) Catalog() marketplace.Catalog { return memCatalog{m: m} }

type memUnit struct {
	m      *Memory
	owners map[string]bool
	locked map[string]bool

	wallets map[string]wallet.Wallet
	txs     map[string]ledger.Transaction
	txOrder []string
	keys    map[string]ledger.Claim
	items   map[string]marketplace.Item
	sales   []marketplace.Sale

	walletStore *memWallets
	ledger      *memLedger
	inventory   *memInventory
}

func (m *Memory) newUnit(locks LockSet) *memUnit {
	u := &memUnit{
		m:       m,
		owners:  make(map[string]bool, len(locks.Owners)),
		locked:  make(map[string]bool, len(locks.Items)),
		wallets: make(map[string]wallet.Wallet),
		txs:     make(map[string]ledger.Transaction),
		keys:    make(map[string]ledger.Claim),
		items:   make(map[string]marketplace.Item),
	}
	for _, owner := range locks.Owners {
		u.owners[owner] = true
	}
	for _, id := range locks.Items {
		u.locked[id] = true
	}
	u.walletStore = &memWallets{u: u}
	u.ledger = &memLedger{u: u}
	u.inventory = &memInventory{u: u}
	return u
}

func (u *memUnit) Wallets() wallet.Store            { return u.walletStore }
func (u *memUnit) Ledger() ledger.Writer            { return u.ledger }
func (u *memUnit) Inventory() marketplace.Inventory { return u.inventory }

type memWallets struct{ u *memUnit }

func (s *memWallets) current(owner string) (wallet.Wallet, bool) {
	if w, ok := s.u.wallets[owner]; ok {
		return w, true
	}
	s.u.m.mu.RLock()
	defer s.u.m.mu.RUnlock()
	w, ok := s.u.m.wallets[owner]
	return w, ok
}

func (s *memWallets) GetOrCreate(_ context.Context, owner string) (wallet.Wallet, error) {
	if !s.u.owners[owner] {
		return wallet.Wallet{}, fmt.Errorf("wallet %s: %w", owner, wallet.ErrNotLocked)
	}
	if w, ok := s.current(owner); ok {
		return w, nil
	}
	now := s.u.m.now()
	w := wallet.Wallet{OwnerID: owner, CreatedAt: now, UpdatedAt: now}
	s.u.wallets[owner] = w
	return w, nil
}

func (s *memWallets) Debit(ctx context.Context, owner string, amount money.Amount) (wallet.Wallet, error) {
	w, err := s.GetOrCreate(ctx, owner)
	if err != nil {
		return wallet.Wallet{}, err
	}
	if w.Balance < amount {
		return wallet.Wallet{}, wallet.ErrInsufficientFunds
	}
	w.Balance -= amount
	w.UpdatedAt = s.u.m.now()
	s.u.wallets[owner] = w
	return w, nil
}

func (s *memWallets) Credit(ctx context.Context, owner string, amount money.Amount) (wallet.Wallet, error) {
	w, err := s.GetOrCreate(ctx, owner)
	if err != nil {
		return wallet.Wallet{}, err
	}
	w.Balance += amount
	w.UpdatedAt = s.u.m.now()
	s.u.wallets[owner] = w
	return w, nil
}

type memLedger struct{ u *memUnit }

func (l *memLedger) Append(_ context.Context, t ledger.Transaction) (ledger.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = l.u.m.now()
	}
	t.UpdatedAt = t.CreatedAt
	if _, exists := l.u.txs[t.ID]; !exists {
		l.u.txOrder = append(l.u.txOrder, t.ID)
	}
	l.u.txs[t.ID] = t
	return t, nil
}

func (l *memLedger) LockForUpdate(_ context.Context, id string) (ledger.Transaction, error) {
	t, ok := l.u.txs[id]
	if !ok {
		l.u.m.mu.RLock()
		t, ok = l.u.m.txs[id]
		l.u.m.mu.RUnlock()
	}
	if !ok {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	if !l.u.owners[t.OwnerID] {
		return ledger.Transaction{}, fmt.Errorf("transaction %s: %w", id, wallet.ErrNotLocked)
	}
	return t, nil
}

func (l *memLedger) SetStatus(ctx context.Context, id string, status ledger.Status) (ledger.Transaction, error) {
	t, err := l.LockForUpdate(ctx, id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if !t.Status.CanTransition(status) {
		return ledger.Transaction{}, fmt.Errorf("%w: %s -> %s", ledger.ErrInvalidTransition, t.Status, status)
	}
	t.Status = status
	t.UpdatedAt = l.u.m.now()
	if _, staged := l.u.txs[id]; !staged {
		l.u.txOrder = append(l.u.txOrder, id)
	}
	l.u.txs[id] = t
	return t, nil
}

func (l *memLedger) ClaimKey(_ context.Context, owner, key string, claim ledger.Claim) error {
	k := owner + "\x00" + key
	if _, ok := l.u.keys[k]; ok {
		return ledger.ErrDuplicateRequest
	}
	l.u.m.mu.RLock()
	_, claimed := l.u.m.keys[k]
	l.u.m.mu.RUnlock()
	if claimed {
		return ledger.ErrDuplicateRequest
	}
	l.u.keys[k] = claim
	return nil
}

type memInventory struct{ u *memUnit }

func (i *memInventory) Lock(_ context.Context, id string) (marketplace.Item, error) {
	if !i.u.locked[id] {
		return marketplace.Item{}, fmt.Errorf("item %s: %w", id, marketplace.ErrNotLocked)
	}
	if item, ok := i.u.items[id]; ok {
		return item, nil
	}
	i.u.m.mu.RLock()
	item, ok := i.u.m.items[id]
	i.u.m.mu.RUnlock()
	if !ok {
		return marketplace.Item{}, marketplace.ErrItemNotFound
	}
	return item, nil
}

func (i *memInventory) MarkSold(ctx context.Context, id string) error {
	item, err := i.Lock(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != marketplace.ItemAvailable {
		return marketplace.ErrItemNotAvailable
	}
	item.Status = marketplace.ItemSold
	item.UpdatedAt = i.u.m.now()
	i.u.items[id] = item
	return nil
}

func (i *memInventory) RecordSale(_ context.Context, sale marketplace.Sale) (marketplace.Sale, error) {
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = i.u.m.now()
	}
	i.u.sales = append(i.u.sales, sale)
	return sale, nil
}

type memWalletReader struct{ m *Memory }

func (r memWalletReader) Get(_ context.Context, owner string) (wallet.Wallet, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	w, ok := r.m.wallets[owner]
	if !ok {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	return w, nil
}

type memLedgerReader struct{ m *Memory }

func (r memLedgerReader) Get(_ context.Context, id string) (ledger.Transaction, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	t, ok := r.m.txs[id]
	if !ok {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	return t, nil
}

func (r memLedgerReader) History(_ context.Context, owner string, page ledger.Page) ([]ledger.Transaction, error) {
	page = page.Normalize()
	r.m.mu.RLock()
	rows := make([]ledger.Transaction, 0)
	for _, t := range r.m.txs {
		if t.OwnerID == owner {
			rows = append(rows, t)
		}
	}
	seq := r.m.seq
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return seq[rows[i].ID] > seq[rows[j].ID]
	})
	r.m.mu.RUnlock()

	if page.Offset >= len(rows) {
		return []ledger.Transaction{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[page.Offset:end], nil
}

func (r memLedgerReader) ByReference(_ context.Context, reference string) ([]ledger.Transaction, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	rows := make([]ledger.Transaction, 0, 2)
	for _, t := range r.m.txs {
		if t.Reference == reference {
			rows = append(rows, t)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Direction != rows[j].Direction {
			return rows[i].Direction == ledger.Debit
		}
		return r.m.seq[rows[i].ID] < r.m.seq[rows[j].ID]
	})
	return rows, nil
}

func (r memLedgerReader) Totals(_ context.Context, owner string) (ledger.Totals, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var totals ledger.Totals
	for _, t := range r.m.txs {
		if t.OwnerID != owner {
			continue
		}
		switch t.Direction {
		case ledger.Credit:
			totals.Credits += t.Amount
		case ledger.Debit:
			totals.Debits += t.Amount
		}
	}
	return totals, nil
}

func (r memLedgerReader) LookupKey(_ context.Context, owner, key string) (ledger.Claim, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	claim, ok := r.m.keys[owner+"\x00"+key]
	if !ok {
		return ledger.Claim{}, ledger.ErrNotFound
	}
	return claim, nil
}

type memCatalog struct{ m *Memory }

func (c memCatalog) Item(_ context.Context, id string) (marketplace.Item, error) {
	c.m.mu.RLock()
	defer c.m.mu.RUnlock()
	item, ok := c.m.items[id]
	if !ok {
		return marketplace.Item{}, marketplace.ErrItemNotFound
	}
	return item, nil
}
