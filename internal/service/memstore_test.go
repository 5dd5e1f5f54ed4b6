package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/repository"
)

// memStore is an in-memory repository.Store. Transactions are serialized and
// rolled back on error, which mirrors the row locks of the real store.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextID        int64
	customers     map[int64]domain.Customer
	invoices      map[string]domain.Invoice
	transactions  map[string]domain.PaymentTransaction
	windows       map[int64]domain.MembershipWindow
	policies      []domain.Policy
	notifications []domain.Notification
	delivered     map[string]time.Time
	benefits      []domain.Benefit

	// hooks
	failConditional map[string]error
	beforeCondWrite func(number string)
	failInsertNote  error
	benefitLoads    int
	customerLocks   int
}

var _ repository.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		customers:       map[int64]domain.Customer{},
		invoices:        map[string]domain.Invoice{},
		transactions:    map[string]domain.PaymentTransaction{},
		windows:         map[int64]domain.MembershipWindow{},
		delivered:       map[string]time.Time{},
		failConditional: map[string]error{},
	}
}

type memSnapshot struct {
	nextID        int64
	customers     map[int64]domain.Customer
	invoices      map[string]domain.Invoice
	transactions  map[string]domain.PaymentTransaction
	windows       map[int64]domain.MembershipWindow
	policies      []domain.Policy
	notifications []domain.Notification
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := memSnapshot{
		nextID:        m.nextID,
		customers:     map[int64]domain.Customer{},
		invoices:      map[string]domain.Invoice{},
		transactions:  map[string]domain.PaymentTransaction{},
		windows:       map[int64]domain.MembershipWindow{},
		policies:      append([]domain.Policy(nil), m.policies...),
		notifications: append([]domain.Notification(nil), m.notifications...),
	}
	for k, v := range m.customers {
		s.customers[k] = v
	}
	for k, v := range m.invoices {
		s.invoices[k] = v.Clone()
	}
	for k, v := range m.transactions {
		s.transactions[k] = v
	}
	for k, v := range m.windows {
		s.windows[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID = s.nextID
	m.customers = s.customers
	m.invoices = s.invoices
	m.transactions = s.transactions
	m.windows = s.windows
	m.policies = s.policies
	m.notifications = s.notifications
}

func (m *memStore) ExecTx(ctx context.Context, fn func(q repository.Querier) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

// seeding helpers

func (m *memStore) addCustomer(name string, chatID *int64) domain.Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := domain.Customer{ID: m.id(), Name: name, TelegramChatID: chatID, CreatedAt: time.Now()}
	m.customers[c.ID] = c
	return c
}

func (m *memStore) putInvoice(inv domain.Invoice) domain.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv.ID == 0 {
		inv.ID = m.id()
	}
	if inv.Version == 0 {
		inv.Version = 1
	}
	m.invoices[inv.Number] = inv.Clone()
	return inv
}

func (m *memStore) invoice(number string) domain.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invoices[number].Clone()
}

func (m *memStore) putTransaction(tx domain.PaymentTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.ID == 0 {
		tx.ID = m.id()
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusPending
	}
	m.transactions[tx.ReferenceCode] = tx
}

func (m *memStore) transaction(ref string) domain.PaymentTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transactions[ref]
}

func (m *memStore) notificationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifications)
}

// customers

func (m *memStore) CreateCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.id()
	m.customers[c.ID] = c
	return c, nil
}

func (m *memStore) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return c, nil
}

// LockCustomer only checks existence; ExecTx already serializes transactions.
func (m *memStore) LockCustomer(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customerLocks++
	if _, ok := m.customers[id]; !ok {
		return domain.ErrCustomerNotFound
	}
	return nil
}

func (m *memStore) GetCustomerByTelegram(ctx context.Context, chatID int64) (domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.TelegramChatID != nil && *c.TelegramChatID == chatID {
			return c, nil
		}
	}
	return domain.Customer{}, domain.ErrCustomerNotFound
}

func (m *memStore) UpsertTelegramCustomer(ctx context.Context, chatID int64, name string) (domain.Customer, error) {
	if c, err := m.GetCustomerByTelegram(ctx, chatID); err == nil {
		m.mu.Lock()
		c.Name = name
		m.customers[c.ID] = c
		m.mu.Unlock()
		return c, nil
	}
	return m.addCustomer(name, &chatID), nil
}

// invoices

func (m *memStore) CreateInvoice(ctx context.Context, inv domain.Invoice) (domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[inv.Number]; ok {
		return domain.Invoice{}, domain.ErrStateConflict
	}
	inv.ID = m.id()
	inv.Version = 1
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	m.invoices[inv.Number] = inv.Clone()
	return inv, nil
}

func (m *memStore) GetInvoiceByNumber(ctx context.Context, number string) (domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[number]
	if !ok {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	return inv.Clone(), nil
}

func (m *memStore) GetInvoiceByNumberForUpdate(ctx context.Context, number string) (domain.Invoice, error) {
	return m.GetInvoiceByNumber(ctx, number)
}

func (m *memStore) sortedInvoices(keep func(domain.Invoice) bool, less func(a, b domain.Invoice) bool) []domain.Invoice {
	var out []domain.Invoice
	for _, inv := range m.invoices {
		if keep(inv) {
			out = append(out, inv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byPeriodDesc(a, b domain.Invoice) bool {
	if !a.PeriodEnd.Equal(b.PeriodEnd) {
		return a.PeriodEnd.After(b.PeriodEnd)
	}
	return a.ID > b.ID
}

func (m *memStore) ListCustomerInvoices(ctx context.Context, customerID int64, limit int) ([]domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sortedInvoices(func(i domain.Invoice) bool { return i.CustomerID == customerID }, byPeriodDesc)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListCustomerInvoicesIssuedBetween(ctx context.Context, customerID int64, from, to time.Time) ([]domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedInvoices(func(i domain.Invoice) bool {
		return i.CustomerID == customerID && !i.IssuedAt.Before(from) && !i.IssuedAt.After(to)
	}, func(a, b domain.Invoice) bool {
		if !a.IssuedAt.Equal(b.IssuedAt) {
			return a.IssuedAt.Before(b.IssuedAt)
		}
		return a.ID < b.ID
	}), nil
}

func (m *memStore) LatestCustomerInvoice(ctx context.Context, customerID int64) (domain.Invoice, error) {
	list, _ := m.ListCustomerInvoices(ctx, customerID, 1)
	if len(list) == 0 {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	return list[0], nil
}

func (m *memStore) LatestPaidStreak(ctx context.Context, customerID int64, excludeNumber string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	paid := m.sortedInvoices(func(i domain.Invoice) bool {
		return i.CustomerID == customerID && i.IsPaid() && i.Number != excludeNumber
	}, func(a, b domain.Invoice) bool {
		if !a.PaymentDate.Equal(*b.PaymentDate) {
			return a.PaymentDate.After(*b.PaymentDate)
		}
		return a.ID > b.ID
	})
	if len(paid) == 0 {
		return 0, nil
	}
	return paid[0].Loyalty.PaymentStreak, nil
}

func (m *memStore) ListAgingCandidates(ctx context.Context, today time.Time) ([]domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedInvoices(func(i domain.Invoice) bool {
		return !i.IsPaid() && i.DueDate.Before(today)
	}, func(a, b domain.Invoice) bool { return a.ID < b.ID }), nil
}

func (m *memStore) ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedInvoices(func(i domain.Invoice) bool {
		return i.Status == domain.InvoiceStatusPending && !i.DueDate.Before(from) && !i.DueDate.After(to)
	}, func(a, b domain.Invoice) bool { return a.ID < b.ID }), nil
}

func (m *memStore) UpdateInvoice(ctx context.Context, inv domain.Invoice) (domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[inv.Number]; !ok {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	inv.Version++
	inv.UpdatedAt = time.Now()
	m.invoices[inv.Number] = inv.Clone()
	return inv, nil
}

func (m *memStore) UpdateInvoiceIfUnchanged(ctx context.Context, inv domain.Invoice) (bool, error) {
	if m.beforeCondWrite != nil {
		m.beforeCondWrite(inv.Number)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failConditional[inv.Number]; err != nil {
		return false, err
	}
	stored, ok := m.invoices[inv.Number]
	if !ok || stored.IsPaid() || stored.Version != inv.Version {
		return false, nil
	}
	inv.Version++
	m.invoices[inv.Number] = inv.Clone()
	return true, nil
}

func (m *memStore) CustomerPointsTotal(ctx context.Context, customerID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, inv := range m.invoices {
		if inv.CustomerID == customerID && inv.IsPaid() {
			total += inv.Loyalty.PointsEarned
		}
	}
	return total, nil
}

// transactions

func (m *memStore) CreateTransaction(ctx context.Context, tx domain.PaymentTransaction) (domain.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[tx.ReferenceCode]; ok {
		return domain.PaymentTransaction{}, domain.ErrStateConflict
	}
	tx.ID = m.id()
	tx.Status = domain.TxStatusPending
	tx.CreatedAt = time.Now()
	m.transactions[tx.ReferenceCode] = tx
	return tx, nil
}

func (m *memStore) GetTransactionByReference(ctx context.Context, reference string) (domain.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[reference]
	if !ok {
		return domain.PaymentTransaction{}, domain.ErrTransactionNotFound
	}
	return tx, nil
}

func (m *memStore) GetTransactionByReferenceForUpdate(ctx context.Context, reference string) (domain.PaymentTransaction, error) {
	return m.GetTransactionByReference(ctx, reference)
}

func (m *memStore) SettleTransaction(ctx context.Context, reference string, status domain.TxStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[reference]
	if !ok || tx.Status != domain.TxStatusPending {
		return domain.ErrStateConflict
	}
	tx.Status = status
	tx.SettledAt = &at
	m.transactions[reference] = tx
	return nil
}

// memberships

func (m *memStore) GetMembershipWindow(ctx context.Context, customerID int64) (domain.MembershipWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[customerID]
	if !ok {
		return domain.MembershipWindow{}, domain.ErrNotFound
	}
	return w, nil
}

func (m *memStore) GetMembershipWindowForUpdate(ctx context.Context, customerID int64) (domain.MembershipWindow, error) {
	return m.GetMembershipWindow(ctx, customerID)
}

func (m *memStore) UpsertMembershipWindow(ctx context.Context, w domain.MembershipWindow) (domain.MembershipWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.ID == 0 {
		w.ID = m.id()
	}
	m.windows[w.CustomerID] = w
	return w, nil
}

func (m *memStore) ExpireMembershipWindows(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, w := range m.windows {
		if w.Status == domain.WindowStatusActive && !w.EndsAt.After(now) {
			w.Status = domain.WindowStatusExpired
			m.windows[k] = w
			n++
		}
	}
	return n, nil
}

// policies

func (m *memStore) LatestPolicy(ctx context.Context) (domain.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.policies) == 0 {
		return domain.Policy{}, domain.ErrPolicyNotFound
	}
	return m.policies[len(m.policies)-1], nil
}

func (m *memStore) InsertPolicy(ctx context.Context, p domain.Policy) (domain.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Version = int64(len(m.policies) + 1)
	p.UpdatedAt = time.Now()
	m.policies = append(m.policies, p)
	return p, nil
}

// notifications

func (m *memStore) InsertNotification(ctx context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsertNote != nil {
		return m.failInsertNote
	}
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *memStore) MarkNotificationDelivered(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered[id] = at
	return nil
}

// benefits

func (m *memStore) ListActiveBenefits(ctx context.Context) ([]domain.Benefit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.benefitLoads++
	var out []domain.Benefit
	for _, b := range m.benefits {
		if b.Active {
			out = append(out, b)
		}
	}
	return out, nil
}

// recordingDispatcher captures sent notifications.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentNotification
}

type sentNotification struct {
	CustomerID int64
	Kind       domain.NotificationKind
	Payload    domain.NotificationPayload
}

func (d *recordingDispatcher) Send(ctx context.Context, customerID int64, kind domain.NotificationKind, payload domain.NotificationPayload) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentNotification{CustomerID: customerID, Kind: kind, Payload: payload})
}

func (d *recordingDispatcher) all() []sentNotification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentNotification(nil), d.sent...)
}

func (d *recordingDispatcher) count(kind domain.NotificationKind) int {
	n := 0
	for _, s := range d.all() {
		if s.Kind == kind {
			n++
		}
	}
	return n
}
