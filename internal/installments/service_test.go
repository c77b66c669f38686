package installments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/crediario/internal/shared"
)

type memoryRepo struct {
	mu           sync.Mutex
	installments map[int64]Installment
	payments     []Payment
	nextID       int64
}

type memoryTx struct {
	repo      *memoryRepo
	companyID int64
}

func newMemoryRepo(list ...Installment) *memoryRepo {
	r := &memoryRepo{installments: make(map[int64]Installment)}
	for _, inst := range list {
		r.installments[inst.ID] = inst
	}
	return r
}

func (r *memoryRepo) WithTx(ctx context.Context, companyID int64, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[int64]Installment, len(r.installments))
	for id, inst := range r.installments {
		snapshot[id] = inst
	}
	paymentCount := len(r.payments)
	if err := fn(ctx, &memoryTx{repo: r, companyID: companyID}); err != nil {
		r.installments = snapshot
		r.payments = r.payments[:paymentCount]
		return err
	}
	return nil
}

func (r *memoryRepo) GetInstallment(ctx context.Context, companyID, id int64) (Installment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.installments[id]
	if !ok || inst.CompanyID != companyID {
		return Installment{}, ErrInstallmentNotFound
	}
	return inst, nil
}

func (r *memoryRepo) ListBySale(ctx context.Context, companyID, saleID int64) ([]Installment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bySale(companyID, saleID), nil
}

func (r *memoryRepo) bySale(companyID, saleID int64) []Installment {
	var out []Installment
	for n := 1; n <= MaxCount; n++ {
		for _, inst := range r.installments {
			if inst.CompanyID == companyID && inst.SaleID == saleID && inst.InstallmentNumber == n {
				out = append(out, inst)
			}
		}
	}
	return out
}

func (r *memoryRepo) ListPayments(ctx context.Context, companyID int64, ids []int64) (map[int64][]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paymentsFor(companyID, ids), nil
}

func (r *memoryRepo) paymentsFor(companyID int64, ids []int64) map[int64][]Payment {
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	out := make(map[int64][]Payment)
	for _, p := range r.payments {
		if p.CompanyID == companyID && wanted[p.InstallmentID] {
			out[p.InstallmentID] = append(out[p.InstallmentID], p)
		}
	}
	return out
}

func (r *memoryRepo) ListPendingDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]Installment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Installment
	for _, inst := range r.installments {
		if inst.Status == StatusPending && inst.DueDate.Before(cutoff) && len(out) < limit {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (r *memoryRepo) SetOverdue(ctx context.Context, ids []int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range ids {
		if inst, ok := r.installments[id]; ok && inst.Status == StatusPending {
			inst.Status = StatusOverdue
			r.installments[id] = inst
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) GetInstallmentForUpdate(ctx context.Context, id int64) (Installment, error) {
	inst, ok := tx.repo.installments[id]
	if !ok || inst.CompanyID != tx.companyID {
		return Installment{}, ErrInstallmentNotFound
	}
	return inst, nil
}

func (tx *memoryTx) ListBySaleForUpdate(ctx context.Context, saleID int64) ([]Installment, error) {
	return tx.repo.bySale(tx.companyID, saleID), nil
}

func (tx *memoryTx) ListPayments(ctx context.Context, ids []int64) (map[int64][]Payment, error) {
	return tx.repo.paymentsFor(tx.companyID, ids), nil
}

func (tx *memoryTx) InsertInstallments(ctx context.Context, list []Installment) ([]Installment, error) {
	out := make([]Installment, 0, len(list))
	for _, inst := range list {
		tx.repo.nextID++
		inst.ID = tx.repo.nextID
		inst.CompanyID = tx.companyID
		tx.repo.installments[inst.ID] = inst
		out = append(out, inst)
	}
	return out, nil
}

func (tx *memoryTx) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	tx.repo.nextID++
	p.ID = tx.repo.nextID
	tx.repo.payments = append(tx.repo.payments, p)
	return p.ID, nil
}

func (tx *memoryTx) MarkPaid(ctx context.Context, id int64, paidAt time.Time) error {
	inst := tx.repo.installments[id]
	inst.Status = StatusPaid
	inst.PaidAt = &paidAt
	tx.repo.installments[id] = inst
	return nil
}

func (tx *memoryTx) CancelOpenBySale(ctx context.Context, saleID int64) (int, error) {
	n := 0
	for id, inst := range tx.repo.installments {
		if inst.CompanyID == tx.companyID && inst.SaleID == saleID && inst.Status != StatusPaid {
			inst.Status = StatusCancelled
			tx.repo.installments[id] = inst
			n++
		}
	}
	return n, nil
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	paid     int
	overdue  int
}

func (m *countingMetrics) PaymentRegistered(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

func (m *countingMetrics) InstallmentPaid() { m.paid++ }

func (m *countingMetrics) OverdueMarked(n int) { m.overdue += n }

func pendingInstallment(id, companyID int64, amount string) Installment {
	return Installment{
		ID:                id,
		SaleID:            10,
		CustomerID:        20,
		CompanyID:         companyID,
		InstallmentNumber: int(id),
		Amount:            dec(amount),
		DueDate:           time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Status:            StatusPending,
	}
}

func TestPartialThenFinalPayment(t *testing.T) {
	repo := newMemoryRepo(pendingInstallment(1, 7, "200.00"))
	metrics := &countingMetrics{}
	svc := NewService(repo, nil, metrics, nil)
	ctx := context.Background()

	p, err := svc.RegisterPayment(ctx, 7, 1, PaymentInput{Amount: dec("50.00"), PaymentMethod: "cash"})
	require.NoError(t, err)
	require.Equal(t, PaymentCompleted, p.Status)
	require.NotEmpty(t, p.Reference)

	view, err := svc.GetInstallment(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, view.TotalPaid.Equal(dec("50.00")))
	assert.True(t, view.Remaining.Equal(dec("150.00")))
	assert.Equal(t, StatusPending, view.Status)

	_, err = svc.RegisterPayment(ctx, 7, 1, PaymentInput{Amount: dec("150.00")})
	require.NoError(t, err)

	view, err = svc.GetInstallment(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, view.Remaining.IsZero())
	assert.Equal(t, StatusPaid, view.Status)
	require.NotNil(t, view.PaidAt)
	require.Len(t, view.Payments, 2)
	assert.Equal(t, 2, metrics.outcomes["completed"])
	assert.Equal(t, 1, metrics.paid)
}

func TestPaymentWithinOneCentStaysPending(t *testing.T) {
	repo := newMemoryRepo(pendingInstallment(1, 7, "100.00"))
	metrics := &countingMetrics{}
	svc := NewService(repo, nil, metrics, nil)
	ctx := context.Background()

	_, err := svc.RegisterPayment(ctx, 7, 1, PaymentInput{Amount: dec("99.99")})
	require.NoError(t, err)

	view, err := svc.GetInstallment(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, view.Status)
	assert.Nil(t, view.PaidAt)
	assert.Equal(t, "99.99", view.TotalPaid.StringFixed(2))
	assert.True(t, view.Remaining.IsZero())
	assert.Equal(t, 0, metrics.paid)

	_, err = svc.RegisterPayment(ctx, 7, 1, PaymentInput{Amount: dec("0.01")})
	require.ErrorIs(t, err, ErrAlreadySettled)
	assert.Len(t, repo.payments, 1)
	assert.Equal(t, StatusPending, repo.installments[1].Status)
}

func TestOverpaymentRejectedAndNothingPersisted(t *testing.T) {
	repo := newMemoryRepo(pendingInstallment(1, 7, "100.00"))
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.RegisterPayment(context.Background(), 7, 1, PaymentInput{Amount: dec("150.00")})
	require.ErrorIs(t, err, ErrAmountExceedsBalance)
	require.ErrorIs(t, err, shared.ErrAmountExceedsBalance)
	assert.Equal(t, "100.00", shared.DetailsOf(err)["remaining"])
	assert.Empty(t, repo.payments)
	assert.Equal(t, StatusPending, repo.installments[1].Status)
}

func TestPaymentGuards(t *testing.T) {
	cancelled := pendingInstallment(2, 7, "10.00")
	cancelled.Status = StatusCancelled
	paid := pendingInstallment(3, 7, "10.00")
	paid.Status = StatusPaid
	repo := newMemoryRepo(pendingInstallment(1, 7, "10.00"), cancelled, paid)
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.RegisterPayment(ctx, 7, 1, PaymentInput{Amount: dec("0")})
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.RegisterPayment(ctx, 7, 1, PaymentInput{Amount: dec("-5")})
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.RegisterPayment(ctx, 7, 1, PaymentInput{Amount: dec("1.005")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RegisterPayment(ctx, 8, 1, PaymentInput{Amount: dec("1.00")})
	require.ErrorIs(t, err, ErrInstallmentNotFound)
	_, err = svc.RegisterPayment(ctx, 7, 99, PaymentInput{Amount: dec("1.00")})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.RegisterPayment(ctx, 7, 2, PaymentInput{Amount: dec("1.00")})
	require.ErrorIs(t, err, ErrInstallmentCancelled)

	_, err = svc.RegisterPayment(ctx, 7, 3, PaymentInput{Amount: dec("1.00")})
	require.ErrorIs(t, err, ErrAlreadySettled)

	assert.Empty(t, repo.payments)
}

func TestOverdueInstallmentAcceptsPayment(t *testing.T) {
	inst := pendingInstallment(1, 7, "30.00")
	inst.Status = StatusOverdue
	repo := newMemoryRepo(inst)
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.RegisterPayment(context.Background(), 7, 1, PaymentInput{Amount: dec("30.00")})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, repo.installments[1].Status)
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	repo := newMemoryRepo(pendingInstallment(1, 7, "100.00"))
	svc := NewService(repo, nil, nil, nil)

	var (
		g       errgroup.Group
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			_, err := svc.RegisterPayment(context.Background(), 7, 1, PaymentInput{Amount: dec("40.00")})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 2, success)

	view, err := svc.GetInstallment(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.True(t, view.TotalPaid.Equal(dec("80.00")))
	assert.True(t, view.Remaining.Equal(dec("20.00")))
}

func TestListBySaleLoadsBalances(t *testing.T) {
	first := pendingInstallment(1, 7, "50.00")
	second := pendingInstallment(2, 7, "50.00")
	repo := newMemoryRepo(first, second)
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.RegisterPayment(ctx, 7, 1, PaymentInput{Amount: dec("50.00")})
	require.NoError(t, err)

	views, err := svc.ListBySale(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, StatusPaid, views[0].Status)
	assert.True(t, views[1].Remaining.Equal(dec("50.00")))
	assert.NotNil(t, views[1].Payments)

	views, err = svc.ListBySale(ctx, 8, 10)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestServiceMarkOverdue(t *testing.T) {
	due := pendingInstallment(1, 7, "10.00")
	future := pendingInstallment(2, 8, "10.00")
	future.DueDate = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newMemoryRepo(due, future)
	metrics := &countingMetrics{}
	svc := NewService(repo, nil, metrics, nil)

	n, err := svc.MarkOverdue(context.Background(), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, StatusOverdue, repo.installments[1].Status)
	assert.Equal(t, StatusPending, repo.installments[2].Status)
	assert.Equal(t, 1, metrics.overdue)
}
