package installments

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/crediario/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, companyID int64, fn func(context.Context, TxRepository) error) error
	GetInstallment(ctx context.Context, companyID, installmentID int64) (Installment, error)
	ListBySale(ctx context.Context, companyID, saleID int64) ([]Installment, error)
	ListPayments(ctx context.Context, companyID int64, installmentIDs []int64) (map[int64][]Payment, error)
	ListPendingDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]Installment, error)
	SetOverdue(ctx context.Context, ids []int64) (int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives payment counters.
type MetricsPort interface {
	PaymentRegistered(outcome string)
	InstallmentPaid()
	OverdueMarked(n int)
}

// Service handles installment payments and queries.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RegisterPayment records a completed payment against an installment and
// flips it to paid once fully covered. The installment row stays locked for
// the whole transaction so concurrent payments cannot overpay it.
func (s *Service) RegisterPayment(ctx context.Context, companyID, installmentID int64, input PaymentInput) (Payment, error) {
	if !input.Amount.IsPositive() {
		s.countPayment(ErrInvalidAmount)
		return Payment{}, shared.WithDetails(ErrInvalidAmount, map[string]any{"field": "amount"})
	}
	if !input.Amount.Equal(shared.RoundMoney(input.Amount)) {
		err := shared.Validationf("amount", "amount has more than %d decimal places", shared.MoneyPlaces)
		s.countPayment(err)
		return Payment{}, err
	}
	amount := shared.RoundMoney(input.Amount)
	paidAt := s.now()
	if input.PaidAt != nil && !input.PaidAt.IsZero() {
		paidAt = input.PaidAt.UTC()
	}

	var (
		payment Payment
		settled bool
	)
	err := s.repo.WithTx(ctx, companyID, func(ctx context.Context, tx TxRepository) error {
		inst, err := tx.GetInstallmentForUpdate(ctx, installmentID)
		if err != nil {
			return err
		}
		switch inst.Status {
		case StatusCancelled:
			return ErrInstallmentCancelled
		case StatusPaid:
			return shared.WithDetails(ErrAlreadySettled, map[string]any{"installment_id": inst.ID})
		case StatusPending, StatusOverdue:
		default:
			return fmt.Errorf("installments: unknown status %q", inst.Status)
		}

		byInstallment, err := tx.ListPayments(ctx, []int64{inst.ID})
		if err != nil {
			return err
		}
		_, remaining := Balance(inst, byInstallment[inst.ID])
		if remaining.IsZero() {
			return shared.WithDetails(ErrAlreadySettled, map[string]any{"installment_id": inst.ID})
		}
		if amount.GreaterThan(remaining) {
			return shared.WithDetails(ErrAmountExceedsBalance, map[string]any{
				"installment_id": inst.ID,
				"amount":         amount.StringFixed(shared.MoneyPlaces),
				"remaining":      remaining.StringFixed(shared.MoneyPlaces),
			})
		}

		payment = Payment{
			InstallmentID: inst.ID,
			CompanyID:     inst.CompanyID,
			AmountPaid:    amount,
			Status:        PaymentCompleted,
			PaidAt:        paidAt,
			PaymentMethod: input.PaymentMethod,
			Reference:     uuid.NewString(),
			Notes:         input.Notes,
			CreatedBy:     input.ActorID,
		}
		payment.ID, err = tx.InsertPayment(ctx, payment)
		if err != nil {
			return fmt.Errorf("installments: insert payment: %w", err)
		}

		after := append(byInstallment[inst.ID], payment)
		newPaid, _ := Balance(inst, after)
		if newPaid.GreaterThanOrEqual(inst.Amount) {
			if err := tx.MarkPaid(ctx, inst.ID, paidAt); err != nil {
				return fmt.Errorf("installments: mark paid: %w", err)
			}
			settled = true
		}
		return nil
	})
	s.countPayment(err)
	if err != nil {
		return Payment{}, err
	}
	if settled && s.metrics != nil {
		s.metrics.InstallmentPaid()
	}
	s.logger.Info("installment payment registered",
		slog.Int64("company_id", companyID),
		slog.Int64("installment_id", installmentID),
		slog.String("amount", amount.StringFixed(shared.MoneyPlaces)),
		slog.Bool("settled", settled))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: companyID,
			ActorID:   input.ActorID,
			Action:    "installments:payment",
			Entity:    "installment",
			EntityID:  strconv.FormatInt(installmentID, 10),
			Meta: map[string]any{
				"payment_id": payment.ID,
				"amount":     amount.StringFixed(shared.MoneyPlaces),
				"reference":  payment.Reference,
				"settled":    settled,
			},
		})
	}
	return payment, nil
}

// GetInstallment returns the balance view of one installment.
func (s *Service) GetInstallment(ctx context.Context, companyID, installmentID int64) (View, error) {
	inst, err := s.repo.GetInstallment(ctx, companyID, installmentID)
	if err != nil {
		return View{}, err
	}
	views, err := s.withBalances(ctx, companyID, []Installment{inst})
	if err != nil {
		return View{}, err
	}
	return views[0], nil
}

// ListBySale returns the schedule of a sale with balances, ordered by number.
func (s *Service) ListBySale(ctx context.Context, companyID, saleID int64) ([]View, error) {
	list, err := s.repo.ListBySale(ctx, companyID, saleID)
	if err != nil {
		return nil, err
	}
	return s.withBalances(ctx, companyID, list)
}

func (s *Service) withBalances(ctx context.Context, companyID int64, list []Installment) ([]View, error) {
	views := make([]View, 0, len(list))
	if len(list) == 0 {
		return views, nil
	}
	ids := make([]int64, len(list))
	for i, inst := range list {
		ids[i] = inst.ID
	}
	payments, err := s.repo.ListPayments(ctx, companyID, ids)
	if err != nil {
		return nil, err
	}
	for _, inst := range list {
		paid, remaining := Balance(inst, payments[inst.ID])
		rows := payments[inst.ID]
		if rows == nil {
			rows = []Payment{}
		}
		views = append(views, View{Installment: inst, Payments: rows, TotalPaid: paid, Remaining: remaining})
	}
	return views, nil
}

// MarkOverdue moves every pending installment due before asOf to overdue,
// across all companies, in batches of batchSize. It returns the number of
// installments updated.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	cutoff := dateOnly(asOf)
	total := 0
	for {
		pending, err := s.repo.ListPendingDueBefore(ctx, cutoff, batchSize)
		if err != nil {
			return total, err
		}
		due := MarkOverdue(pending, asOf)
		if len(due) == 0 {
			break
		}
		ids := make([]int64, len(due))
		for i, inst := range due {
			ids[i] = inst.ID
		}
		n, err := s.repo.SetOverdue(ctx, ids)
		if err != nil {
			return total, err
		}
		total += n
		if len(pending) < batchSize || n == 0 {
			break
		}
	}
	if s.metrics != nil {
		s.metrics.OverdueMarked(total)
	}
	s.logger.Info("installments marked overdue", slog.Time("as_of", cutoff), slog.Int("count", total))
	return total, nil
}

func (s *Service) countPayment(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.PaymentRegistered(string(PaymentCompleted))
	case shared.IsClientError(err):
		s.metrics.PaymentRegistered("rejected")
	default:
		s.metrics.PaymentRegistered("error")
	}
}
