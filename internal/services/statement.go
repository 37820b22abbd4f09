package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/coolpis/internal/apperr"
	"github.com/example/coolpis/internal/models"
	"github.com/example/coolpis/internal/repository"
	"github.com/example/coolpis/internal/utils"
)

var (
	ErrBadAmount           = apperr.New(apperr.CodeInvalidArgument, "amount must be positive")
	ErrRegistrationMissing = apperr.New(apperr.CodeInvalidArgument, "registration number is required")
)

// PaymentInput records a deposit.
type PaymentInput struct {
	RegistrationNumber string `json:"registrationNumber"`
	BusinessName       string `json:"businessName"`
	Amount             int64  `json:"amount"`
	Memo               string `json:"memo"`
}

// Statement compares what a business ordered with what it paid in a period.
// It is an approximation matched only by registration number and date.
type Statement struct {
	RegistrationNumber string           `json:"registrationNumber"`
	BusinessName       string           `json:"businessName"`
	From               *time.Time       `json:"from,omitempty"`
	To                 *time.Time       `json:"to,omitempty"`
	OrderCount         int              `json:"orderCount"`
	OrderedTotal       int64            `json:"orderedTotal"`
	PaidTotal          int64            `json:"paidTotal"`
	Balance            int64            `json:"balance"`
	Orders             []models.Order   `json:"orders"`
	Payments           []models.Payment `json:"payments"`
}

// BusinessSummary groups a period's orders by registration number.
type BusinessSummary struct {
	RegistrationNumber string         `json:"registrationNumber"`
	BusinessName       string         `json:"businessName"`
	Representative     string         `json:"representative"`
	Phone              string         `json:"phone"`
	Address            string         `json:"address"`
	OrderCount         int            `json:"orderCount"`
	TotalPrice         int64          `json:"totalPrice"`
	Orders             []models.Order `json:"orders"`
}

// StatementService records payments and builds statements.
type StatementService struct {
	store    repository.Store
	notifier Notifier
	logger   *zap.Logger
}

func NewStatementService(store repository.Store, notifier Notifier, logger *zap.Logger) *StatementService {
	return &StatementService{store: store, notifier: notifier, logger: logger.Named("statements")}
}

// RecordPayment stores a deposit. A missing business name is filled from the profile.
func (s *StatementService) RecordPayment(ctx context.Context, in PaymentInput) (*models.Payment, error) {
	if in.Amount <= 0 {
		return nil, ErrBadAmount
	}
	regNumber := utils.FormatRegistrationNumber(in.RegistrationNumber)
	if regNumber == "" {
		return nil, ErrRegistrationMissing
	}

	name := strings.TrimSpace(in.BusinessName)
	if name == "" {
		profile, err := s.store.Profiles.FindByRegistrationNumber(ctx, utils.RegistrationNumberVariants(regNumber)...)
		switch {
		case err == nil:
			name = profile.BusinessName
		case !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
	}

	payment := &models.Payment{
		RegistrationNumber: regNumber,
		BusinessName:       name,
		Amount:             in.Amount,
		Memo:               strings.TrimSpace(in.Memo),
	}
	if err := s.store.Payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	s.logger.Info("payment recorded", zap.String("registrationNumber", regNumber), zap.Int64("amount", in.Amount))

	if s.notifier != nil {
		recorded := *payment
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := s.notifier.NotifyPayment(ctx, &recorded); err != nil {
				s.logger.Warn("payment notification failed", zap.Error(err))
			}
		}()
	}
	return payment, nil
}

// Payments lists deposits, optionally for one business.
func (s *StatementService) Payments(ctx context.Context, registrationNumber string) ([]models.Payment, error) {
	filter := repository.PaymentFilter{}
	if strings.TrimSpace(registrationNumber) != "" {
		filter.RegistrationNumber = utils.FormatRegistrationNumber(registrationNumber)
	}
	return s.store.Payments.List(ctx, filter)
}

func (s *StatementService) DeletePayment(ctx context.Context, id string) error {
	return s.store.Payments.Delete(ctx, id)
}

// ForBusiness builds the statement of one business between from and to. Zero
// bounds are open.
func (s *StatementService) ForBusiness(ctx context.Context, registrationNumber string, from, to time.Time) (*Statement, error) {
	regNumber := utils.FormatRegistrationNumber(registrationNumber)
	if regNumber == "" {
		return nil, ErrRegistrationMissing
	}

	orders, err := s.store.Orders.List(ctx, repository.OrderFilter{RegistrationNumber: regNumber, From: from, To: to})
	if err != nil {
		return nil, err
	}
	payments, err := s.store.Payments.List(ctx, repository.PaymentFilter{RegistrationNumber: regNumber, From: from, To: to})
	if err != nil {
		return nil, err
	}

	st := &Statement{
		RegistrationNumber: regNumber,
		OrderCount:         len(orders),
		Orders:             orders,
		Payments:           payments,
	}
	if !from.IsZero() {
		st.From = &from
	}
	if !to.IsZero() {
		st.To = &to
	}
	for _, o := range orders {
		st.OrderedTotal += o.TotalPrice
		if st.BusinessName == "" {
			st.BusinessName = o.BusinessName
		}
	}
	for _, p := range payments {
		st.PaidTotal += p.Amount
		if st.BusinessName == "" {
			st.BusinessName = p.BusinessName
		}
	}
	st.Balance = st.OrderedTotal - st.PaidTotal
	return st, nil
}

// ByBusiness groups the orders created in [from, to) by registration number,
// largest total first.
func (s *StatementService) ByBusiness(ctx context.Context, from, to time.Time) ([]BusinessSummary, error) {
	orders, err := s.store.Orders.List(ctx, repository.OrderFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*BusinessSummary)
	for _, o := range orders {
		if !to.IsZero() && !o.CreatedAt.Before(to) {
			continue
		}
		g, ok := groups[o.RegistrationNumber]
		if !ok {
			// Orders are newest first, so the header shows the latest details.
			g = &BusinessSummary{
				RegistrationNumber: o.RegistrationNumber,
				BusinessName:       o.BusinessName,
				Representative:     o.Representative,
				Phone:              o.Phone,
				Address:            o.Address,
			}
			groups[o.RegistrationNumber] = g
		}
		g.OrderCount++
		g.TotalPrice += o.TotalPrice
		g.Orders = append(g.Orders, o)
	}

	out := make([]BusinessSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPrice != out[j].TotalPrice {
			return out[i].TotalPrice > out[j].TotalPrice
		}
		return out[i].RegistrationNumber < out[j].RegistrationNumber
	})
	return out, nil
}

// MonthRange returns [first day of month, first day of next month) in loc.
func MonthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
