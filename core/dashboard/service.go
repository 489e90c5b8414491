package dashboard

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/billing"
)

// NowFunc tells the dashboard clock; mockable in tests.
var NowFunc = time.Now

type (
	// Repository is the read-only slice of storage the dashboard needs.
	// Aggregates are recomputed on every call; nothing is cached.
	Repository interface {
		// SumPaidInstallments sums installment paid amounts with PaidAt in [from, to).
		SumPaidInstallments(ctx context.Context, from, to time.Time) (float64, error)
		// SumPaidExpenses sums expense amounts with PaidAt in [from, to).
		SumPaidExpenses(ctx context.Context, from, to time.Time) (float64, error)
		// QueryOpenInstallments returns all non-terminal (stored PENDING) installments.
		QueryOpenInstallments(ctx context.Context) ([]billing.Installment, error)
		CountStudents(ctx context.Context) (int, error)
		CountActiveEnrollments(ctx context.Context) (int, error)
		// StudentNames resolves display names for the given student IDs.
		StudentNames(ctx context.Context, ids []string) (map[string]string, error)
	}

	ServiceInterface interface {
		Summary() (Summary, error)
		Delinquents(topN int) ([]Delinquent, error)
		RevenueTrend() ([]MonthPoint, error)
		AnnualHistory(year int) ([]MonthPoint, error)
	}

	Service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Summary is the dashboard's headline figures for the current month.
type Summary struct {
	MonthlyRevenue      float64 `json:"monthly_revenue"`
	MonthlyExpense      float64 `json:"monthly_expense"`
	PendingInstallments int     `json:"pending_installments"`
	Students            int     `json:"students"`
	ActiveEnrollments   int     `json:"active_enrollments"`
}

// Delinquent is a student ranked by overdue debt.
type Delinquent struct {
	StudentID    string  `json:"student_id"`
	StudentName  string  `json:"student_name"`
	Outstanding  float64 `json:"outstanding"`
	OverdueCount int     `json:"overdue_count"`
}

// MonthPoint is one month of revenue/expense history.
type MonthPoint struct {
	Year    int     `json:"year"`
	Month   int     `json:"month"`
	Revenue float64 `json:"revenue"`
	Expense float64 `json:"expense"`
}

func (svc *Service) Summary() (Summary, error) {
	ctx := context.Background()
	now := NowFunc().UTC()
	from, to := core.MonthBounds(now.Year(), now.Month())

	revenue, err := svc.repo.SumPaidInstallments(ctx, from, to)
	if err != nil {
		return Summary{}, errors.Wrap(err, "summing monthly revenue")
	}
	expense, err := svc.repo.SumPaidExpenses(ctx, from, to)
	if err != nil {
		return Summary{}, errors.Wrap(err, "summing monthly expenses")
	}

	open, err := svc.repo.QueryOpenInstallments(ctx)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying open installments")
	}
	var pending int
	for _, inst := range open {
		switch billing.EffectiveStatus(inst, now) {
		case billing.EffectiveDue, billing.EffectiveOverdue:
			pending++
		}
	}

	students, err := svc.repo.CountStudents(ctx)
	if err != nil {
		return Summary{}, errors.Wrap(err, "counting students")
	}
	enrollments, err := svc.repo.CountActiveEnrollments(ctx)
	if err != nil {
		return Summary{}, errors.Wrap(err, "counting active enrollments")
	}

	return Summary{
		MonthlyRevenue:      revenue,
		MonthlyExpense:      expense,
		PendingInstallments: pending,
		Students:            students,
		ActiveEnrollments:   enrollments,
	}, nil
}

// Delinquents ranks students by their overdue debt, largest first; debt is the
// sum of outstanding amounts over OVERDUE installments only. Ties break on name.
func (svc *Service) Delinquents(topN int) ([]Delinquent, error) {
	ctx := context.Background()
	now := NowFunc().UTC()

	open, err := svc.repo.QueryOpenInstallments(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying open installments")
	}

	debts := make(map[string]*Delinquent)
	for _, inst := range open {
		if billing.EffectiveStatus(inst, now) != billing.EffectiveOverdue {
			continue
		}
		del, ok := debts[inst.StudentID]
		if !ok {
			del = &Delinquent{StudentID: inst.StudentID}
			debts[inst.StudentID] = del
		}
		del.Outstanding += inst.Outstanding()
		del.OverdueCount++
	}
	if len(debts) == 0 {
		return []Delinquent{}, nil
	}

	ids := make([]string, 0, len(debts))
	for id := range debts {
		ids = append(ids, id)
	}
	names, err := svc.repo.StudentNames(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "resolving student names")
	}

	dels := make([]Delinquent, 0, len(debts))
	for id, del := range debts {
		del.StudentName = names[id]
		dels = append(dels, *del)
	}
	sort.Slice(dels, func(i, j int) bool {
		if dels[i].Outstanding != dels[j].Outstanding {
			return dels[i].Outstanding > dels[j].Outstanding
		}
		return dels[i].StudentName < dels[j].StudentName
	})

	if topN > 0 && len(dels) > topN {
		dels = dels[:topN]
	}
	return dels, nil
}

// RevenueTrend returns the last 6 months of revenue/expense, oldest first.
func (svc *Service) RevenueTrend() ([]MonthPoint, error) {
	now := NowFunc().UTC()
	return svc.history(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -5, 0), 6)
}

// AnnualHistory returns all 12 months of the given year, January first.
func (svc *Service) AnnualHistory(year int) ([]MonthPoint, error) {
	if year == 0 {
		year = NowFunc().UTC().Year()
	}
	return svc.history(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), 12)
}

func (svc *Service) history(start time.Time, months int) ([]MonthPoint, error) {
	ctx := context.Background()
	points := make([]MonthPoint, 0, months)
	for i := 0; i < months; i++ {
		cur := start.AddDate(0, i, 0)
		from, to := core.MonthBounds(cur.Year(), cur.Month())

		revenue, err := svc.repo.SumPaidInstallments(ctx, from, to)
		if err != nil {
			return nil, errors.Wrapf(err, "summing revenue for %s", cur.Format("2006-01"))
		}
		expense, err := svc.repo.SumPaidExpenses(ctx, from, to)
		if err != nil {
			return nil, errors.Wrapf(err, "summing expenses for %s", cur.Format("2006-01"))
		}
		points = append(points, MonthPoint{
			Year:    cur.Year(),
			Month:   int(cur.Month()),
			Revenue: revenue,
			Expense: expense,
		})
	}
	return points, nil
}
