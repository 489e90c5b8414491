package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

// fakeRepo is a minimal in-memory Repository for service tests.
type fakeRepo struct {
	seq          int
	plans        map[string]Plan
	enrollments  map[string]Enrollment
	installments map[string]Installment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		plans:        make(map[string]Plan),
		enrollments:  make(map[string]Enrollment),
		installments: make(map[string]Installment),
	}
}

func (r *fakeRepo) nextID() string {
	r.seq++
	return fmt.Sprintf("id-%03d", r.seq)
}

func (r *fakeRepo) CheckPlanUniqueness(_ context.Context, name string, excluded []Plan, _ ...core.DBExecutor) error {
	for _, plan := range r.plans {
		skip := false
		for _, ex := range excluded {
			if ex.ID == plan.ID {
				skip = true
			}
		}
		if !skip && plan.Name == name {
			return ErrPlanExists
		}
	}
	return nil
}

func (r *fakeRepo) CreatePlan(_ context.Context, plan Plan, _ ...core.DBExecutor) (Plan, error) {
	plan.ID = r.nextID()
	r.plans[plan.ID] = plan
	return plan, nil
}

func (r *fakeRepo) GetPlanByID(_ context.Context, id string, _ ...core.DBExecutor) (Plan, error) {
	if plan, ok := r.plans[id]; ok {
		return plan, nil
	}
	return Plan{}, ErrPlanNotFound
}

func (r *fakeRepo) QueryPlans(_ context.Context, _ *PlanFilter, _ ...core.DBExecutor) ([]Plan, error) {
	plans := make([]Plan, 0, len(r.plans))
	for _, plan := range r.plans {
		plans = append(plans, plan)
	}
	return plans, nil
}

func (r *fakeRepo) UpdatePlan(_ context.Context, plan Plan, _ ...core.DBExecutor) (Plan, error) {
	if _, ok := r.plans[plan.ID]; !ok {
		return Plan{}, ErrPlanNotFound
	}
	r.plans[plan.ID] = plan
	return plan, nil
}

func (r *fakeRepo) CreateEnrollment(_ context.Context, enr Enrollment, _ ...core.DBExecutor) (Enrollment, error) {
	enr.ID = r.nextID()
	r.enrollments[enr.ID] = enr
	return enr, nil
}

func (r *fakeRepo) GetEnrollmentByID(_ context.Context, id string, _ ...core.DBExecutor) (Enrollment, error) {
	if enr, ok := r.enrollments[id]; ok {
		return enr, nil
	}
	return Enrollment{}, ErrEnrollmentNotFound
}

func (r *fakeRepo) GetActiveEnrollment(_ context.Context, studentID string, year int, _ ...core.DBExecutor) (Enrollment, error) {
	for _, enr := range r.enrollments {
		if enr.StudentID == studentID && enr.AcademicYear == year && enr.Status != EnrollmentCancelled {
			return enr, nil
		}
	}
	return Enrollment{}, ErrEnrollmentNotFound
}

func (r *fakeRepo) QueryEnrollments(_ context.Context, filter *EnrollmentFilter, _ ...core.DBExecutor) ([]Enrollment, error) {
	var enrs []Enrollment
	for _, enr := range r.enrollments {
		if filter != nil {
			if filter.StudentID != "" && enr.StudentID != filter.StudentID {
				continue
			}
			if filter.AcademicYear != 0 && enr.AcademicYear != filter.AcademicYear {
				continue
			}
			if filter.Status != "" && enr.Status != filter.Status {
				continue
			}
		}
		enrs = append(enrs, enr)
	}
	return enrs, nil
}

func (r *fakeRepo) UpdateEnrollment(_ context.Context, enr Enrollment, _ ...core.DBExecutor) (Enrollment, error) {
	if _, ok := r.enrollments[enr.ID]; !ok {
		return Enrollment{}, ErrEnrollmentNotFound
	}
	r.enrollments[enr.ID] = enr
	return enr, nil
}

func (r *fakeRepo) CreateInstallments(_ context.Context, insts []Installment, _ ...core.DBExecutor) ([]Installment, error) {
	for i := range insts {
		insts[i].ID = r.nextID()
		r.installments[insts[i].ID] = insts[i]
	}
	return insts, nil
}

func (r *fakeRepo) GetInstallmentByID(_ context.Context, id string, _ ...core.DBExecutor) (Installment, error) {
	if inst, ok := r.installments[id]; ok {
		return inst, nil
	}
	return Installment{}, ErrInstallmentNotFound
}

func (r *fakeRepo) QueryInstallments(_ context.Context, filter *InstallmentFilter, _ ...core.DBExecutor) ([]Installment, error) {
	var insts []Installment
	for _, inst := range r.installments {
		if filter != nil {
			if filter.StudentID != "" && inst.StudentID != filter.StudentID {
				continue
			}
			if filter.EnrollmentID != "" && inst.EnrollmentID != filter.EnrollmentID {
				continue
			}
			if filter.Status != "" && inst.Status != filter.Status {
				continue
			}
			if filter.Year != 0 && inst.Year != filter.Year {
				continue
			}
			if filter.After != nil && !(YearMonth{Year: inst.Year, Month: inst.Month}).After(*filter.After) {
				continue
			}
		}
		insts = append(insts, inst)
	}
	sort.Slice(insts, func(i, j int) bool {
		return (YearMonth{Year: insts[i].Year, Month: insts[i].Month}).Before(YearMonth{Year: insts[j].Year, Month: insts[j].Month})
	})
	return insts, nil
}

func (r *fakeRepo) UpdateInstallment(_ context.Context, inst Installment, _ ...core.DBExecutor) (Installment, error) {
	if _, ok := r.installments[inst.ID]; !ok {
		return Installment{}, ErrInstallmentNotFound
	}
	r.installments[inst.ID] = inst
	return inst, nil
}

// fakeStudentRepo satisfies student.Repository with just enough behavior.
type fakeStudentRepo struct {
	seq       int
	students  map[string]student.Student
	guardians map[string]student.Guardian
}

func newFakeStudentRepo() *fakeStudentRepo {
	return &fakeStudentRepo{
		students:  make(map[string]student.Student),
		guardians: make(map[string]student.Guardian),
	}
}

func (r *fakeStudentRepo) nextID() string {
	r.seq++
	return fmt.Sprintf("stu-%03d", r.seq)
}

func (r *fakeStudentRepo) CheckRegistrationUniqueness(_ context.Context, _ string, _ []student.Student, _ ...core.DBExecutor) error {
	return nil
}

func (r *fakeStudentRepo) CreateStudent(_ context.Context, stu student.Student, _ ...core.DBExecutor) (student.Student, error) {
	stu.ID = r.nextID()
	r.students[stu.ID] = stu
	return stu, nil
}

func (r *fakeStudentRepo) GetStudentByID(_ context.Context, id string, _ ...core.DBExecutor) (student.Student, error) {
	if stu, ok := r.students[id]; ok {
		return stu, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (r *fakeStudentRepo) QueryStudents(_ context.Context, _ *student.QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]student.Student, error) {
	var stus []student.Student
	for _, stu := range r.students {
		stus = append(stus, stu)
	}
	return stus, nil
}

func (r *fakeStudentRepo) UpdateStudent(_ context.Context, stu student.Student, _ ...core.DBExecutor) (student.Student, error) {
	if _, ok := r.students[stu.ID]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	r.students[stu.ID] = stu
	return stu, nil
}

func (r *fakeStudentRepo) CountStudents(_ context.Context, _ ...core.DBExecutor) (int, error) {
	return len(r.students), nil
}

func (r *fakeStudentRepo) CreateGuardian(_ context.Context, grd student.Guardian, _ ...core.DBExecutor) (student.Guardian, error) {
	grd.ID = r.nextID()
	r.guardians[grd.ID] = grd
	return grd, nil
}

func (r *fakeStudentRepo) GetGuardianByID(_ context.Context, id string, _ ...core.DBExecutor) (student.Guardian, error) {
	if grd, ok := r.guardians[id]; ok {
		return grd, nil
	}
	return student.Guardian{}, student.ErrGuardianNotFound
}

func (r *fakeStudentRepo) QueryGuardians(_ context.Context, studentID string, _ ...core.DBExecutor) ([]student.Guardian, error) {
	var grds []student.Guardian
	for _, grd := range r.guardians {
		if grd.StudentID == studentID {
			grds = append(grds, grd)
		}
	}
	return grds, nil
}

func (r *fakeStudentRepo) UpdateGuardian(_ context.Context, grd student.Guardian, _ ...core.DBExecutor) (student.Guardian, error) {
	r.guardians[grd.ID] = grd
	return grd, nil
}

func (r *fakeStudentRepo) DeleteGuardian(_ context.Context, id string, _ ...core.DBExecutor) error {
	delete(r.guardians, id)
	return nil
}

// fakeMailSvc records sent messages.
type fakeMailSvc struct {
	sent []*core.EmailMessage
}

func (svc *fakeMailSvc) SendMessages(msgs ...*core.EmailMessage) {
	svc.sent = append(svc.sent, msgs...)
}

func setNow(t *testing.T, now time.Time) {
	t.Helper()
	NowFunc = func() time.Time { return now }
	t.Cleanup(func() { NowFunc = time.Now })
}

type testEnv struct {
	svc     *Service
	repo    *fakeRepo
	stuRepo *fakeStudentRepo
	mailSvc *fakeMailSvc
	stu     student.Student
	plan    Plan
}

func newTestEnv(t *testing.T, monthly float64) *testEnv {
	t.Helper()
	repo := newFakeRepo()
	stuRepo := newFakeStudentRepo()
	mailSvc := new(fakeMailSvc)
	svc := NewService(nil, repo, stuRepo, mailSvc, nil)

	stu, err := stuRepo.CreateStudent(context.Background(), student.Student{FullName: "Amina Yusuf", RegistrationNumber: "reg001"})
	if err != nil {
		t.Fatal(err)
	}
	plan, err := svc.CreatePlan(NewPlan{Name: "Primary", MonthlyAmount: monthly})
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{svc: svc, repo: repo, stuRepo: stuRepo, mailSvc: mailSvc, stu: stu, plan: plan}
}

func (env *testEnv) enroll(t *testing.T, ne NewEnrollment) Enrollment {
	t.Helper()
	if ne.StudentID == "" {
		ne.StudentID = env.stu.ID
	}
	if ne.PlanID == "" {
		ne.PlanID = env.plan.ID
	}
	enr, err := env.svc.Enroll(ne)
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	return enr
}

func TestEnrollSchedule(t *testing.T) {
	setNow(t, time.Date(2026, time.March, 5, 9, 0, 0, 0, time.UTC))
	env := newTestEnv(t, 500)

	enr := env.enroll(t, NewEnrollment{AcademicYear: 2026, EnrollmentFee: 100, DueDay: 10})

	insts, err := env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 10 { // March through December
		t.Fatalf("got %d installments, want 10", len(insts))
	}
	for i, inst := range insts {
		if wantMonth := i + 3; inst.Month != wantMonth {
			t.Errorf("installment %d: month = %d, want %d", i, inst.Month, wantMonth)
		}
		if inst.Year != 2026 {
			t.Errorf("installment %d: year = %d, want 2026", i, inst.Year)
		}
		if inst.Status != InstallmentPending {
			t.Errorf("installment %d: status = %s, want %s", i, inst.Status, InstallmentPending)
		}
		if inst.DueDate.Day() != 10 {
			t.Errorf("installment %d: due day = %d, want 10", i, inst.DueDate.Day())
		}
	}
	// enrollment fee absorbed into the first month, floored at zero
	if insts[0].BaseAmount != 400 {
		t.Errorf("first base = %v, want 400", insts[0].BaseAmount)
	}
	for _, inst := range insts[1:] {
		if inst.BaseAmount != 500 {
			t.Errorf("%s: base = %v, want 500", inst.Period(), inst.BaseAmount)
		}
	}

	stu, _ := env.stuRepo.GetStudentByID(context.Background(), env.stu.ID)
	if !stu.Enrolled {
		t.Error("student not flagged as enrolled")
	}
	if enr.MonthlyAmount != 500 {
		t.Errorf("enrollment snapshot = %v, want 500", enr.MonthlyAmount)
	}
}

func TestEnrollFeeFloorsAtZero(t *testing.T) {
	setNow(t, time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC))
	env := newTestEnv(t, 300)

	enr := env.enroll(t, NewEnrollment{AcademicYear: 2026, EnrollmentFee: 450, DueDay: 5})

	insts, err := env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 2 {
		t.Fatalf("got %d installments, want 2", len(insts))
	}
	if insts[0].BaseAmount != 0 {
		t.Errorf("first base = %v, want 0", insts[0].BaseAmount)
	}
	if insts[1].BaseAmount != 300 {
		t.Errorf("second base = %v, want 300", insts[1].BaseAmount)
	}
}

func TestEnrollDueDayClamped(t *testing.T) {
	setNow(t, time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC))
	env := newTestEnv(t, 500)

	enr := env.enroll(t, NewEnrollment{AcademicYear: 2026, DueDay: 31})

	insts, err := env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr.ID})
	if err != nil {
		t.Fatal(err)
	}
	days := map[int]int{1: 31, 2: 28, 3: 31, 4: 30, 5: 31, 6: 30, 7: 31, 8: 31, 9: 30, 10: 31, 11: 30, 12: 31}
	for _, inst := range insts {
		if got, want := inst.DueDate.Day(), days[inst.Month]; got != want {
			t.Errorf("%s: due day = %d, want %d", inst.Period(), got, want)
		}
	}
}

func TestEnrollDuplicate(t *testing.T) {
	setNow(t, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC))
	env := newTestEnv(t, 500)

	env.enroll(t, NewEnrollment{AcademicYear: 2026, DueDay: 10})

	_, err := env.svc.Enroll(NewEnrollment{StudentID: env.stu.ID, PlanID: env.plan.ID, AcademicYear: 2026, DueDay: 10})
	var dupErr *DuplicateEnrollmentError
	if !errors.As(err, &dupErr) {
		t.Fatalf("Enroll() error = %v, want DuplicateEnrollmentError", err)
	}
	if dupErr.AcademicYear != 2026 {
		t.Errorf("error year = %d, want 2026", dupErr.AcademicYear)
	}

	// a different year is fine
	if _, err = env.svc.Enroll(NewEnrollment{StudentID: env.stu.ID, PlanID: env.plan.ID, AcademicYear: 2027, DueDay: 10}); err != nil {
		t.Errorf("Enroll(2027) error = %v", err)
	}
}

func TestEnrollInactivePlan(t *testing.T) {
	setNow(t, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC))
	env := newTestEnv(t, 500)

	if _, err := env.svc.DeactivatePlan(env.plan.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.Enroll(NewEnrollment{StudentID: env.stu.ID, PlanID: env.plan.ID, AcademicYear: 2026, DueDay: 10}); err != ErrPlanInactive {
		t.Errorf("Enroll() error = %v, want %v", err, ErrPlanInactive)
	}
}

func TestCancelEnrollment(t *testing.T) {
	setNow(t, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC))
	env := newTestEnv(t, 500)
	enr := env.enroll(t, NewEnrollment{AcademicYear: 2026, DueDay: 10})

	// pay April, then cancel in June (after June's due date)
	insts, _ := env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr.ID})
	april := insts[1]
	if _, err := env.svc.RegisterPayment(april.ID, Payment{Method: "cash"}); err != nil {
		t.Fatal(err)
	}

	setNow(t, time.Date(2026, time.June, 20, 0, 0, 0, 0, time.UTC))
	enr, err := env.svc.CancelEnrollment(enr.ID)
	if err != nil {
		t.Fatalf("CancelEnrollment() error = %v", err)
	}
	if enr.Status != EnrollmentCancelled {
		t.Errorf("status = %s, want %s", enr.Status, EnrollmentCancelled)
	}

	insts, _ = env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr.ID})
	wantStatus := map[int]string{
		3:  InstallmentPending,   // overdue debt, kept
		4:  InstallmentPaid,      // paid, untouched
		5:  InstallmentPending,   // overdue debt, kept
		6:  InstallmentPending,   // due day passed, kept
		7:  InstallmentCancelled, // future
		8:  InstallmentCancelled,
		9:  InstallmentCancelled,
		10: InstallmentCancelled,
		11: InstallmentCancelled,
		12: InstallmentCancelled,
	}
	for _, inst := range insts {
		if inst.Status != wantStatus[inst.Month] {
			t.Errorf("%s: status = %s, want %s", inst.Period(), inst.Status, wantStatus[inst.Month])
		}
	}

	stu, _ := env.stuRepo.GetStudentByID(context.Background(), env.stu.ID)
	if stu.Enrolled {
		t.Error("student still flagged as enrolled")
	}

	// cancelling twice is a no-op
	if _, err = env.svc.CancelEnrollment(enr.ID); err != nil {
		t.Errorf("second CancelEnrollment() error = %v", err)
	}

	// the slot is free for re-enrollment
	if _, err = env.svc.Enroll(NewEnrollment{StudentID: env.stu.ID, PlanID: env.plan.ID, AcademicYear: 2026, DueDay: 10}); err != nil {
		t.Errorf("re-Enroll() error = %v", err)
	}
}

func TestRegisterPayment(t *testing.T) {
	setNow(t, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC))

	explicit := 450.0
	tests := []struct {
		name          string
		payment       Payment
		wantPaid      float64
		wantDiscount  float64
		wantSurcharge float64
		wantErr       error
	}{
		{
			name:     "plain payment",
			payment:  Payment{Method: "cash"},
			wantPaid: 500,
		},
		{
			name:         "percent discount",
			payment:      Payment{Method: "pix", Discount: &Adjustment{Type: AdjustmentPercent, Value: 10, Reason: "sibling"}},
			wantPaid:     450,
			wantDiscount: 50,
		},
		{
			name:         "fixed discount",
			payment:      Payment{Method: "pix", Discount: &Adjustment{Type: AdjustmentFixed, Value: 75, Reason: "scholarship"}},
			wantPaid:     425,
			wantDiscount: 75,
		},
		{
			name:          "fixed surcharge",
			payment:       Payment{Method: "card", Surcharge: &Adjustment{Type: AdjustmentFixed, Value: 20, Reason: "late fee"}},
			wantPaid:      520,
			wantSurcharge: 20,
		},
		{
			name: "discount and surcharge combine",
			payment: Payment{
				Method:    "card",
				Discount:  &Adjustment{Type: AdjustmentPercent, Value: 10, Reason: "sibling"},
				Surcharge: &Adjustment{Type: AdjustmentFixed, Value: 30, Reason: "late fee"},
			},
			wantPaid:      480,
			wantDiscount:  50,
			wantSurcharge: 30,
		},
		{
			name:         "explicit amount wins",
			payment:      Payment{Method: "cash", PaidAmount: &explicit, Discount: &Adjustment{Type: AdjustmentFixed, Value: 10, Reason: "rounding"}},
			wantPaid:     450,
			wantDiscount: 10,
		},
		{
			name:         "discount beyond base floors at zero",
			payment:      Payment{Method: "cash", Discount: &Adjustment{Type: AdjustmentFixed, Value: 600, Reason: "full waiver"}},
			wantPaid:     0,
			wantDiscount: 600,
		},
		{
			name:    "positive discount without reason",
			payment: Payment{Method: "cash", Discount: &Adjustment{Type: AdjustmentFixed, Value: 10}},
			wantErr: ErrMissingReason,
		},
		{
			name:    "positive surcharge without reason",
			payment: Payment{Method: "cash", Surcharge: &Adjustment{Type: AdjustmentPercent, Value: 5, Reason: "   "}},
			wantErr: ErrMissingReason,
		},
		{
			name:     "zero-value adjustment needs no reason",
			payment:  Payment{Method: "cash", Discount: &Adjustment{Type: AdjustmentFixed, Value: 0}},
			wantPaid: 500,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 500)
			enr := env.enroll(t, NewEnrollment{AcademicYear: 2026, DueDay: 10})
			insts, _ := env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr.ID})
			target := insts[1] // April: no fee absorption

			inst, err := env.svc.RegisterPayment(target.ID, tt.payment)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Fatalf("RegisterPayment() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("RegisterPayment() error = %v", err)
			}
			if inst.Status != InstallmentPaid {
				t.Errorf("status = %s, want %s", inst.Status, InstallmentPaid)
			}
			if inst.Effective != EffectivePaid {
				t.Errorf("effective = %s, want %s", inst.Effective, EffectivePaid)
			}
			if !inst.PaidAmount.Valid || inst.PaidAmount.Float64 != tt.wantPaid {
				t.Errorf("paid = %v, want %v", inst.PaidAmount, tt.wantPaid)
			}
			if inst.DiscountAmount != tt.wantDiscount {
				t.Errorf("discount = %v, want %v", inst.DiscountAmount, tt.wantDiscount)
			}
			if inst.SurchargeAmount != tt.wantSurcharge {
				t.Errorf("surcharge = %v, want %v", inst.SurchargeAmount, tt.wantSurcharge)
			}
			if !inst.PaidAt.Valid {
				t.Error("paid_at not set")
			}
		})
	}
}

func TestRegisterPaymentAlreadyPaid(t *testing.T) {
	setNow(t, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC))
	env := newTestEnv(t, 500)
	enr := env.enroll(t, NewEnrollment{AcademicYear: 2026, DueDay: 10})
	insts, _ := env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr.ID})

	if _, err := env.svc.RegisterPayment(insts[0].ID, Payment{Method: "cash"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.RegisterPayment(insts[0].ID, Payment{Method: "cash"}); err != ErrAlreadyPaid {
		t.Errorf("RegisterPayment() error = %v, want %v", err, ErrAlreadyPaid)
	}
}

func TestRegisterPaymentAuditNotes(t *testing.T) {
	setNow(t, time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC))
	env := newTestEnv(t, 500)
	enr := env.enroll(t, NewEnrollment{AcademicYear: 2026, DueDay: 10})
	insts, _ := env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr.ID})

	inst, err := env.svc.RegisterPayment(insts[1].ID, Payment{
		Method:   "pix",
		Discount: &Adjustment{Type: AdjustmentPercent, Value: 10, Reason: "sibling discount"},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"[2026-03-05 12:00]",
		"discount of 50.00 applied (percentual 10, reason: sibling discount)",
		"payment of 450.00 registered via pix",
	} {
		if !strings.Contains(inst.Notes, want) {
			t.Errorf("notes missing %q:\n%s", want, inst.Notes)
		}
	}
}

func TestRegisterPaymentSendsReceipt(t *testing.T) {
	setNow(t, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC))
	env := newTestEnv(t, 500)
	if _, err := env.stuRepo.CreateGuardian(context.Background(), student.Guardian{
		StudentID: env.stu.ID, FullName: "Fatima Yusuf", Email: "fatima@test.test",
	}); err != nil {
		t.Fatal(err)
	}
	enr := env.enroll(t, NewEnrollment{AcademicYear: 2026, DueDay: 10})
	insts, _ := env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr.ID})

	if _, err := env.svc.RegisterPayment(insts[0].ID, Payment{Method: "cash"}); err != nil {
		t.Fatal(err)
	}
	if len(env.mailSvc.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(env.mailSvc.sent))
	}
	msg := env.mailSvc.sent[0]
	if len(msg.To) != 1 || msg.To[0].Address != "fatima@test.test" {
		t.Errorf("recipients = %v", msg.To)
	}
	if msg.TemplateName != "payment-receipt" {
		t.Errorf("template = %s", msg.TemplateName)
	}
}

func TestReviseUpcomingAmount(t *testing.T) {
	setNow(t, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC))
	env := newTestEnv(t, 500)
	enr := env.enroll(t, NewEnrollment{AcademicYear: 2026, DueDay: 10})
	insts, _ := env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr.ID})

	may := insts[2]
	inst, err := env.svc.ReviseUpcomingAmount(may.ID, AmountRevision{Value: 550, Reason: "tuition increase"})
	if err != nil {
		t.Fatalf("ReviseUpcomingAmount() error = %v", err)
	}
	if inst.BaseAmount != 550 {
		t.Errorf("base = %v, want 550", inst.BaseAmount)
	}
	if !strings.Contains(inst.Notes, "amount revised from 500.00 to 550.00 (reason: tuition increase)") {
		t.Errorf("notes missing revision entry:\n%s", inst.Notes)
	}

	// others untouched without ApplyToAllFuture
	insts, _ = env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr.ID})
	for _, other := range insts {
		if other.Month != 5 && other.BaseAmount != 500 {
			t.Errorf("%s: base = %v, want 500", other.Period(), other.BaseAmount)
		}
	}
}

func TestReviseUpcomingAmountInvalidStates(t *testing.T) {
	setNow(t, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC))
	env := newTestEnv(t, 500)
	enr := env.enroll(t, NewEnrollment{AcademicYear: 2026, DueDay: 10})
	insts, _ := env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr.ID})
	march, april := insts[0], insts[1]

	// current month (DUE)
	if _, err := env.svc.ReviseUpcomingAmount(march.ID, AmountRevision{Value: 550, Reason: "x"}); err != ErrInvalidStateForRevision {
		t.Errorf("revise DUE: error = %v, want %v", err, ErrInvalidStateForRevision)
	}

	// paid
	if _, err := env.svc.RegisterPayment(april.ID, Payment{Method: "cash"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.ReviseUpcomingAmount(april.ID, AmountRevision{Value: 550, Reason: "x"}); err != ErrInvalidStateForRevision {
		t.Errorf("revise PAID: error = %v, want %v", err, ErrInvalidStateForRevision)
	}

	// overdue
	setNow(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))
	if _, err := env.svc.ReviseUpcomingAmount(march.ID, AmountRevision{Value: 550, Reason: "x"}); err != ErrInvalidStateForRevision {
		t.Errorf("revise OVERDUE: error = %v, want %v", err, ErrInvalidStateForRevision)
	}
}

func TestReviseUpcomingAmountAllFuture(t *testing.T) {
	setNow(t, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC))
	env := newTestEnv(t, 500)
	enr1 := env.enroll(t, NewEnrollment{AcademicYear: 2026, DueDay: 10})

	// second enrollment for the same student, next year
	enr2 := env.enroll(t, NewEnrollment{AcademicYear: 2027, DueDay: 10})

	// another student is unaffected
	other, err := env.stuRepo.CreateStudent(context.Background(), student.Student{FullName: "Bakari Juma", RegistrationNumber: "reg002"})
	if err != nil {
		t.Fatal(err)
	}
	enr3 := env.enroll(t, NewEnrollment{StudentID: other.ID, AcademicYear: 2026, DueDay: 10})

	// pay June of the first enrollment; paid installments must keep their amount
	insts, _ := env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr1.ID})
	june := insts[3]
	if _, err = env.svc.RegisterPayment(june.ID, Payment{Method: "cash"}); err != nil {
		t.Fatal(err)
	}

	may := insts[2]
	if _, err = env.svc.ReviseUpcomingAmount(may.ID, AmountRevision{Value: 600, Reason: "fee review", ApplyToAllFuture: true}); err != nil {
		t.Fatalf("ReviseUpcomingAmount() error = %v", err)
	}

	insts, _ = env.svc.QueryInstallments(&InstallmentFilter{StudentID: env.stu.ID})
	for _, inst := range insts {
		pos := YearMonth{Year: inst.Year, Month: inst.Month}
		switch {
		case inst.Status == InstallmentPaid:
			if inst.BaseAmount != 500 {
				t.Errorf("%s (paid): base = %v, want 500", inst.Period(), inst.BaseAmount)
			}
		case pos.After(YearMonth{Year: 2026, Month: 3}):
			if inst.BaseAmount != 600 {
				t.Errorf("%s: base = %v, want 600", inst.Period(), inst.BaseAmount)
			}
		default:
			if inst.BaseAmount != 500 {
				t.Errorf("%s: base = %v, want 500", inst.Period(), inst.BaseAmount)
			}
		}
	}

	// both enrollments hit, the other student untouched
	if insts, _ = env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr2.ID}); insts[0].BaseAmount != 600 {
		t.Errorf("second enrollment base = %v, want 600", insts[0].BaseAmount)
	}
	if insts, _ = env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr3.ID}); insts[3].BaseAmount != 500 {
		t.Errorf("other student base = %v, want 500", insts[3].BaseAmount)
	}
}

// fakeExec stubs the DBExecutor surface; the fake repositories never touch it.
type fakeExec struct{}

func (fakeExec) Exec(string, ...interface{}) (sql.Result, error) { return nil, nil }
func (fakeExec) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (fakeExec) Query(string, ...interface{}) (*sql.Rows, error) { return nil, nil }
func (fakeExec) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (fakeExec) QueryRow(string, ...interface{}) *sql.Row                         { return nil }
func (fakeExec) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }

type fakeTx struct {
	fakeExec
	committed  bool
	rolledBack bool
	restore    func()
}

func (tx *fakeTx) Commit() error { tx.committed = true; return nil }

func (tx *fakeTx) Rollback() error {
	tx.rolledBack = true
	tx.restore()
	return nil
}

// fakeDB snapshots the fake repositories on BeginTx and restores them on
// Rollback, so tests can assert that a failed multi-step write leaves nothing
// behind.
type fakeDB struct {
	fakeExec
	repo    *fakeRepo
	stuRepo *fakeStudentRepo
	tx      *fakeTx
}

var _ core.DB = (*fakeDB)(nil)

func (db *fakeDB) Begin() (core.DBTransactor, error) { return db.BeginTx(context.Background(), nil) }

func (db *fakeDB) BeginTx(context.Context, *sql.TxOptions) (core.DBTransactor, error) {
	enrs := make(map[string]Enrollment, len(db.repo.enrollments))
	for id, enr := range db.repo.enrollments {
		enrs[id] = enr
	}
	insts := make(map[string]Installment, len(db.repo.installments))
	for id, inst := range db.repo.installments {
		insts[id] = inst
	}
	stus := make(map[string]student.Student, len(db.stuRepo.students))
	for id, stu := range db.stuRepo.students {
		stus[id] = stu
	}
	db.tx = &fakeTx{restore: func() {
		db.repo.enrollments = enrs
		db.repo.installments = insts
		db.stuRepo.students = stus
	}}
	return db.tx, nil
}

// failingRepo fails a chosen write to drive the rollback path.
type failingRepo struct {
	*fakeRepo
	createInstallmentsErr error
}

func (r *failingRepo) CreateInstallments(ctx context.Context, insts []Installment, exec ...core.DBExecutor) ([]Installment, error) {
	if r.createInstallmentsErr != nil {
		return nil, r.createInstallmentsErr
	}
	return r.fakeRepo.CreateInstallments(ctx, insts, exec...)
}

func TestEnrollRollsBackOnFailure(t *testing.T) {
	setNow(t, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC))

	repo := newFakeRepo()
	stuRepo := newFakeStudentRepo()
	boom := errors.New("installment insert failed")
	failing := &failingRepo{fakeRepo: repo, createInstallmentsErr: boom}
	db := &fakeDB{repo: repo, stuRepo: stuRepo}
	svc := NewService(db, failing, stuRepo, new(fakeMailSvc), nil)

	stu, err := stuRepo.CreateStudent(context.Background(), student.Student{FullName: "Amina Yusuf", RegistrationNumber: "reg001"})
	if err != nil {
		t.Fatal(err)
	}
	plan, err := svc.CreatePlan(NewPlan{Name: "Primary", MonthlyAmount: 500})
	if err != nil {
		t.Fatal(err)
	}
	ne := NewEnrollment{StudentID: stu.ID, PlanID: plan.ID, AcademicYear: 2026, DueDay: 10}

	if _, err = svc.Enroll(ne); !errors.Is(err, boom) {
		t.Fatalf("Enroll() error = %v, want %v", err, boom)
	}
	if db.tx == nil {
		t.Fatal("no transaction was started")
	}
	if !db.tx.rolledBack {
		t.Error("transaction was not rolled back")
	}
	if db.tx.committed {
		t.Error("transaction was committed")
	}

	// no partial state: the enrollment row and the student's enrolled flag are gone
	if n := len(repo.enrollments); n != 0 {
		t.Errorf("%d enrollments survived the rollback", n)
	}
	if n := len(repo.installments); n != 0 {
		t.Errorf("%d installments survived the rollback", n)
	}
	got, err := stuRepo.GetStudentByID(context.Background(), stu.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Enrolled {
		t.Error("student still flagged as enrolled after rollback")
	}

	// with the fault cleared the same enrollment commits
	failing.createInstallmentsErr = nil
	if _, err = svc.Enroll(ne); err != nil {
		t.Fatalf("Enroll() after clearing fault: error = %v", err)
	}
	if !db.tx.committed {
		t.Error("transaction was not committed")
	}
	if n := len(repo.installments); n != 10 {
		t.Errorf("got %d installments, want 10", n)
	}
}

func TestPlanUpdateDoesNotTouchSnapshots(t *testing.T) {
	setNow(t, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC))
	env := newTestEnv(t, 500)
	enr := env.enroll(t, NewEnrollment{AcademicYear: 2026, DueDay: 10})

	amount := 750.0
	if _, err := env.svc.UpdatePlan(env.plan.ID, UpdatePlan{MonthlyAmount: &amount}); err != nil {
		t.Fatal(err)
	}

	enr, err := env.svc.GetEnrollmentByID(enr.ID)
	if err != nil {
		t.Fatal(err)
	}
	if enr.MonthlyAmount != 500 {
		t.Errorf("snapshot = %v, want 500", enr.MonthlyAmount)
	}
	insts, _ := env.svc.QueryInstallments(&InstallmentFilter{EnrollmentID: enr.ID})
	for _, inst := range insts[1:] {
		if inst.BaseAmount != 500 {
			t.Errorf("%s: base = %v, want 500", inst.Period(), inst.BaseAmount)
		}
	}
}

