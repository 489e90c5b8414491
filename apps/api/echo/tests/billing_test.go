package tests

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/trezcool/shule/core/billing"
	"github.com/trezcool/shule/core/user"
)

func Test_billingApi_enrollmentLifecycle(t *testing.T) {
	app := setup(t)
	setNow(t, time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC))

	finance := createUser(t, "Finance", "finance", "finance@test.cd", "", []string{user.RoleStaffFinance}, true)
	teacher := createUser(t, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	financeToken := getToken(t, finance)

	stu := createStudent(t, "Amina Juma", "std001")

	// plan creation is restricted to finance staff
	req, rec := newAuthRequest(http.MethodPost, "/v1/plans", getToken(t, teacher), []byte(`{"name": "Standard", "monthly_amount": 500}`))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)

	req, rec = newAuthRequest(http.MethodPost, "/v1/plans", financeToken, []byte(`{"name": "Standard", "monthly_amount": 500}`))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("creating plan: code = %v; body %s", rec.Code, rec.Body.String())
	}
	var plan billing.Plan
	decodeBody(t, rec, &plan)

	// enroll
	enrollBody := []byte(fmt.Sprintf(
		`{"student_id": %q, "plan_id": %q, "academic_year": 2026, "enrollment_fee": 100, "due_day": 5}`,
		stu.ID, plan.ID,
	))
	req, rec = newAuthRequest(http.MethodPost, "/v1/enrollments", financeToken, enrollBody)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("enrolling: code = %v; body %s", rec.Code, rec.Body.String())
	}
	var enr billing.Enrollment
	decodeBody(t, rec, &enr)
	if enr.MonthlyAmount != 500 {
		t.Errorf("MonthlyAmount = %v; want 500", enr.MonthlyAmount)
	}
	if enr.StudentName != "Amina Juma" {
		t.Errorf("StudentName = %q; want %q", enr.StudentName, "Amina Juma")
	}

	// a second active enrollment for the same year is rejected
	req, rec = newAuthRequest(http.MethodPost, "/v1/enrollments", financeToken, enrollBody)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, httpErr{Error: "student already has an active enrollment for 2026"}),
	}, rec)

	// schedule runs from the current month through December
	req, rec = newAuthRequest(http.MethodGet, "/v1/installments?enrollment_id="+enr.ID, financeToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("querying installments: code = %v; body %s", rec.Code, rec.Body.String())
	}
	var installments []billing.Installment
	decodeBody(t, rec, &installments)
	if len(installments) != 10 {
		t.Fatalf("got %d installments; want 10", len(installments))
	}
	if first := installments[0]; first.Month != 3 || first.BaseAmount != 400 {
		// the enrollment fee is absorbed into the first installment
		t.Errorf("first installment = %02d/%d amount %v; want 03/2026 amount 400", first.Month, first.Year, first.BaseAmount)
	}
	if last := installments[len(installments)-1]; last.Month != 12 || last.BaseAmount != 500 {
		t.Errorf("last installment = %02d/%d amount %v; want 12/2026 amount 500", last.Month, last.Year, last.BaseAmount)
	}

	// register a payment with a discount
	first, future := installments[0], installments[len(installments)-1]
	payBody := []byte(`{"payment_method": "cash", "discount": {"type": "fixed", "value": 50, "reason": "sibling discount"}}`)
	req, rec = newAuthRequest(http.MethodPost, "/v1/installments/"+first.ID+"/payment", financeToken, payBody)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("registering payment: code = %v; body %s", rec.Code, rec.Body.String())
	}
	var paid billing.Installment
	decodeBody(t, rec, &paid)
	if paid.Status != billing.InstallmentPaid {
		t.Errorf("Status = %q; want %q", paid.Status, billing.InstallmentPaid)
	}
	if paid.PaidAmount.Float64 != 350 {
		t.Errorf("PaidAmount = %v; want 350", paid.PaidAmount.Float64)
	}

	// paying twice is rejected
	req, rec = newAuthRequest(http.MethodPost, "/v1/installments/"+first.ID+"/payment", financeToken, []byte(`{"payment_method": "cash"}`))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, httpErr{Error: "installment is already paid"}),
	}, rec)

	// a discount without a reason is rejected
	req, rec = newAuthRequest(http.MethodPost, "/v1/installments/"+future.ID+"/payment", financeToken,
		[]byte(`{"payment_method": "cash", "discount": {"type": "fixed", "value": 50}}`))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("payment without reason: code = %v; want 400; body %s", rec.Code, rec.Body.String())
	}

	// upcoming installments can be revised, paid ones cannot
	revBody := []byte(`{"value": 450, "reason": "hardship"}`)
	req, rec = newAuthRequest(http.MethodPut, "/v1/installments/"+future.ID+"/amount", financeToken, revBody)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("revising amount: code = %v; body %s", rec.Code, rec.Body.String())
	}
	var revised billing.Installment
	decodeBody(t, rec, &revised)
	if revised.BaseAmount != 450 {
		t.Errorf("BaseAmount = %v; want 450", revised.BaseAmount)
	}

	req, rec = newAuthRequest(http.MethodPut, "/v1/installments/"+first.ID+"/amount", financeToken, revBody)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, httpErr{Error: "only upcoming installments can be revised"}),
	}, rec)

	// cancelling keeps due installments and drops future ones
	req, rec = newAuthRequest(http.MethodDelete, "/v1/enrollments/"+enr.ID, financeToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancelling enrollment: code = %v; body %s", rec.Code, rec.Body.String())
	}
	var cancelled billing.Enrollment
	decodeBody(t, rec, &cancelled)
	if cancelled.Status != billing.EnrollmentCancelled {
		t.Errorf("Status = %q; want %q", cancelled.Status, billing.EnrollmentCancelled)
	}

	req, rec = newAuthRequest(http.MethodGet, "/v1/installments?enrollment_id="+enr.ID+"&status="+billing.InstallmentCancelled, financeToken)
	app.ServeHTTP(rec, req)
	var dropped []billing.Installment
	decodeBody(t, rec, &dropped)
	if len(dropped) != 9 {
		// March is paid, April through December are strictly in the future
		t.Errorf("got %d cancelled installments; want 9", len(dropped))
	}
}

func Test_billingApi_authRequired(t *testing.T) {
	app := setup(t)

	for _, path := range []string{"/v1/plans", "/v1/enrollments", "/v1/installments"} {
		req, rec := newRequest(http.MethodGet, path)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	}
}
