// Package inmemdb provides in-memory repositories for tests and local dev.
package inmemdb

import (
	"sync"

	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/billing"
	"github.com/trezcool/shule/core/expense"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type DB struct {
	mutex sync.RWMutex

	users        map[string]*user.User
	students     map[string]*student.Student
	guardians    map[string]*student.Guardian
	classes      map[string]*academic.SchoolClass
	grades       map[string]*academic.Grade
	plans        map[string]*billing.Plan
	enrollments  map[string]*billing.Enrollment
	installments map[string]*billing.Installment
	expenses     map[string]*expense.Expense
}

func NewDB() *DB {
	return &DB{
		users:        make(map[string]*user.User),
		students:     make(map[string]*student.Student),
		guardians:    make(map[string]*student.Guardian),
		classes:      make(map[string]*academic.SchoolClass),
		grades:       make(map[string]*academic.Grade),
		plans:        make(map[string]*billing.Plan),
		enrollments:  make(map[string]*billing.Enrollment),
		installments: make(map[string]*billing.Installment),
		expenses:     make(map[string]*expense.Expense),
	}
}
