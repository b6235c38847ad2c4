package model

import "time"

// Vacancy is one normalized listing. Salary fields are nil when the source
// did not report them.
type Vacancy struct {
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	SalaryFrom     *int64    `json:"salary_from"`
	SalaryTo       *int64    `json:"salary_to"`
	SalaryCurrency *string   `json:"salary_currency"`
	SalaryGross    *bool     `json:"salary_gross"`
	RetrievedAt    time.Time `json:"retrieved_at"`
}

func (v Vacancy) HasSalary() bool {
	return v.SalaryFrom != nil || v.SalaryTo != nil
}

// Currency returns the salary currency or "" when unknown.
func (v Vacancy) Currency() string {
	if v.SalaryCurrency == nil {
		return ""
	}
	return *v.SalaryCurrency
}
