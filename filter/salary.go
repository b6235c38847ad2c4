package filter

import "hhscan/model"

// PassesSalary reports whether either salary bound reaches min. A vacancy
// without any bound never passes.
func PassesSalary(v model.Vacancy, min int64) bool {
	if v.SalaryFrom != nil && *v.SalaryFrom >= min {
		return true
	}
	return v.SalaryTo != nil && *v.SalaryTo >= min
}

// BySalary keeps the vacancies passing PassesSalary, preserving order.
func BySalary(vacancies []model.Vacancy, min int64) []model.Vacancy {
	out := make([]model.Vacancy, 0, len(vacancies))
	for _, v := range vacancies {
		if PassesSalary(v, min) {
			out = append(out, v)
		}
	}
	return out
}
