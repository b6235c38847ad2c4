package aggregate

import (
	"sort"

	"hhscan/model"
)

const unknownCurrency = "unknown"

type CurrencySummary struct {
	Currency     string `json:"currency"`
	Vacancies    int    `json:"vacancies"`
	Gross        int    `json:"gross"`
	MinFrom      *int64 `json:"min_from,omitempty"`
	MaxTo        *int64 `json:"max_to,omitempty"`
	MaxMentioned int64  `json:"max_mentioned"`
}

type CurrencyAggregator struct {
	summaries map[string]*CurrencySummary
}

func NewCurrencyAggregator() *CurrencyAggregator {
	return &CurrencyAggregator{
		summaries: map[string]*CurrencySummary{},
	}
}

func (a *CurrencyAggregator) AddAll(vacancies []model.Vacancy) {
	for _, v := range vacancies {
		a.Add(v)
	}
}

func (a *CurrencyAggregator) Add(v model.Vacancy) {
	if a == nil {
		return
	}
	currency := v.Currency()
	if currency == "" {
		currency = unknownCurrency
	}
	summary, ok := a.summaries[currency]
	if !ok {
		summary = &CurrencySummary{Currency: currency}
		a.summaries[currency] = summary
	}

	summary.Vacancies++
	if v.SalaryGross != nil && *v.SalaryGross {
		summary.Gross++
	}
	if v.SalaryFrom != nil {
		if summary.MinFrom == nil || *v.SalaryFrom < *summary.MinFrom {
			from := *v.SalaryFrom
			summary.MinFrom = &from
		}
		summary.MaxMentioned = max(summary.MaxMentioned, *v.SalaryFrom)
	}
	if v.SalaryTo != nil {
		if summary.MaxTo == nil || *v.SalaryTo > *summary.MaxTo {
			to := *v.SalaryTo
			summary.MaxTo = &to
		}
		summary.MaxMentioned = max(summary.MaxMentioned, *v.SalaryTo)
	}
}

// Results returns the summaries ordered by vacancy count, then currency code.
func (a *CurrencyAggregator) Results() []CurrencySummary {
	if a == nil {
		return nil
	}
	out := make([]CurrencySummary, 0, len(a.summaries))
	for _, summary := range a.summaries {
		out = append(out, *summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Vacancies == out[j].Vacancies {
			return out[i].Currency < out[j].Currency
		}
		return out[i].Vacancies > out[j].Vacancies
	})
	return out
}
