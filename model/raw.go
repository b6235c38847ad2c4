package model

import (
	"encoding/json"
	"time"
)

type RawVacancy struct {
	Source    string          `json:"source"`
	Page      int             `json:"page"`
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
}
