package models

// RateLimitCounter is the single persisted quota record.
type RateLimitCounter struct {
	Date  string `json:"date" firestore:"date" redis:"date"`
	Count int    `json:"count" firestore:"count" redis:"count"`
}

// RateLimitStats is the read-only view of today's quota.
type RateLimitStats struct {
	Date      string `json:"date"`
	Count     int    `json:"count"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}
