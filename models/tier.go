package models

import "time"

// Tier is a matchmaking bucket with a fixed stake.
type Tier struct {
	Name     string `json:"name"`
	Stake    int64  `json:"stake"`
	Currency string `json:"currency"`
}

// DefaultTiers are ordered from the lowest stake to the highest.
var DefaultTiers = []Tier{
	{Name: "rookie", Stake: 50, Currency: DefaultCurrency},
	{Name: "amateur", Stake: 100, Currency: DefaultCurrency},
	{Name: "pro", Stake: 250, Currency: DefaultCurrency},
	{Name: "master", Stake: 500, Currency: DefaultCurrency},
	{Name: "legend", Stake: 1000, Currency: DefaultCurrency},
}

// QueueEntry is one waiting player in exactly one tier's queue.
type QueueEntry struct {
	Player     Player    `json:"player"`
	Tier       string    `json:"tier"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
