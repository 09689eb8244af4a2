package models

import "time"

// Balance - остаток по одной валюте на подключении в момент синхронизации.
// Upsert по ключу (user_id, connection_id, currency).
type Balance struct {
	ID           int       `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	ConnectionID int       `json:"connection_id" db:"connection_id"`
	Currency     string    `json:"currency" db:"currency"`
	Total        float64   `json:"total" db:"total"`
	Available    float64   `json:"available" db:"available"`
	SyncedAt     time.Time `json:"synced_at" db:"synced_at"`
}
