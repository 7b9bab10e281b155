package models

import "github.com/google/uuid"

// assignID fills an empty primary key so inserts work on SQLite as well as Postgres.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model, in dependency order, for AutoMigrate in tests and dev.
func All() []any {
	return []any{
		&WebhookReceipt{},
		&Reference{},
		&Order{},
		&PaymentTransaction{},
	}
}

