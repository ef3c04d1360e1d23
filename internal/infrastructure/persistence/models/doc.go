// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: BaseModel and AggregateModel shared by every table
// - invoicing.go: customers, invoices, invoice line items and payments
// - idempotency.go: idempotency reservations for payment recording
// - outbox.go: outbox pattern model for event delivery
package models
