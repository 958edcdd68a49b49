package account

import (
	"errors"
	"time"
)

// Status tracks an account through its provisioning lifecycle.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Account is a tenant: a named space that users hold rights on.
type Account struct {
	ID         int64
	Name       string
	Subdomain  string
	OrgName    string
	Department string
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

var (
	// ErrNotFound indicates the account does not exist.
	ErrNotFound = errors.New("account: not found")
	// ErrSubdomainTaken indicates the subdomain is already in use.
	ErrSubdomainTaken = errors.New("account: subdomain already exists")
)
