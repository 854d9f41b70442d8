package loyalty

import (
	"fmt"
	"strings"
	"time"
)

type Tier string

const (
	TierNone Tier = "none"
	Tier1    Tier = "tier1"
	Tier2    Tier = "tier2"
	Tier3    Tier = "tier3"
)

// MemberTiers lists the tiers that redeem and earn loyalty units.
var MemberTiers = []Tier{Tier1, Tier2, Tier3}

func (t Tier) Valid() bool {
	switch t {
	case TierNone, Tier1, Tier2, Tier3:
		return true
	}
	return false
}

func (t Tier) IsMember() bool {
	return t == Tier1 || t == Tier2 || t == Tier3
}

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return TierNone, nil
	}
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
	return t, nil
}

// Account is the per-customer loyalty balance. Version is the optimistic
// concurrency token bumped by every balance or tier change.
type Account struct {
	CustomerID uint      `json:"customerId"`
	Balance    int64     `json:"balance"`
	Tier       Tier      `json:"tier"`
	Version    int64     `json:"version"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type EntryKind string

const (
	EntryCredit EntryKind = "credit"
	EntryDebit  EntryKind = "debit"
)

// Entry is an immutable audit row written with every balance change.
type Entry struct {
	ID           int64     `json:"id"`
	CustomerID   uint      `json:"customerId"`
	Kind         EntryKind `json:"kind"`
	Units        int64     `json:"units"`
	BalanceAfter int64     `json:"balanceAfter"`
	Reference    string    `json:"reference"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Memo describes why a mutation happened, usually an order reference.
type Memo struct {
	Reference string
	Reason    string
}
