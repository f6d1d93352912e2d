package config

import (
	"fmt"

	"github.com/roach88/worldpurpose/internal/ledger"
)

const (
	UnitsEther = "ether"
	UnitsWei   = "wei"
)

// ParseAmount reads a user-typed amount in the configured units.
func (c Config) ParseAmount(s string) (ledger.Amount, error) {
	switch c.Units {
	case UnitsWei:
		return ledger.ParseWei(s)
	case UnitsEther, "":
		return ledger.ParseEther(s)
	default:
		return ledger.Amount{}, fmt.Errorf("unknown units %q", c.Units)
	}
}

// FormatAmount renders a in the configured units.
func (c Config) FormatAmount(a ledger.Amount) string {
	if c.Units == UnitsWei {
		return a.String()
	}
	return a.Ether()
}
