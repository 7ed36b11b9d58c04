// Package accounts supplies pool account identifiers. Identifiers are
// opaque strings (account names, crypto addresses) owned by an external
// system; the engine only threads them through.
package accounts

// Static returns fixed account identifiers. Suitable for single-pool
// deployments and tests; a production deployment substitutes a provider
// backed by its account system.
type Static struct {
	Pool    string
	Manager string
}

// NewStatic creates a provider with the given identifiers.
func NewStatic(pool, manager string) Static {
	return Static{Pool: pool, Manager: manager}
}

// Default returns the reference deployment's addresses.
func Default() Static {
	return Static{
		Pool:    "Pool_Account_Address",
		Manager: "Pool_Manager_Address",
	}
}

func (s Static) PoolAccount() string { return s.Pool }

func (s Static) PoolManagerAccount() string { return s.Manager }
