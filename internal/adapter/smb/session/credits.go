package session

// CreditConfig bounds the credits granted per response.
type CreditConfig struct {
	MinGrant     uint16
	MaxGrant     uint16
	InitialGrant uint16
}

// DefaultCreditConfig grants what the client asks for within [1, 512].
func DefaultCreditConfig() CreditConfig {
	return CreditConfig{MinGrant: 1, MaxGrant: 512, InitialGrant: 1}
}

// Grant echoes requested, clamped to the configured bounds. A request of 0
// gets InitialGrant.
func (c CreditConfig) Grant(requested uint16) uint16 {
	if requested == 0 {
		requested = c.InitialGrant
	}
	return max(c.MinGrant, min(requested, c.MaxGrant))
}
