package engine

// Quirks switches between the historical behaviour of a few commands and
// the conventional one. The zero value is the conventional behaviour;
// DefaultQuirks returns the historical one.
type Quirks struct {
	// IncrMissingReturnsZero makes INCR/DECR on an absent key reply 0
	// without creating the key. Otherwise the key starts from 0.
	IncrMissingReturnsZero bool `koanf:"incr_missing_returns_zero"`

	// ZeroIsNotInteger makes INCR/DECR reject a stored "0".
	ZeroIsNotInteger bool `koanf:"zero_is_not_integer"`

	// ZeroExpireIsInvalid makes EXPIRE reject a seconds value of 0.
	// Otherwise EXPIRE k 0 removes the key at once.
	ZeroExpireIsInvalid bool `koanf:"zero_expire_is_invalid"`

	// SetKeepsTTL makes SET leave an existing TTL in place.
	SetKeepsTTL bool `koanf:"set_keeps_ttl"`
}

// DefaultQuirks returns the historical behaviour.
func DefaultQuirks() Quirks {
	return Quirks{
		IncrMissingReturnsZero: true,
		ZeroIsNotInteger:       true,
		ZeroExpireIsInvalid:    true,
		SetKeepsTTL:            true,
	}
}
