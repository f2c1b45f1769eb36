package core

// KeyClass is the security classification of a storage key.
// Classification is derived from the key name alone and never depends
// on the stored value or call time.
type KeyClass int

const (
	// ClassOrdinary keys carry no confidentiality requirement.
	ClassOrdinary KeyClass = iota

	// ClassSensitive keys are confidential and prefer the secure
	// tier, with a permissive fallback to the general tier.
	ClassSensitive

	// ClassCredential is the single auth-token key, subject to the
	// strictest secure-only policy.
	ClassCredential
)

// String returns a human-readable name for the key class.
func (c KeyClass) String() string {
	switch c {
	case ClassOrdinary:
		return "ordinary"
	case ClassSensitive:
		return "sensitive"
	case ClassCredential:
		return "credential"
	default:
		return "unknown"
	}
}

// Tier identifies one of the two storage backends.
type Tier int

const (
	// TierSecure is the hardware-backed encrypted store.
	TierSecure Tier = iota

	// TierGeneral is the ordinary unencrypted persistent store.
	TierGeneral
)

// String returns a human-readable name for the tier.
func (t Tier) String() string {
	switch t {
	case TierSecure:
		return "secure"
	case TierGeneral:
		return "general"
	default:
		return "unknown"
	}
}
