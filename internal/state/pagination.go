package state

// Page size bounds for range queries.
const (
	DefaultLimit uint32 = 10
	MaxLimit     uint32 = 1000
)

// ClampLimit maps an unset limit to DefaultLimit and caps it at MaxLimit.
func ClampLimit(limit uint32) int {
	switch {
	case limit == 0:
		return int(DefaultLimit)
	case limit > MaxLimit:
		return int(MaxLimit)
	default:
		return int(limit)
	}
}
