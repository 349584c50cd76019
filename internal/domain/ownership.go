package domain

import "time"

// Ownership is the state of a single role registry (minter or creator).
// Owner is nil until the role is initialized. The pending fields belong to
// the two-step transfer protocol, which runs outside this service.
type Ownership struct {
	Owner         *string    `json:"owner"          msgpack:"owner"`
	PendingOwner  *string    `json:"pending_owner"  msgpack:"pending_owner"`
	PendingExpiry *time.Time `json:"pending_expiry" msgpack:"pending_expiry"`
}

// IsOwner reports whether addr is the current owner.
func (o Ownership) IsOwner(addr string) bool {
	return o.Owner != nil && *o.Owner == addr
}
