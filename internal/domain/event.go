package domain

// Attribute is a key/value pair attached to a response or event.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event is a named, attributed record of something a mutation did.
type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// Attr returns the value of the first attribute with the given key.
func (e Event) Attr(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// AuditEvent is an Event as persisted by the audit log.
// Corresponds to the token_events table in ClickHouse.
type AuditEvent struct {
	EventID    string            `json:"event_id"`             // deterministic hash, see idhash.ComputeEventID
	Type       string            `json:"type"`                 // e.g. consumption-unit::mint
	TokenID    string            `json:"token_id,omitempty"`   // empty for collection-level events
	Sender     string            `json:"sender"`               // authenticated caller
	Attributes map[string]string `json:"attributes,omitempty"` // event attributes
	Index      int               `json:"index"`                // position within the invocation's event list
	Timestamp  int64             `json:"timestamp"`            // invocation time (ms)
}
