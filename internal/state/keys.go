// Package state provides typed records on top of a storage.Txn: singleton
// items, counters, role ownership and the owner-indexed token map.
package state

import (
	"encoding/binary"
	"fmt"
)

// Namespaces of the persisted layout. Stable across migrations.
const (
	NamespaceConfig         = "cu_config"
	NamespaceCollectionInfo = "cw721_collection_info"
	NamespaceNumTokens      = "num_tokens"
	NamespaceTokens         = "tokens"
	NamespaceTokensByOwner  = "tokens__owner"
	NamespaceMinter         = "collection_minter"
	NamespaceCreator        = "ownership"
	NamespaceContractInfo   = "contract_info"
)

// lengthPrefixed returns len16(b) || b.
func lengthPrefixed(b []byte) []byte {
	if len(b) > 0xffff {
		panic(fmt.Sprintf("state: key component too long (%d bytes)", len(b)))
	}
	out := make([]byte, 2, 2+len(b))
	binary.BigEndian.PutUint16(out, uint16(len(b)))
	return append(out, b...)
}

// mapPrefix is the key prefix shared by every entry of a map namespace.
func mapPrefix(namespace string) []byte {
	return lengthPrefixed([]byte(namespace))
}

// mapKey builds a map entry key: every component except the last is length
// prefixed, the last one is appended raw so that entries sort by it.
func mapKey(namespace string, parts ...string) []byte {
	key := mapPrefix(namespace)
	for i, p := range parts {
		if i == len(parts)-1 {
			key = append(key, p...)
			break
		}
		key = append(key, lengthPrefixed([]byte(p))...)
	}
	return key
}

// startAfter returns the smallest key strictly greater than prefix||cursor,
// or the prefix itself when no cursor is set.
func startAfter(prefix []byte, cursor string) []byte {
	if cursor == "" {
		return prefix
	}
	start := make([]byte, 0, len(prefix)+len(cursor)+1)
	start = append(start, prefix...)
	start = append(start, cursor...)
	return append(start, 0x00)
}
