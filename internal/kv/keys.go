package kv

import "bytes"

// Key layout. These two prefixes are the only promised on-disk contract:
//
//	meta/<collection_id>              -> collection metadata JSON
//	coll/<collection_id>/<record_id>  -> serialized record bytes
//
// Collection IDs are fixed-width UUID strings, so every collection owns a
// fixed-width, disjoint key range under coll/.
const (
	metaPrefix = "meta/"
	collPrefix = "coll/"
	keySep     = "/"
)

// MetaKey returns the metadata key for a collection.
func MetaKey(collectionID string) []byte {
	return []byte(metaPrefix + collectionID)
}

// MetaPrefix returns the prefix covering all collection metadata keys.
func MetaPrefix() []byte {
	return []byte(metaPrefix)
}

// RecordKey returns the storage key for a record within a collection.
func RecordKey(collectionID, recordID string) []byte {
	return []byte(collPrefix + collectionID + keySep + recordID)
}

// CollectionPrefix returns the prefix covering all records of a collection.
func CollectionPrefix(collectionID string) []byte {
	return []byte(collPrefix + collectionID + keySep)
}

// PrefixSuccessor returns the smallest key greater than every key with the
// given prefix, for backends that express prefix scans as key ranges.
// ok is false when no such bound exists (prefix is empty or all 0xFF).
func PrefixSuccessor(prefix []byte) (succ []byte, ok bool) {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xFF {
			succ = make([]byte, i+1)
			copy(succ, prefix[:i+1])
			succ[i]++
			return succ, true
		}
	}
	return nil, false
}

// SplitMetaKey extracts the collection ID from a metadata key.
func SplitMetaKey(key []byte) (collectionID string, ok bool) {
	if !bytes.HasPrefix(key, []byte(metaPrefix)) {
		return "", false
	}
	id := string(key[len(metaPrefix):])
	if id == "" {
		return "", false
	}
	return id, true
}
