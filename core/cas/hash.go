package cas

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// HashFunc maps a salt and a payload to a record id.
type HashFunc func(salt uint32, payload []byte) int64

// recordDomainKey is the BLAKE3 key for record ids. Changing it changes
// the id of every payload, so existing rows would no longer deduplicate.
var recordDomainKey = [32]byte{
	's', 'r', 'm', 'g', 'a', 't', 'e', '.', 'i', 'd', 'e', 'n', 't', 'i', 't', 'y',
	'.', 'r', 'e', 'c', 'o', 'r', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// KeyedHash returns the id for payload under salt. The salt is hashed
// ahead of the payload so every salt gives an independent id.
func KeyedHash(salt uint32, payload []byte) int64 {
	hasher, err := blake3.NewKeyed(recordDomainKey[:])
	if err != nil {
		panic("cas: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], salt)
	hasher.Write(prefix[:])
	hasher.Write(payload)

	sum := hasher.Sum(nil)
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
