// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package testrand

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"metatree.io/metatree/pkg/metatree"
)

// Read fills data with pseudo-random bytes.
func Read(data []byte) {
	src := rand.NewSource(rand.Int63())
	r := rand.New(src)
	_, _ = r.Read(data)
}

// BytesN generates n bytes of random data.
func BytesN(n int) []byte {
	data := make([]byte, n)
	Read(data)
	return data
}

// Intn returns a non-negative pseudo-random int in [0,n).
func Intn(n int) int {
	return rand.Intn(n)
}

// UUID creates a random dataset identifier.
func UUID() uuid.UUID {
	var id uuid.UUID
	Read(id[:])
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}

// Version creates a random dataset version token.
func Version() string {
	return fmt.Sprintf("%x", BytesN(20))
}

// Metadata creates a random extracted-metadata payload.
func Metadata() json.RawMessage {
	payload, _ := json.Marshal(map[string]interface{}{
		"comment": fmt.Sprintf("generated-%d", rand.Int31()),
		"size":    rand.Intn(1 << 20),
	})
	return payload
}

// Ref creates a random object reference. The referenced content does
// not exist, which makes it useful for dangling-reference tests.
func Ref() metatree.ObjectRef {
	var ref metatree.ObjectRef
	Read(ref[:])
	return ref
}
