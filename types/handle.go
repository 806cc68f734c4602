package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HandleLen is the size in bytes of a confidential value handle.
const HandleLen = 32

// Handle is an opaque reference to a confidential value held by the
// confidential-value runtime. The zero handle references nothing.
type Handle [HandleLen]byte

// IsZero reports whether the handle is the empty reference.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

func (h Handle) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// Bytes returns a copy of the handle as a byte slice.
func (h Handle) Bytes() []byte {
	return append([]byte(nil), h[:]...)
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Handle) UnmarshalText(text []byte) error {
	parsed, err := HandleFromHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HandleFromHex parses a hex encoded handle, the 0x prefix is optional.
func HandleFromHex(s string) (Handle, error) {
	var h Handle
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return h, fmt.Errorf("invalid handle: %w", err)
	}
	if len(b) != HandleLen {
		return h, fmt.Errorf("invalid handle length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// HandleFromBytes builds a handle from a byte slice of exactly HandleLen bytes.
func HandleFromBytes(b []byte) (Handle, error) {
	var h Handle
	if len(b) != HandleLen {
		return h, fmt.Errorf("invalid handle length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// DimensionHandles holds one handle per rating dimension, in Dimensions order.
type DimensionHandles [NumDimensions]Handle

// HasZero reports whether any of the handles is empty.
func (d DimensionHandles) HasZero() bool {
	for _, h := range d {
		if h.IsZero() {
			return true
		}
	}
	return false
}

// Slice returns the handles as a slice.
func (d DimensionHandles) Slice() []Handle {
	return append([]Handle(nil), d[:]...)
}

// DimensionHandlesFromSlice converts a slice of exactly NumDimensions handles.
func DimensionHandlesFromSlice(hs []Handle) (DimensionHandles, error) {
	var d DimensionHandles
	if len(hs) != NumDimensions {
		return d, fmt.Errorf("expected %d handles, got %d", NumDimensions, len(hs))
	}
	copy(d[:], hs)
	return d, nil
}
