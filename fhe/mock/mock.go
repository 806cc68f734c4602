// Package mock is a plaintext Backend for the fhe Runtime. Values are kept in
// clear in memory, it only exists to run the engine quickly in tests and
// development setups. It offers no confidentiality at all.
package mock

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/vocdoni/skillrating/fhe"
	"github.com/vocdoni/skillrating/types"
	"go.vocdoni.io/dvote/util"
)

// Scheme is the name reported in the public parameters.
const Scheme = "mock"

// Backend stores plaintext values indexed by random handles.
type Backend struct {
	mu     sync.RWMutex
	values map[types.Handle]uint64
}

var _ fhe.Backend = (*Backend)(nil)

// New returns an empty mock backend.
func New() *Backend {
	return &Backend{values: make(map[types.Handle]uint64)}
}

func (b *Backend) store(v uint64) types.Handle {
	var h types.Handle
	copy(h[:], util.RandomBytes(types.HandleLen))
	b.mu.Lock()
	b.values[h] = v
	b.mu.Unlock()
	return h
}

func (b *Backend) get(h types.Handle) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[h]
	if !ok {
		return 0, fmt.Errorf("%w: %s", fhe.ErrUnknownHandle, h)
	}
	return v, nil
}

// Import accepts the 8 byte big-endian encoding produced by Encryptor.
func (b *Backend) Import(ciphertext []byte) (types.Handle, error) {
	if len(ciphertext) != 8 {
		return types.Handle{}, fmt.Errorf("mock ciphertext must be 8 bytes, got %d", len(ciphertext))
	}
	return b.store(binary.BigEndian.Uint64(ciphertext)), nil
}

func (b *Backend) Has(h types.Handle) bool {
	_, err := b.get(h)
	return err == nil
}

func (b *Backend) Constant(v uint64) (types.Handle, error) {
	return b.store(v), nil
}

func (b *Backend) Add(x, y types.Handle) (types.Handle, error) {
	return b.binary(x, y, func(a, c uint64) uint64 { return a + c })
}

func (b *Backend) Mul(x, y types.Handle) (types.Handle, error) {
	return b.binary(x, y, func(a, c uint64) uint64 { return a * c })
}

func (b *Backend) binary(x, y types.Handle, op func(a, c uint64) uint64) (types.Handle, error) {
	vx, err := b.get(x)
	if err != nil {
		return types.Handle{}, err
	}
	vy, err := b.get(y)
	if err != nil {
		return types.Handle{}, err
	}
	return b.store(op(vx, vy)), nil
}

func (b *Backend) Sum(hs []types.Handle) (types.Handle, error) {
	var sum uint64
	for _, h := range hs {
		v, err := b.get(h)
		if err != nil {
			return types.Handle{}, err
		}
		sum += v
	}
	return b.store(sum), nil
}

func (b *Backend) Dot(x, y []types.Handle) (types.Handle, error) {
	if len(x) != len(y) {
		return types.Handle{}, fmt.Errorf("dot product of %d and %d values", len(x), len(y))
	}
	var sum uint64
	for i := range x {
		vx, err := b.get(x[i])
		if err != nil {
			return types.Handle{}, err
		}
		vy, err := b.get(y[i])
		if err != nil {
			return types.Handle{}, err
		}
		sum += vx * vy
	}
	return b.store(sum), nil
}

func (b *Backend) Delete(h types.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.values[h]; !ok {
		return fmt.Errorf("%w: %s", fhe.ErrUnknownHandle, h)
	}
	delete(b.values, h)
	return nil
}

// Len returns the number of stored values.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.values)
}

func (b *Backend) Decrypt(h types.Handle) (uint64, error) {
	return b.get(h)
}

func (*Backend) PublicParams() *fhe.PublicParams {
	return &fhe.PublicParams{Scheme: Scheme}
}

// Encryptor "encrypts" values for the mock backend.
type Encryptor struct{}

var _ fhe.Encryptor = Encryptor{}

func (Encryptor) Encrypt(v uint64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, v), nil
}
