// Package bgv is the lattigo BGV Backend of the fhe Runtime. Each value is a
// ciphertext whose first slot holds the plaintext, stored in the database
// under the keccak hash of its serialization. Keys are generated on first use
// and persisted next to the ciphertexts.
package bgv

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	lbgv "github.com/tuneinsight/lattigo/v6/schemes/bgv"
	"github.com/vocdoni/skillrating/crypto/ethereum"
	"github.com/vocdoni/skillrating/fhe"
	"github.com/vocdoni/skillrating/log"
	"github.com/vocdoni/skillrating/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Scheme is the name reported in the public parameters.
const Scheme = "bgv"

// DefaultParameters fit one relinearized multiplication on top of additions
// with plenty of headroom. The plaintext modulus is NTT friendly and far
// above the largest weighted total (ratings x 10 x 100).
var DefaultParameters = lbgv.ParametersLiteral{
	LogN:             13,
	LogQ:             []int{54, 54, 54},
	LogP:             []int{55},
	PlaintextModulus: 0x3ee0001,
}

var (
	dbPrefix       = []byte("bgv/")
	keysPrefix     = []byte("k/")
	cipherPrefix   = []byte("c/")
	secretKeyKey   = []byte("sk")
	publicKeyKey   = []byte("pk")
	relinKeyKey    = []byte("rlk")
	errInvalidCt   = errors.New("invalid ciphertext")
	errNotAVector  = errors.New("ciphertext ring degree mismatch")
	errBadCtDegree = errors.New("ciphertext degree must be 1")
)

// Backend implements fhe.Backend with lattigo BGV. The lattigo encoder,
// encryptor, decryptor and evaluator hold buffers and are not safe for
// concurrent use, mu serializes them.
type Backend struct {
	db     db.Database
	params lbgv.Parameters
	pk     *rlwe.PublicKey

	mu        sync.Mutex
	encoder   *lbgv.Encoder
	encryptor *rlwe.Encryptor
	decryptor *rlwe.Decryptor
	eval      *lbgv.Evaluator
}

var _ fhe.Backend = (*Backend)(nil)

// New loads the key material from the database, generating and storing it
// on first use.
func New(database db.Database) (*Backend, error) {
	params, err := lbgv.NewParametersFromLiteral(DefaultParameters)
	if err != nil {
		return nil, fmt.Errorf("bgv parameters: %w", err)
	}
	b := &Backend{
		db:     prefixeddb.NewPrefixedDatabase(database, dbPrefix),
		params: params,
	}
	sk, pk, rlk, err := b.loadKeys()
	if err != nil {
		return nil, err
	}
	b.pk = pk
	b.encoder = lbgv.NewEncoder(params)
	b.encryptor = rlwe.NewEncryptor(params, pk)
	b.decryptor = rlwe.NewDecryptor(params, sk)
	b.eval = lbgv.NewEvaluator(params, rlwe.NewMemEvaluationKeySet(rlk))
	return b, nil
}

func (b *Backend) loadKeys() (*rlwe.SecretKey, *rlwe.PublicKey, *rlwe.RelinearizationKey, error) {
	rd := prefixeddb.NewPrefixedReader(b.db, keysPrefix)
	skBytes, err := rd.Get(secretKeyKey)
	if errors.Is(err, db.ErrKeyNotFound) {
		return b.generateKeys()
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read secret key: %w", err)
	}
	pkBytes, err := rd.Get(publicKeyKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read public key: %w", err)
	}
	rlkBytes, err := rd.Get(relinKeyKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read relinearization key: %w", err)
	}
	sk, pk, rlk := new(rlwe.SecretKey), new(rlwe.PublicKey), new(rlwe.RelinearizationKey)
	if err := sk.UnmarshalBinary(skBytes); err != nil {
		return nil, nil, nil, fmt.Errorf("decode secret key: %w", err)
	}
	if err := pk.UnmarshalBinary(pkBytes); err != nil {
		return nil, nil, nil, fmt.Errorf("decode public key: %w", err)
	}
	if err := rlk.UnmarshalBinary(rlkBytes); err != nil {
		return nil, nil, nil, fmt.Errorf("decode relinearization key: %w", err)
	}
	log.Debugw("bgv keys loaded")
	return sk, pk, rlk, nil
}

func (b *Backend) generateKeys() (*rlwe.SecretKey, *rlwe.PublicKey, *rlwe.RelinearizationKey, error) {
	kgen := rlwe.NewKeyGenerator(b.params)
	sk := kgen.GenSecretKeyNew()
	pk := kgen.GenPublicKeyNew(sk)
	rlk := kgen.GenRelinearizationKeyNew(sk)

	wTx := prefixeddb.NewPrefixedWriteTx(b.db.WriteTx(), keysPrefix)
	defer wTx.Discard()
	for _, kv := range []struct {
		key []byte
		obj interface{ MarshalBinary() ([]byte, error) }
	}{{secretKeyKey, sk}, {publicKeyKey, pk}, {relinKeyKey, rlk}} {
		data, err := kv.obj.MarshalBinary()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encode %s: %w", kv.key, err)
		}
		if err := wTx.Set(kv.key, data); err != nil {
			return nil, nil, nil, err
		}
	}
	if err := wTx.Commit(); err != nil {
		return nil, nil, nil, fmt.Errorf("store keys: %w", err)
	}
	log.Infow("bgv keys generated", "logN", b.params.LogN(), "plaintextModulus", b.params.PlaintextModulus())
	return sk, pk, rlk, nil
}

// PublicParams returns the serialized parameters and public key.
func (b *Backend) PublicParams() *fhe.PublicParams {
	params, err := b.params.MarshalBinary()
	if err != nil {
		log.Warnw("cannot marshal bgv parameters", "error", err)
	}
	pk, err := b.pk.MarshalBinary()
	if err != nil {
		log.Warnw("cannot marshal bgv public key", "error", err)
	}
	return &fhe.PublicParams{Scheme: Scheme, Params: params, PublicKey: pk}
}

func (b *Backend) put(ct *rlwe.Ciphertext) (types.Handle, error) {
	data, err := ct.MarshalBinary()
	if err != nil {
		return types.Handle{}, fmt.Errorf("encode ciphertext: %w", err)
	}
	return b.putRaw(data)
}

func (b *Backend) putRaw(data []byte) (types.Handle, error) {
	h, err := types.HandleFromBytes(ethereum.HashRaw(data))
	if err != nil {
		return types.Handle{}, err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(b.db.WriteTx(), cipherPrefix)
	defer wTx.Discard()
	if err := wTx.Set(h[:], data); err != nil {
		return types.Handle{}, err
	}
	if err := wTx.Commit(); err != nil {
		return types.Handle{}, fmt.Errorf("store ciphertext: %w", err)
	}
	return h, nil
}

func (b *Backend) get(h types.Handle) (*rlwe.Ciphertext, error) {
	data, err := prefixeddb.NewPrefixedReader(b.db, cipherPrefix).Get(h[:])
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", fhe.ErrUnknownHandle, h)
	}
	if err != nil {
		return nil, err
	}
	ct := new(rlwe.Ciphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode ciphertext %s: %w", h, err)
	}
	return ct, nil
}

func (b *Backend) checkCiphertext(ct *rlwe.Ciphertext) error {
	if ct.Degree() != 1 {
		return errBadCtDegree
	}
	if ct.Level() > b.params.MaxLevel() {
		return fmt.Errorf("%w: level %d", errInvalidCt, ct.Level())
	}
	for _, p := range ct.Value {
		if len(p.Coeffs) != ct.Level()+1 {
			return errNotAVector
		}
		for _, coeffs := range p.Coeffs {
			if len(coeffs) != b.params.N() {
				return errNotAVector
			}
		}
	}
	return nil
}

// Import validates a serialized client ciphertext and stores it.
func (b *Backend) Import(ciphertext []byte) (types.Handle, error) {
	ct := new(rlwe.Ciphertext)
	if err := ct.UnmarshalBinary(ciphertext); err != nil {
		return types.Handle{}, fmt.Errorf("%w: %v", errInvalidCt, err)
	}
	if err := b.checkCiphertext(ct); err != nil {
		return types.Handle{}, err
	}
	return b.putRaw(ciphertext)
}

func (b *Backend) Has(h types.Handle) bool {
	_, err := prefixeddb.NewPrefixedReader(b.db, cipherPrefix).Get(h[:])
	return err == nil
}

func (b *Backend) encrypt(v uint64) (*rlwe.Ciphertext, error) {
	pt := lbgv.NewPlaintext(b.params, b.params.MaxLevel())
	values := make([]uint64, b.params.MaxSlots())
	values[0] = v
	if err := b.encoder.Encode(values, pt); err != nil {
		return nil, fmt.Errorf("encode plaintext: %w", err)
	}
	return b.encryptor.EncryptNew(pt)
}

func (b *Backend) Constant(v uint64) (types.Handle, error) {
	b.mu.Lock()
	ct, err := b.encrypt(v)
	b.mu.Unlock()
	if err != nil {
		return types.Handle{}, err
	}
	return b.put(ct)
}

func (b *Backend) Add(x, y types.Handle) (types.Handle, error) {
	return b.binary(x, y, func(ca, cb *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
		return b.eval.AddNew(ca, cb)
	})
}

func (b *Backend) Mul(x, y types.Handle) (types.Handle, error) {
	return b.binary(x, y, func(ca, cb *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
		return b.eval.MulRelinNew(ca, cb)
	})
}

// Sum adds the ciphertexts of hs onto a fresh encryption of zero, so the
// result never has the handle of an operand even for a single one.
func (b *Backend) Sum(hs []types.Handle) (types.Handle, error) {
	cts, err := b.getAll(hs)
	if err != nil {
		return types.Handle{}, err
	}
	b.mu.Lock()
	acc, err := b.encrypt(0)
	for i := 0; err == nil && i < len(cts); i++ {
		acc, err = b.eval.AddNew(acc, cts[i])
	}
	b.mu.Unlock()
	if err != nil {
		return types.Handle{}, fmt.Errorf("bgv evaluation: %w", err)
	}
	return b.put(acc)
}

// Dot accumulates the relinearized products x[i]*y[i] onto a fresh
// encryption of zero.
func (b *Backend) Dot(x, y []types.Handle) (types.Handle, error) {
	if len(x) != len(y) {
		return types.Handle{}, fmt.Errorf("dot product of %d and %d values", len(x), len(y))
	}
	cx, err := b.getAll(x)
	if err != nil {
		return types.Handle{}, err
	}
	cy, err := b.getAll(y)
	if err != nil {
		return types.Handle{}, err
	}
	b.mu.Lock()
	acc, err := b.encrypt(0)
	for i := 0; err == nil && i < len(cx); i++ {
		var term *rlwe.Ciphertext
		if term, err = b.eval.MulRelinNew(cx[i], cy[i]); err == nil {
			acc, err = b.eval.AddNew(acc, term)
		}
	}
	b.mu.Unlock()
	if err != nil {
		return types.Handle{}, fmt.Errorf("bgv evaluation: %w", err)
	}
	return b.put(acc)
}

func (b *Backend) getAll(hs []types.Handle) ([]*rlwe.Ciphertext, error) {
	cts := make([]*rlwe.Ciphertext, len(hs))
	for i, h := range hs {
		ct, err := b.get(h)
		if err != nil {
			return nil, err
		}
		cts[i] = ct
	}
	return cts, nil
}

// Delete removes the ciphertext of h.
func (b *Backend) Delete(h types.Handle) error {
	if !b.Has(h) {
		return fmt.Errorf("%w: %s", fhe.ErrUnknownHandle, h)
	}
	wTx := prefixeddb.NewPrefixedWriteTx(b.db.WriteTx(), cipherPrefix)
	defer wTx.Discard()
	if err := wTx.Delete(h[:]); err != nil {
		return err
	}
	return wTx.Commit()
}

// Len returns the number of stored ciphertexts.
func (b *Backend) Len() (int, error) {
	n := 0
	err := prefixeddb.NewPrefixedReader(b.db, cipherPrefix).Iterate(nil, func(_, _ []byte) bool {
		n++
		return true
	})
	return n, err
}

func (b *Backend) binary(x, y types.Handle, op func(a, c *rlwe.Ciphertext) (*rlwe.Ciphertext, error)) (types.Handle, error) {
	ca, err := b.get(x)
	if err != nil {
		return types.Handle{}, err
	}
	cb, err := b.get(y)
	if err != nil {
		return types.Handle{}, err
	}
	b.mu.Lock()
	res, err := op(ca, cb)
	b.mu.Unlock()
	if err != nil {
		return types.Handle{}, fmt.Errorf("bgv evaluation: %w", err)
	}
	return b.put(res)
}

func (b *Backend) Decrypt(h types.Handle) (uint64, error) {
	ct, err := b.get(h)
	if err != nil {
		return 0, err
	}
	values := make([]uint64, b.params.MaxSlots())
	b.mu.Lock()
	defer b.mu.Unlock()
	pt := b.decryptor.DecryptNew(ct)
	if err := b.encoder.Decode(pt, values); err != nil {
		return 0, fmt.Errorf("decode plaintext: %w", err)
	}
	return values[0], nil
}
