package seal

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestSealOpen(t *testing.T) {
	c := qt.New(t)

	kp, err := GenerateKeyPair()
	c.Assert(err, qt.IsNil)
	c.Assert(kp.PublicKey(), qt.HasLen, KeySize)

	ad := []byte("request-1")
	sealed, err := Seal(kp.PublicKey(), []byte("1650"), ad)
	c.Assert(err, qt.IsNil)

	data, err := kp.Open(sealed, ad)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "1650")

	// same key pair imported from raw bytes
	imported, err := KeyPairFromBytes(kp.Private.Bytes())
	c.Assert(err, qt.IsNil)
	data, err = imported.Open(sealed, ad)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "1650")
}

func TestOpenRejectsTampering(t *testing.T) {
	c := qt.New(t)

	kp, err := GenerateKeyPair()
	c.Assert(err, qt.IsNil)
	other, err := GenerateKeyPair()
	c.Assert(err, qt.IsNil)

	sealed, err := Seal(kp.PublicKey(), []byte("secret"), []byte("ad"))
	c.Assert(err, qt.IsNil)

	_, err = other.Open(sealed, []byte("ad"))
	c.Assert(err, qt.ErrorMatches, "open sealed data: .*")

	_, err = kp.Open(sealed, []byte("other ad"))
	c.Assert(err, qt.ErrorMatches, "open sealed data: .*")

	flipped := append([]byte(nil), sealed...)
	flipped[len(flipped)-1] ^= 0x01
	_, err = kp.Open(flipped, []byte("ad"))
	c.Assert(err, qt.ErrorMatches, "open sealed data: .*")

	_, err = kp.Open(sealed[:20], []byte("ad"))
	c.Assert(err, qt.ErrorMatches, "sealed data too short: 20 bytes")

	_, err = Seal([]byte{1, 2, 3}, []byte("x"), nil)
	c.Assert(err, qt.ErrorMatches, "invalid recipient public key: .*")
}
