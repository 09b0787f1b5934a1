package arm

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Journals must be byte-identical between prover and verifier, so everything the
// engine sees is encoded in CBOR core deterministic mode.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

func marshal(v interface{}) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(ErrSerialization, err.Error())
	}
	return b, nil
}

func unmarshal(b []byte, v interface{}) error {
	if err := cbor.Unmarshal(b, v); err != nil {
		return errors.Wrap(ErrDeserialization, err.Error())
	}
	return nil
}
