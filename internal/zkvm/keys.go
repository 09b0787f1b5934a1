// keys.go - Groth16 key persistence.
//
// Proving and verifying keys are written next to each other in a key directory and
// reloaded on the next start, so the trusted setup runs once per circuit.

package zkvm

import (
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/pkg/errors"
)

// SaveProvingKey saves a Groth16 proving key to disk.
func SaveProvingKey(path string, pk groth16.ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "save proving key")
	}
	if _, err := pk.WriteTo(f); err != nil {
		f.Close()
		return errors.Wrap(err, "save proving key")
	}
	return errors.Wrap(f.Close(), "save proving key")
}

// SaveVerifyingKey saves a Groth16 verifying key to disk.
func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "save verifying key")
	}
	if _, err := vk.WriteTo(f); err != nil {
		f.Close()
		return errors.Wrap(err, "save verifying key")
	}
	return errors.Wrap(f.Close(), "save verifying key")
}

// LoadProvingKey loads a BN254 Groth16 proving key from disk.
func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(f); err != nil {
		return nil, errors.Wrap(err, "load proving key")
	}
	return pk, nil
}

// LoadVerifyingKey loads a BN254 Groth16 verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, errors.Wrap(err, "load verifying key")
	}
	return vk, nil
}

// SetupOrLoadKeys loads the key pair from pkPath and vkPath when both exist and
// otherwise runs the Groth16 setup for ccs and saves the result. Empty paths skip
// persistence.
func SetupOrLoadKeys(ccs constraint.ConstraintSystem, pkPath, vkPath string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	if pkPath != "" && vkPath != "" {
		pk, pkErr := LoadProvingKey(pkPath)
		vk, vkErr := LoadVerifyingKey(vkPath)
		if pkErr == nil && vkErr == nil {
			return pk, vk, nil
		}
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "groth16 setup")
	}
	if pkPath == "" || vkPath == "" {
		return pk, vk, nil
	}
	if err := os.MkdirAll(filepath.Dir(pkPath), 0o755); err != nil {
		return nil, nil, errors.Wrap(err, "create key directory")
	}
	if err := SaveProvingKey(pkPath, pk); err != nil {
		return nil, nil, err
	}
	if err := SaveVerifyingKey(vkPath, vk); err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}
