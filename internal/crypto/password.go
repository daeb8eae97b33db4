package crypto

import "fmt"

// HashingConfig is one "current" or "previous" password-hashing
// configuration (spec §6.4 password_hashing, §4.2's storage format). The
// salt size here is also the split point used to parse a stored blob.
type HashingConfig struct {
	SaltSize int
	Algo     HashAlgo
}

// HashPasswordBlob produces the on-disk blob: salt || hash, built with
// cfg's salt size and algorithm (spec §4.2). The salt is freshly
// generated; callers needing a deterministic re-hash (tests) should use
// HashPasswordWithSalt directly.
func HashPasswordBlob(cfg HashingConfig, raw []byte) ([]byte, error) {
	salt, err := RandomSalt(cfg.SaltSize)
	if err != nil {
		return nil, err
	}
	return HashPasswordWithSalt(cfg, salt, raw)
}

// HashPasswordWithSalt builds the salt||hash blob for an explicit salt.
func HashPasswordWithSalt(cfg HashingConfig, salt, raw []byte) ([]byte, error) {
	h, err := HashPassword(cfg.Algo, salt, raw)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, salt...), h...), nil
}

// ErrBlobTooShort is returned when a stored blob is shorter than the
// configured salt size, meaning it cannot have been produced by cfg.
var ErrBlobTooShort = fmt.Errorf("crypto: stored password blob shorter than salt size")

// VerifyPasswordBlob splits blob using cfg's salt size, recomputes the
// hash over the supplied raw password, and compares in constant time.
func VerifyPasswordBlob(cfg HashingConfig, blob, raw []byte) (bool, error) {
	if len(blob) < cfg.SaltSize {
		return false, ErrBlobTooShort
	}

	salt := blob[:cfg.SaltSize]
	stored := blob[cfg.SaltSize:]

	computed, err := HashPassword(cfg.Algo, salt, raw)
	if err != nil {
		return false, err
	}

	return ConstantTimeEqual(stored, computed), nil
}
