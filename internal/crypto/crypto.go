// Package crypto wraps the cipher/hash/KDF/RNG primitive library (stdlib
// crypto plus golang.org/x/crypto) behind the operations the security
// core needs: salted password hashing, key derivation, and symmetric
// material generation (spec §4.2). It never implements a cipher, hash, or
// curve itself — that primitive layer is an explicit Non-goal (spec §1);
// this package only enforces the policy around it (minimum sizes, IV
// length rules, salt/hash blob layout).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"hash"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// HashAlgo names the digest used by hash_password (spec §4.2). Kept as a
// small closed set rather than an arbitrary string — an unknown algo is a
// LogicError, not a runtime format string.
type HashAlgo int

const (
	SHA256 HashAlgo = iota
	SHA512
)

func (a HashAlgo) newHash() (func() hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New, nil
	case SHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("crypto: unknown hash algorithm %d", a)
	}
}

// CipherSuite names a symmetric cipher. Only AES is backed by the stdlib
// primitive layer here; AES256 is the zero value.
type CipherSuite int

const (
	AES256 CipherSuite = iota
)

// Mode names an AEAD mode of operation and carries its own IV-length
// policy (spec §4.2): GCM accepts any IV of at least one byte; CCM
// requires 7-13 bytes (longer values are truncated, with a warning);
// EAX accepts any length.
type Mode int

const (
	GCM Mode = iota
	CCM
	EAX
)

const (
	gcmMinIVSize = 1
	ccmMinIVSize = 7
	ccmMaxIVSize = 13
)

// ErrInvalidArgument mirrors the security core's InvalidArgument error
// kind (spec §7) for malformed keys, salts, or IVs rejected at entry.
var ErrInvalidArgument = fmt.Errorf("crypto: invalid argument")

// RandomSalt returns size bytes of CSPRNG output. Used both for
// password-hash salts and for token signatures (spec §4.2).
func RandomSalt(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: salt size must be positive", ErrInvalidArgument)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}

	return buf, nil
}

// HashPassword computes hash(algo, salt, raw) deterministically. The
// result is never the on-disk blob by itself — callers prepend salt
// themselves per the storage format in spec §4.2.
func HashPassword(algo HashAlgo, salt, raw []byte) ([]byte, error) {
	newHash, err := algo.newHash()
	if err != nil {
		return nil, err
	}

	h := newHash()
	h.Write(salt)
	h.Write(raw)
	return h.Sum(nil), nil
}

// ConstantTimeEqual compares two byte slices without leaking timing
// information about where they first differ.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// DerivedKeyParams bundles the PBKDF2 configuration (spec §6.4
// key_generator.derived).
type DerivedKeyParams struct {
	Algo       HashAlgo
	Iterations int
	Size       int
}

// DeriveKey runs PBKDF2 with the configured inner hash. Iterations and
// size are taken from params. ECDH material stretching does not go
// through here; ECDHSymmetricMaterial uses HKDF instead.
func DeriveKey(passphrase, salt []byte, params DerivedKeyParams) ([]byte, error) {
	newHash, err := params.Algo.newHash()
	if err != nil {
		return nil, err
	}

	if params.Iterations <= 0 || params.Size <= 0 {
		return nil, fmt.Errorf("%w: iterations and size must be positive", ErrInvalidArgument)
	}

	return pbkdf2.Key(passphrase, salt, params.Iterations, params.Size, newHash), nil
}

// SymmetricParams bundles the key-generator configuration for symmetric
// material (spec §6.4 key_generator.symmetric).
type SymmetricParams struct {
	DefaultCipher  CipherSuite
	DefaultMode    Mode
	DefaultIVSize  int
	MinKeySize     int
	DefaultKeySize int
}

// Material is the SymmetricCryptoMaterial of spec §3: the iv, optional
// salt and key from one generation call, plus the cipher and mode they
// belong to. It holds no handle itself; AEAD() builds a
// crypto/cipher.AEAD from these fields on demand, whose Seal and Open
// serve as the paired encryptor/decryptor.
type Material struct {
	Cipher CipherSuite
	Mode   Mode
	IV     []byte
	Salt   []byte
	Key    []byte
}

func ivPolicy(mode Mode, requested int) (size int, warning string, err error) {
	switch mode {
	case GCM:
		if requested < gcmMinIVSize {
			return 0, "", fmt.Errorf("%w: GCM IV must be at least %d byte(s)", ErrInvalidArgument, gcmMinIVSize)
		}
		return requested, "", nil
	case CCM:
		if requested < ccmMinIVSize {
			return 0, "", fmt.Errorf("%w: CCM IV must be at least %d bytes", ErrInvalidArgument, ccmMinIVSize)
		}
		if requested > ccmMaxIVSize {
			return ccmMaxIVSize, fmt.Sprintf("CCM IV of %d bytes truncated to %d", requested, ccmMaxIVSize), nil
		}
		return requested, "", nil
	case EAX:
		if requested <= 0 {
			return 0, "", fmt.Errorf("%w: EAX IV must be positive", ErrInvalidArgument)
		}
		return requested, "", nil
	default:
		return 0, "", fmt.Errorf("%w: unknown cipher mode %d", ErrInvalidArgument, mode)
	}
}

// checkKeySize enforces spec §4.2's two-tier policy: below min is
// InvalidArgument, between min and default succeeds but the caller should
// log a warning (returned here, logged by the security core which has
// the logger).
func checkKeySize(size int, params SymmetricParams) (warning string, err error) {
	if size < params.MinKeySize {
		return "", fmt.Errorf("%w: key size %d below minimum %d", ErrInvalidArgument, size, params.MinKeySize)
	}
	if size < params.DefaultKeySize {
		return fmt.Sprintf("key size %d below default %d", size, params.DefaultKeySize), nil
	}
	return "", nil
}

// NewSymmetricMaterial either wraps an existing (key, iv) pair or
// generates both from params. warning is non-empty when the supplied key
// is valid but below the configured default size, or the IV had to be
// truncated for CCM — the caller logs it, per spec §4.2.
func NewSymmetricMaterial(params SymmetricParams, existingKey, existingIV []byte) (mat Material, warning string, err error) {
	ivSize, ivWarning, err := ivPolicy(params.DefaultMode, pick(len(existingIV), params.DefaultIVSize))
	if err != nil {
		return Material{}, "", err
	}

	iv := existingIV
	if iv == nil {
		if iv, err = RandomSalt(ivSize); err != nil {
			return Material{}, "", err
		}
	} else if len(iv) > ivSize {
		iv = iv[:ivSize]
	}

	key := existingKey
	var keyWarning string
	if key == nil {
		if key, err = RandomSalt(params.DefaultKeySize); err != nil {
			return Material{}, "", err
		}
	} else {
		if keyWarning, err = checkKeySize(len(key), params); err != nil {
			return Material{}, "", err
		}
	}

	warning = joinWarnings(ivWarning, keyWarning)

	return Material{
		Cipher: params.DefaultCipher,
		Mode:   params.DefaultMode,
		IV:     iv,
		Key:    key,
	}, warning, nil
}

func pick(existing, fallback int) int {
	if existing > 0 {
		return existing
	}
	return fallback
}

func joinWarnings(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "; "
		}
		out += p
	}
	return out
}

// ECDHSymmetricMaterial derives a shared secret over the given curve and
// stretches it into key+iv material via HKDF (spec §4.2
// ecdh_symmetric_material). The curve is taken from crypto/ecdh — the
// stdlib Diffie-Hellman implementation — never reimplemented here.
func ECDHSymmetricMaterial(curve ecdh.Curve, ours *ecdh.PrivateKey, peer *ecdh.PublicKey, params SymmetricParams) (mat Material, warning string, err error) {
	shared, err := ours.ECDH(peer)
	if err != nil {
		return Material{}, "", fmt.Errorf("crypto: ecdh exchange: %w", err)
	}

	salt, err := RandomSalt(32)
	if err != nil {
		return Material{}, "", err
	}

	ivSize, ivWarning, err := ivPolicy(params.DefaultMode, params.DefaultIVSize)
	if err != nil {
		return Material{}, "", err
	}

	stretched := hkdf.New(sha256.New, shared, salt, []byte("syn-ecdh-material"))
	out := make([]byte, params.DefaultKeySize+ivSize)
	if _, err := readFull(stretched, out); err != nil {
		return Material{}, "", fmt.Errorf("crypto: stretching shared secret: %w", err)
	}

	key := out[:params.DefaultKeySize]
	iv := out[params.DefaultKeySize:]

	keyWarning, err := checkKeySize(len(key), params)
	if err != nil {
		return Material{}, "", err
	}

	return Material{
		Cipher: params.DefaultCipher,
		Mode:   params.DefaultMode,
		IV:     iv,
		Salt:   salt,
		Key:    key,
	}, joinWarnings(ivWarning, keyWarning), nil
}

func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("crypto: short read stretching key material")
		}
	}
	return total, nil
}

// GenerateKeyPair produces a fresh asymmetric key pair on the given
// curve, independent of performing an ECDH exchange (SPEC_FULL.md
// supplemented feature — the original KeyGenerator exposes this as a
// distinct entry point from ecdh_symmetric_material).
func GenerateKeyPair(curve ecdh.Curve) (*ecdh.PrivateKey, error) {
	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generating key pair: %w", err)
	}
	return priv, nil
}

// AEAD builds the encryptor/decryptor handle for this material (spec §3:
// "the three byte fields and the two handles are derived from the same
// generation call" — cipher.AEAD's Seal/Open double as both). Only GCM is
// backed by the stdlib primitive layer; CCM and EAX require an AEAD
// implementation from outside this module (the primitive library is an
// explicit Non-goal) and are reported as unsupported here rather than
// hand-rolled.
func (m Material) AEAD() (cipher.AEAD, error) {
	switch m.Cipher {
	case AES256:
		block, err := aes.NewCipher(m.Key)
		if err != nil {
			return nil, fmt.Errorf("crypto: building AES block cipher: %w", err)
		}

		switch m.Mode {
		case GCM:
			return cipher.NewGCMWithNonceSize(block, len(m.IV))
		case CCM, EAX:
			return nil, fmt.Errorf("crypto: mode %d has no bundled AEAD implementation; supply one via an external cipher suite", m.Mode)
		default:
			return nil, fmt.Errorf("%w: unknown cipher mode %d", ErrInvalidArgument, m.Mode)
		}
	default:
		return nil, fmt.Errorf("%w: unknown cipher suite %d", ErrInvalidArgument, m.Cipher)
	}
}

// HMAC is exposed for components that need a keyed MAC over small
// payloads (e.g. comparing signatures) without reaching for a full AEAD.
func HMAC(algo HashAlgo, key, data []byte) ([]byte, error) {
	newHash, err := algo.newHash()
	if err != nil {
		return nil, err
	}
	mac := hmac.New(newHash, key)
	mac.Write(data)
	return mac.Sum(nil), nil
}
