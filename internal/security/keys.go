package security

import (
	"context"
	"crypto/ecdh"

	"github.com/synccore/authcore/internal/crypto"
	"github.com/synccore/authcore/internal/workerpool"
)

// DerivedKeyRequest is spec §4.4's post_derived_key_request.
type DerivedKeyRequest struct {
	SourceKind ComponentKind
	Passphrase []byte
	Salt       []byte
}

// SymmetricKeyRequest is spec §4.4's post_symmetric_key_request. Key and
// IV are optional — when nil, the provider generates fresh random values
// using the configured symmetric parameters.
type SymmetricKeyRequest struct {
	SourceKind  ComponentKind
	ExistingKey []byte
	ExistingIV  []byte
}

// ECDHKeyRequest is spec §4.4's post_ecdh_key_request.
type ECDHKeyRequest struct {
	SourceKind ComponentKind
	Curve      ecdh.Curve
	Ours       *ecdh.PrivateKey
	Peer       *ecdh.PublicKey
}

// PostDerivedKeyRequest queues a PBKDF2-family key derivation (spec
// §4.4). Only the source-registration check happens under the primary
// lock; the CPU-bound derivation itself runs lock-free (spec §4.4
// Concurrency: "Key-generation requests also acquire it briefly to
// validate the source registration, then release it for the CPU-bound
// work").
func (c *Core) PostDerivedKeyRequest(ctx context.Context, req DerivedKeyRequest) *workerpool.Future[[]byte] {
	return workerpool.Submit(ctx, c.pool, func(ctx context.Context) ([]byte, error) {
		if err := c.checkSourceKind(req.SourceKind); err != nil {
			return nil, err
		}

		params := c.derivedKeyParams()
		key, err := crypto.DeriveKey(req.Passphrase, req.Salt, params)
		if err != nil {
			return nil, wrapError(InvalidArgument, err, "deriving key")
		}
		return key, nil
	})
}

// PostSymmetricKeyRequest queues symmetric material generation.
func (c *Core) PostSymmetricKeyRequest(ctx context.Context, req SymmetricKeyRequest) *workerpool.Future[crypto.Material] {
	return workerpool.Submit(ctx, c.pool, func(ctx context.Context) (crypto.Material, error) {
		if err := c.checkSourceKind(req.SourceKind); err != nil {
			return crypto.Material{}, err
		}

		params := c.symmetricParams()
		mat, warning, err := crypto.NewSymmetricMaterial(params, req.ExistingKey, req.ExistingIV)
		if err != nil {
			return crypto.Material{}, wrapError(InvalidArgument, err, "generating symmetric material")
		}
		if warning != "" {
			c.log.Warn("symmetric material generated with a warning", "warning", warning)
		}
		return mat, nil
	})
}

// PostECDHKeyRequest queues an ECDH exchange stretched into symmetric
// material via HKDF.
func (c *Core) PostECDHKeyRequest(ctx context.Context, req ECDHKeyRequest) *workerpool.Future[crypto.Material] {
	return workerpool.Submit(ctx, c.pool, func(ctx context.Context) (crypto.Material, error) {
		if err := c.checkSourceKind(req.SourceKind); err != nil {
			return crypto.Material{}, err
		}

		params := c.symmetricParams()
		mat, warning, err := crypto.ECDHSymmetricMaterial(req.Curve, req.Ours, req.Peer, params)
		if err != nil {
			return crypto.Material{}, wrapError(InvalidArgument, err, "deriving ECDH symmetric material")
		}
		if warning != "" {
			c.log.Warn("ECDH symmetric material generated with a warning", "warning", warning)
		}
		return mat, nil
	})
}

func (c *Core) derivedKeyParams() crypto.DerivedKeyParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.derivedKeyParams
}

func (c *Core) symmetricParams() crypto.SymmetricParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.symmetricParams
}
