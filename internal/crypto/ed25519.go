package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"cipherlog/internal/domain"
)

// GenerateEd25519 returns a new Ed25519 signing key pair.
func GenerateEd25519() (priv domain.Ed25519Private, pub domain.Ed25519Public, err error) {
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return priv, pub, err
	}
	copy(priv[:], sk)
	copy(pub[:], pk)
	return priv, pub, nil
}

// SignEd25519 signs msg with priv and returns the signature.
func SignEd25519(priv domain.Ed25519Private, msg []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv[:]), msg)
}

// VerifyEd25519 verifies sig over msg with pub.
func VerifyEd25519(pub domain.Ed25519Public, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}

// AddSigningKey fills in the signing half of kp when it is missing.
// It reports whether kp changed.
func AddSigningKey(kp *domain.KeyPair) (bool, error) {
	if kp.CanSign() {
		return false, nil
	}
	priv, pub, err := GenerateEd25519()
	if err != nil {
		return false, err
	}
	kp.SigningPrivate, kp.SigningPublic = priv, pub
	return true, nil
}
