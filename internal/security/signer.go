package security

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"

	platformerrors "refract-server-go/internal/platform/errors"
)

// Signer authenticates request paths with HMAC-SHA1 over the path with
// the signature segment excluded. Signatures are URL-safe base64 so they
// survive as a path segment unescaped.
type Signer struct {
	secret      []byte
	allowUnsafe bool
}

// NewSigner builds a Signer. When allowUnsafe is set, paths carrying the
// unsafe marker skip signature verification entirely.
func NewSigner(secret string, allowUnsafe bool) *Signer {
	return &Signer{secret: []byte(secret), allowUnsafe: allowUnsafe}
}

// Sign computes the signature segment for a normalized path.
func (s *Signer) Sign(path string) string {
	mac := hmac.New(sha1.New, s.secret)
	mac.Write([]byte(path))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify authorizes one request. Exactly one of hash or the unsafe marker
// must be present; a signed path is compared in constant time against the
// expected signature of the remaining path.
func (s *Signer) Verify(unsafeMarker bool, hash, path string) error {
	const op = "security.verify"

	if unsafeMarker {
		if !s.allowUnsafe {
			return platformerrors.New(platformerrors.KindSignature, op,
				"unsafe requests are disabled")
		}
		return nil
	}

	if hash == "" {
		return platformerrors.New(platformerrors.KindSignature, op,
			"missing signature")
	}
	if !hmac.Equal([]byte(hash), []byte(s.Sign(path))) {
		return platformerrors.New(platformerrors.KindSignature, op,
			"signature mismatch")
	}
	return nil
}
