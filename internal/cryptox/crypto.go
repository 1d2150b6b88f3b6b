// Package cryptox implements the credential hashing scheme used by the
// perch login endpoint. The scheme must match the official web client
// bit-for-bit: the server compares the submitted hash verbatim, so any
// deviation is indistinguishable from a wrong password.
package cryptox

import (
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/perchworks/perch/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

// Parameters mandated by the server's login implementation.
const (
	pbkdf2Iterations = 200_000
	pbkdf2KeyLength  = 128
)

// ClientHash derives the login hash from a plaintext password and the
// account's decoded salt. The result is the base64 (standard alphabet,
// padded) encoding of a 128-byte PBKDF2-HMAC-SHA384 key, which is what
// the login endpoint expects in the clientHash field.
func ClientHash(password, salt []byte) (string, error) {
	if len(salt) == 0 {
		return "", fmt.Errorf("empty salt: %w", common.ErrSaltDecode)
	}
	key := pbkdf2.Key(password, salt, pbkdf2Iterations, pbkdf2KeyLength, sha512.New384)
	return base64.StdEncoding.EncodeToString(key), nil
}

// DecodeSalt decodes the salt string returned by the login/salt endpoint.
//
// Salts look like unpadded URL-safe base64, but the server decodes them
// with a lookup table built for the standard (+/) alphabet; characters
// missing from the table are coerced to 0. Roughly half of real-world
// salts contain '-' or '_' and hit that path. We reproduce the effect by
// substituting 'A' (the character for 0) before decoding with the
// standard no-pad alphabet.
func DecodeSalt(salt string) ([]byte, error) {
	decoded, err := base64.RawStdEncoding.DecodeString(salt)
	if err == nil {
		return decoded, nil
	}

	legacy := strings.Map(func(r rune) rune {
		if r == '-' || r == '_' {
			return 'A'
		}
		return r
	}, salt)

	decoded, err = base64.RawStdEncoding.DecodeString(legacy)
	if err != nil {
		return nil, fmt.Errorf("decoding salt %q: %w", salt, common.ErrSaltDecode)
	}
	return decoded, nil
}
