package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// Argon2id parameters for newly written credentials.
const (
	argonTime    = 3         // iterations
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 1         // parallelism
	argonKeyLen  = 32        // output hash length
	argonSaltLen = 16        // salt length

	argonPrefix = "$argon2id$"
)

// Legacy PBKDF2 parameters. Existing accounts were hashed with these and
// they must never change.
const (
	legacyIterations = 10000
	legacyKeyLen     = 64
)

// Hash format markers stored in the user's hashFormat field.
const (
	FormatLegacy  = "legacy"
	FormatCurrent = "current"
)

// Credential is a stored password record. It is decoded once from the
// user document; the two variants are LegacyCredential and CurrentCredential.
type Credential interface {
	// Format returns FormatLegacy or FormatCurrent.
	Format() string
	// NeedsUpgrade reports whether the record should be rewritten in the current format.
	NeedsUpgrade() bool

	verify(password string) bool
}

// LegacyCredential is a hex PBKDF2-HMAC-SHA512 digest with an external salt.
type LegacyCredential struct {
	Hash string
	Salt string
}

// CurrentCredential is an Argon2id PHC string with its salt embedded.
type CurrentCredential struct {
	Encoded string
}

// Format implements Credential.
func (LegacyCredential) Format() string { return FormatLegacy }

// NeedsUpgrade implements Credential.
func (LegacyCredential) NeedsUpgrade() bool { return true }

// Format implements Credential.
func (CurrentCredential) Format() string { return FormatCurrent }

// NeedsUpgrade implements Credential.
func (CurrentCredential) NeedsUpgrade() bool { return false }

// ParseCredential decides the variant from the hash's own shape.
// The salt is only meaningful for legacy records.
func ParseCredential(hash, salt string) Credential {
	if strings.HasPrefix(hash, argonPrefix) {
		return CurrentCredential{Encoded: hash}
	}
	return LegacyCredential{Hash: hash, Salt: salt}
}

// VerifyPassword checks password against cred. Malformed records yield false.
func VerifyPassword(password string, cred Credential) bool {
	if cred == nil {
		return false
	}
	return cred.verify(password)
}

// HashPassword produces a current-format credential. The returned salt is
// empty because Argon2id embeds it in the hash.
func HashPassword(password string) (hash, salt string, err error) {
	rawSalt := make([]byte, argonSaltLen)
	if _, err := rand.Read(rawSalt); err != nil {
		return "", "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), rawSalt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(rawSalt),
		base64.RawStdEncoding.EncodeToString(key),
	), "", nil
}

// LegacyHash computes the historical digest. Only tests and migration
// tooling should call it; new credentials are always Argon2id.
func LegacyHash(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), legacyIterations, legacyKeyLen, sha512.New)
	return hex.EncodeToString(key)
}

func (c LegacyCredential) verify(password string) bool {
	want, err := hex.DecodeString(c.Hash)
	if err != nil || len(want) != legacyKeyLen {
		return false
	}
	got := pbkdf2.Key([]byte(password), []byte(c.Salt), legacyIterations, legacyKeyLen, sha512.New)
	return subtle.ConstantTimeCompare(want, got) == 1
}

func (c CurrentCredential) verify(password string) bool {
	salt, key, params, err := decodePHC(c.Encoded)
	if err != nil {
		return false
	}
	candidate := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(key))) //nolint:gosec // G115: key length always fits uint32
	return subtle.ConstantTimeCompare(key, candidate) == 1
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// Upper bounds on parameters read from stored hashes so a tampered record
// cannot make verification allocate unbounded memory.
const (
	maxArgonMemory = 1024 * 1024 // 1 GiB in KiB
	maxArgonTime   = 16
	maxArgonKeyLen = 128
)

// decodePHC parses $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>.
func decodePHC(encoded string) (salt, key []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, nil, params, fmt.Errorf("invalid PHC hash format")
	}
	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil { //nolint:govet // shadow
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil { //nolint:govet // shadow
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}
	if params.memory == 0 || params.memory > maxArgonMemory ||
		params.time == 0 || params.time > maxArgonTime || params.threads == 0 {
		return nil, nil, params, fmt.Errorf("argon2 parameters out of range")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}
	if len(key) == 0 || len(key) > maxArgonKeyLen {
		return nil, nil, params, fmt.Errorf("argon2 key length out of range")
	}
	return salt, key, params, nil
}

var (
	dummyOnce sync.Once
	dummyCred Credential
)

// burnVerification spends roughly the time of a real verification so an
// unknown organization or username is not distinguishable by latency.
func burnVerification(password string) {
	dummyOnce.Do(func() {
		hash, _, err := HashPassword("tenantgate-dummy-password")
		if err != nil {
			dummyCred = LegacyCredential{}
			return
		}
		dummyCred = CurrentCredential{Encoded: hash}
	})
	VerifyPassword(password, dummyCred)
}
