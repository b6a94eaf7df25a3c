package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters for key encryption.
	Argon2Time        = 3
	Argon2Memory      = 64 * 1024 // 64 MB
	Argon2Parallelism = 4
	Argon2KeyLen      = 32

	// maxArgon2Memory bounds the memory cost read back from a record, in KiB.
	maxArgon2Memory = 4 * 1024 * 1024

	SaltLen  = 16
	NonceLen = 12

	// kdfHeaderLen is time(4) || memory(4) || parallelism(1).
	kdfHeaderLen = 9
	headerLen    = kdfHeaderLen + SaltLen + NonceLen
)

// KDFParams tunes the Argon2id derivation. The zero value selects the
// package defaults.
type KDFParams struct {
	Time        uint32
	Memory      uint32
	Parallelism uint8
}

func (p KDFParams) withDefaults() KDFParams {
	if p.Time == 0 {
		p.Time = Argon2Time
	}
	if p.Memory == 0 {
		p.Memory = Argon2Memory
	}
	if p.Parallelism == 0 {
		p.Parallelism = Argon2Parallelism
	}
	return p
}

// encrypt seals plaintext as time(4B) || memory(4B) || parallelism(1B) ||
// salt(16B) || nonce(12B) || AES-GCM ciphertext, keyed by
// argon2id(password, salt). The address is bound as associated data.
func encrypt(plaintext []byte, password string, address string, p KDFParams) ([]byte, error) {
	p = p.withDefaults()
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keystore: generate salt: %w", err)
	}
	gcm, err := newGCM(password, salt, p)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keystore: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, []byte(address))
	out := make([]byte, 0, headerLen+len(ciphertext))
	out = binary.BigEndian.AppendUint32(out, p.Time)
	out = binary.BigEndian.AppendUint32(out, p.Memory)
	out = append(out, p.Parallelism)
	out = append(out, salt...)
	out = append(out, nonce...)
	return append(out, ciphertext...), nil
}

// decrypt opens a record sealed by encrypt, deriving the key with the KDF
// parameters stored in the record itself.
func decrypt(sealed []byte, password string, address string) ([]byte, error) {
	if len(sealed) < headerLen+16 {
		return nil, fmt.Errorf("%w: record too short", ErrDecryptionFailed)
	}
	p := KDFParams{
		Time:        binary.BigEndian.Uint32(sealed[0:4]),
		Memory:      binary.BigEndian.Uint32(sealed[4:8]),
		Parallelism: sealed[8],
	}
	if p.Time == 0 || p.Memory == 0 || p.Parallelism == 0 || p.Memory > maxArgon2Memory {
		return nil, fmt.Errorf("%w: %s: bad KDF parameters", ErrDecryptionFailed, address)
	}
	salt := sealed[kdfHeaderLen : kdfHeaderLen+SaltLen]
	nonce := sealed[kdfHeaderLen+SaltLen : headerLen]
	gcm, err := newGCM(password, salt, p)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, sealed[headerLen:], []byte(address))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecryptionFailed, address)
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte, p KDFParams) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, Argon2KeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keystore: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keystore: create GCM: %w", err)
	}
	return gcm, nil
}
