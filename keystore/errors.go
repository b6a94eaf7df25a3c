package keystore

import "errors"

var (
	// ErrKeyNotFound indicates no key is stored for an address.
	ErrKeyNotFound = errors.New("keystore: key not found")

	// ErrDecryptionFailed indicates a wrong password or corrupt key record.
	ErrDecryptionFailed = errors.New("keystore: decryption failed")

	// ErrInvalidKey indicates imported key material is not a valid private key.
	ErrInvalidKey = errors.New("keystore: invalid key")

	// ErrEmptyPassword indicates an empty store password.
	ErrEmptyPassword = errors.New("keystore: empty password")
)
