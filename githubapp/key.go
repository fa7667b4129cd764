// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package githubapp

import (
	"crypto/rsa"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// ParsePrivateKey parses PEM encoded RSA private key. Both PKCS#1
// (as downloaded from GitHub app settings) and PKCS#8 encodings are supported.
// Returned error wraps [ErrInvalidKey].
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: private key is empty", ErrInvalidKey)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	if key.N.BitLen() < 2048 {
		return nil, fmt.Errorf("%w: rsa keys size(%d) < 2048 bits", ErrInvalidKey, key.N.BitLen())
	}
	return key, nil
}

// LoadPrivateKey reads and parses PEM encoded RSA private key from file.
//
// If file cannot be read, returned error wraps [ErrConfiguration],
// otherwise errors from [ParsePrivateKey] are returned.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: private key path is missing", ErrConfiguration)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read private key: %w", ErrConfiguration, err)
	}
	return ParsePrivateKey(data)
}
