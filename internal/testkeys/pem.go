// SPDX-FileCopyrightText: Copyright 2024 Prasad Tengse
// SPDX-License-Identifier: MIT

package testkeys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
)

// PKCS1PEM returns PEM encoded PKCS#1 private key, as downloaded from
// GitHub app settings page.
func PKCS1PEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// PKCS8PEM returns PEM encoded PKCS#8 private key. Key can be of any type
// supported by [x509.MarshalPKCS8PrivateKey].
func PKCS8PEM(key any) []byte {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		panic(err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	})
}
