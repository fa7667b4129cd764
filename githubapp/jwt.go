// SPDX-FileCopyrightText: Copyright 2023 Prasad Tengse
// SPDX-License-Identifier: MIT

package githubapp

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tprasadtp/go-sourcemanagement/internal/api"
)

var (
	_ jwtMinter      = (*jwtRS256)(nil)
	_ slog.LogValuer = (*JWT)(nil)
)

// Claims window for the JWT. GitHub rejects JWTs valid for more than 10 minutes.
// Issued at is backdated to allow for clock drift between host and GitHub.
const (
	JWTClockSkew = time.Minute
	JWTLifetime  = 10 * time.Minute
)

// JWT is JWT token used to authenticate as app.
type JWT struct {
	// JWT token.
	Token string `json:"token" yaml:"token"`

	// GitHub app ID.
	AppID uint64 `json:"app_id,omitempty" yaml:"appID,omitempty"`

	// GitHub app name.
	AppName string `json:"app_name,omitempty" yaml:"appName,omitempty"`

	// Token exp time.
	Exp time.Time `json:"exp,omitempty" yaml:"exp,omitempty"`

	// Token issue time.
	IssuedAt time.Time `json:"iat,omitempty" yaml:"iat,omitempty"`
}

// LogValue implements [log/slog.LogValuer].
func (t JWT) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("app_id", t.AppID),
		slog.String("app_name", t.AppName),
		slog.Time("exp", t.Exp),
		slog.Time("iat", t.IssuedAt),
		slog.String("token", "REDACTED"),
	)
}

// IsValid checks if [JWT] is valid for at-least 60 seconds.
func (t JWT) IsValid() bool {
	return t.validAt(time.Now())
}

func (t JWT) validAt(now time.Time) bool {
	return t.Token != "" && t.IssuedAt.Before(now) && t.Exp.After(now.Add(time.Minute))
}

// contextSigner is similar to [crypto.Signer] but is context-aware.
type contextSigner interface {
	SignContext(ctx context.Context, rand io.Reader, digest []byte, opt crypto.SignerOpts) ([]byte, error)
}

// jwtMinter mints GitHub app JWT.
type jwtMinter interface {
	MintJWT(ctx context.Context, iss uint64, now time.Time) (JWT, error)
}

// jwtRS256 mints JWT tokens using RS256.
type jwtRS256 struct {
	internal crypto.Signer
}

// MintJWT mints new JWT token. Claims are derived from now, thus for a fixed
// now and signer, minted token is always the same.
func (s *jwtRS256) MintJWT(ctx context.Context, iss uint64, now time.Time) (JWT, error) {
	// GitHub rejects timestamps that are not an integer.
	now = now.Truncate(time.Second)
	iat := now.Add(-JWTClockSkew)
	exp := now.Add(JWTLifetime)

	buf := bytes.NewBuffer(make([]byte, 0, 1024))

	// Header is always RS256, use pre-encoded header.
	buf.WriteString(api.EncodedJWTHeader)
	buf.WriteByte('.')

	// Encode JWT Payload.
	payload, err := json.Marshal(&api.JWTPayload{
		Issuer:   strconv.FormatUint(iss, 10),
		Exp:      exp.Unix(),
		IssuedAt: iat.Unix(),
	})
	if err != nil {
		return JWT{}, fmt.Errorf("githubapp(jwt): failed to encode JWT payload: %w", err)
	}
	encoder := base64.NewEncoder(base64.RawURLEncoding, buf)
	_, _ = encoder.Write(payload)
	_ = encoder.Close()

	// Sign JWT header and payload.
	hasher := sha256.New()
	_, _ = hasher.Write(buf.Bytes())

	var signature []byte

	// KMS backed signers may support SignContext. try to check if we can use
	// context aware signer, fallback to default.
	if cs, ok := s.internal.(contextSigner); ok {
		if ctx == nil {
			ctx = context.Background()
		}
		signature, err = cs.SignContext(ctx, rand.Reader, hasher.Sum(nil), crypto.SHA256)
	} else {
		signature, err = s.internal.Sign(rand.Reader, hasher.Sum(nil), crypto.SHA256)
	}

	if err != nil {
		return JWT{}, fmt.Errorf("githubapp(jwt): failed to sign JWT: %w", err)
	}

	// Write separator.
	buf.WriteByte('.')

	// Encode signature.
	encoder = base64.NewEncoder(base64.RawURLEncoding, buf)
	_, _ = encoder.Write(signature)
	_ = encoder.Close()

	// JWT may be missing app name, it is populated by TokenManager.JWT.
	return JWT{Token: buf.String(), Exp: exp, IssuedAt: iat, AppID: iss}, nil
}

// newJWTMinter selects JWT minter based on the public key of the signer.
// Only RSA keys of size 2048 bits or more are supported by GitHub.
func newJWTMinter(signer crypto.Signer) (jwtMinter, error) {
	if signer == nil {
		return nil, fmt.Errorf("%w: no signer provided", ErrConfiguration)
	}

	switch v := signer.Public().(type) {
	case *rsa.PublicKey:
		if v.N.BitLen() < 2048 {
			return nil, fmt.Errorf("%w: rsa keys size(%d) < 2048 bits", ErrInvalidKey, v.N.BitLen())
		}
		return &jwtRS256{internal: signer}, nil
	case *ecdsa.PublicKey:
		return nil, fmt.Errorf("%w: ECDSA keys are not supported", ErrInvalidKey)
	case *ed25519.PublicKey, ed25519.PublicKey:
		return nil, fmt.Errorf("%w: ED-25519 keys are not supported", ErrInvalidKey)
	default:
		return nil, fmt.Errorf("%w: unsupported key type: %T", ErrInvalidKey, v)
	}
}

// NewJWT returns new JWT bearer token signed by the signer.
//
// Returned JWT is valid for 10 minutes. Ensure that your machine's clock is accurate.
//
//   - Unlike [NewTokenManager], this does not validate the installation.
//     This simply mints the JWT as required by GitHub app authentication.
//   - RSA keys of length less than 2048 bits are not supported.
//   - Only RSA keys are supported. Using ECDSA, ED25519 or other keys will return error.
func NewJWT(ctx context.Context, appid uint64, signer crypto.Signer) (JWT, error) {
	var err error
	if signer == nil {
		err = errors.Join(err, errors.New("no signer provided"))
	}

	if appid == 0 {
		err = errors.Join(err, errors.New("app id cannot be zero"))
	}

	if err != nil {
		return JWT{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	minter, err := newJWTMinter(signer)
	if err != nil {
		return JWT{}, err
	}
	return minter.MintJWT(ctx, appid, time.Now())
}

// SignJWT mints a JWT for app id using PEM encoded RSA private key at the given time.
//
// Issued at is set to now-60s and expiry to now+10m. This is a pure function,
// thus for a fixed now, it always returns the same token.
func SignJWT(appID string, privateKey []byte, now time.Time) (JWT, error) {
	id, err := parseAppID(appID)
	if err != nil {
		return JWT{}, err
	}

	key, err := ParsePrivateKey(privateKey)
	if err != nil {
		return JWT{}, err
	}

	minter, err := newJWTMinter(key)
	if err != nil {
		return JWT{}, err
	}
	return minter.MintJWT(context.Background(), id, now)
}

// parseAppID parses app id which must be a non-zero integer.
func parseAppID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: app id is missing", ErrConfiguration)
	}

	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: app id is not a valid integer(%s)", ErrConfiguration, s)
	}

	if id == 0 {
		return 0, fmt.Errorf("%w: app id cannot be zero", ErrConfiguration)
	}
	return id, nil
}
