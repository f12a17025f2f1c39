package qstash

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const SignatureHeader = "Upstash-Signature"

var ErrInvalidSignature = errors.New("invalid qstash signature")

// Verify checks a callback signature against the current key, then the next key
// (QStash rotates them). destination is the URL the message was published to.
func (c *Client) Verify(signature string, destination string, body []byte) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("%w: missing %s header", ErrInvalidSignature, SignatureHeader)
	}

	err := verifyWithKey(signature, c.currentSigningKey, destination, body)
	if err == nil {
		return nil
	}
	if c.nextSigningKey == "" {
		return err
	}
	return verifyWithKey(signature, c.nextSigningKey, destination, body)
}

func verifyWithKey(signature, key, destination string, body []byte) error {
	if key == "" {
		return fmt.Errorf("%w: signing key is empty", ErrInvalidSignature)
	}

	token, err := jwt.Parse(signature,
		func(*jwt.Token) (any, error) { return []byte(key), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer("Upstash"),
		jwt.WithLeeway(time.Second),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("%w: unexpected claims", ErrInvalidSignature)
	}

	if destination != "" {
		sub, err := claims.GetSubject()
		if err != nil || sub != destination {
			return fmt.Errorf("%w: subject mismatch", ErrInvalidSignature)
		}
	}

	bodyClaim, _ := claims["body"].(string)
	sum := sha256.Sum256(body)
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if strings.TrimRight(bodyClaim, "=") != want {
		return fmt.Errorf("%w: body hash mismatch", ErrInvalidSignature)
	}
	return nil
}
