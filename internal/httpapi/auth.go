package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const tokenAudience = "notesync"

type authError struct {
	status  int
	code    string
	message string
}

func (e *authError) Error() string {
	return e.message
}

type ownerClaims struct {
	OwnerID string
	Exp     int64
}

// authorizeBearer maps a bearer credential to an owner identity. An absent
// credential is "unauthenticated"; anything present but unusable (malformed,
// expired, bad signature, wrong audience) is "invalid_credential". The gate
// is stateless and never consults the note store.
func authorizeBearer(authHeader, jwtSecret string, now time.Time) (ownerClaims, *authError) {
	if strings.TrimSpace(authHeader) == "" {
		return ownerClaims{}, &authError{
			status:  401,
			code:    "unauthenticated",
			message: "missing bearer token",
		}
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ownerClaims{}, invalidCredential("authorization header is not a bearer token")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return ownerClaims{}, invalidCredential("invalid jwt format")
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return ownerClaims{}, invalidCredential("invalid jwt header")
	}
	var header struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return ownerClaims{}, invalidCredential("invalid jwt header")
	}
	if header.Alg != "HS256" {
		return ownerClaims{}, invalidCredential("unsupported jwt algorithm")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ownerClaims{}, invalidCredential("invalid jwt payload")
	}
	sigBytes, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return ownerClaims{}, invalidCredential("invalid jwt signature")
	}

	mac := hmac.New(sha256.New, []byte(jwtSecret))
	_, _ = mac.Write([]byte(parts[0] + "." + parts[1]))
	expected := mac.Sum(nil)
	if !hmac.Equal(sigBytes, expected) {
		return ownerClaims{}, invalidCredential("jwt signature mismatch")
	}

	var payload map[string]any
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return ownerClaims{}, invalidCredential("invalid jwt payload")
	}

	ownerID, ok := payload["sub"].(string)
	if !ok || strings.TrimSpace(ownerID) == "" {
		return ownerClaims{}, invalidCredential("missing sub claim")
	}
	if aud, ok := payload["aud"].(string); !ok || aud != tokenAudience {
		return ownerClaims{}, invalidCredential("invalid aud claim")
	}
	exp, err := parseExp(payload["exp"])
	if err != nil {
		return ownerClaims{}, invalidCredential("invalid exp claim")
	}
	if now.Unix() >= exp {
		return ownerClaims{}, invalidCredential("token expired")
	}

	return ownerClaims{
		OwnerID: strings.TrimSpace(ownerID),
		Exp:     exp,
	}, nil
}

func invalidCredential(message string) *authError {
	return &authError{status: 401, code: "invalid_credential", message: message}
}

func parseExp(v any) (int64, error) {
	switch typed := v.(type) {
	case float64:
		return int64(typed), nil
	case int64:
		return typed, nil
	case json.Number:
		return typed.Int64()
	default:
		return 0, errors.New("unsupported exp type")
	}
}
