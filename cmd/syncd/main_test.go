package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStringEnv(t *testing.T) {
	t.Setenv("SYNCD_TEST_STRING", "from-env")
	if got := stringEnv("SYNCD_TEST_STRING", "fallback"); got != "from-env" {
		t.Fatalf("stringEnv = %q, want from-env", got)
	}
	if got := stringEnv("SYNCD_TEST_STRING_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("stringEnv = %q, want fallback", got)
	}
}

func TestIntEnv(t *testing.T) {
	t.Setenv("SYNCD_TEST_INT", "42")
	if got := intEnv("SYNCD_TEST_INT", 7); got != 42 {
		t.Fatalf("intEnv = %d, want 42", got)
	}
	t.Setenv("SYNCD_TEST_INT", "not-a-number")
	if got := intEnv("SYNCD_TEST_INT", 7); got != 7 {
		t.Fatalf("intEnv = %d, want fallback 7", got)
	}
	if got := intEnv("SYNCD_TEST_INT_UNSET", 7); got != 7 {
		t.Fatalf("intEnv = %d, want fallback 7", got)
	}
}

func TestInt64Env(t *testing.T) {
	t.Setenv("SYNCD_TEST_INT64", "2147483648")
	if got := int64Env("SYNCD_TEST_INT64", 1); got != 2147483648 {
		t.Fatalf("int64Env = %d, want 2147483648", got)
	}
	t.Setenv("SYNCD_TEST_INT64", "nope")
	if got := int64Env("SYNCD_TEST_INT64", 1); got != 1 {
		t.Fatalf("int64Env = %d, want fallback 1", got)
	}
}

func TestDurationEnv(t *testing.T) {
	t.Setenv("SYNCD_TEST_DURATION", "90s")
	if got := durationEnv("SYNCD_TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Fatalf("durationEnv = %s, want 90s", got)
	}
	t.Setenv("SYNCD_TEST_DURATION", "ninety")
	if got := durationEnv("SYNCD_TEST_DURATION", time.Minute); got != time.Minute {
		t.Fatalf("durationEnv = %s, want fallback 1m", got)
	}
}

func TestMintTokenShape(t *testing.T) {
	exp := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	token, err := mintToken("s3cret", "u1", exp)
	if err != nil {
		t.Fatalf("mintToken: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var claims struct {
		Sub string `json:"sub"`
		Aud string `json:"aud"`
		Exp int64  `json:"exp"`
		Jti string `json:"jti"`
	}
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		t.Fatalf("unmarshal claims: %v", err)
	}
	if claims.Sub != "u1" || claims.Aud != "notesync" || claims.Exp != exp.Unix() {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Jti == "" {
		t.Fatal("jti should be set")
	}

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write([]byte(parts[0] + "." + parts[1]))
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if !hmac.Equal(sig, mac.Sum(nil)) {
		t.Fatal("signature does not verify with the minting secret")
	}
}

func TestTokenCommandRequiresSecretAndOwner(t *testing.T) {
	t.Setenv("SYNCD_JWT_SECRET", "")
	cmd := newTokenCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--owner", "u1"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without --secret")
	}

	cmd = newTokenCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--secret", "s3cret"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without --owner")
	}
}

func TestTokenCommandPrintsToken(t *testing.T) {
	out := new(bytes.Buffer)
	cmd := newTokenCommand()
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--secret", "s3cret", "--owner", "u1", "--ttl", "1h"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	token := strings.TrimSpace(out.String())
	if len(strings.Split(token, ".")) != 3 {
		t.Fatalf("output %q is not a jwt", token)
	}
}
