package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// newTokenCommand mints an owner bearer token against the shared HS256
// secret. Production credential issuance lives elsewhere; this covers local
// runs and tests.
func newTokenCommand() *cobra.Command {
	var (
		secret string
		owner  string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an owner bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(secret) == "" {
				return fmt.Errorf("--secret is required")
			}
			if strings.TrimSpace(owner) == "" {
				return fmt.Errorf("--owner is required")
			}
			token, err := mintToken(secret, owner, time.Now().UTC().Add(ttl))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", stringEnv("SYNCD_JWT_SECRET", ""), "HS256 secret the server was started with")
	cmd.Flags().StringVar(&owner, "owner", "", "owner identifier to embed as the sub claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func mintToken(secret, owner string, exp time.Time) (string, error) {
	headerBytes, err := json.Marshal(map[string]any{
		"alg": "HS256",
		"typ": "JWT",
	})
	if err != nil {
		return "", err
	}
	payloadBytes, err := json.Marshal(map[string]any{
		"sub": owner,
		"aud": "notesync",
		"exp": exp.Unix(),
		"jti": uuid.NewString(),
	})
	if err != nil {
		return "", err
	}
	signingInput := base64.RawURLEncoding.EncodeToString(headerBytes) +
		"." + base64.RawURLEncoding.EncodeToString(payloadBytes)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signingInput))
	signature := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return signingInput + "." + signature, nil
}
