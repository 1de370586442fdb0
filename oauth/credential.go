package oauth

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultExpiresIn = 86400
	defaultTokenType = "Bearer"

	// refreshBuffer is how long before expiry a credential is treated as
	// expired.
	refreshBuffer = 5 * time.Minute
)

// Credential is the persisted token record. The JSON names are the storage
// format.
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	// IssuedAt is the Unix time in milliseconds the token was received.
	IssuedAt int64 `json:"timestamp"`
}

// ExpiresAt is the provider's expiry without the refresh buffer.
func (c *Credential) ExpiresAt() time.Time {
	return time.UnixMilli(c.IssuedAt + c.ExpiresIn*1000)
}

// NeedsRefresh reports whether now is within the refresh buffer of expiry.
func (c *Credential) NeedsRefresh(now time.Time) bool {
	if c.IssuedAt == 0 || c.ExpiresIn == 0 {
		return true
	}
	return now.UnixMilli() >= c.IssuedAt+c.ExpiresIn*1000-refreshBuffer.Milliseconds()
}

func (c *Credential) encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeCredential(s string) (*Credential, error) {
	var c Credential
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// credentialFromToken stamps a token response with the receive time and
// fills in the provider defaults.
func credentialFromToken(tok *oauth2.Token, now time.Time) *Credential {
	c := &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn(tok),
		TokenType:    tok.TokenType,
		IssuedAt:     now.UnixMilli(),
	}
	if c.TokenType == "" {
		c.TokenType = defaultTokenType
	}
	return c
}

// expiresIn reads the raw expires_in field. x/oauth2 only exposes it as an
// absolute Expiry computed against its own clock.
func expiresIn(tok *oauth2.Token) int64 {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		if v > 0 && v < math.MaxInt32 {
			return int64(v)
		}
	case int64:
		if v > 0 {
			return v
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return n
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return defaultExpiresIn
}
