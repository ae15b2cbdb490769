package sso

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the decoded identity payload of an EVE SSO access token.
type TokenClaims struct {
	CharacterID   int64
	CharacterName string
	Scopes        []string
	// Owner is an opaque hash that changes when the character is
	// transferred to a different account.
	Owner     string
	Issuer    string
	ExpiresAt time.Time
}

// InspectToken decodes the claims of an EVE SSO access token without
// verifying its signature. Use it for local display and bookkeeping only;
// authorization decisions belong to the server.
//
// The subject claim carries the identity as "CHARACTER:EVE:<id>".
// The scp claim is a single string for one scope and an array otherwise.
func InspectToken(accessToken string) (*TokenClaims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", token.Claims)
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("read subject claim: %w", err)
	}
	characterID, err := characterIDFromSubject(subject)
	if err != nil {
		return nil, err
	}

	out := &TokenClaims{
		CharacterID: characterID,
		Scopes:      scopesFromClaim(claims["scp"]),
	}

	if name, ok := claims["name"].(string); ok {
		out.CharacterName = name
	}
	if owner, ok := claims["owner"].(string); ok {
		out.Owner = owner
	}
	if issuer, err := claims.GetIssuer(); err == nil {
		out.Issuer = issuer
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}

	return out, nil
}

func characterIDFromSubject(subject string) (int64, error) {
	parts := strings.Split(subject, ":")
	if len(parts) != 3 || parts[0] != "CHARACTER" || parts[1] != "EVE" {
		return 0, fmt.Errorf("unexpected subject format %q", subject)
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse character ID from subject %q: %w", subject, err)
	}
	return id, nil
}

func scopesFromClaim(claim any) []string {
	switch v := claim.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		scopes := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		if len(scopes) == 0 {
			return nil
		}
		return scopes
	default:
		return nil
	}
}
