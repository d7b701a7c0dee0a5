package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type claims
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Token validation errors
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrWrongTokenUse = errors.New("token type not valid for this operation")
)

// TokenIssuer signs and verifies access/refresh token pairs
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer creates a token issuer
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// TokenPair carries a freshly issued access and refresh token
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// IssuePair issues an access/refresh pair for a user
func (t *TokenIssuer) IssuePair(userID int) (*TokenPair, error) {
	access, err := t.sign(userID, tokenTypeAccess, t.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := t.sign(userID, tokenTypeRefresh, t.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (t *TokenIssuer) sign(userID int, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":        strconv.Itoa(userID),
		"token_type": tokenType,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccess validates an access token and returns the user ID
func (t *TokenIssuer) VerifyAccess(token string) (int, error) {
	return t.verify(token, tokenTypeAccess)
}

// Refresh validates a refresh token and issues a new access token
func (t *TokenIssuer) Refresh(refreshToken string) (string, error) {
	userID, err := t.verify(refreshToken, tokenTypeRefresh)
	if err != nil {
		return "", err
	}
	return t.sign(userID, tokenTypeAccess, t.accessTTL)
}

func (t *TokenIssuer) verify(token, wantType string) (int, error) {
	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	if claims["token_type"] != wantType {
		return 0, ErrWrongTokenUse
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.Atoi(sub)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return userID, nil
}
