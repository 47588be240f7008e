package services

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Client is an API client allowed to request tokens.
type Client struct {
	ID         string
	SecretHash []byte
}

type ClientStore interface {
	FindClient(id string) (*Client, error)
}

type TokenSigner func(clientID string, ttl time.Duration) (string, error)

type AuthService struct {
	store     ClientStore
	signToken TokenSigner
	tokenTTL  time.Duration
}

type TokenResult struct {
	Token     string
	ClientID  string
	ExpiresIn time.Duration
}

func NewAuthService(store ClientStore, signer TokenSigner, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{store: store, signToken: signer, tokenTTL: ttl}
}

// IssueToken verifies secret against the client's bcrypt hash and signs a token.
func (s *AuthService) IssueToken(clientID, secret string) (*TokenResult, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" || strings.TrimSpace(secret) == "" {
		return nil, NewInvalidError("client_id/secret required")
	}
	c, err := s.store.FindClient(clientID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(c.SecretHash, []byte(secret)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if s.signToken == nil {
		return nil, errors.New("token signer not configured")
	}
	token, err := s.signToken(c.ID, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &TokenResult{Token: token, ClientID: c.ID, ExpiresIn: s.tokenTTL}, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
