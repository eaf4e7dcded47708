package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common JWT validation errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingClaims    = errors.New("required claims are missing")
)

// Claims represents the custom JWT claims carried by session tokens
type Claims struct {
	UserID string `json:"sub"`
	Email  string `json:"email"`
	Plan   string `json:"plan"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT validation configuration
type JWTConfig struct {
	SigningMethod string
	SecretKey     string
	Issuer        string
	Audience      []string
}

// JWTValidator validates JWT tokens
type JWTValidator struct {
	config JWTConfig
}

// NewJWTValidator creates a new JWT validator
func NewJWTValidator(config JWTConfig) (*JWTValidator, error) {
	if config.SecretKey == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	if config.SigningMethod == "" {
		config.SigningMethod = "HS256"
	}
	if config.SigningMethod != "HS256" {
		return nil, fmt.Errorf("unsupported signing method: %s", config.SigningMethod)
	}
	return &JWTValidator{config: config}, nil
}

// ValidateToken parses and validates a token string, returning its claims
func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.config.SigningMethod}),
	}
	if v.config.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.config.Issuer))
	}
	if len(v.config.Audience) > 0 {
		parserOpts = append(parserOpts, jwt.WithAudience(v.config.Audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(v.config.SecretKey), nil
	}, parserOpts...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, ErrMissingClaims
	}

	return claims, nil
}

// JWTGeneratorConfig holds JWT generation configuration
type JWTGeneratorConfig struct {
	SigningMethod string
	SecretKey     string
	Issuer        string
	Audience      []string
	ExpiryTime    time.Duration
}

// JWTGenerator issues signed session tokens
type JWTGenerator struct {
	config JWTGeneratorConfig
}

// NewJWTGenerator creates a new JWT generator
func NewJWTGenerator(config JWTGeneratorConfig) (*JWTGenerator, error) {
	if config.SecretKey == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	if config.SigningMethod == "" {
		config.SigningMethod = "HS256"
	}
	if config.SigningMethod != "HS256" {
		return nil, fmt.Errorf("unsupported signing method: %s", config.SigningMethod)
	}
	if config.ExpiryTime == 0 {
		config.ExpiryTime = 24 * time.Hour
	}
	return &JWTGenerator{config: config}, nil
}

// GenerateToken creates a signed token for a user
func (g *JWTGenerator) GenerateToken(userID, email, plan string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Plan:   plan,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.config.Issuer,
			Audience:  g.config.Audience,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.config.ExpiryTime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(g.config.SecretKey))
}
