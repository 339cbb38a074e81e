package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ayothedoc3/labyrinthos-contracts/internal/model"
)

var ErrInvalidToken = errors.New("invalid access token")

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type Parser struct {
	secret []byte
}

func NewParser(secret string) *Parser {
	return &Parser{secret: []byte(secret)}
}

// Parse validates an HS256 access token and extracts the principal.
func (p *Parser) Parse(token string) (model.Principal, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return model.Principal{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: bad user_id", ErrInvalidToken)
	}
	role, ok := model.ParseRole(claims.Role)
	if !ok {
		return model.Principal{}, fmt.Errorf("%w: bad role", ErrInvalidToken)
	}

	return model.Principal{UserID: userID, Role: role}, nil
}
