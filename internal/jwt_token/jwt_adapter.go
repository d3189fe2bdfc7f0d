package jwttoken

import (
	"github.com/ethereum/go-ethereum/common"

	"passport/internal/platform/middleware"
)

func ToMiddlewareClaims(claims *Claims) *middleware.CallerClaims {
	return &middleware.CallerClaims{
		Caller: common.HexToAddress(claims.Subject),
		JTI:    claims.ID,
	}
}

// JWTServiceAdapter exposes JWTService as a middleware.CallerValidator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.CallerClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
