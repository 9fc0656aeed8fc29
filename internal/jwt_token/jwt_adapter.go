package jwttoken

// JWTServiceAdapter exposes the token service through the middleware's
// TokenValidator shape.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateChatToken(tokenString string) (string, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.ChatID, nil
}
