package auth

import (
	"github.com/angelmondragon/pickup-orders/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	Role     enums.Role
	OutletID *uuid.UUID
	JTI      string
}

// AccessTokenClaims represents the typed JWT presented by clients.
type AccessTokenClaims struct {
	UserID   uuid.UUID  `json:"user_id"`
	Role     enums.Role `json:"role"`
	OutletID *uuid.UUID `json:"outlet_id,omitempty"`
	jwt.RegisteredClaims
}
