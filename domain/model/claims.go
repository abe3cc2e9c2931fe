package model

import "github.com/golang-jwt/jwt"

// ApiClaims are the JWT claims accepted by the HTTP API. Subject names the caller.
type ApiClaims struct {
	jwt.StandardClaims
}
