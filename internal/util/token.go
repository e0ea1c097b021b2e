package util

import (
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/upsidelab/physionet-build/dao/model"
	"github.com/upsidelab/physionet-build/pkg/config"
)

type (
	JWTClaims struct {
		UserID       uint       `json:"ui"`
		Username     string     `json:"un"`
		RolePlatform model.Role `json:"rp"`
		jwt.RegisteredClaims
	}
	JWTMessage struct {
		UserID       uint       `json:"userID"`
		Username     string     `json:"username"`
		RolePlatform model.Role `json:"rolePlatform"`
	}
)

// TokenManager verifies the platform-issued access tokens. This backend
// does not log users in itself; the main platform shares the signing
// secret and mints the tokens.
type TokenManager struct {
	secretKey      string
	accessTokenTTL int
}

var (
	once     sync.Once
	tokenMgr *TokenManager
)

func GetTokenMgr() *TokenManager {
	once.Do(func() {
		conf := config.GetConfig()
		tokenMgr = &TokenManager{
			secretKey:      conf.Auth.AccessTokenSecret,
			accessTokenTTL: conf.Auth.AccessTokenExpiryHour,
		}
	})
	return tokenMgr
}

// CreateToken is used by tests and local tooling; production tokens
// come from the platform.
func (tm *TokenManager) CreateToken(msg *JWTMessage) (string, error) {
	expiresAt := time.Now().Add(time.Hour * time.Duration(tm.accessTokenTTL))
	claims := &JWTClaims{
		UserID:       msg.UserID,
		Username:     msg.Username,
		RolePlatform: msg.RolePlatform,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(tm.secretKey))
}

func (tm *TokenManager) CheckToken(requestToken string) (JWTMessage, error) {
	claims := JWTClaims{}
	_, err := jwt.ParseWithClaims(requestToken, &claims, func(_ *jwt.Token) (any, error) {
		return []byte(tm.secretKey), nil
	})
	return JWTMessage{
		UserID:       claims.UserID,
		Username:     claims.Username,
		RolePlatform: claims.RolePlatform,
	}, err
}
