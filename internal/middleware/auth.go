package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
)

const buyerKey = "buyer"

// Claims are issued by the user service; only validation happens here.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Auth validates HS256 bearer tokens and stores the caller as a models.Buyer.
func Auth(secret []byte) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		var claims Claims
		_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		buyer, err := buyerFromClaims(&claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(buyerKey, buyer)
		c.Next()
	}
}

func buyerFromClaims(claims *Claims) (models.Buyer, error) {
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return models.Buyer{}, errors.New("token subject is not a user id")
	}
	if claims.Email == "" {
		return models.Buyer{}, errors.New("token has no email claim")
	}
	return models.Buyer{ID: id, Email: claims.Email}, nil
}

// CurrentBuyer returns the buyer stored by Auth.
func CurrentBuyer(c *gin.Context) (models.Buyer, bool) {
	v, ok := c.Get(buyerKey)
	if !ok {
		return models.Buyer{}, false
	}
	buyer, ok := v.(models.Buyer)
	return buyer, ok
}
