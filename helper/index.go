package helper

import (
	"errors"
	"fmt"
	"time"

	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AccessTokenTTL is the lifetime of tokens issued at login.
const AccessTokenTTL = 12 * time.Hour

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func GetUserByEmail(db *gorm.DB, email string) (*model.User, error) {
	var user model.User
	if err := db.Where(&model.User{Email: email}).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func GenerateAccessToken(tokenClaim model.TokenClaim, secret []byte) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)

	claims := token.Claims.(jwt.MapClaims)
	claims["userId"] = tokenClaim.UserId
	claims["role"] = tokenClaim.Role
	claims["name"] = tokenClaim.Name
	claims["exp"] = time.Now().Add(AccessTokenTTL).Unix()

	return token.SignedString(secret)
}

func ParseToken(tokenString string, secret []byte) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
}

// GetInfoFromToken reads the claims stored by middleware.Protected.
func GetInfoFromToken(c *fiber.Ctx) (model.TokenClaim, bool) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return model.TokenClaim{}, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return model.TokenClaim{}, false
	}
	userID, ok := claims["userId"].(float64)
	if !ok || userID <= 0 {
		return model.TokenClaim{}, false
	}
	role, _ := claims["role"].(string)
	name, _ := claims["name"].(string)
	return model.TokenClaim{UserId: uint(userID), Role: role, Name: name}, true
}

// GetActor is the authenticated caller plus the device it calls from.
func GetActor(c *fiber.Ctx) (model.Actor, bool) {
	claim, ok := GetInfoFromToken(c)
	if !ok {
		return model.Actor{}, false
	}
	return model.Actor{
		UserID:   claim.UserId,
		Role:     claim.Role,
		DeviceID: c.Get(constants.HEADER_DEVICE_ID),
	}, true
}
