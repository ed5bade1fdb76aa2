package auth

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ceyewan/seckill/xerrors"
)

// Claims JWT 载荷，Subject 为十进制的用户 ID
type Claims struct {
	jwt.RegisteredClaims

	Nickname string   `json:"nick,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// NewClaims 以用户 ID 作为 Subject 构造 Claims
func NewClaims(userID int64, nickname string, roles ...string) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: strconv.FormatInt(userID, 10)},
		Nickname:         nickname,
		Roles:            roles,
	}
}

// UserID 解析 Subject 中的用户 ID
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, xerrors.Wrapf(ErrInvalidClaims, "subject %q is not a user id", c.Subject)
	}
	return id, nil
}

// HasRole 判断是否拥有指定角色
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
