package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTicketInvalid = errors.New("内容凭证无效")
	ErrTicketExpired = errors.New("内容凭证已过期")
)

const contentTicketSubject = "claim-content"

// NewGiftToken 生成礼物领取口令（32 字节随机数，URL 安全编码）
func NewGiftToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand 失败意味着系统熵源不可用，直接 panic 比发出弱 token 安全
		panic(fmt.Sprintf("读取随机源失败: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// HashGiftToken 计算 token 的加盐哈希，用于旧链接兼容查找
func HashGiftToken(secretKey, token string) string {
	sum := sha256.Sum256([]byte(secretKey + ":" + token))
	return hex.EncodeToString(sum[:])
}

type contentTicketClaims struct {
	RedPacketID int64 `json:"red_packet_id"`
	jwt.RegisteredClaims
}

// CreateContentTicket 签发内容凭证
// text/qr_image 类型的红包内容不直接出现在跳转地址里，
// 而是通过这张短时效凭证在内容页二次兑换
func CreateContentTicket(secretKey string, redPacketID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := contentTicketClaims{
		RedPacketID: redPacketID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   contentTicketSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
}

// VerifyContentTicket 校验内容凭证，返回红包ID
func VerifyContentTicket(secretKey, ticket string) (int64, error) {
	claims := &contentTicketClaims{}
	token, err := jwt.ParseWithClaims(ticket, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secretKey), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTicketExpired
		}
		return 0, ErrTicketInvalid
	}
	if !token.Valid || claims.Subject != contentTicketSubject || claims.RedPacketID <= 0 {
		return 0, ErrTicketInvalid
	}
	return claims.RedPacketID, nil
}
