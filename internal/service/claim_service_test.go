package service

import (
	"testing"
	"time"

	"redpacket/internal/config"
	"redpacket/internal/model"
	"redpacket/internal/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestWindowReason(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name string
		gift *model.GiftQrcode
		want string
	}{
		{
			name: "无时间限制",
			gift: &model.GiftQrcode{},
			want: "",
		},
		{
			name: "未到激活时间",
			gift: &model.GiftQrcode{ActivateAt: timePtr(now.Add(time.Hour))},
			want: ReasonNotActive,
		},
		{
			name: "已过期",
			gift: &model.GiftQrcode{ExpireAt: timePtr(now.Add(-time.Minute))},
			want: ReasonExpired,
		},
		{
			name: "窗口内",
			gift: &model.GiftQrcode{
				ActivateAt: timePtr(now.Add(-time.Hour)),
				ExpireAt:   timePtr(now.Add(time.Hour)),
			},
			want: "",
		},
		{
			name: "恰在激活时刻",
			gift: &model.GiftQrcode{ActivateAt: timePtr(now)},
			want: "",
		},
		{
			name: "恰在过期时刻仍可领",
			gift: &model.GiftQrcode{ExpireAt: timePtr(now)},
			want: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, windowReason(tc.gift, now))
		})
	}
}

func TestReasonForClaimError(t *testing.T) {
	assert.Equal(t, ReasonCodeClaimed, reasonForClaimError(ErrGiftClaimed))
	assert.Equal(t, ReasonCodeDisabled, reasonForClaimError(ErrGiftDisabled))
	assert.Equal(t, ReasonNoBinding, reasonForClaimError(ErrNoBinding))
	assert.Equal(t, ReasonPacketDisabled, reasonForClaimError(ErrPacketDisabled))
	assert.Equal(t, ReasonPacketMissing, reasonForClaimError(ErrPacketMissing))
	assert.Equal(t, ReasonPacketTaken, reasonForClaimError(ErrPacketTaken))
	assert.Equal(t, "", reasonForClaimError(assert.AnError))
	assert.Equal(t, "", reasonForClaimError(nil))
}

func TestBuildContentURL(t *testing.T) {
	assert.Equal(t,
		"https://gift.example.com/claim/content?ticket=abc",
		buildContentURL("https://gift.example.com/", "abc"))
	// ticket 需要 URL 转义
	assert.Equal(t,
		"http://localhost:8080/claim/content?ticket=a%2Bb",
		buildContentURL("http://localhost:8080", "a+b"))
}

func newTestClaimService() *ClaimService {
	return &ClaimService{
		cfg: &config.Config{
			Security: config.SecurityConfig{
				SecretKey:           "test-secret",
				ContentTicketExpire: 30,
			},
		},
	}
}

func TestResolveClaimTarget_URL(t *testing.T) {
	s := newTestClaimService()

	target, err := s.resolveClaimTarget(&model.RedPacket{
		ContentType:  model.ContentTypeURL,
		ContentValue: "https://shop.example.com/coupon/1",
	}, "http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/coupon/1", target)

	// content_value 缺失时退回 claim_url
	target, err = s.resolveClaimTarget(&model.RedPacket{
		ContentType: model.ContentTypeURL,
		ClaimURL:    "https://shop.example.com/fallback",
	}, "http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/fallback", target)
}

func TestResolveClaimTarget_TicketTypes(t *testing.T) {
	s := newTestClaimService()

	for _, contentType := range []string{model.ContentTypeText, model.ContentTypeQrImage} {
		target, err := s.resolveClaimTarget(&model.RedPacket{
			ID:           42,
			ContentType:  contentType,
			ContentValue: "SECRET-CODE",
		}, "http://localhost:8080")
		require.NoError(t, err)
		assert.Contains(t, target, "http://localhost:8080/claim/content?ticket=")

		// 跳转地址里只有凭证，绝不能出现内容本身
		assert.NotContains(t, target, "SECRET-CODE")

		// 凭证能解回红包ID
		ticket := target[len("http://localhost:8080/claim/content?ticket="):]
		packetID, err := security.VerifyContentTicket("test-secret", ticket)
		require.NoError(t, err)
		assert.Equal(t, int64(42), packetID)
	}
}
