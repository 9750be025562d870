package handler

import (
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"

	"redpacket/internal/model"
	"redpacket/internal/repository"
	"redpacket/internal/security"
	"redpacket/internal/service"

	"github.com/gin-gonic/gin"
)

// 领取侧的面向用户页面
// 管理端走 JSON API，扫码用户只会看到这里的 HTML

var invalidPageTmpl = template.Must(template.New("invalid").Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body{font-family:-apple-system,"PingFang SC","Microsoft YaHei",sans-serif;background:#f5f5f5;margin:0;display:flex;align-items:center;justify-content:center;min-height:100vh}
.card{background:#fff;border-radius:12px;padding:40px 32px;text-align:center;max-width:320px;box-shadow:0 2px 12px rgba(0,0,0,.08)}
.icon{font-size:48px}
h1{font-size:18px;color:#333;margin:16px 0 8px}
p{font-size:14px;color:#999;margin:0}
.contact{margin-top:24px;font-size:13px;color:#bbb}
</style>
</head>
<body>
<div class="card">
<div class="icon">{{.Icon}}</div>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
<div class="contact">{{.Contact}}</div>
</div>
</body>
</html>`))

var qrImagePageTmpl = template.Must(template.New("qrImage").Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>领取成功</title>
<style>
body{font-family:-apple-system,"PingFang SC","Microsoft YaHei",sans-serif;background:#c0392b;margin:0;display:flex;align-items:center;justify-content:center;min-height:100vh}
.card{background:#fff;border-radius:12px;padding:32px;text-align:center;max-width:340px}
h1{font-size:18px;color:#c0392b;margin:0 0 16px}
img{width:100%;border-radius:8px}
p{font-size:13px;color:#999;margin-top:16px}
</style>
</head>
<body>
<div class="card">
<h1>🎉 恭喜，领取成功</h1>
<img src="{{.ImageURL}}" alt="红包内容">
<p>长按保存图片，{{.Hint}}</p>
</div>
</body>
</html>`))

var textPageTmpl = template.Must(template.New("text").Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>领取成功</title>
<style>
body{font-family:-apple-system,"PingFang SC","Microsoft YaHei",sans-serif;background:#c0392b;margin:0;display:flex;align-items:center;justify-content:center;min-height:100vh}
.card{background:#fff;border-radius:12px;padding:32px;text-align:center;max-width:340px}
h1{font-size:18px;color:#c0392b;margin:0 0 16px}
.secret{font-family:monospace;font-size:16px;background:#f5f5f5;border-radius:8px;padding:14px;word-break:break-all;letter-spacing:1px}
button{margin-top:16px;margin-left:6px;margin-right:6px;border:none;border-radius:20px;background:#c0392b;color:#fff;font-size:14px;padding:10px 24px}
p{font-size:13px;color:#999;margin-top:16px}
</style>
</head>
<body>
<div class="card">
<h1>🎉 恭喜，领取成功</h1>
<div class="secret" id="secret" data-value="{{.Value}}">{{.Masked}}</div>
<button onclick="reveal()">显示</button>
<button onclick="copyValue()">复制</button>
<p>{{.Hint}}</p>
</div>
<script>
function reveal(){var el=document.getElementById('secret');el.textContent=el.dataset.value;}
function copyValue(){var el=document.getElementById('secret');navigator.clipboard.writeText(el.dataset.value).then(function(){alert('已复制');});}
</script>
</body>
</html>`))

type invalidPageData struct {
	Icon    string
	Title   string
	Message string
	Contact string
}

func (h *Handler) renderInvalidPage(c *gin.Context, status int, title, message string) {
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	err := invalidPageTmpl.Execute(c.Writer, invalidPageData{
		Icon:    "🧧",
		Title:   title,
		Message: message,
		Contact: h.cfg.Business.ClaimContactText,
	})
	if err != nil {
		log.Printf("[Claim] 渲染失效页失败: %v", err)
	}
}

// hostBase 内容凭证页地址的基准
// 配置了对外地址时用配置值，否则按请求推导（开发环境友好）
func (h *Handler) hostBase(c *gin.Context) string {
	if h.cfg.Server.PublicBaseURL != "" {
		return h.cfg.Server.PublicBaseURL
	}
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request.Host)
}

// ClaimGift 扫码领取入口
// GET /r/:token
func (h *Handler) ClaimGift(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		h.renderInvalidPage(c, http.StatusNotFound, "链接无效", "请扫描正确的礼物二维码")
		return
	}

	target, err := h.claimService.Claim(c.Request.Context(), &service.ClaimRequest{
		Token:    token,
		IP:       c.ClientIP(),
		UA:       c.Request.UserAgent(),
		HostBase: h.hostBase(c),
	})
	if err != nil {
		h.renderClaimError(c, err)
		return
	}

	c.Redirect(http.StatusFound, target)
}

// renderClaimError 把领取拒绝翻译成用户可读的页面
func (h *Handler) renderClaimError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrGiftNotFound):
		h.renderInvalidPage(c, http.StatusNotFound, "礼物不存在", "二维码无效或链接已失效")
	case errors.Is(err, service.ErrGiftNotActive):
		h.renderInvalidPage(c, http.StatusOK, "还没到时间哦", "礼物尚未到激活时间，请稍后再来")
	case errors.Is(err, service.ErrGiftExpired):
		h.renderInvalidPage(c, http.StatusOK, "来晚了一步", "该礼物已过领取期限")
	case errors.Is(err, service.ErrGiftClaimed):
		h.renderInvalidPage(c, http.StatusOK, "已被领取", "该礼物二维码已经被领取过了")
	case errors.Is(err, service.ErrGiftDisabled),
		errors.Is(err, service.ErrNoBinding),
		errors.Is(err, service.ErrPacketDisabled),
		errors.Is(err, service.ErrPacketMissing):
		h.renderInvalidPage(c, http.StatusOK, "礼物已失效", "该礼物当前不可领取")
	case errors.Is(err, service.ErrPacketTaken):
		h.renderInvalidPage(c, http.StatusOK, "手慢了", "红包已被领取")
	default:
		log.Printf("[Claim] 领取异常: %v", err)
		h.renderInvalidPage(c, http.StatusInternalServerError, "系统繁忙", "请稍后重试")
	}
}

// RevealContent 内容凭证兑换页
// GET /claim/content?ticket=xxx
func (h *Handler) RevealContent(c *gin.Context) {
	ticket := c.Query("ticket")
	if ticket == "" {
		h.renderInvalidPage(c, http.StatusBadRequest, "链接无效", "缺少内容凭证")
		return
	}

	packet, err := h.claimService.RevealContent(c.Request.Context(), ticket)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrTicketExpired):
			h.renderInvalidPage(c, http.StatusOK, "凭证已过期", "内容凭证已过期，请重新扫码领取")
		case errors.Is(err, security.ErrTicketInvalid):
			h.renderInvalidPage(c, http.StatusOK, "凭证无效", "内容凭证无效")
		case errors.Is(err, repository.ErrPacketNotFound):
			h.renderInvalidPage(c, http.StatusNotFound, "红包不存在", "红包记录已不存在")
		default:
			log.Printf("[Claim] 兑换内容异常: %v", err)
			h.renderInvalidPage(c, http.StatusInternalServerError, "系统繁忙", "请稍后重试")
		}
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	switch packet.ContentType {
	case model.ContentTypeQrImage:
		imageURL := packet.ContentImageURL
		if imageURL == "" {
			h.renderInvalidPage(c, http.StatusOK, "内容缺失", "红包内容尚未配置")
			return
		}
		_ = qrImagePageTmpl.Execute(c.Writer, gin.H{
			"ImageURL": imageURL,
			"Hint":     "扫描图中二维码完成领取",
		})
	case model.ContentTypeText:
		if packet.ContentValue == "" {
			h.renderInvalidPage(c, http.StatusOK, "内容缺失", "红包内容尚未配置")
			return
		}
		_ = textPageTmpl.Execute(c.Writer, gin.H{
			"Value":  packet.ContentValue,
			"Masked": maskSecret(packet.ContentValue),
			"Hint":   "点击显示查看完整内容，请勿泄露给他人",
		})
	default:
		// url 类型正常不会走到内容页，兜底直接跳转
		if packet.ContentValue != "" {
			c.Redirect(http.StatusFound, packet.ContentValue)
			return
		}
		h.renderInvalidPage(c, http.StatusOK, "内容缺失", "红包内容尚未配置")
	}
}

// maskSecret 文本密钥的遮罩展示：保留首尾各 2 个字符
func maskSecret(value string) string {
	runes := []rune(value)
	if len(runes) <= 4 {
		return "****"
	}
	masked := make([]rune, len(runes))
	for i := range runes {
		if i < 2 || i >= len(runes)-2 {
			masked[i] = runes[i]
		} else {
			masked[i] = '*'
		}
	}
	return string(masked)
}
