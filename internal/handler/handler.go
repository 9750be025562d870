package handler

import (
	"errors"
	"io"
	"strconv"

	"redpacket/internal/config"
	"redpacket/internal/infrastructure/storage"
	"redpacket/internal/repository"
	"redpacket/internal/service"
	"redpacket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	cfg           *config.Config
	giftService   *service.GiftService
	packetService *service.RedPacketService
	claimService  *service.ClaimService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, channels *storage.Channels) *Handler {
	return &Handler{
		cfg:           cfg,
		giftService:   service.NewGiftService(db, cfg, channels),
		packetService: service.NewRedPacketService(db, cfg, channels),
		claimService:  service.NewClaimService(db, rdb, cfg),
	}
}

// handleServiceError 服务层错误到响应码的统一翻译
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.ParamError(c, err.Error())
	case errors.Is(err, repository.ErrGiftNotFound):
		response.BusinessError(c, response.CodeGiftNotFound, err.Error())
	case errors.Is(err, repository.ErrPacketNotFound):
		response.BusinessError(c, response.CodePacketNotFound, err.Error())
	case errors.Is(err, repository.ErrPacketConflict):
		response.BusinessError(c, response.CodePacketConflict, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "id 参数错误")
		return 0, false
	}
	return id, true
}

// ============================================================
// 礼物二维码管理接口
// ============================================================

// CreateGift 创建礼物二维码
// POST /api/v1/gifts
func (h *Handler) CreateGift(c *gin.Context) {
	var input service.GiftInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	gift, err := h.giftService.CreateGift(c.Request.Context(), &input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gift)
}

// ListGifts 礼物二维码列表
// GET /api/v1/gifts?limit=50
func (h *Handler) ListGifts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	items, err := h.giftService.ListGifts(c.Request.Context(), limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, items)
}

// GetGift 礼物二维码详情（含绑定的红包）
// GET /api/v1/gifts/:id
func (h *Handler) GetGift(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	detail, err := h.giftService.GetGift(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, detail)
}

// UpdateGift 更新礼物二维码并同步绑定
// PUT /api/v1/gifts/:id
func (h *Handler) UpdateGift(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var input service.GiftInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	gift, err := h.giftService.UpdateGift(c.Request.Context(), id, &input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gift)
}

// DeleteGift 删除礼物二维码
// DELETE /api/v1/gifts/:id
func (h *Handler) DeleteGift(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.giftService.DeleteGift(c.Request.Context(), id); err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "删除成功"})
}

// ActivateGift 上架礼物二维码
// POST /api/v1/gifts/:id/activate
func (h *Handler) ActivateGift(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.giftService.ActivateGift(c.Request.Context(), id); err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "已上架"})
}

// DisableGift 停用礼物二维码
// POST /api/v1/gifts/:id/disable
func (h *Handler) DisableGift(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.giftService.DisableGift(c.Request.Context(), id); err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "已停用"})
}

// RegenerateGiftQrcode 轮换口令并重新生成二维码图片
// POST /api/v1/gifts/:id/regenerate
func (h *Handler) RegenerateGiftQrcode(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	gift, err := h.giftService.RegenerateQrcode(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gift)
}

// ============================================================
// 红包管理接口
// ============================================================

// CreateRedPackets 创建红包（count > 1 时批量）
// POST /api/v1/red-packets
func (h *Handler) CreateRedPackets(c *gin.Context) {
	var input service.RedPacketInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	packets, err := h.packetService.CreateRedPackets(c.Request.Context(), &input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, packets)
}

// ListRedPackets 红包分页列表
// GET /api/v1/red-packets?page=1&page_size=20
func (h *Handler) ListRedPackets(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	packets, total, err := h.packetService.ListRedPackets(c.Request.Context(), page, pageSize)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"total": total,
		"items": packets,
	})
}

// GetRedPacket 红包详情
// GET /api/v1/red-packets/:id
func (h *Handler) GetRedPacket(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	packet, err := h.packetService.GetRedPacket(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, packet)
}

// UpdateRedPacket 更新红包内容
// PUT /api/v1/red-packets/:id
func (h *Handler) UpdateRedPacket(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var input service.RedPacketInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	packet, err := h.packetService.UpdateRedPacket(c.Request.Context(), id, &input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, packet)
}

// DeleteRedPacket 删除红包
// DELETE /api/v1/red-packets/:id
func (h *Handler) DeleteRedPacket(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.packetService.DeleteRedPacket(c.Request.Context(), id); err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "删除成功"})
}

// DisableRedPacket 停用红包
// POST /api/v1/red-packets/:id/disable
func (h *Handler) DisableRedPacket(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.packetService.DisableRedPacket(c.Request.Context(), id); err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "已停用"})
}

// EnableRedPacket 启用红包
// POST /api/v1/red-packets/:id/enable
func (h *Handler) EnableRedPacket(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.packetService.EnableRedPacket(c.Request.Context(), id); err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "已启用"})
}

// UploadContentImage 上传 qr_image 红包的内容图片
// POST /api/v1/red-packets/:id/content-image  (multipart, 字段名 file)
func (h *Handler) UploadContentImage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.ParamError(c, "缺少上传文件")
		return
	}
	if fileHeader.Size > 5<<20 {
		response.ParamError(c, "文件不能超过 5MB")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.ServerError(c, "读取上传文件失败")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.ServerError(c, "读取上传文件失败")
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}

	packet, err := h.packetService.UploadContentImage(c.Request.Context(), id, data, contentType)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, packet)
}

// ============================================================
// 审计日志接口
// ============================================================

func claimLogQuery(c *gin.Context) repository.ClaimLogQuery {
	giftID, _ := strconv.ParseInt(c.Query("gift_id"), 10, 64)
	packetID, _ := strconv.ParseInt(c.Query("red_packet_id"), 10, 64)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	return repository.ClaimLogQuery{
		GiftID:   giftID,
		PacketID: packetID,
		Result:   c.Query("result"),
		Keyword:  c.Query("keyword"),
		Page:     page,
		PageSize: pageSize,
	}
}

// ListClaimLogs 审计日志查询
// GET /api/v1/claim-logs
func (h *Handler) ListClaimLogs(c *gin.Context) {
	logs, total, err := h.giftService.ListClaimLogs(c.Request.Context(), claimLogQuery(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"total": total,
		"items": logs,
	})
}

// ExportClaimLogs 审计日志 CSV 导出
// GET /api/v1/claim-logs/export
func (h *Handler) ExportClaimLogs(c *gin.Context) {
	data, err := h.giftService.ExportClaimLogsCSV(c.Request.Context(), claimLogQuery(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="claim_logs.csv"`)
	c.Data(200, "text/csv; charset=utf-8", data)
}
