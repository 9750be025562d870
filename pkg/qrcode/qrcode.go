package qrcode

import (
	"fmt"

	qr "github.com/skip2/go-qrcode"
)

// RenderPNG 把内容渲染为 PNG 二维码
func RenderPNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = 512
	}
	data, err := qr.Encode(content, qr.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("生成二维码失败: %w", err)
	}
	return data, nil
}
