package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "短文本整体遮罩", in: "abc", want: "****"},
		{name: "临界长度整体遮罩", in: "abcd", want: "****"},
		{name: "保留首尾", in: "ABCDEFGH", want: "AB****GH"},
		{name: "中文按字符遮罩", in: "兑换码一二三四", want: "兑换***三四"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, maskSecret(tc.in))
		})
	}
}
