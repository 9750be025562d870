package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanSync(t *testing.T) {
	testCases := []struct {
		name       string
		currentIDs []int64
		targetIDs  []int64
		wantAdd    []int64
		wantRemove []int64
	}{
		{
			name:       "空到空",
			currentIDs: nil,
			targetIDs:  nil,
		},
		{
			name:      "全新增",
			targetIDs: []int64{3, 1, 2},
			wantAdd:   []int64{1, 2, 3},
		},
		{
			name:       "全移除",
			currentIDs: []int64{5, 6},
			wantRemove: []int64{5, 6},
		},
		{
			name:       "交集不动",
			currentIDs: []int64{1, 2, 3},
			targetIDs:  []int64{2, 3, 4},
			wantAdd:    []int64{4},
			wantRemove: []int64{1},
		},
		{
			name:       "完全相同则无差量",
			currentIDs: []int64{7, 8},
			targetIDs:  []int64{8, 7},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plan := planSync(tc.currentIDs, tc.targetIDs)
			assert.Equal(t, tc.wantAdd, plan.ToAdd)
			assert.Equal(t, tc.wantRemove, plan.ToRemove)
		})
	}
}

func TestPlanSync_Idempotent(t *testing.T) {
	// 同一目标集合连续规划两次，第二次不应产生任何写入
	current := []int64{1, 2}
	target := []int64{2, 3}

	first := planSync(current, target)
	assert.Equal(t, []int64{3}, first.ToAdd)
	assert.Equal(t, []int64{1}, first.ToRemove)

	second := planSync(target, target)
	assert.Empty(t, second.ToAdd)
	assert.Empty(t, second.ToRemove)
}

func TestAutoKeepID(t *testing.T) {
	assert.Equal(t, int64(0), autoKeepID(nil))
	assert.Equal(t, int64(3), autoKeepID([]int64{3}))
	assert.Equal(t, int64(2), autoKeepID([]int64{9, 2, 5}))
}

func TestDedupIDs(t *testing.T) {
	testCases := []struct {
		name string
		in   []int64
		want []int64
	}{
		{name: "空入参", in: nil, want: []int64{}},
		{name: "去重保序", in: []int64{3, 1, 3, 2, 1}, want: []int64{3, 1, 2}},
		{name: "过滤非法id", in: []int64{0, -1, 5}, want: []int64{5}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, dedupIDs(tc.in))
		})
	}
}
