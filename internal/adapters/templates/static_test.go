package templates

import (
	"context"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/xhs-pilot/internal/domain"
)

type constRandom float64

func (r constRandom) Float64() float64 {
	return float64(r)
}

func TestStaticGenerate(t *testing.T) {
	t.Parallel()

	gen := NewStatic(constRandom(0))

	tmpl, err := gen.Generate(context.Background(), "周末旅行", domain.NoteTypeImage)
	require.NoError(t, err)

	require.Len(t, tmpl.Titles, titleCount)
	assert.Equal(t, "3个周末旅行技巧，第1个绝了", tmpl.Titles[0])
	for _, title := range tmpl.Titles {
		assert.LessOrEqual(t, utf8.RuneCountInString(title), domain.MaxTitleLength)
		assert.NotContains(t, title, "{")
	}

	assert.Contains(t, tmpl.Hook, "周末旅行")
	assert.Contains(t, tmpl.Closing, "周末旅行")
	assert.Equal(t, []string{"周末旅行", "旅行攻略", "小众旅行地", "自由行", "周末去哪玩", "干货分享"}, tmpl.Tags)
}

func TestStaticGenerateByNoteType(t *testing.T) {
	t.Parallel()

	gen := NewStatic(constRandom(0.99))

	tests := []struct {
		noteType domain.NoteType
		wantHook string
	}{
		{noteType: domain.NoteTypeImage, wantHook: "关于咖啡，我研究了很久终于找到最优解！"},
		{noteType: domain.NoteTypeVideo, wantHook: "关于咖啡，千万别踩这些坑！"},
		{noteType: domain.NoteTypeLongform, wantHook: "最近研究咖啡有了一些心得，整理成这篇长文分享给大家。"},
		{noteType: "unknown", wantHook: "关于咖啡，我研究了很久终于找到最优解！"},
	}

	for _, tt := range tests {
		t.Run(string(tt.noteType), func(t *testing.T) {
			tmpl, err := gen.Generate(context.Background(), "咖啡", tt.noteType)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHook, tmpl.Hook)
			assert.Equal(t, []string{"咖啡", "干货分享", "经验分享", "记录生活"}, tmpl.Tags)
		})
	}
}

func TestStaticGenerateCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStatic(constRandom(0)).Generate(ctx, "咖啡", domain.NoteTypeImage)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "一二三", truncateRunes("一二三四五", 3))
	assert.Equal(t, "abc", truncateRunes("abc", 5))
}
