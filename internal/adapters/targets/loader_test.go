package targets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/xhs-pilot/internal/domain"
)

func TestParse(t *testing.T) {
	t.Parallel()

	want := []domain.CommentTarget{
		{Feed: domain.FeedRef{ID: "65f1a2", XsecToken: "ABC="}, Content: "拍得真好，求滤镜参数"},
		{Feed: domain.FeedRef{ID: "65f1a3"}, Content: "谢谢分享", CommentID: "c-9"},
	}

	tests := []struct {
		name string
		data string
	}{
		{
			name: "list",
			data: `
- feed_id: 65f1a2
  xsec_token: ABC=
  content: 拍得真好，求滤镜参数
- feed_id: 65f1a3
  content: 谢谢分享
  comment_id: c-9
`,
		},
		{
			name: "targets mapping",
			data: `
targets:
  - feed_id: 65f1a2
    xsec_token: ABC=
    content: 拍得真好，求滤镜参数
  - feed_id: 65f1a3
    content: 谢谢分享
    comment_id: c-9
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Parse([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, domain.ActionReply, got[1].Action())
		})
	}
}

func TestParseEmptyAndInvalid(t *testing.T) {
	t.Parallel()

	got, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Parse([]byte("just a string"))
	assert.ErrorContains(t, err, "targets file must hold a list")

	_, err = Parse([]byte("- feed_id: [unclosed"))
	assert.ErrorContains(t, err, "parse targets file")
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- feed_id: abc\n  content: 好看\n"), 0o600))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].Feed.ID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read targets file")
}
