package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type turn struct{ who, what string }

func (t turn) Speaker() string { return t.who }
func (t turn) Text() string    { return t.what }

func TestFormatHistory(t *testing.T) {
	out := FormatHistory([]turn{{"User", "hi"}, {"AI", "hello"}})
	assert.Equal(t, "User: hi\n\nAI: hello", out)
	assert.Equal(t, "", FormatHistory([]turn{}))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", TruncateText("short", 100))
	assert.Equal(t, "abcdefg...", TruncateText("abcdefghijklmnop", 10))
	assert.Equal(t, "ünï...", TruncateText("ünïcödé text", 6))
	assert.Equal(t, "..", TruncateText("abcdef", 2))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens("abc"))
	assert.Equal(t, 3, EstimateTokens("twelve chars"))
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512.00 B", HumanSize(512))
	assert.Equal(t, "1.50 KB", HumanSize(1536))
	assert.Equal(t, "2.00 MB", HumanSize(2*1024*1024))
	assert.Equal(t, "1.00 TB", HumanSize(1024*1024*1024*1024))
}
