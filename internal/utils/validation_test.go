package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestValidateTaskID 测试任务 ID 校验
func TestValidateTaskID(t *testing.T) {
	assert.NoError(t, ValidateTaskID("task-001"))
	assert.NoError(t, ValidateTaskID("a1b2c3d4-e5f6-7890-abcd-ef1234567890"))
	assert.NoError(t, ValidateTaskID("task_001"))

	assert.ErrorIs(t, ValidateTaskID(""), ErrEmptyID)
	assert.ErrorIs(t, ValidateTaskID("task/001"), ErrInvalidIDFormat)
	assert.ErrorIs(t, ValidateTaskID("task 001"), ErrInvalidIDFormat)
	assert.ErrorIs(t, ValidateTaskID(strings.Repeat("a", 65)), ErrIDTooLong)
}

// TestValidateWalletAddress 测试钱包地址校验
func TestValidateWalletAddress(t *testing.T) {
	assert.NoError(t, ValidateWalletAddress("0x"+strings.Repeat("ab", 20)))
	assert.NoError(t, ValidateWalletAddress("0x"+strings.Repeat("AB", 20)))

	assert.ErrorIs(t, ValidateWalletAddress(""), ErrEmptyWallet)
	assert.ErrorIs(t, ValidateWalletAddress(strings.Repeat("ab", 20)), ErrInvalidWallet)
	assert.ErrorIs(t, ValidateWalletAddress("0xabc"), ErrInvalidWallet)
	assert.ErrorIs(t, ValidateWalletAddress("0x"+strings.Repeat("zz", 20)), ErrInvalidWallet)
}

// TestSanitizeString 测试危险字符清理
func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("hello"))
	assert.Equal(t, "&lt;script&gt;", SanitizeString("<script>"))

	// 控制字符被移除,换行与制表保留
	assert.Equal(t, "a\nb\tc", SanitizeString("a\nb\tc\x00"))
}

// TestTrimAndValidate 测试字符串清理与校验
func TestTrimAndValidate(t *testing.T) {
	out, err := TrimAndValidate("  hello  ", 10)
	assert.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = TrimAndValidate("   ", 10)
	assert.ErrorIs(t, err, ErrEmptyString)

	_, err = TrimAndValidate("toolongvalue", 5)
	assert.ErrorIs(t, err, ErrStringTooLong)
}
