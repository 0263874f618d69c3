package useragent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParser_Parse(t *testing.T) {
	parser, err := NewParser("", zap.NewNop())
	require.NoError(t, err)

	tests := []struct {
		name       string
		userAgent  string
		deviceType string
	}{
		{
			name:       "desktop chrome",
			userAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			deviceType: DeviceDesktop,
		},
		{
			name:       "iphone",
			userAgent:  "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			deviceType: DeviceMobile,
		},
		{
			name:       "ipad",
			userAgent:  "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
			deviceType: DeviceTablet,
		},
		{
			name:       "googlebot",
			userAgent:  "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			deviceType: DeviceBot,
		},
		{
			name:       "empty",
			userAgent:  "",
			deviceType: DeviceUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := parser.Parse(tt.userAgent)
			assert.Equal(t, tt.deviceType, info.DeviceType)
		})
	}
}

func TestParser_BrowserAndOS(t *testing.T) {
	parser, err := NewParser("", zap.NewNop())
	require.NoError(t, err)

	info := parser.Parse("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	assert.Equal(t, "Chrome", info.Browser)
	assert.Equal(t, "Windows", info.OS)
}

func TestNewParser_MissingFile(t *testing.T) {
	_, err := NewParser("/nonexistent/regexes.yaml", zap.NewNop())
	assert.Error(t, err)
}
