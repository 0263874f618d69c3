package useragent

import (
	"fmt"
	"os"
	"strings"

	"github.com/ua-parser/uap-go/uaparser"
	"go.uber.org/zap"
)

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

var (
	botIndicators = []string{
		"googlebot", "bingbot", "slurp", "duckduckbot", "baiduspider",
		"yandexbot", "facebookexternalhit", "twitterbot", "linkedinbot",
		"whatsapp", "telegram", "skypeuripreview", "bot", "crawler",
		"spider", "scraper",
	}
	mobileDevices = []string{"iphone", "android", "blackberry", "windows phone", "mobile", "phone"}
	tabletDevices = []string{"ipad", "tablet", "kindle", "surface"}
	mobileOS      = []string{"ios", "android", "windows phone", "blackberry os", "firefox os", "sailfish os"}
	desktopOS     = []string{
		"windows", "mac os x", "macos", "linux", "ubuntu",
		"chrome os", "freebsd", "openbsd", "netbsd",
	}
)

// Parser wraps the uap-go parser with device type detection
type Parser struct {
	parser *uaparser.Parser
	log    *zap.Logger
}

// DeviceInfo represents parsed device information
type DeviceInfo struct {
	DeviceType string // mobile, desktop, tablet, bot, unknown
	Browser    string // Chrome, Firefox, Safari, etc.
	OS         string // Windows, iOS, Android, etc.
}

// NewParser creates a parser from a regexes.yaml file. An empty path uses
// the definitions compiled into uap-go.
func NewParser(regexFilePath string, log *zap.Logger) (*Parser, error) {
	if regexFilePath == "" {
		log.Info("User-Agent parser initialized with built-in regexes")
		return &Parser{parser: uaparser.NewFromSaved(), log: log}, nil
	}

	regexBytes, err := os.ReadFile(regexFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read regexes file %s: %w", regexFilePath, err)
	}

	parser, err := uaparser.NewFromBytes(regexBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create User-Agent parser: %w", err)
	}

	log.Info("User-Agent parser initialized", zap.String("regexes_file", regexFilePath))

	return &Parser{
		parser: parser,
		log:    log,
	}, nil
}

// Parse parses a User-Agent string into device information
func (p *Parser) Parse(userAgent string) DeviceInfo {
	if strings.TrimSpace(userAgent) == "" {
		return DeviceInfo{DeviceType: DeviceUnknown, Browser: DeviceUnknown, OS: DeviceUnknown}
	}

	client := p.parser.Parse(userAgent)

	info := DeviceInfo{
		DeviceType: determineDeviceType(client, userAgent),
		Browser:    formatFamily(client.UserAgent.Family),
		OS:         formatFamily(client.Os.Family),
	}

	p.log.Debug("parsed User-Agent",
		zap.String("device_type", info.DeviceType),
		zap.String("browser", info.Browser),
		zap.String("os", info.OS),
	)

	return info
}

func determineDeviceType(client *uaparser.Client, userAgent string) string {
	ua := strings.ToLower(userAgent)

	if containsAny(strings.ToLower(client.UserAgent.Family), botIndicators) || containsAny(ua, botIndicators) {
		return DeviceBot
	}

	deviceFamily := strings.ToLower(client.Device.Family)
	if deviceFamily != "" && deviceFamily != "other" {
		if containsAny(deviceFamily, tabletDevices) {
			return DeviceTablet
		}
		if containsAny(deviceFamily, mobileDevices) {
			return DeviceMobile
		}
	}

	osFamily := strings.ToLower(client.Os.Family)
	if containsAny(osFamily, mobileOS) {
		if isTabletOS(osFamily, ua) {
			return DeviceTablet
		}
		return DeviceMobile
	}

	if containsAny(osFamily, desktopOS) {
		return DeviceDesktop
	}

	return DeviceUnknown
}

// isTabletOS отличает iPad от iPhone и Android планшеты от телефонов
func isTabletOS(osFamily, ua string) bool {
	switch {
	case strings.Contains(osFamily, "ios"):
		return strings.Contains(ua, "ipad")
	case strings.Contains(osFamily, "android"):
		// у Android планшетов обычно нет "Mobile" в User-Agent
		return !strings.Contains(ua, "mobile")
	}
	return false
}

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func formatFamily(s string) string {
	if s == "" || s == "Other" {
		return DeviceUnknown
	}
	return s
}
