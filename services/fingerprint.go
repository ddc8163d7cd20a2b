package services

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"

	"github.com/medigo-health/medigo_api/shared"
)

// FingerprintService derives a stable per-client identifier from passive
// request signals. The digest is the rate limiter's device axis; the
// DeviceLabel heuristics exist for analytics only and must never feed a
// security decision.
type FingerprintService struct {
	context.DefaultService
}

const FINGERPRINT_SVC = "fingerprint_svc"

func (svc FingerprintService) Id() string {
	return FINGERPRINT_SVC
}

func (svc *FingerprintService) Start() error {
	return nil
}

// Fingerprint hashes UA|Accept-Language|Accept-Encoding|IP. Identical
// inputs always produce the identical digest; any single differing input
// produces a different one.
func (svc *FingerprintService) Fingerprint(userAgent, acceptLanguage, acceptEncoding, ip string) string {
	if userAgent == "" && acceptLanguage == "" && acceptEncoding == "" && ip == "" {
		return shared.FingerprintUnknown
	}

	h := sha256.New()
	h.Write([]byte(userAgent))
	h.Write([]byte{'|'})
	h.Write([]byte(acceptLanguage))
	h.Write([]byte{'|'})
	h.Write([]byte(acceptEncoding))
	h.Write([]byte{'|'})
	h.Write([]byte(ip))

	return hex.EncodeToString(h.Sum(nil))
}

// Middleware resolves the client IP and fingerprint once per request and
// stores them in locals for the limiter and the session layer.
func (svc *FingerprintService) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := getClientIP(c)
		c.Locals(shared.ClientIP, ip)
		c.Locals(shared.DeviceFingerprint, svc.Fingerprint(
			c.Get(fiber.HeaderUserAgent),
			c.Get(fiber.HeaderAcceptLanguage),
			c.Get(fiber.HeaderAcceptEncoding),
			ip,
		))
		return c.Next()
	}
}

type DeviceInfo struct {
	Browser     string `json:"browser"`
	OS          string `json:"os"`
	DeviceClass string `json:"device_class"`
}

// DeviceLabel is a best-effort substring classification of the User-Agent.
// Analytics only.
func (svc *FingerprintService) DeviceLabel(userAgent string) DeviceInfo {
	ua := strings.ToLower(userAgent)

	info := DeviceInfo{Browser: "unknown", OS: "unknown", DeviceClass: "desktop"}

	switch {
	case strings.Contains(ua, "edg/"):
		info.Browser = "edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		info.Browser = "opera"
	case strings.Contains(ua, "chrome"):
		info.Browser = "chrome"
	case strings.Contains(ua, "safari"):
		info.Browser = "safari"
	case strings.Contains(ua, "firefox"):
		info.Browser = "firefox"
	}

	switch {
	case strings.Contains(ua, "android"):
		info.OS = "android"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		info.OS = "ios"
	case strings.Contains(ua, "windows"):
		info.OS = "windows"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		info.OS = "macos"
	case strings.Contains(ua, "linux"):
		info.OS = "linux"
	}

	switch {
	case strings.Contains(ua, "bot") || strings.Contains(ua, "crawler") || strings.Contains(ua, "spider"):
		info.DeviceClass = "bot"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone"):
		info.DeviceClass = "mobile"
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		info.DeviceClass = "tablet"
	}

	return info
}

func getClientIP(c *fiber.Ctx) string {
	forwarded := c.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	realIP := c.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	cfIP := c.Get("CF-Connecting-IP")
	if cfIP != "" {
		return cfIP
	}

	ip, _, err := net.SplitHostPort(c.Context().RemoteAddr().String())
	if err != nil {
		return c.Context().RemoteAddr().String()
	}

	return ip
}
