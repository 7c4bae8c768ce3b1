package session

import (
	"strings"

	"github.com/mssola/useragent"
)

const (
	clientName    = "aevon-rum-go"
	platformType  = "web"
	deviceMobile  = "mobile"
	deviceDesktop = "desktop"
	deviceBot     = "bot"
	unknownValue  = "unknown"
)

// Environment describes the host the pipeline runs in. It is classified
// once per session into event attributes.
type Environment struct {
	UserAgent     string
	Language      string
	Domain        string
	ClientVersion string
}

func collectAttributes(env Environment) map[string]any {
	attrs := map[string]any{
		"platformType":        platformType,
		"domain":              env.Domain,
		"aevon:client":        clientName,
		"aevon:clientVersion": env.ClientVersion,
	}
	if env.Language != "" {
		attrs["browserLanguage"] = env.Language
	}

	if strings.TrimSpace(env.UserAgent) == "" {
		attrs["browserName"] = unknownValue
		attrs["osName"] = unknownValue
		attrs["deviceType"] = deviceDesktop
		return attrs
	}

	ua := useragent.New(env.UserAgent)
	name, version := ua.Browser()
	attrs["browserName"] = orUnknown(name)
	attrs["browserVersion"] = orUnknown(version)

	osInfo := ua.OSInfo()
	attrs["osName"] = orUnknown(osInfo.Name)
	attrs["osVersion"] = orUnknown(osInfo.Version)

	switch {
	case ua.Bot():
		attrs["deviceType"] = deviceBot
	case ua.Mobile():
		attrs["deviceType"] = deviceMobile
	default:
		attrs["deviceType"] = deviceDesktop
	}
	return attrs
}

func orUnknown(s string) string {
	if s == "" {
		return unknownValue
	}
	return s
}
