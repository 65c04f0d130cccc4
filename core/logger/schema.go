package logger

import "strings"

var levelNames = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

var knownStatus = map[string]struct{}{
	"ok":           {},
	"fail":         {},
	"skip":         {},
	"retry":        {},
	"rate_limited": {},
	"cancelled":    {},
}

var knownOutcome = map[string]struct{}{
	"ok":             {},
	"fail":           {},
	"cancelled":      {},
	"rate_limited":   {},
	"needs_password": {},
	"invalid_code":   {},
	"expired_code":   {},
	"wrong_password": {},
	"superseded":     {},
}

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeEnum(value string, known map[string]struct{}) (string, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", false
	}
	_, ok := known[value]
	return value, ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"attempt_id",
	"step",
	"from_step",
	"to_step",
	"outcome",
	"kind",
	"duration_ms",
	"messages",
	"kb",
	"phone",
	"artifact",
	"driver",
	"mode",
	"listen",
	"public_url",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"cause",
	"attempts",
	"elapsed_ms",
}
