package utils

// Server-side messages for health checks and error bodies.

var translations = map[string]map[string]string{
	"en": {
		"health.ok":          "ok",
		"error.invalid":      "The rating data could not be processed.",
		"error.unauthorized": "Authentication is required.",
		"error.not_found":    "Not found.",
		"error.too_large":    "The request body is too large.",
		"error.rate_limited": "Too many requests. Please retry later.",
		"error.method":       "Method not allowed.",
		"error.internal":     "Internal error.",
	},
	"zh": {
		"health.ok":          "好的",
		"error.invalid":      "无法处理评分数据。",
		"error.unauthorized": "需要身份验证。",
		"error.not_found":    "未找到。",
		"error.too_large":    "请求体过大。",
		"error.rate_limited": "请求过于频繁，请稍后重试。",
		"error.method":       "不支持该请求方法。",
		"error.internal":     "内部错误。",
	},
}

// T returns the translated string for key in locale; falls back to English.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if v, ok := translations["en"][key]; ok {
		return v
	}
	return key
}
