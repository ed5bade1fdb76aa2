package ratelimit

const (
	// MetricAllowed 放行次数，标签 mode
	MetricAllowed = "ratelimit_allowed_total"

	// MetricDenied 拒绝次数，标签 mode
	MetricDenied = "ratelimit_denied_total"

	// MetricErrors 后端错误次数，标签 mode
	MetricErrors = "ratelimit_errors_total"

	// LabelMode 模式标签 (standalone/distributed)
	LabelMode = "mode"
)
