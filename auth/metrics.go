package auth

const (
	// MetricTokensValidated Token 校验次数，标签 result
	MetricTokensValidated = "auth_tokens_validated_total"

	// MetricTokensGenerated Token 签发次数
	MetricTokensGenerated = "auth_tokens_generated_total"
)
