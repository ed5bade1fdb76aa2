package fulfillment

const (
	// MetricIntentsTotal 意图处理结果，标签 result：
	// created / duplicate / dropped / compensated / requeued / abandoned
	MetricIntentsTotal = "fulfillment_intents_total"

	// MetricAttemptsTotal 落库尝试次数，标签 result
	MetricAttemptsTotal = "fulfillment_attempts_total"

	// MetricHandleDuration 单条意图从取令牌到确认的耗时
	MetricHandleDuration = "fulfillment_handle_duration_seconds"
)
