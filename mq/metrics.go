package mq

const (
	// MetricPublishTotal 发布次数，标签 topic、result
	MetricPublishTotal = "mq_publish_total"

	// MetricPublishDuration 发布到收到确认的耗时（秒）
	MetricPublishDuration = "mq_publish_duration_seconds"

	// MetricConsumeTotal 消费次数，标签 topic、result=ack|nak|error
	MetricConsumeTotal = "mq_consume_total"

	// MetricHandleDuration Handler 耗时（秒）
	MetricHandleDuration = "mq_handle_duration_seconds"
)

// LabelTopic 主题标签
const LabelTopic = "topic"
