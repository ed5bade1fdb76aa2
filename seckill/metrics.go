package seckill

const (
	// MetricAdmissionsTotal 准入结果，标签 result
	MetricAdmissionsTotal = "seckill_admissions_total"

	// MetricPublishFailuresTotal 准入成功但意图消息发布失败的次数
	MetricPublishFailuresTotal = "seckill_publish_failures_total"

	// MetricAdmitDuration 准入耗时
	MetricAdmitDuration = "seckill_admit_duration_seconds"
)
