package cache

const (
	// MetricRequests 读请求，标签 strategy、result=hit|null|stale|miss
	MetricRequests = "cache_requests_total"

	// MetricLoads 回源次数，标签 strategy、result=found|absent|error
	MetricLoads = "cache_loads_total"

	// MetricCorrupt 无法解码而被删除的条目数
	MetricCorrupt = "cache_corrupt_total"

	// MetricRebuilds 逻辑过期异步重建，标签 result=done|skipped|dropped|error
	MetricRebuilds = "cache_rebuilds_total"
)
