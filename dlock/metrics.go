package dlock

const (
	// MetricLockAcquired 锁获取成功次数，标签 backend、operation
	MetricLockAcquired = "dlock_lock_acquired_total"

	// MetricLockFailed 锁获取失败次数（被占用或出错）
	MetricLockFailed = "dlock_lock_failed_total"

	// MetricLockReleased 锁释放次数，标签 backend、result
	MetricLockReleased = "dlock_lock_released_total"

	// LabelBackend 后端类型标签
	LabelBackend = "backend"
)
