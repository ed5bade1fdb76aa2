package db

const (
	// MetricTransactionDuration 事务耗时，标签 result=commit|rollback
	MetricTransactionDuration = "db_transaction_duration_seconds"
)
