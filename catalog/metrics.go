package catalog

const (
	// MetricOrdersTotal 订单事务结果，标签 result (created/duplicate/exhausted/error)
	MetricOrdersTotal = "catalog_orders_total"
)
