package idem

// MetricRequestsTotal 幂等请求数，标签 result: executed | replayed | in_progress | error
const MetricRequestsTotal = "idem_requests_total"
