package bloom

// MetricCheckTotal 成员判定次数，标签 kind、result=maybe|miss
const MetricCheckTotal = "bloom_check_total"
