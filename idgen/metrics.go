package idgen

const (
	// MetricGenerated ID 生成次数，标签 sequence、result
	MetricGenerated = "idgen_generated_total"
)
