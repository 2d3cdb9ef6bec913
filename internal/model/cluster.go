package model

// ClusterSummary 是聚类报告中的一个簇。
type ClusterSummary struct {
	Rank     int      `json:"rank"`
	Count    int      `json:"count"`
	Repr     string   `json:"repr"`
	LastTs   ISOTime  `json:"lastTs"`
	Examples []string `json:"examples"`
}

// ClusterUsage 回显本次聚类实际使用的参数。
type ClusterUsage struct {
	Threshold     float64 `json:"threshold"`
	IncludeAnswer bool    `json:"includeAnswer"`
	Method        string  `json:"method"`
	N             int     `json:"n"`
	JudgeCalls    int     `json:"judgeCalls"`
}

// ClusterReport 是 /insights/clusters 的返回结构。
type ClusterReport struct {
	Clusters []ClusterSummary `json:"clusters"`
	Used     ClusterUsage     `json:"used"`
}
