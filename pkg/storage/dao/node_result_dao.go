package dao

import "time"

// NodeResultDAO node_result表的数据访问对象（内部使用）
type NodeResultDAO struct {
	Namespace  string    `db:"namespace"`
	Label      string    `db:"label"`
	Kind       string    `db:"kind"`
	Payload    string    `db:"payload"` // 结果序列化后的内容
	CreateTime time.Time `db:"create_time"`
}

// NodeResultPayload 读取结果时只需要的列
type NodeResultPayload struct {
	Kind    string `db:"kind"`
	Payload string `db:"payload"`
}
