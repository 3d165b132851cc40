package response

// Result 标准 API 响应结构
type Result struct {
	Code      int    `json:"code" example:"0" doc:"业务码，0 表示成功"`
	Msg       string `json:"msg" example:"ok" doc:"响应消息"`
	Data      any    `json:"data" doc:"响应数据"`
	Retryable bool   `json:"retryable,omitempty" doc:"后端暂时不可用，可稍后重试"`
}

// PageResult 分页响应结构
// Generation 为结果所属的工作区版本，客户端切换工作区后据此丢弃旧结果
type PageResult struct {
	List       any    `json:"list" doc:"数据列表"`
	Total      int64  `json:"total" example:"100" doc:"总记录数"`
	Page       int    `json:"page" example:"1" doc:"当前页码"`
	PageSize   int    `json:"page_size" example:"20" doc:"每页大小"`
	Pages      int64  `json:"pages" example:"5" doc:"总页数"`
	Generation uint64 `json:"generation,string" doc:"工作区版本"`
}
