package workspace

// State 工作区上下文生命周期
// Uninitialized -> Loading -> Ready；切换与刷新期间 Ready -> Loading
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Snapshot 一次操作内使用的活动租户快照，操作过程中不得重新读取
type Snapshot struct {
	TenantID    string
	PrincipalID string
	Generation  uint64
}

// Reason 活动租户变化原因
type Reason string

const (
	ReasonInitialize Reason = "initialize"
	ReasonSwitch     Reason = "switch"
	ReasonRevoked    Reason = "revoked" // 刷新后原活动租户不再可访问
)

// Change 活动租户变化通知
type Change struct {
	Previous   string
	Current    string
	Generation uint64
	Reason     Reason
}

// Listener 在新数据加载前同步收到通知，用于丢弃旧租户的缓存
type Listener interface {
	OnWorkspaceChange(change Change)
}

// ListenerFunc 函数适配器
type ListenerFunc func(Change)

func (f ListenerFunc) OnWorkspaceChange(c Change) { f(c) }
