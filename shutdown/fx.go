package shutdown

import (
	"go.uber.org/fx"
)

// Module FX 模块；fx 停止时按优先级执行已注册的钩子
// 放在 fx.Options 末尾，保证它的 OnStop 最先执行
var Module = fx.Module("shutdown",
	fx.Provide(NewManager),
	fx.Invoke(bindLifecycle),
)

func bindLifecycle(lc fx.Lifecycle, m *Manager) {
	lc.Append(fx.Hook{OnStop: m.Shutdown})
}
