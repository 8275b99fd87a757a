// Package crawlers 提供动态渲染页面的卡片数据提取功能
//
// # 概述
//
// 目标页面通过无限滚动懒加载卡片列表。提取分三步: 滚动直到页面高度稳定,
// 按结构特征枚举卡片并逐字段提取,最后写出截图和JSON快照。
//
// # 核心组件
//
// ## PageSession
//
// 渲染会话的能力接口。ScrollLoader和CardExtractor只依赖该接口:
//   - RodSession: 基于go-rod的无头浏览器会话
//   - HTMLSession: 基于goquery的离线HTML回放,用于 extract --from-html 和测试
//
// ## ScrollLoader
//
// 反复读取页面高度并滚动到底部。高度不再增长且至少已滚动4次时停止,
// 最多滚动20次。永不返回错误。
//
//	stats := NewScrollLoader().Load(ctx, session)
//
// ## CardExtractor
//
// 每个字段的提取结果是 Field[T] (存在或缺失),某个字段出错只会使该字段缺失。
// 逃逸出字段保护的panic在卡片边界被捕获,该卡片被跳过。
//
//	records, err := NewCardExtractor().Extract(ctx, session)
//
// ## ExtractionRun
//
// 组合以上组件完成一次页面访问,会话在所有退出路径上都会被释放。
//
//	run := NewExtractionRun(factory, DefaultExtractionOptions())
//	snapshot, err := run.Run(ctx)
//
// ## ResourceMonitor
//
// 启动浏览器前用gopsutil检查主机内存和CPU余量,不足时只告警。
//
// ## RequestHeaders
//
// 配置文件与命令行 -H 合并后的页面附加请求头,校验后通过 SetExtraHeaders 设置。
package crawlers
