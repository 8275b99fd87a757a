package crawlers

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrScreenshotUnsupported 会话不支持截图(例如离线HTML回放)
	ErrScreenshotUnsupported = errors.New("当前会话不支持截图")
	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("会话已关闭")
	// ErrBrowserCrashed 浏览器操作panic
	ErrBrowserCrashed = errors.New("浏览器崩溃")
)

// PageSession 单个渲染会话的能力接口
// ScrollLoader与CardExtractor只依赖此接口,不直接依赖具体的自动化库
// 同一会话上的调用不会并发发生
type PageSession interface {
	// Navigate 导航到目标URL,等待网络空闲后返回
	Navigate(ctx context.Context, url string) error
	// MeasureHeight 读取当前可渲染内容的总高度
	MeasureHeight(ctx context.Context) (int, error)
	// ScrollToEnd 滚动到页面底部
	ScrollToEnd(ctx context.Context) error
	// WaitSettle 等待异步内容注入
	WaitSettle(ctx context.Context, d time.Duration) error
	// QueryAll 按选择器查找页面上的全部元素(DOM顺序)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// Screenshot 保存整页截图
	Screenshot(ctx context.Context, path string) error
	// Close 释放会话
	Close() error
}

// Element 页面元素
// QueryOne 在未匹配时返回 (nil, nil),缺失不是错误
type Element interface {
	QueryOne(selector string) (Element, error)
	QueryAll(selector string) ([]Element, error)
	// Text 元素的可见文本(innerText语义)
	Text() (string, error)
	// Attribute 属性不存在时返回nil
	Attribute(name string) (*string, error)
	Parent() (Element, error)
}

// ShadowQuerier 能穿透开放shadow root查找后代元素的Element
// 日期由add-to-calendar-button渲染在shadow tree里,普通QueryOne看不到
type ShadowQuerier interface {
	QueryShadow(selector string) (Element, error)
}

// SessionFactory 创建新的渲染会话
type SessionFactory func(ctx context.Context) (PageSession, error)

// sleepContext 可被取消的等待
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
