package crawlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/RecoveryAshes/HackSync/internal/utils"
)

// DefaultUserAgent 浏览器会话使用的UA
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// BrowserOptions 浏览器会话参数
type BrowserOptions struct {
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	IdleWindow        time.Duration // 判定网络空闲的静默窗口
	Bin               string        // 浏览器可执行文件,为空时由launcher自动下载
	UserAgent         string
	Headers           http.Header // 页面请求附加头部
}

// DefaultBrowserOptions 默认浏览器参数
func DefaultBrowserOptions() BrowserOptions {
	return BrowserOptions{
		Headless:          true,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		NavigationTimeout: 60 * time.Second,
		IdleWindow:        500 * time.Millisecond,
		UserAgent:         DefaultUserAgent,
	}
}

// browserProcess launcher启动的浏览器进程
// Cleanup等待进程退出并删除临时用户数据目录
type browserProcess interface {
	Kill()
	Cleanup()
}

// abortLaunch 连接失败时结束进程,不留下临时用户数据目录
func abortLaunch(p browserProcess) {
	p.Kill()
	p.Cleanup()
}

// RodSession 基于go-rod的渲染会话,一个会话独占一个浏览器进程
type RodSession struct {
	opts     BrowserOptions
	launcher browserProcess
	browser  *rod.Browser
	page     *rod.Page
}

// NewRodSessionFactory 返回启动独立浏览器的会话工厂
// monitor不为nil时,启动前检查主机内存余量(只告警不阻止)
func NewRodSessionFactory(opts BrowserOptions, monitor *ResourceMonitor) SessionFactory {
	return func(ctx context.Context) (PageSession, error) {
		if monitor != nil {
			if ok, reason := monitor.CheckHeadroom(); !ok {
				utils.Warnf("⚠️  主机资源紧张,仍尝试启动浏览器: %s", reason)
			}
		}
		return OpenRodSession(ctx, opts)
	}
}

// OpenRodSession 启动浏览器并创建标签页
func OpenRodSession(ctx context.Context, opts BrowserOptions) (*RodSession, error) {
	l := launcher.New().Context(ctx)
	l = l.Headless(opts.Headless)
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	l = l.Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	s := &RodSession{opts: opts, launcher: l}

	s.browser = rod.New().ControlURL(controlURL)
	if err := s.browser.Connect(); err != nil {
		abortLaunch(l)
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}
	utils.Debugf("浏览器已启动: %s", controlURL)

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}
	s.page = page

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  opts.ViewportWidth,
		Height: opts.ViewportHeight,
	}); err != nil {
		s.Close()
		return nil, fmt.Errorf("设置视口失败: %w", err)
	}

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			utils.Warnf("设置User-Agent失败: %v", err)
		}
	}

	if len(opts.Headers) > 0 {
		if _, err := page.SetExtraHeaders(flattenHeaders(opts.Headers)); err != nil {
			s.Close()
			return nil, fmt.Errorf("设置请求头失败: %w", err)
		}
	}

	return s, nil
}

func (s *RodSession) pageFor(ctx context.Context) *rod.Page {
	return s.page.Context(ctx)
}

// Navigate 导航并等待网络空闲
func (s *RodSession) Navigate(ctx context.Context, url string) error {
	if s.page == nil {
		return ErrSessionClosed
	}

	timeout := s.opts.NavigationTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	idle := s.opts.IdleWindow
	if idle <= 0 {
		idle = 500 * time.Millisecond
	}

	page := s.pageFor(ctx).Timeout(timeout)
	waitIdle := page.WaitRequestIdle(idle, nil, nil, nil)

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("导航失败 [%s]: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败 [%s]: %w", url, err)
	}
	waitIdle()

	if err := ctx.Err(); err != nil {
		return err
	}
	utils.Debugf("页面加载完成: %s", url)
	return nil
}

// MeasureHeight 读取document.body.scrollHeight
func (s *RodSession) MeasureHeight(ctx context.Context) (int, error) {
	if s.page == nil {
		return 0, ErrSessionClosed
	}
	res, err := s.pageFor(ctx).Eval(`() => document.body.scrollHeight`)
	if err != nil {
		return 0, fmt.Errorf("读取页面高度失败: %w", err)
	}
	return res.Value.Int(), nil
}

// ScrollToEnd 滚动到页面底部
func (s *RodSession) ScrollToEnd(ctx context.Context) error {
	if s.page == nil {
		return ErrSessionClosed
	}
	_, err := s.pageFor(ctx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	if err != nil {
		return fmt.Errorf("滚动失败: %w", err)
	}
	return nil
}

// WaitSettle 固定等待,让懒加载内容注入
func (s *RodSession) WaitSettle(ctx context.Context, d time.Duration) error {
	return sleepContext(ctx, d)
}

// QueryAll 页面上所有匹配元素,不等待元素出现
func (s *RodSession) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	if s.page == nil {
		return nil, ErrSessionClosed
	}
	found, err := s.pageFor(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("查询元素失败 [%s]: %w", selector, err)
	}
	return wrapRodElements(found), nil
}

// Screenshot 整页截图(PNG)
func (s *RodSession) Screenshot(ctx context.Context, path string) error {
	if s.page == nil {
		return ErrSessionClosed
	}
	data, err := s.pageFor(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return fmt.Errorf("截图失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建截图目录失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("保存截图失败: %w", err)
	}
	return nil
}

// Close 关闭浏览器并清理launcher的临时数据目录
// 多次调用是安全的
func (s *RodSession) Close() error {
	var closeErr error
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			closeErr = fmt.Errorf("关闭浏览器失败: %w", err)
		}
		s.browser = nil
		s.page = nil
		utils.Debugf("浏览器已关闭")
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
		s.launcher = nil
	}
	return closeErr
}

// rodElement go-rod元素适配
type rodElement struct {
	el *rod.Element
}

func wrapRodElements(found rod.Elements) []Element {
	elements := make([]Element, 0, len(found))
	for _, el := range found {
		elements = append(elements, &rodElement{el: el})
	}
	return elements
}

// QueryOne 使用Has而不是Element,避免在元素缺失时阻塞等待
func (e *rodElement) QueryOne(selector string) (Element, error) {
	has, el, err := e.el.Has(selector)
	if err != nil {
		return nil, err
	}
	if !has || el == nil {
		return nil, nil
	}
	return &rodElement{el: el}, nil
}

// shadowQueryJS 在元素的所有开放shadow root中查找第一个匹配
const shadowQueryJS = `function (selector) {
	const walk = (root) => {
		for (const node of root.querySelectorAll('*')) {
			if (!node.shadowRoot) continue;
			const hit = node.shadowRoot.querySelector(selector) || walk(node.shadowRoot);
			if (hit) return hit;
		}
		return null;
	};
	return walk(this);
}`

// QueryShadow querySelector不进入shadow root,这里在页面内遍历
func (e *rodElement) QueryShadow(selector string) (Element, error) {
	obj, err := e.el.Evaluate(rod.Eval(shadowQueryJS, selector).ByObject())
	if err != nil {
		return nil, err
	}
	if obj == nil || obj.ObjectID == "" {
		return nil, nil
	}
	el, err := e.el.Page().ElementFromObject(obj)
	if err != nil {
		return nil, err
	}
	return &rodElement{el: el}, nil
}

func (e *rodElement) QueryAll(selector string) ([]Element, error) {
	found, err := e.el.Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapRodElements(found), nil
}

func (e *rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e *rodElement) Attribute(name string) (*string, error) {
	return e.el.Attribute(name)
}

func (e *rodElement) Parent() (Element, error) {
	parent, err := e.el.Parent()
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, nil
	}
	return &rodElement{el: parent}, nil
}
