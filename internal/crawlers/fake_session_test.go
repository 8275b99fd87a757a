package crawlers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeSession 可编排的内存会话
type fakeSession struct {
	heights    []int // 第i次测量返回heights[i],超出后重复最后一个
	measureAt  int
	measureErr error

	scrolls   int
	settles   []time.Duration
	settleErr error

	cards    []Element
	queryErr error

	navigated     string
	navigateErr   error
	screenshotErr error
	screenshots   []string
	closed        int
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.navigated = url
	return f.navigateErr
}

func (f *fakeSession) MeasureHeight(ctx context.Context) (int, error) {
	if f.measureErr != nil {
		return 0, f.measureErr
	}
	if len(f.heights) == 0 {
		return 0, nil
	}
	i := f.measureAt
	if i >= len(f.heights) {
		i = len(f.heights) - 1
	}
	f.measureAt++
	return f.heights[i], nil
}

func (f *fakeSession) ScrollToEnd(ctx context.Context) error {
	f.scrolls++
	return nil
}

func (f *fakeSession) WaitSettle(ctx context.Context, d time.Duration) error {
	f.settles = append(f.settles, d)
	return f.settleErr
}

func (f *fakeSession) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	return f.cards, f.queryErr
}

func (f *fakeSession) Screenshot(ctx context.Context, path string) error {
	f.screenshots = append(f.screenshots, path)
	return f.screenshotErr
}

func (f *fakeSession) Close() error {
	f.closed++
	return nil
}

// panicElement 任何调用都会panic,模拟结构损坏的卡片
type panicElement struct{}

func (panicElement) QueryOne(string) (Element, error)   { panic("detached node") }
func (panicElement) QueryAll(string) ([]Element, error) { panic("detached node") }
func (panicElement) Text() (string, error)              { panic("detached node") }
func (panicElement) Attribute(string) (*string, error)  { panic("detached node") }
func (panicElement) Parent() (Element, error)           { panic("detached node") }

// errorElement 所有查询都返回错误
type errorElement struct{}

var errDetached = errors.New("节点已脱离文档")

func (errorElement) QueryOne(string) (Element, error)   { return nil, errDetached }
func (errorElement) QueryAll(string) ([]Element, error) { return nil, errDetached }
func (errorElement) Text() (string, error)              { return "", errDetached }
func (errorElement) Attribute(string) (*string, error)  { return nil, errDetached }
func (errorElement) Parent() (Element, error)           { return nil, errDetached }

// mustHTMLSession 从字符串创建离线会话
func mustHTMLSession(t *testing.T, markup string) *HTMLSession {
	t.Helper()
	s, err := NewHTMLSession(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("创建HTML会话失败: %v", err)
	}
	return s
}

const fullCardHTML = `<div class="relative group border-2 border-black">
  <h2 class="text-lg font-bold"> HackSync 2024 </h2>
  <a href="https://hacksync.dev/event">Apply</a>
  <span class="text-xs font-sans font-semibold">Build the future</span>
  <div class="flex gap-2"><span class="font-bold">Mode:</span> Online</div>
  <div class="flex items-center"><svg></svg><p>Bangalore</p><p>120</p></div>
  <span class="border-2 text-gray-600 dark:text-green-500"> AI </span>
  <span class="border-2 text-gray-600 dark:text-green-500">Web3</span>
  <span class="border-2 text-gray-600 dark:text-green-500">AI</span>
  <button class="text-green-600">Open</button>
  <a href="https://org.example"><img src="https://org.example/logo.png" alt="Example Org"></a>
  <span class="atcb-text">Jan 10 - Jan 12</span>
</div>`

const headlineOnlyCardHTML = `<div class="relative group border-2 border-black"><h2 class="text-lg">Only Headline</h2></div>`

const emptyCardHTML = `<div class="relative group border-2 border-black"></div>`

func pageHTML(cards ...string) string {
	return "<html><head><title>t</title></head><body><main>" + strings.Join(cards, "\n") + "</main></body></html>"
}
