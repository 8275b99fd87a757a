package crawlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// HTMLSession 基于已渲染HTML的离线会话(goquery)
// 用于回放保存下来的页面,以及在没有浏览器的环境中测试提取逻辑
type HTMLSession struct {
	doc    *goquery.Document
	height int
	scroll int

	mu     sync.Mutex
	closed bool
}

// NewHTMLSession 从HTML内容创建会话
func NewHTMLSession(r io.Reader) (*HTMLSession, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	markup, _ := doc.Html()
	return &HTMLSession{doc: doc, height: len(markup)}, nil
}

// NewHTMLSessionFactory 每次从文件重新加载HTML
func NewHTMLSessionFactory(path string) SessionFactory {
	return func(ctx context.Context) (PageSession, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("打开HTML文件失败: %w", err)
		}
		defer f.Close()
		return NewHTMLSession(f)
	}
}

// Navigate 离线文档已加载,无需导航
func (s *HTMLSession) Navigate(ctx context.Context, url string) error {
	return s.check(ctx)
}

// MeasureHeight 离线文档高度固定
func (s *HTMLSession) MeasureHeight(ctx context.Context) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return s.height, nil
}

// ScrollToEnd 只记录滚动次数
func (s *HTMLSession) ScrollToEnd(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.scroll++
	s.mu.Unlock()
	return nil
}

// ScrollCount 已执行的滚动次数
func (s *HTMLSession) ScrollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scroll
}

// WaitSettle 离线文档不会注入新内容,直接返回
func (s *HTMLSession) WaitSettle(ctx context.Context, d time.Duration) error {
	return s.check(ctx)
}

// QueryAll 在整个文档中查找
func (s *HTMLSession) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return queryAll(s.doc.Selection, selector)
}

// Screenshot 离线文档无法截图
func (s *HTMLSession) Screenshot(ctx context.Context, path string) error {
	return ErrScreenshotUnsupported
}

// Close 关闭会话
func (s *HTMLSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *HTMLSession) check(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	return ctx.Err()
}

// htmlElement goquery选区中的单个节点
type htmlElement struct {
	sel *goquery.Selection
}

func compileSelector(selector string) (cascadia.Selector, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("选择器无效 [%s]: %w", selector, err)
	}
	return m, nil
}

func queryAll(sel *goquery.Selection, selector string) ([]Element, error) {
	m, err := compileSelector(selector)
	if err != nil {
		return nil, err
	}

	found := sel.FindMatcher(m)
	elements := make([]Element, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		elements = append(elements, &htmlElement{sel: s})
	})
	return elements, nil
}

func (e *htmlElement) QueryOne(selector string) (Element, error) {
	m, err := compileSelector(selector)
	if err != nil {
		return nil, err
	}

	found := e.sel.FindMatcher(m).First()
	if found.Length() == 0 {
		return nil, nil
	}
	return &htmlElement{sel: found}, nil
}

func (e *htmlElement) QueryAll(selector string) ([]Element, error) {
	return queryAll(e.sel, selector)
}

func (e *htmlElement) Text() (string, error) {
	if e.sel.Length() == 0 {
		return "", nil
	}
	return InnerText(e.sel.Get(0)), nil
}

func (e *htmlElement) Attribute(name string) (*string, error) {
	v, ok := e.sel.Attr(name)
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (e *htmlElement) Parent() (Element, error) {
	parent := e.sel.Parent()
	if parent.Length() == 0 {
		return nil, nil
	}
	return &htmlElement{sel: parent}, nil
}

// 参考浏览器innerText的换行规则: 块级元素前后1个换行,段落前后2个换行
var (
	blockElements = map[string]bool{
		"div": true, "section": true, "article": true, "header": true, "footer": true,
		"nav": true, "aside": true, "main": true, "ul": true, "ol": true, "li": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"table": true, "tr": true, "form": true, "figure": true, "blockquote": true,
		"pre": true, "dl": true, "dt": true, "dd": true, "address": true,
	}
	skippedElements = map[string]bool{
		"script": true, "style": true, "head": true, "template": true, "noscript": true, "svg": true,
	}
)

// InnerText 近似计算节点的innerText
func InnerText(n *html.Node) string {
	var items []textItem
	collectText(n, &items)

	var b strings.Builder
	pendingBreaks := 0
	started := false
	for _, it := range items {
		if it.breaks > 0 {
			// 开头和结尾的换行需求被丢弃
			if started && it.breaks > pendingBreaks {
				pendingBreaks = it.breaks
			}
			continue
		}

		text := it.text
		if !started || pendingBreaks > 0 {
			text = strings.TrimLeft(text, " ")
		}
		if text == "" {
			continue
		}
		if pendingBreaks > 0 {
			b.WriteString(strings.Repeat("\n", pendingBreaks))
			pendingBreaks = 0
		}
		b.WriteString(text)
		started = true
	}

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// textItem 文本片段或换行需求
type textItem struct {
	text   string
	breaks int
}

func collectText(n *html.Node, items *[]textItem) {
	switch n.Type {
	case html.TextNode:
		if t := collapseSpace(n.Data); t != "" {
			*items = append(*items, textItem{text: t})
		}
		return
	case html.ElementNode:
		if skippedElements[n.Data] {
			return
		}
		if n.Data == "br" {
			*items = append(*items, textItem{text: "\n"})
			return
		}
	}

	breaks := 0
	if n.Type == html.ElementNode {
		switch {
		case n.Data == "p":
			breaks = 2
		case blockElements[n.Data]:
			breaks = 1
		}
	}

	if breaks > 0 {
		*items = append(*items, textItem{breaks: breaks})
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, items)
	}
	if breaks > 0 {
		*items = append(*items, textItem{breaks: breaks})
	}
}

func collapseSpace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			return " "
		}
		return ""
	}

	out := strings.Join(fields, " ")
	if strings.TrimLeft(s, " \t\n\r\f") != s {
		out = " " + out
	}
	if strings.TrimRight(s, " \t\n\r\f") != s {
		out += " "
	}
	return out
}
