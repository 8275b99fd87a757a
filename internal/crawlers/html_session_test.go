package crawlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestInnerText(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{"纯文本", `<span>hello</span>`, "hello"},
		{"合并空白", `<span>  a   b
		c </span>`, "a b c"},
		{"段落之间双换行", `<div><p>Bangalore</p><p>120</p></div>`, "Bangalore\n\n120"},
		{"块级元素之间单换行", `<div><div>a</div><div>b</div></div>`, "a\nb"},
		{"行内元素不换行", `<div><span>Mode:</span> Online</div>`, "Mode: Online"},
		{"跳过svg和script", `<div><svg><text>x</text></svg><script>var a=1</script>Goa</div>`, "Goa"},
		{"br换行", `<span>a<br>b</span>`, "a\nb"},
		{"空段落不产生多余换行", `<div><p></p><p>only</p><p> </p></div>`, "only"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := html.Parse(strings.NewReader("<html><body>" + tt.markup + "</body></html>"))
			if err != nil {
				t.Fatalf("解析失败: %v", err)
			}
			body := findBody(doc)
			if body == nil || body.FirstChild == nil {
				t.Fatal("未找到body内容")
			}

			if got := InnerText(body.FirstChild); got != tt.want {
				t.Errorf("InnerText() = %q, 期望 %q", got, tt.want)
			}
		})
	}
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findBody(c); found != nil {
			return found
		}
	}
	return nil
}

func TestHTMLSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	session := mustHTMLSession(t, pageHTML(fullCardHTML))

	if err := session.Navigate(ctx, "https://example.com"); err != nil {
		t.Fatalf("Navigate失败: %v", err)
	}

	h1, err := session.MeasureHeight(ctx)
	if err != nil || h1 <= 0 {
		t.Fatalf("MeasureHeight = %d, %v", h1, err)
	}
	if err := session.ScrollToEnd(ctx); err != nil {
		t.Fatalf("ScrollToEnd失败: %v", err)
	}
	h2, _ := session.MeasureHeight(ctx)
	if h1 != h2 {
		t.Errorf("离线文档高度应固定: %d != %d", h1, h2)
	}
	if session.ScrollCount() != 1 {
		t.Errorf("ScrollCount = %d, 期望 1", session.ScrollCount())
	}

	if err := session.Screenshot(ctx, filepath.Join(t.TempDir(), "x.png")); !errors.Is(err, ErrScreenshotUnsupported) {
		t.Errorf("Screenshot err = %v, 期望 ErrScreenshotUnsupported", err)
	}

	if err := session.Close(); err != nil {
		t.Fatalf("Close失败: %v", err)
	}
	if _, err := session.QueryAll(ctx, "div"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("关闭后查询 err = %v, 期望 ErrSessionClosed", err)
	}
}

func TestHTMLElementNavigation(t *testing.T) {
	ctx := context.Background()
	session := mustHTMLSession(t, `<div id="outer"><span class="label">Mode:</span><a href="/x">x</a></div>`)

	labels, err := session.QueryAll(ctx, "span.label")
	if err != nil || len(labels) != 1 {
		t.Fatalf("QueryAll = %d, %v", len(labels), err)
	}

	parent, err := labels[0].Parent()
	if err != nil || parent == nil {
		t.Fatalf("Parent = %v, %v", parent, err)
	}
	id, _ := parent.Attribute("id")
	if id == nil || *id != "outer" {
		t.Errorf("父元素id = %v, 期望 outer", id)
	}

	missing, err := parent.QueryOne("img")
	if err != nil || missing != nil {
		t.Errorf("缺失元素应返回(nil, nil), 实际 (%v, %v)", missing, err)
	}

	anchor, _ := parent.QueryOne("a")
	title, err := anchor.Attribute("title")
	if err != nil || title != nil {
		t.Errorf("缺失属性应返回(nil, nil), 实际 (%v, %v)", title, err)
	}
}

func TestHTMLSessionFactory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(path, []byte(pageHTML(fullCardHTML)), 0644); err != nil {
		t.Fatalf("写入文件失败: %v", err)
	}

	factory := NewHTMLSessionFactory(path)
	s1, err := factory(context.Background())
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	s1.Close()

	// 每次调用得到新的会话
	s2, err := factory(context.Background())
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	if _, err := s2.QueryAll(context.Background(), "div"); err != nil {
		t.Errorf("新会话不应受旧会话关闭影响: %v", err)
	}

	if _, err := NewHTMLSessionFactory(filepath.Join(t.TempDir(), "missing.html"))(context.Background()); err == nil {
		t.Error("文件不存在时应返回错误")
	}
}
