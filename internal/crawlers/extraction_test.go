package crawlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/RecoveryAshes/HackSync/internal/models"
)

func testExtractionOptions(dir string) ExtractionOptions {
	opts := DefaultExtractionOptions()
	opts.OutputDir = dir
	opts.InitialSettle = 0
	return opts
}

func fastLoader() *ScrollLoader {
	return &ScrollLoader{MaxAttempts: DefaultMaxScrollAttempts, MinAttempts: DefaultMinScrollAttempts}
}

func TestExtractionRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "page.html")
	if err := os.WriteFile(page, []byte(pageHTML(fullCardHTML, headlineOnlyCardHTML)), 0644); err != nil {
		t.Fatalf("写入页面失败: %v", err)
	}

	run := NewExtractionRun(NewHTMLSessionFactory(page), testExtractionOptions(dir))
	run.Loader = fastLoader()

	snapshot, err := run.Run(context.Background())
	if err != nil {
		t.Fatalf("Run失败: %v", err)
	}
	if snapshot.Len() != 2 {
		t.Fatalf("记录数 = %d, 期望 2", snapshot.Len())
	}
	if snapshot.ID == "" || snapshot.CapturedAt.IsZero() {
		t.Error("快照应带有id和captured_at")
	}
	if snapshot.SourceURL != DefaultSourceURL {
		t.Errorf("SourceURL = %q", snapshot.SourceURL)
	}

	second := snapshot.Records[1]
	if second.PopulatedFields() != 1 || models.StringValue(second.Headline) != "Only Headline" {
		t.Errorf("第二条记录应只有标题, 实际 %+v", second)
	}
	if second.ParticipantCount != 0 {
		t.Errorf("第二条记录人数 = %d, 期望 0", second.ParticipantCount)
	}

	// 快照文件与返回结果一致
	loaded, err := models.LoadRecordsFromFile(run.SnapshotPath())
	if err != nil {
		t.Fatalf("读取快照文件失败: %v", err)
	}
	if len(loaded) != 2 || models.StringValue(loaded[0].Headline) != "HackSync 2024" {
		t.Errorf("快照文件内容不一致: %+v", loaded)
	}

	// 离线会话不截图
	if _, err := os.Stat(run.ScreenshotPath()); !os.IsNotExist(err) {
		t.Errorf("离线会话不应生成截图, err=%v", err)
	}
}

func TestExtractionRunClosesSession(t *testing.T) {
	boom := errors.New("导航超时")

	tests := []struct {
		name    string
		session *fakeSession
		wantErr bool
	}{
		{
			name:    "正常路径",
			session: &fakeSession{heights: []int{100}},
		},
		{
			name:    "导航失败",
			session: &fakeSession{navigateErr: boom},
			wantErr: true,
		},
		{
			name:    "卡片查询失败",
			session: &fakeSession{heights: []int{100}, queryErr: boom},
			wantErr: true,
		},
		{
			name:    "单张卡片panic",
			session: &fakeSession{heights: []int{100}, cards: []Element{panicElement{}}},
		},
		{
			name:    "截图失败不影响结果",
			session: &fakeSession{heights: []int{100}, screenshotErr: boom},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := func(ctx context.Context) (PageSession, error) { return tt.session, nil }
			run := NewExtractionRun(factory, testExtractionOptions(t.TempDir()))
			run.Loader = fastLoader()

			_, err := run.Run(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.session.closed != 1 {
				t.Errorf("会话关闭次数 = %d, 期望 1", tt.session.closed)
			}
		})
	}
}

// crashingSession 导航时panic
type crashingSession struct {
	fakeSession
}

func (c *crashingSession) Navigate(ctx context.Context, url string) error {
	panic("target closed")
}

func TestExtractionRunRecoversPanic(t *testing.T) {
	session := &crashingSession{}
	factory := func(ctx context.Context) (PageSession, error) { return session, nil }
	run := NewExtractionRun(factory, testExtractionOptions(t.TempDir()))

	snapshot, err := run.Run(context.Background())
	if !errors.Is(err, ErrBrowserCrashed) {
		t.Fatalf("err = %v, 期望 ErrBrowserCrashed", err)
	}
	if snapshot != nil {
		t.Error("panic时不应返回快照")
	}
	if session.closed != 1 {
		t.Errorf("panic后会话关闭次数 = %d, 期望 1", session.closed)
	}
}

func TestExtractionRunNavigatesAndScreenshots(t *testing.T) {
	dir := t.TempDir()
	session := &fakeSession{heights: []int{100}}
	factory := func(ctx context.Context) (PageSession, error) { return session, nil }

	opts := testExtractionOptions(dir)
	opts.SourceURL = "https://example.test/"
	run := NewExtractionRun(factory, opts)
	run.Loader = fastLoader()

	snapshot, err := run.Run(context.Background())
	if err != nil {
		t.Fatalf("Run失败: %v", err)
	}
	if session.navigated != "https://example.test/" {
		t.Errorf("导航地址 = %q", session.navigated)
	}
	if len(session.screenshots) != 1 || session.screenshots[0] != filepath.Join(dir, models.ScreenshotFilename) {
		t.Errorf("截图路径 = %v", session.screenshots)
	}
	if snapshot.Len() != 0 {
		t.Errorf("没有卡片时记录数 = %d, 期望 0", snapshot.Len())
	}

	data, err := os.ReadFile(run.SnapshotPath())
	if err != nil {
		t.Fatalf("读取快照失败: %v", err)
	}
	if string(data) != "[]\n" && string(data) != "[]" {
		t.Errorf("空快照内容 = %q, 期望 []", data)
	}
}

func TestExtractionRunFactoryError(t *testing.T) {
	factory := func(ctx context.Context) (PageSession, error) { return nil, errors.New("启动浏览器失败") }
	run := NewExtractionRun(factory, testExtractionOptions(t.TempDir()))

	if _, err := run.Run(context.Background()); err == nil {
		t.Fatal("会话创建失败时应返回错误")
	}
}

func TestExtractionRunRejectsInvalidSourceURL(t *testing.T) {
	opened := 0
	factory := func(ctx context.Context) (PageSession, error) {
		opened++
		return &fakeSession{heights: []int{100}}, nil
	}

	opts := testExtractionOptions(t.TempDir())
	opts.SourceURL = "ftp://example.test/"
	run := NewExtractionRun(factory, opts)

	if _, err := run.Run(context.Background()); err == nil {
		t.Fatal("无效的来源URL应返回错误")
	}
	if opened != 0 {
		t.Errorf("无效URL时不应打开会话, 实际打开 %d 次", opened)
	}
}
