package crawlers

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/RecoveryAshes/HackSync/internal/models"
)

func TestParseParticipantCount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"纯数字", "120", 120},
		{"带空白", "  42\n", 42},
		{"空字符串", "", 0},
		{"字母", "abc", 0},
		{"数字混合字母", "120 people", 0},
		{"负号", "-5", 0},
		{"小数", "1.5", 0},
		{"全角数字", "１２０", 0},
		{"溢出", "99999999999999999999999", 0},
		{"零", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseParticipantCount(tt.input); got != tt.want {
				t.Errorf("ParseParticipantCount(%q) = %d, 期望 %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLocationBlock(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantLocation string
		wantCount    int
	}{
		{"地点和人数", "Bangalore\n\n120", "Bangalore", 120},
		{"只有地点", "Remote", "Remote", 0},
		{"人数非数字", "Delhi\n\nTBD", "Delhi", 0},
		{"换行之间有空白", "Pune\n   \n35", "Pune", 35},
		{"单个换行不拆分", "Mumbai\n80", "Mumbai\n80", 0},
		{"多段只取前两段", "Goa\n\n15\n\nextra", "Goa", 15},
		{"前后空白", "\n Chennai \n\n 7 \n", "Chennai", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			location, count := ParseLocationBlock(tt.input)
			if location != tt.wantLocation {
				t.Errorf("location = %q, 期望 %q", location, tt.wantLocation)
			}
			if count != tt.wantCount {
				t.Errorf("count = %d, 期望 %d", count, tt.wantCount)
			}
		})
	}
}

func TestCardExtractorFullAndPartialCards(t *testing.T) {
	session := mustHTMLSession(t, pageHTML(fullCardHTML, headlineOnlyCardHTML))
	extractor := NewCardExtractor()

	records, err := extractor.Extract(context.Background(), session)
	if err != nil {
		t.Fatalf("Extract失败: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("记录数 = %d, 期望 2", len(records))
	}

	full := records[0]
	checks := []struct {
		field string
		got   *string
		want  string
	}{
		{"headline", full.Headline, "HackSync 2024"},
		{"url", full.URL, "https://hacksync.dev/event"},
		{"sub_headline", full.SubHeadline, "Build the future"},
		{"mode", full.Mode, "Online"},
		{"location", full.Location, "Bangalore"},
		{"status", full.Status, "Open"},
		{"organization_link", full.OrganizationLink, "https://org.example"},
		{"organization_logo", full.OrganizationLogo, "https://org.example/logo.png"},
		{"organization_name", full.OrganizationName, "Example Org"},
		{"dates", full.Dates, "Jan 10 - Jan 12"},
	}
	for _, c := range checks {
		if c.got == nil {
			t.Errorf("%s 缺失, 期望 %q", c.field, c.want)
			continue
		}
		if *c.got != c.want {
			t.Errorf("%s = %q, 期望 %q", c.field, *c.got, c.want)
		}
	}
	if full.ParticipantCount != 120 {
		t.Errorf("no_of_participant = %d, 期望 120", full.ParticipantCount)
	}
	if want := []string{"AI", "Web3", "AI"}; !reflect.DeepEqual(full.Tags, want) {
		t.Errorf("tags = %v, 期望 %v", full.Tags, want)
	}

	partial := records[1]
	if models.StringValue(partial.Headline) != "Only Headline" {
		t.Errorf("headline = %q, 期望 %q", models.StringValue(partial.Headline), "Only Headline")
	}
	if partial.PopulatedFields() != 1 {
		t.Errorf("只有标题的卡片填充字段数 = %d, 期望 1", partial.PopulatedFields())
	}
	if partial.ParticipantCount != 0 {
		t.Errorf("no_of_participant = %d, 期望 0", partial.ParticipantCount)
	}
}

func TestCardExtractorEmptyCard(t *testing.T) {
	session := mustHTMLSession(t, pageHTML(emptyCardHTML))

	records, err := NewCardExtractor().Extract(context.Background(), session)
	if err != nil {
		t.Fatalf("Extract失败: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("记录数 = %d, 期望 1", len(records))
	}
	if n := records[0].PopulatedFields(); n != 0 {
		t.Errorf("空卡片填充字段数 = %d, 期望 0", n)
	}
}

func TestCardExtractorPreservesDOMOrder(t *testing.T) {
	session := mustHTMLSession(t, pageHTML(
		`<div class="relative group border-2 border-black"><h2 class="text-lg">C</h2></div>`,
		`<div class="relative group border-2 border-black"><h2 class="text-lg">A</h2></div>`,
		`<div class="relative group border-2 border-black"><h2 class="text-lg">B</h2></div>`,
	))

	records, err := NewCardExtractor().Extract(context.Background(), session)
	if err != nil {
		t.Fatalf("Extract失败: %v", err)
	}

	var got []string
	for _, r := range records {
		got = append(got, models.StringValue(r.Headline))
	}
	if want := []string{"C", "A", "B"}; !reflect.DeepEqual(got, want) {
		t.Errorf("顺序 = %v, 期望 %v", got, want)
	}
}

func TestCardExtractorFieldEdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		card  string
		check func(t *testing.T, r models.Record)
	}{
		{
			name: "地点没有人数",
			card: `<div class="relative group border-2 border-black"><div class="flex items-center"><svg></svg><p>Remote</p></div></div>`,
			check: func(t *testing.T, r models.Record) {
				if models.StringValue(r.Location) != "Remote" || r.ParticipantCount != 0 {
					t.Errorf("location=%q count=%d", models.StringValue(r.Location), r.ParticipantCount)
				}
			},
		},
		{
			name: "人数不是数字",
			card: `<div class="relative group border-2 border-black"><div class="flex items-center"><svg></svg><p>Delhi</p><p>TBD</p></div></div>`,
			check: func(t *testing.T, r models.Record) {
				if models.StringValue(r.Location) != "Delhi" || r.ParticipantCount != 0 {
					t.Errorf("location=%q count=%d", models.StringValue(r.Location), r.ParticipantCount)
				}
			},
		},
		{
			name: "没有svg的flex块不是地点",
			card: `<div class="relative group border-2 border-black"><div class="flex items-center"><p>Nowhere</p></div></div>`,
			check: func(t *testing.T, r models.Record) {
				if r.Location != nil {
					t.Errorf("location应缺失, 实际 %q", *r.Location)
				}
			},
		},
		{
			name: "主办方图片没有alt",
			card: `<div class="relative group border-2 border-black"><a href="https://org.example"><img src="logo.png"></a></div>`,
			check: func(t *testing.T, r models.Record) {
				if models.StringValue(r.OrganizationLink) != "https://org.example" {
					t.Errorf("organization_link = %q", models.StringValue(r.OrganizationLink))
				}
				if models.StringValue(r.OrganizationLogo) != "logo.png" {
					t.Errorf("organization_logo = %q", models.StringValue(r.OrganizationLogo))
				}
				if r.OrganizationName != nil {
					t.Errorf("organization_name应缺失, 实际 %q", *r.OrganizationName)
				}
			},
		},
		{
			name: "非https链接不算url",
			card: `<div class="relative group border-2 border-black"><a href="http://plain.example">x</a></div>`,
			check: func(t *testing.T, r models.Record) {
				if r.URL != nil {
					t.Errorf("url应缺失, 实际 %q", *r.URL)
				}
			},
		},
		{
			name: "白色状态按钮和atcb日期",
			card: `<div class="relative group border-2 border-black"><button class="text-white">Ended</button><span part="atcb-button-text">Feb 1</span></div>`,
			check: func(t *testing.T, r models.Record) {
				if models.StringValue(r.Status) != "Ended" {
					t.Errorf("status = %q", models.StringValue(r.Status))
				}
				if models.StringValue(r.Dates) != "Feb 1" {
					t.Errorf("dates = %q", models.StringValue(r.Dates))
				}
			},
		},
		{
			name: "没有Mode标签",
			card: `<div class="relative group border-2 border-black"><div><span class="font-bold">Theme:</span> AI</div></div>`,
			check: func(t *testing.T, r models.Record) {
				if r.Mode != nil {
					t.Errorf("mode应缺失, 实际 %q", *r.Mode)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := mustHTMLSession(t, pageHTML(tt.card))
			records, err := NewCardExtractor().Extract(context.Background(), session)
			if err != nil {
				t.Fatalf("Extract失败: %v", err)
			}
			if len(records) != 1 {
				t.Fatalf("记录数 = %d, 期望 1", len(records))
			}
			tt.check(t, records[0])
		})
	}
}

func TestCardExtractorSkipsBrokenCards(t *testing.T) {
	html := mustHTMLSession(t, pageHTML(fullCardHTML, headlineOnlyCardHTML))
	good, err := html.QueryAll(context.Background(), DefaultCardSelectors().Card)
	if err != nil || len(good) != 2 {
		t.Fatalf("准备卡片失败: %v (%d)", err, len(good))
	}

	session := &fakeSession{cards: []Element{good[0], panicElement{}, good[1]}}
	extractor := NewCardExtractor()

	var progress []int
	extractor.Progress = func(done, total int) {
		if total != 3 {
			t.Errorf("total = %d, 期望 3", total)
		}
		progress = append(progress, done)
	}

	records, err := extractor.Extract(context.Background(), session)
	if err != nil {
		t.Fatalf("Extract失败: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("记录数 = %d, 期望 2", len(records))
	}
	if extractor.Skipped() != 1 {
		t.Errorf("Skipped = %d, 期望 1", extractor.Skipped())
	}
	if models.StringValue(records[1].Headline) != "Only Headline" {
		t.Errorf("损坏卡片之后的记录应保留, 实际 %q", models.StringValue(records[1].Headline))
	}
	if !reflect.DeepEqual(progress, []int{1, 2, 3}) {
		t.Errorf("progress = %v", progress)
	}
}

func TestCardExtractorFieldErrorsDegradeToAbsent(t *testing.T) {
	session := &fakeSession{cards: []Element{errorElement{}}}

	records, err := NewCardExtractor().Extract(context.Background(), session)
	if err != nil {
		t.Fatalf("Extract失败: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("记录数 = %d, 期望 1", len(records))
	}
	if n := records[0].PopulatedFields(); n != 0 {
		t.Errorf("字段全部出错时填充字段数 = %d, 期望 0", n)
	}
}

func TestCardExtractorContainerQueryFails(t *testing.T) {
	session := &fakeSession{queryErr: errors.New("页面已关闭")}

	_, err := NewCardExtractor().Extract(context.Background(), session)
	if err == nil {
		t.Fatal("卡片容器查询失败时应返回错误")
	}
}

func TestCardExtractorInvalidSelector(t *testing.T) {
	session := mustHTMLSession(t, pageHTML(fullCardHTML))
	extractor := NewCardExtractor()
	extractor.Selectors.Card = "div[["

	if _, err := extractor.Extract(context.Background(), session); err == nil {
		t.Fatal("无效选择器应返回错误")
	}
}

func TestCardExtractorContextCancelled(t *testing.T) {
	session := mustHTMLSession(t, pageHTML(fullCardHTML))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewCardExtractor().Extract(ctx, session); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, 期望 context.Canceled", err)
	}
}

// shadowHostCard 日期渲染在shadow tree中的卡片
type shadowHostCard struct {
	Element
	shadow  Element
	queried []string
}

func (c *shadowHostCard) QueryShadow(selector string) (Element, error) {
	c.queried = append(c.queried, selector)
	return c.shadow, nil
}

func TestCardExtractorDatesInShadowRoot(t *testing.T) {
	ctx := context.Background()
	lightCards, err := mustHTMLSession(t, pageHTML(headlineOnlyCardHTML, fullCardHTML)).QueryAll(ctx, DefaultCardSelectors().Card)
	if err != nil || len(lightCards) != 2 {
		t.Fatalf("准备卡片失败: %v (%d)", err, len(lightCards))
	}
	spans, err := mustHTMLSession(t, `<span part="atcb-button-text"> Mar 1 - Mar 3 </span>`).QueryAll(ctx, "span")
	if err != nil || len(spans) != 1 {
		t.Fatalf("准备shadow元素失败: %v", err)
	}

	tests := []struct {
		name        string
		card        *shadowHostCard
		wantDates   string
		wantQueried int
	}{
		{"light DOM缺失时查找shadow tree", &shadowHostCard{Element: lightCards[0], shadow: spans[0]}, "Mar 1 - Mar 3", 1},
		{"shadow tree中也没有", &shadowHostCard{Element: lightCards[0]}, "", 1},
		{"light DOM命中时不查找shadow tree", &shadowHostCard{Element: lightCards[1], shadow: spans[0]}, "Jan 10 - Jan 12", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := NewCardExtractor().Extract(ctx, &fakeSession{cards: []Element{tt.card}})
			if err != nil || len(records) != 1 {
				t.Fatalf("Extract失败: %v (%d)", err, len(records))
			}
			dates := records[0].Dates
			if tt.wantDates == "" {
				if dates != nil {
					t.Errorf("Dates = %q, 期望缺失", *dates)
				}
			} else if models.StringValue(dates) != tt.wantDates {
				t.Errorf("Dates = %q, 期望 %q", models.StringValue(dates), tt.wantDates)
			}
			if len(tt.card.queried) != tt.wantQueried {
				t.Errorf("QueryShadow调用次数 = %d, 期望 %d", len(tt.card.queried), tt.wantQueried)
			}
		})
	}
}
