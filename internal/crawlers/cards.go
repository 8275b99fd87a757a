package crawlers

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/RecoveryAshes/HackSync/internal/models"
	"github.com/RecoveryAshes/HackSync/internal/utils"
)

// CardSelectors 卡片及各字段的结构特征
type CardSelectors struct {
	Card          string
	Headline      string
	URL           string
	SubHeadline   string
	ModeLabel     string
	ModeLabelText string
	LocationBlock string
	Tags          string
	Status        string
	Organization  string
	OrgImage      string
	Dates         string
}

// DefaultCardSelectors 目标页面的选择器
func DefaultCardSelectors() CardSelectors {
	return CardSelectors{
		Card:          "div.relative.group.border-2.border-black",
		Headline:      "h2.text-lg",
		URL:           "a[href^='https://']",
		SubHeadline:   "span.text-xs.font-sans.font-semibold",
		ModeLabel:     "span.font-bold",
		ModeLabelText: "Mode:",
		LocationBlock: "div.flex.items-center:has(svg)",
		Tags:          `span.border-2.text-gray-600.dark\:text-green-500`,
		Status:        "button.text-green-600, button.text-white",
		Organization:  "a:has(img)",
		OrgImage:      "img",
		Dates:         "span.atcb-text, span[part='atcb-button-text']",
	}
}

// CardProgress 每处理完一张卡片时回调
type CardProgress func(done, total int)

// CardExtractor 从已加载页面枚举卡片并逐字段提取记录
// 字段之间相互隔离: 某个字段缺失或出错只会使该字段缺失
type CardExtractor struct {
	Selectors CardSelectors
	Progress  CardProgress

	skipped int
}

// NewCardExtractor 使用默认选择器创建提取器
func NewCardExtractor() *CardExtractor {
	return &CardExtractor{Selectors: DefaultCardSelectors()}
}

// Skipped 上一次Extract中被跳过的卡片数
func (e *CardExtractor) Skipped() int {
	return e.skipped
}

// Extract 按DOM顺序返回所有卡片的记录
// 只有卡片容器本身查询失败时才返回错误;单张卡片失败会被跳过并记录日志
func (e *CardExtractor) Extract(ctx context.Context, session PageSession) ([]models.Record, error) {
	e.skipped = 0

	cards, err := session.QueryAll(ctx, e.Selectors.Card)
	if err != nil {
		return nil, fmt.Errorf("查询卡片失败: %w", err)
	}
	utils.Infof("🗂️  找到 %d 张卡片", len(cards))

	records := make([]models.Record, 0, len(cards))
	for i, card := range cards {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		record, err := e.extractCard(card)
		if err != nil {
			e.skipped++
			utils.Logger.Warn().Err(err).Int("card", i+1).Msg("处理卡片失败,已跳过")
		} else {
			records = append(records, record)
		}

		if e.Progress != nil {
			e.Progress(i+1, len(cards))
		}
	}

	if e.skipped > 0 {
		utils.Warnf("共跳过 %d 张卡片", e.skipped)
	}
	return records, nil
}

// extractCard 提取单张卡片
// 逃逸出字段级保护的panic在这里被捕获,整张卡片被跳过
func (e *CardExtractor) extractCard(card Element) (record models.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			record = models.Record{}
			err = fmt.Errorf("卡片结构异常: %v", r)
		}
	}()

	s := e.Selectors

	record.Headline = fieldOf(textOf(card, s.Headline)).Ptr()
	record.URL = fieldOf(attrOf(card, s.URL, "href")).Ptr()
	record.SubHeadline = fieldOf(textOf(card, s.SubHeadline)).Ptr()
	record.Mode = fieldOf(modeOf(card, s.ModeLabel, s.ModeLabelText)).Ptr()

	location, participants := locationOf(card, s.LocationBlock)
	record.Location = location.Ptr()
	record.ParticipantCount = participants

	if tags := tagsOf(card, s.Tags); len(tags) > 0 {
		record.Tags = tags
	}

	record.Status = fieldOf(textOf(card, s.Status)).Ptr()

	org := organizationOf(card, s.Organization, s.OrgImage)
	record.OrganizationLink = org.Link.Ptr()
	record.OrganizationLogo = org.Logo.Ptr()
	record.OrganizationName = org.Name.Ptr()

	record.Dates = fieldOf(shadowTextOf(card, s.Dates)).Ptr()

	return record, nil
}

// fieldOf 把字段级错误降级为缺失
func fieldOf(f Field[string], err error) Field[string] {
	if err != nil {
		utils.Debugf("字段提取失败,视为缺失: %v", err)
		return Absent[string]()
	}
	return f
}

// textOf 第一个匹配元素的去空白文本
func textOf(card Element, selector string) (Field[string], error) {
	el, err := card.QueryOne(selector)
	if err != nil || el == nil {
		return Absent[string](), err
	}
	text, err := el.Text()
	if err != nil {
		return Absent[string](), err
	}
	return Present(strings.TrimSpace(text)), nil
}

// shadowTextOf 同textOf,light DOM中没有匹配时再到shadow tree中查找
func shadowTextOf(card Element, selector string) (Field[string], error) {
	field, err := textOf(card, selector)
	if err != nil || field.IsPresent() {
		return field, err
	}
	querier, ok := card.(ShadowQuerier)
	if !ok {
		return field, nil
	}

	el, err := querier.QueryShadow(selector)
	if err != nil || el == nil {
		return Absent[string](), err
	}
	text, err := el.Text()
	if err != nil {
		return Absent[string](), err
	}
	return Present(strings.TrimSpace(text)), nil
}

// attrOf 第一个匹配元素的属性值
func attrOf(card Element, selector, name string) (Field[string], error) {
	el, err := card.QueryOne(selector)
	if err != nil || el == nil {
		return Absent[string](), err
	}
	return attrValue(el, name)
}

func attrValue(el Element, name string) (Field[string], error) {
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return Absent[string](), err
	}
	return Present(*v), nil
}

// modeOf 找到"Mode:"标签,取其父元素文本并去掉标签文字
func modeOf(card Element, labelSelector, labelText string) (Field[string], error) {
	labels, err := card.QueryAll(labelSelector)
	if err != nil {
		return Absent[string](), err
	}

	for _, label := range labels {
		text, err := label.Text()
		if err != nil || !strings.Contains(text, labelText) {
			continue
		}

		parent, err := label.Parent()
		if err != nil || parent == nil {
			return Absent[string](), err
		}
		parentText, err := parent.Text()
		if err != nil {
			return Absent[string](), err
		}
		return Present(strings.TrimSpace(strings.ReplaceAll(parentText, labelText, ""))), nil
	}
	return Absent[string](), nil
}

// locationOf 地点与参与人数共用一个文本块
func locationOf(card Element, selector string) (Field[string], int) {
	text, err := textOf(card, selector)
	if err != nil {
		utils.Debugf("地点字段提取失败,视为缺失: %v", err)
		return Absent[string](), 0
	}

	raw, ok := text.Get()
	if !ok || raw == "" {
		return Absent[string](), 0
	}

	location, participants := ParseLocationBlock(raw)
	return Present(location), participants
}

// tagsOf 所有标签文本,保持DOM顺序和重复项
func tagsOf(card Element, selector string) []string {
	elements, err := card.QueryAll(selector)
	if err != nil {
		utils.Debugf("标签字段提取失败,视为缺失: %v", err)
		return nil
	}

	var tags []string
	for _, el := range elements {
		text, err := el.Text()
		if err != nil {
			continue
		}
		tags = append(tags, strings.TrimSpace(text))
	}
	return tags
}

// organization 主办方信息,三项可独立缺失
type organization struct {
	Link Field[string]
	Logo Field[string]
	Name Field[string]
}

func organizationOf(card Element, anchorSelector, imageSelector string) organization {
	org := organization{
		Link: Absent[string](),
		Logo: Absent[string](),
		Name: Absent[string](),
	}

	anchor, err := card.QueryOne(anchorSelector)
	if err != nil || anchor == nil {
		return org
	}
	org.Link = fieldOf(attrValue(anchor, "href"))

	img, err := anchor.QueryOne(imageSelector)
	if err != nil || img == nil {
		return org
	}
	org.Logo = fieldOf(attrValue(img, "src"))

	// alt为空字符串时不算主办方名称
	if name := fieldOf(attrValue(img, "alt")); name.OrElse("") != "" {
		org.Name = name
	}
	return org
}

// blockSeparator 段落之间的双换行(允许中间夹空白)
var blockSeparator = regexp.MustCompile(`\n[ \t\r]*\n\s*`)

// ParseLocationBlock 按第一个双换行把文本拆成 [地点, 参与人数]
// 第二段只有在全部由数字组成时才解析,否则人数为0
func ParseLocationBlock(text string) (string, int) {
	parts := blockSeparator.Split(strings.TrimSpace(text), -1)

	location := strings.TrimSpace(parts[0])
	if len(parts) < 2 {
		return location, 0
	}
	return location, ParseParticipantCount(parts[1])
}

// ParseParticipantCount 非数字、空值或溢出一律返回0
func ParseParticipantCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
