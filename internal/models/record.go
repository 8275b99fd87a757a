package models

import (
	"time"

	"github.com/google/uuid"
)

// Record 单条活动(黑客松)记录
// 所有字段均为可选: 卡片上缺失的字段直接省略,序列化时不输出null
type Record struct {
	Headline         *string  `json:"headline,omitempty" bson:"headline,omitempty"`                   // 标题
	URL              *string  `json:"url,omitempty" bson:"url,omitempty"`                             // 活动链接
	SubHeadline      *string  `json:"sub_headline,omitempty" bson:"sub_headline,omitempty"`           // 副标题
	Mode             *string  `json:"mode,omitempty" bson:"mode,omitempty"`                           // 线上/线下
	Location         *string  `json:"location,omitempty" bson:"location,omitempty"`                   // 地点
	ParticipantCount int      `json:"no_of_participant" bson:"no_of_participant"`                     // 参与人数,缺失或无法解析时为0
	Tags             []string `json:"tags,omitempty" bson:"tags,omitempty"`                           // 标签(保持DOM顺序,允许重复)
	Status           *string  `json:"status,omitempty" bson:"status,omitempty"`                       // 状态标签
	OrganizationLink *string  `json:"organization_link,omitempty" bson:"organization_link,omitempty"` // 主办方链接
	OrganizationLogo *string  `json:"organization_logo,omitempty" bson:"organization_logo,omitempty"` // 主办方Logo
	OrganizationName *string  `json:"organization_name,omitempty" bson:"organization_name,omitempty"` // 主办方名称
	Dates            *string  `json:"dates,omitempty" bson:"dates,omitempty"`                         // 日期范围
}

// PopulatedFields 返回已填充的字段数(参与人数>0时计入)
func (r Record) PopulatedFields() int {
	n := 0
	for _, f := range []*string{
		r.Headline, r.URL, r.SubHeadline, r.Mode, r.Location, r.Status,
		r.OrganizationLink, r.OrganizationLogo, r.OrganizationName, r.Dates,
	} {
		if f != nil {
			n++
		}
	}
	if len(r.Tags) > 0 {
		n++
	}
	if r.ParticipantCount > 0 {
		n++
	}
	return n
}

// StringValue 取可选字段的值,缺失时返回空字符串
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Snapshot 一次提取运行得到的有序记录集合
type Snapshot struct {
	ID         string    `json:"id"`
	SourceURL  string    `json:"source_url"`
	CapturedAt time.Time `json:"captured_at"`
	Records    []Record  `json:"records"`
}

// NewSnapshot 创建新快照
func NewSnapshot(sourceURL string, records []Record) *Snapshot {
	if records == nil {
		records = []Record{}
	}
	return &Snapshot{
		ID:         uuid.New().String(),
		SourceURL:  sourceURL,
		CapturedAt: time.Now().UTC(),
		Records:    records,
	}
}

// Len 返回记录数
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}
