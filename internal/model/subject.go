// Package model 定义了与数据库表对应的 Go 结构体。
package model

// Subject 对应于数据库中的 'subjects' 表。
// 本模块只读取学科，用于给文档和切片打标签以支持按学科检索。
type Subject struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`
	// Code 是学科的稳定编码，例如 "chinese"、"math"。
	Code string `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"`
	// Name 是学科的中文名称，文件名学科识别基于它进行匹配。
	Name     string `gorm:"type:varchar(50);not null" json:"name"`
	Category string `gorm:"type:varchar(30);not null" json:"category"`
	// 学段适用性
	PrimaryAvailable bool   `gorm:"not null;default:true" json:"primary_available"`
	MiddleAvailable  bool   `gorm:"not null;default:true" json:"middle_available"`
	GradeRange       string `gorm:"type:varchar(50)" json:"grade_range,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Subject) TableName() string {
	return "subjects"
}

// PresetSubjects 是义务教育课程方案（2022 年版）中的学科列表，用于初始化。
var PresetSubjects = []Subject{
	{Code: "chinese", Name: "语文", Category: "人文社科", PrimaryAvailable: true, MiddleAvailable: true},
	{Code: "math", Name: "数学", Category: "自然科学", PrimaryAvailable: true, MiddleAvailable: true},
	{Code: "english", Name: "英语", Category: "人文社科", PrimaryAvailable: true, MiddleAvailable: true, GradeRange: "3-9"},
	{Code: "politics", Name: "道德与法治", Category: "人文社科", PrimaryAvailable: true, MiddleAvailable: true},
	{Code: "history", Name: "历史", Category: "人文社科", PrimaryAvailable: false, MiddleAvailable: true, GradeRange: "7-9"},
	{Code: "geography", Name: "地理", Category: "人文社科", PrimaryAvailable: false, MiddleAvailable: true, GradeRange: "7-8"},
	{Code: "science", Name: "科学", Category: "自然科学", PrimaryAvailable: true, MiddleAvailable: false, GradeRange: "1-6"},
	{Code: "physics", Name: "物理", Category: "自然科学", PrimaryAvailable: false, MiddleAvailable: true, GradeRange: "8-9"},
	{Code: "chemistry", Name: "化学", Category: "自然科学", PrimaryAvailable: false, MiddleAvailable: true, GradeRange: "9"},
	{Code: "biology", Name: "生物学", Category: "自然科学", PrimaryAvailable: false, MiddleAvailable: true, GradeRange: "7-8"},
	{Code: "it", Name: "信息科技", Category: "技术类", PrimaryAvailable: true, MiddleAvailable: true},
	{Code: "pe", Name: "体育与健康", Category: "艺体类", PrimaryAvailable: true, MiddleAvailable: true},
	{Code: "art", Name: "艺术", Category: "艺体类", PrimaryAvailable: true, MiddleAvailable: true},
	{Code: "labor", Name: "劳动", Category: "技术类", PrimaryAvailable: true, MiddleAvailable: true},
}
