package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// SessionTTL 会话固定存活时长，到期后由清理任务删除 (不支持按请求配置)。
const SessionTTL = 24 * time.Hour

// PdfSession 一次 PDF 分析/优化会话的完整记录。
// analyze / optimize 每次都整条加载、修改、整条落库，不做字段级局部更新。
type PdfSession struct {
	ID string `gorm:"primarykey;size:36" json:"id"`

	// 可选的归属用户，核心不做引用完整性校验
	UserID string `gorm:"index;size:64" json:"userId,omitempty"`

	// 文件引用 (存 MinIO 对象名，不是文件系统路径)
	OriginalFileName  string `json:"originalFileName"`
	OriginalFilePath  string `json:"originalFilePath"`
	OptimizedFilePath string `json:"optimizedFilePath,omitempty"`

	// 分析前指标
	PagesBefore *int     `json:"pagesBefore"`
	InkBefore   *float64 `json:"inkBefore"` // [0,1]

	// 优化后指标 (估算值，非实测)
	PagesAfter *int     `json:"pagesAfter"`
	InkAfter   *float64 `json:"inkAfter"`

	// 分析结果
	OptimizingScore *int           `json:"optimizingScore"` // [0,100]
	Suggestions     datatypes.JSON `json:"suggestions"`     // []string
	ChangesApplied  datatypes.JSON `json:"changesApplied"`  // []string

	// 优化参数 (optimize 开始时原样记录)
	InkSaverLevel   *int  `json:"inkSaverLevel"`
	PageSaverLevel  *int  `json:"pageSaverLevel"`
	PreserveQuality *bool `json:"preserveQuality"`
	ExcludeImages   *bool `json:"excludeImages"`

	Status Status `gorm:"size:16;index" json:"status"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	ExpiresAt time.Time `gorm:"index" json:"expiresAt"`
}

// NewPdfSession 创建初始会话记录。
// createdAt / expiresAt 创建后不再变更。
func NewPdfSession(id, userID, fileName, filePath string) *PdfSession {
	now := time.Now()
	return &PdfSession{
		ID:               id,
		UserID:           userID,
		OriginalFileName: fileName,
		OriginalFilePath: filePath,
		Status:           StatusUploaded,
		CreatedAt:        now,
		ExpiresAt:        now.Add(SessionTTL),
	}
}

// Expired 判断会话是否已过期 (过期即可删除，无论状态)。
func (p *PdfSession) Expired(now time.Time) bool {
	return p.ExpiresAt.Before(now)
}

// SetSuggestions 把建议列表序列化进 JSON 字段。
func (p *PdfSession) SetSuggestions(list []string) {
	b, _ := json.Marshal(list)
	p.Suggestions = datatypes.JSON(b)
}

// SuggestionList 反序列化建议列表，字段为空时返回 nil。
func (p *PdfSession) SuggestionList() []string {
	var list []string
	_ = json.Unmarshal(p.Suggestions, &list)
	return list
}

// SetChangesApplied 把变更描述列表序列化进 JSON 字段。
func (p *PdfSession) SetChangesApplied(list []string) {
	b, _ := json.Marshal(list)
	p.ChangesApplied = datatypes.JSON(b)
}

// ChangeList 反序列化变更描述列表。
func (p *PdfSession) ChangeList() []string {
	var list []string
	_ = json.Unmarshal(p.ChangesApplied, &list)
	return list
}
