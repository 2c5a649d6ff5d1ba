package dto

// OptimizeRequest 优化参数，optimize 开始时原样记录到会话上。
type OptimizeRequest struct {
	InkSaverLevel   *int  `json:"inkSaverLevel"`
	PageSaverLevel  *int  `json:"pageSaverLevel"`
	PreserveQuality *bool `json:"preserveQuality"`
	ExcludeImages   *bool `json:"excludeImages"`
}

// UploadResponse 上传成功的精简返回。
type UploadResponse struct {
	SessionID        string `json:"sessionId"`
	OriginalFileName string `json:"originalFileName"`
	Status           string `json:"status"`
}

// EstimatedSavings 分析接口里的节省估算块。
type EstimatedSavings struct {
	Pages      int `json:"pages"`
	InkPercent int `json:"inkPercent"`
}

// AnalyzeResponse 分析结果返回。
// diagnosis 和 recommendations 都是建议列表 (前端两个位置复用同一份数据)。
type AnalyzeResponse struct {
	Diagnosis        []string         `json:"diagnosis"`
	Recommendations  []string         `json:"recommendations"`
	EstimatedSavings EstimatedSavings `json:"estimatedSavings"`
	InkBefore        *float64         `json:"inkBefore"`
	PagesBefore      *int             `json:"pagesBefore"`
	OptimizingScore  *int             `json:"optimizingScore"`
}
