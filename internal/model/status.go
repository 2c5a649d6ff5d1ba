package model

import "fmt"

// Status 会话状态机的状态。
// 正常流转: UPLOADED -> ANALYZING -> ANALYZED -> OPTIMIZING -> COMPLETE
// 任意处理中状态失败都会落到 ERROR。
type Status string

const (
	StatusUploaded   Status = "UPLOADED"
	StatusAnalyzing  Status = "ANALYZING"
	StatusAnalyzed   Status = "ANALYZED"
	StatusOptimizing Status = "OPTIMIZING"
	StatusComplete   Status = "COMPLETE"
	StatusError      Status = "ERROR"
)

// transitions 状态转移表。
// 注意: analyze / optimize 都允许重跑 (COMPLETE 也能再次进入 OPTIMIZING)，
// 且 optimize 对起始状态不做限制。
var transitions = map[Status][]Status{
	StatusUploaded:   {StatusAnalyzing, StatusOptimizing},
	StatusAnalyzing:  {StatusAnalyzed, StatusOptimizing, StatusError},
	StatusAnalyzed:   {StatusAnalyzing, StatusOptimizing},
	StatusOptimizing: {StatusComplete, StatusOptimizing, StatusError},
	StatusComplete:   {StatusAnalyzing, StatusOptimizing},
	StatusError:      {StatusAnalyzing, StatusOptimizing},
}

// Valid 检查是否是六个合法状态之一。
func (s Status) Valid() bool {
	switch s {
	case StatusUploaded, StatusAnalyzing, StatusAnalyzed,
		StatusOptimizing, StatusComplete, StatusError:
		return true
	}
	return false
}

// CanTransition 检查从 s 到 to 的转移是否合法。
func (s Status) CanTransition(to Status) bool {
	if !to.Valid() {
		return false
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionTo 校验并执行状态转移，非法转移返回错误。
func (p *PdfSession) TransitionTo(to Status) error {
	if !p.Status.CanTransition(to) {
		return fmt.Errorf("非法状态转移: %s -> %s", p.Status, to)
	}
	p.Status = to
	return nil
}
