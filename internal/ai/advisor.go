package ai

import (
	"context"
	"strconv"
	"strings"
)

// 建议分隔哨兵。prompt 里要求模型用它分隔三条建议，回来后按它切分。
const suggestionSentinel = "$NEWLINE$"

// 评分解析失败时的默认分数
const defaultScore = 50

const suggestionsPrompt = "Suggest three ways this pdf could be edited to improve ink and page usage, " +
	"for sustainability purposes. Additionally, don't use any markdown and maximum 40 words. " +
	"Divide reasons with the string $NEWLINE$"

const scorePrompt = "Give this document a score out of 100 points, taking into consideration " +
	"effective page use and ink conservation from an a sustainability standpoint. " +
	"Return the score as a whole number with NO OTHER TEXT."

// Advisor 把两次大模型调用包装成确定性的建议/评分接口。
type Advisor struct {
	gen Generator
}

func NewAdvisor(gen Generator) *Advisor {
	return &Advisor{gen: gen}
}

// Suggestions 请求三条节能建议，按哨兵切分返回。
// 不校验条数和长度，模型的输出原样信任。
func (a *Advisor) Suggestions(ctx context.Context, pdfData []byte) ([]string, error) {
	text, err := a.gen.Generate(ctx, suggestionsPrompt, pdfData)
	if err != nil {
		return nil, err
	}
	return strings.Split(text, suggestionSentinel), nil
}

// Score 请求 0-100 的整数评分。
// 整段响应按整数解析，解析失败 (非数字、带多余文字或空白、空串) 兜底 50。
// 注意: 解析成功但越界的值不做 clamp，只有解析失败才触发兜底。
func (a *Advisor) Score(ctx context.Context, pdfData []byte) (int, error) {
	text, err := a.gen.Generate(ctx, scorePrompt, pdfData)
	if err != nil {
		return 0, err
	}
	return ParseScore(text), nil
}

// ParseScore 尽力解析评分文本，失败返回默认值 50。
// 整段文本原样解析，不做 trim: 模型多回一个换行就按解析失败兜底。
// 独立成纯函数，兜底行为是契约的一部分，不是异常吞掉的副作用。
func ParseScore(text string) int {
	score, err := strconv.Atoi(text)
	if err != nil {
		return defaultScore
	}
	return score
}
