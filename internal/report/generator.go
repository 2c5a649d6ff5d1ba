package report

import (
	"context"
	"regexp"
	"strings"

	"github.com/SzJasonHuang/PaperCuts/internal/ai"
)

const reportPrompt = `Analyze this PDF and create an HTML5 document imitation with exactly 3 specific edits to reduce ink and page usage.

Return ONLY a valid standalone HTML5 document with this structure, try to imitate my input pdf file with the changes applied and generate an html file back
 <!DOCTYPE html>.
`

// 基础节省率 + 每级 inkSaverLevel 的增量
const (
	baseSavings     = 0.15
	savingsPerLevel = 0.002
)

// Result 一次报告生成的产物。
// 注意: PagesAfter 就是原文档页数，InkAfter 是公式推导值而非实测 —
// "优化" 产出的是 AI 仿制的 HTML + 估算节省，不是真实的 PDF 重写。
type Result struct {
	HTML       string
	PagesAfter int
	InkAfter   float64
}

// Generator 报告生成器: 一次大模型调用 + 响应清洗 + 节省估算。
type Generator struct {
	gen ai.Generator
}

func NewGenerator(gen ai.Generator) *Generator {
	return &Generator{gen: gen}
}

// Generate 生成 HTML 仿制报告并估算优化后指标。
func (g *Generator) Generate(ctx context.Context, pdfData []byte, pagesBefore int, inkBefore float64, inkSaverLevel *int) (*Result, error) {
	raw, err := g.gen.Generate(ctx, reportPrompt, pdfData)
	if err != nil {
		return nil, err
	}

	return &Result{
		HTML:       SanitizeHTML(raw),
		PagesAfter: pagesBefore,
		InkAfter:   inkBefore * (1 - EstimateSavings(inkSaverLevel)),
	}, nil
}

// EstimateSavings 按优化参数估算墨水节省比例。
// savings = 0.15 + inkSaverLevel * 0.002 (未传参时就是 0.15)。
func EstimateSavings(inkSaverLevel *int) float64 {
	if inkSaverLevel == nil {
		return baseSavings
	}
	return baseSavings + float64(*inkSaverLevel)*savingsPerLevel
}

var codeFenceRe = regexp.MustCompile("```[a-zA-Z]*[ \t]*")

// asciiLower 只小写 A-Z。strings.ToLower 会改变部分 Unicode 字符的
// 字节长度 (如 İ 2->1 字节)，在它上面算出的索引不能回切原串；
// 要找的标记 (<!doctype / <html / </html>) 都是 ASCII，按字节小写就够了。
func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// SanitizeHTML 把模型的自由文本响应清洗成完整 HTML 文档。
// 步骤: 去掉代码围栏标记 -> trim -> 截取 <!doctype (或 <html) 到最后一个
// </html> 的子串。找不到有效区间时返回 trim 后的原文。
func SanitizeHTML(response string) string {
	if response == "" {
		return response
	}

	cleaned := codeFenceRe.ReplaceAllString(response, "")
	cleaned = strings.TrimSpace(cleaned)

	lower := asciiLower(cleaned)

	start := strings.Index(lower, "<!doctype")
	if start < 0 {
		start = strings.Index(lower, "<html")
	}
	end := strings.LastIndex(lower, "</html>")

	if start >= 0 && end > start {
		cleaned = cleaned[start : end+len("</html>")]
	}
	return cleaned
}
