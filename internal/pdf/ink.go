package pdf

import "image"

const (
	// 采样页数上限，超过的部分按均值外推
	maxSamplePages = 10
	// 低分辨率渲染，速度优先
	renderDPI = 72.0
	// 像素采样步长 (两个方向都隔 4 取 1，面积上 16 倍降采样)
	pixelStride = 4
	// 渲染失败时的兜底墨量
	fallbackInk = 0.15
)

// EstimateInk 估算整个文档的归一化墨水覆盖率，结果在 [0,1]。
// 采样前 min(N,10) 页，逐页算平均暗度后取均值；页数更多时按均值外推。
// 任何一页渲染失败都返回兜底值 0.15，分析流程不因墨量估算挂掉。
func EstimateInk(doc Document) float64 {
	pageCount := doc.PageCount()
	if pageCount <= 0 {
		return fallbackInk
	}

	samples := pageCount
	if samples > maxSamplePages {
		samples = maxSamplePages
	}

	totalInk := 0.0
	for i := 0; i < samples; i++ {
		img, err := doc.RenderPage(i, renderDPI)
		if err != nil {
			return fallbackInk
		}
		totalInk += imageDarkness(img)
	}

	// 外推剩余页
	if pageCount > samples {
		avgPerPage := totalInk / float64(samples)
		totalInk = avgPerPage * float64(pageCount)
	}

	// 归一化到 [0,1]
	result := totalInk / float64(pageCount)
	if result > 1.0 {
		result = 1.0
	}
	return result
}

// imageDarkness 计算单页位图的暗度 (0 全白, 1 全黑)。
// 隔 4 像素采样: 暗度 = 255 - 灰度亮度，灰度 = (r+g+b)/3。
func imageDarkness(img image.Image) float64 {
	bounds := img.Bounds()
	var totalDarkness float64
	var sampled int

	for y := bounds.Min.Y; y < bounds.Max.Y; y += pixelStride {
		for x := bounds.Min.X; x < bounds.Max.X; x += pixelStride {
			r, g, b, _ := img.At(x, y).RGBA()
			// RGBA() 返回 16bit 值，右移 8 回到 0-255
			brightness := (float64(r>>8) + float64(g>>8) + float64(b>>8)) / 3.0
			totalDarkness += 255.0 - brightness
			sampled++
		}
	}

	if sampled == 0 {
		return 0
	}
	return (totalDarkness / float64(sampled)) / 255.0
}
