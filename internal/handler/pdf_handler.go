package handler

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SzJasonHuang/PaperCuts/internal/dto"
	"github.com/SzJasonHuang/PaperCuts/internal/middleware"
	"github.com/SzJasonHuang/PaperCuts/internal/repository"
	"github.com/SzJasonHuang/PaperCuts/internal/service"
)

// 上传大小上限 50MB
const maxUploadSize = 50 * 1024 * 1024

type PdfHandler struct {
	svc *service.PdfService
}

func NewPdfHandler(svc *service.PdfService) *PdfHandler {
	return &PdfHandler{svc: svc}
}

// RegisterRoutes 注册 /pdf 路由组
func (h *PdfHandler) RegisterRoutes(r gin.IRouter) {
	pdf := r.Group("/pdf")
	{
		pdf.POST("/upload", h.Upload)
		pdf.POST("/:id/analyze", h.Analyze)
		pdf.POST("/:id/optimize", h.Optimize)
		pdf.GET("/:id/status", h.Status)
		pdf.GET("/:id/original", h.DownloadOriginal)
		pdf.GET("/:id/report", h.Report)
		pdf.GET("/:id/report/download", h.DownloadReport)
		pdf.DELETE("/:id", h.Delete)
	}
}

// Upload 上传 PDF 并创建会话
// POST /pdf/upload
// Form-Data: file=BINARY, userId=xxx (可选)
func (h *PdfHandler) Upload(c *gin.Context) {
	// 1. 获取文件
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请上传文件"})
		return
	}

	// 2. 校验: 空文件 / 类型 / 大小。校验不通过时不产生任何会话
	if fileHeader.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "文件为空"})
		return
	}
	if fileHeader.Header.Get("Content-Type") != "application/pdf" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "只支持 PDF 文件"})
		return
	}
	if fileHeader.Size > maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "文件超过 50MB 限制"})
		return
	}

	userID := c.PostForm("userId")

	// 3. 打开文件流
	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	// 4. 调用 Service
	session, err := h.svc.Upload(c.Request.Context(), fileHeader.Filename, userID, src, fileHeader.Size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.UploadResponse{
		SessionID:        session.ID,
		OriginalFileName: session.OriginalFileName,
		Status:           string(session.Status),
	})
}

// Analyze 运行分析
// POST /pdf/:id/analyze
func (h *PdfHandler) Analyze(c *gin.Context) {
	session, err := h.svc.Analyze(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	// estimatedSavings: 页数差 (还没优化时是 0)，墨水按 30% 估
	pagesSaved := 0
	if session.PagesBefore != nil && session.PagesAfter != nil {
		if diff := *session.PagesBefore - *session.PagesAfter; diff > 0 {
			pagesSaved = diff
		}
	}
	inkPercent := 0
	if session.InkBefore != nil {
		inkPercent = 30
	}

	c.JSON(http.StatusOK, dto.AnalyzeResponse{
		Diagnosis:       session.SuggestionList(),
		Recommendations: session.SuggestionList(),
		EstimatedSavings: dto.EstimatedSavings{
			Pages:      pagesSaved,
			InkPercent: inkPercent,
		},
		InkBefore:       session.InkBefore,
		PagesBefore:     session.PagesBefore,
		OptimizingScore: session.OptimizingScore,
	})
}

// Optimize 运行优化
// POST /pdf/:id/optimize
func (h *PdfHandler) Optimize(c *gin.Context) {
	var req dto.OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.svc.Optimize(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Status 查询会话全量记录
// GET /pdf/:id/status
func (h *PdfHandler) Status(c *gin.Context) {
	session, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// DownloadOriginal 下载 PDF 原件
// GET /pdf/:id/original
func (h *PdfHandler) DownloadOriginal(c *gin.Context) {
	rc, size, session, err := h.svc.OriginalStream(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", "attachment; filename="+session.OriginalFileName)
	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Length", fmt.Sprintf("%d", size))

	if _, err := io.Copy(c.Writer, rc); err != nil {
		// 头已经发出去了，只能记日志
		log.Printf("⚠️ [trace=%s] 文件流写出失败: %v", middleware.TraceID(c.Request.Context()), err)
	}
}

// Report 内嵌查看报告
// GET /pdf/:id/report
func (h *PdfHandler) Report(c *gin.Context) {
	html, _, err := h.svc.ReportHTML(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

// DownloadReport 下载报告文件
// GET /pdf/:id/report/download
func (h *PdfHandler) DownloadReport(c *gin.Context) {
	html, session, err := h.svc.ReportHTML(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	base := strings.TrimSuffix(session.OriginalFileName, ".pdf")
	c.Header("Content-Disposition", "attachment; filename="+base+"_report.html")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

// Delete 删除会话 + 文件
// DELETE /pdf/:id
func (h *PdfHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError 统一错误到状态码的映射
func (h *PdfHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, service.ErrReportNotReady):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSessionBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("❌ [trace=%s] 处理失败: %v", middleware.TraceID(c.Request.Context()), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
