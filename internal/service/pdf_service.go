package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/SzJasonHuang/PaperCuts/internal/ai"
	"github.com/SzJasonHuang/PaperCuts/internal/dto"
	"github.com/SzJasonHuang/PaperCuts/internal/model"
	"github.com/SzJasonHuang/PaperCuts/internal/pdf"
	"github.com/SzJasonHuang/PaperCuts/internal/report"
	"github.com/SzJasonHuang/PaperCuts/internal/repository"
)

var (
	// ErrSessionBusy 同一会话已有 analyze/optimize 在执行 (Handler 返回 409)
	ErrSessionBusy = errors.New("会话正在处理中，请稍后重试")
	// ErrReportNotReady 报告还没生成 (Handler 返回 404)
	ErrReportNotReady = errors.New("报告尚未生成")
)

// BlobStore 文件存储契约，按对象名存取。实现见 data.MinioBlobStore。
type BlobStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, objectName string) (io.ReadCloser, int64, error)
	Remove(ctx context.Context, objectName string) error
}

// SessionLocker 会话级互斥锁契约。实现见 data.RedisSessionLocker。
type SessionLocker interface {
	TryLock(ctx context.Context, sessionID string) (release func(), ok bool)
}

// PdfService 会话生命周期管理: 状态机推进、落库、过期清理。
// 所有操作都在单次请求内同步执行完，没有后台任务队列。
type PdfService struct {
	repo     repository.SessionRepository
	blobs    BlobStore
	renderer pdf.Renderer
	advisor  *ai.Advisor
	reports  *report.Generator
	locker   SessionLocker
}

func NewPdfService(
	repo repository.SessionRepository,
	blobs BlobStore,
	renderer pdf.Renderer,
	advisor *ai.Advisor,
	reports *report.Generator,
	locker SessionLocker,
) *PdfService {
	return &PdfService{
		repo:     repo,
		blobs:    blobs,
		renderer: renderer,
		advisor:  advisor,
		reports:  reports,
		locker:   locker,
	}
}

// =================================================================================
// 1. 上传
// =================================================================================

// Upload 存储 PDF 原件并创建会话记录，初始状态 UPLOADED。
// 入参校验 (空文件/类型/大小) 在 Handler 层完成，到这里不再产生任何状态变更风险。
func (s *PdfService) Upload(ctx context.Context, fileName, userID string, r io.Reader, size int64) (*model.PdfSession, error) {
	// 1. 生成存储对象名: {uuid}_original.pdf
	objectName := uuid.New().String() + "_original.pdf"

	// 2. 上传到 MinIO
	if err := s.blobs.Put(ctx, objectName, r, size, "application/pdf"); err != nil {
		return nil, fmt.Errorf("文件上传失败: %w", err)
	}

	// 3. 创建会话记录
	session := model.NewPdfSession(uuid.New().String(), userID, fileName, objectName)
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("会话创建失败: %w", err)
	}

	return session, nil
}

// =================================================================================
// 2. 分析
// =================================================================================

// Analyze 运行分析流水线: 渲染页数 + 估算墨量 + 两次大模型调用。
// 成功后会话进入 ANALYZED；任何处理失败都先把 ERROR 状态落库再上抛原始错误。
// 允许对 ANALYZED/COMPLETE 会话重跑，字段整体覆盖。
func (s *PdfService) Analyze(ctx context.Context, sessionID string) (*model.PdfSession, error) {
	release, ok := s.locker.TryLock(ctx, sessionID)
	if !ok {
		return nil, ErrSessionBusy
	}
	defer release()

	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// 开始干活前先把 ANALYZING 落库
	if err := session.TransitionTo(model.StatusAnalyzing); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}

	if err := s.runAnalysis(ctx, session); err != nil {
		return nil, s.markError(ctx, session, fmt.Errorf("PDF 分析失败: %w", err))
	}

	if err := session.TransitionTo(model.StatusAnalyzed); err != nil {
		return nil, s.markError(ctx, session, err)
	}
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *PdfService) runAnalysis(ctx context.Context, session *model.PdfSession) error {
	// 1. 读原件
	data, err := s.readBlob(ctx, session.OriginalFilePath)
	if err != nil {
		return err
	}

	// 2. 渲染: 页数 + 墨量
	doc, err := s.renderer.Open(data)
	if err != nil {
		return err
	}
	pages := doc.PageCount()
	ink := pdf.EstimateInk(doc) // 渲染失败内部兜底 0.15，不上抛
	doc.Close()

	session.PagesBefore = &pages
	session.InkBefore = &ink

	// 3. 大模型: 建议 + 评分。两次调用互相独立，都尝试；
	//    任何一个传输层失败都让整个 analyze 失败。
	suggestions, sugErr := s.advisor.Suggestions(ctx, data)
	score, scoreErr := s.advisor.Score(ctx, data)
	if sugErr != nil {
		return sugErr
	}
	if scoreErr != nil {
		return scoreErr
	}

	session.SetSuggestions(suggestions)
	session.OptimizingScore = &score
	return nil
}

// =================================================================================
// 3. 优化
// =================================================================================

// Optimize 生成 HTML 仿制报告并估算节省。
// 参数在开始干活前原样记录并落库；成功后进入 COMPLETE，
// optimizedFilePath / pagesAfter / inkAfter / changesApplied 同时写入。
func (s *PdfService) Optimize(ctx context.Context, sessionID string, req dto.OptimizeRequest) (*model.PdfSession, error) {
	release, ok := s.locker.TryLock(ctx, sessionID)
	if !ok {
		return nil, ErrSessionBusy
	}
	defer release()

	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// 记录优化参数 + OPTIMIZING 落库
	session.InkSaverLevel = req.InkSaverLevel
	session.PageSaverLevel = req.PageSaverLevel
	session.PreserveQuality = req.PreserveQuality
	session.ExcludeImages = req.ExcludeImages
	if err := session.TransitionTo(model.StatusOptimizing); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}

	if err := s.runOptimization(ctx, session); err != nil {
		return nil, s.markError(ctx, session, fmt.Errorf("报告生成失败: %w", err))
	}

	if err := session.TransitionTo(model.StatusComplete); err != nil {
		return nil, s.markError(ctx, session, err)
	}
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *PdfService) runOptimization(ctx context.Context, session *model.PdfSession) error {
	// 没跑过 analyze 就没有 inkBefore，无法推导 inkAfter
	if session.InkBefore == nil {
		return errors.New("会话尚未分析，缺少 inkBefore")
	}

	// 1. 读原件并重新取页数 (报告的 pagesAfter 就是原文档页数)
	data, err := s.readBlob(ctx, session.OriginalFilePath)
	if err != nil {
		return err
	}
	doc, err := s.renderer.Open(data)
	if err != nil {
		return err
	}
	pages := doc.PageCount()
	doc.Close()

	// 2. 大模型生成 HTML 仿制 + 节省估算
	res, err := s.reports.Generate(ctx, data, pages, *session.InkBefore, session.InkSaverLevel)
	if err != nil {
		return err
	}

	// 3. 报告落 MinIO: {sessionId}_report.html
	reportName := session.ID + "_report.html"
	htmlBytes := []byte(res.HTML)
	if err := s.blobs.Put(ctx, reportName, bytes.NewReader(htmlBytes), int64(len(htmlBytes)), "text/html"); err != nil {
		return err
	}

	// 4. 三个 after 字段和报告路径必须一起写
	session.OptimizedFilePath = reportName
	session.PagesAfter = &res.PagesAfter
	session.InkAfter = &res.InkAfter
	session.SetChangesApplied([]string{"Generated optimization report with 3 recommendations"})
	return nil
}

// =================================================================================
// 4. 查询 / 下载
// =================================================================================

// Get 按 id 查会话，不存在返回 ErrSessionNotFound。
func (s *PdfService) Get(ctx context.Context, sessionID string) (*model.PdfSession, error) {
	return s.repo.FindByID(ctx, sessionID)
}

// OriginalStream 返回原件下载流 (调用方负责 Close)。
func (s *PdfService) OriginalStream(ctx context.Context, sessionID string) (io.ReadCloser, int64, *model.PdfSession, error) {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, 0, nil, err
	}
	rc, size, err := s.blobs.Get(ctx, session.OriginalFilePath)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("原件读取失败: %w", err)
	}
	return rc, size, session, nil
}

// ReportHTML 返回报告内容。报告还没生成时返回 ErrReportNotReady。
func (s *PdfService) ReportHTML(ctx context.Context, sessionID string) (string, *model.PdfSession, error) {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}
	if session.OptimizedFilePath == "" {
		return "", nil, ErrReportNotReady
	}
	data, err := s.readBlob(ctx, session.OptimizedFilePath)
	if err != nil {
		return "", nil, fmt.Errorf("报告读取失败: %w", err)
	}
	return string(data), session, nil
}

// =================================================================================
// 5. 删除 / 过期清理
// =================================================================================

// Delete 删除会话: 先删两个文件再删记录。
// 文件已经不存在不算错误 (对象存储删除天然幂等)。
func (s *PdfService) Delete(ctx context.Context, sessionID string) error {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}

	if session.OriginalFilePath != "" {
		if err := s.blobs.Remove(ctx, session.OriginalFilePath); err != nil {
			return fmt.Errorf("删除原件失败: %w", err)
		}
	}
	if session.OptimizedFilePath != "" {
		if err := s.blobs.Remove(ctx, session.OptimizedFilePath); err != nil {
			return fmt.Errorf("删除报告失败: %w", err)
		}
	}

	return s.repo.Delete(ctx, sessionID)
}

// CleanupExpired 扫描并删除所有已过期的会话 (任何状态都会删)。
// 单个会话删除失败只记日志跳过，不中断整轮清理。
// 返回 (删除数, 失败数)。
func (s *PdfService) CleanupExpired(ctx context.Context) (deleted int, failed int) {
	expired, err := s.repo.FindExpired(ctx, time.Now())
	if err != nil {
		log.Printf("❌ 过期会话扫描失败: %v", err)
		return 0, 1
	}

	for _, session := range expired {
		if err := s.Delete(ctx, session.ID); err != nil {
			log.Printf("⚠️ 过期会话删除失败 (跳过): id=%s err=%v", session.ID, err)
			failed++
			continue
		}
		deleted++
	}
	return deleted, failed
}

// =================================================================================
// 6. 私有辅助方法
// =================================================================================

// markError 把 ERROR 状态落库后原样上抛触发错误 (错误信息保留给调用方)。
func (s *PdfService) markError(ctx context.Context, session *model.PdfSession, cause error) error {
	session.Status = model.StatusError // ERROR 可以从任何处理中状态进入
	if err := s.repo.Save(ctx, session); err != nil {
		log.Printf("❌ ERROR 状态落库失败: id=%s err=%v", session.ID, err)
	}
	return cause
}

func (s *PdfService) readBlob(ctx context.Context, objectName string) ([]byte, error) {
	rc, _, err := s.blobs.Get(ctx, objectName)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
