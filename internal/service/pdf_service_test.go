package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SzJasonHuang/PaperCuts/internal/ai"
	"github.com/SzJasonHuang/PaperCuts/internal/dto"
	"github.com/SzJasonHuang/PaperCuts/internal/model"
	"github.com/SzJasonHuang/PaperCuts/internal/pdf"
	"github.com/SzJasonHuang/PaperCuts/internal/report"
	"github.com/SzJasonHuang/PaperCuts/internal/repository"
)

// ---------------------------------------------------------------------------
// 测试替身
// ---------------------------------------------------------------------------

// memRepo 内存会话仓库
type memRepo struct {
	mu       sync.Mutex
	sessions map[string]model.PdfSession
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: map[string]model.PdfSession{}}
}

func (r *memRepo) Create(ctx context.Context, s *model.PdfSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	return nil
}

func (r *memRepo) FindByID(ctx context.Context, id string) (*model.PdfSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := s
	return &cp, nil
}

func (r *memRepo) Save(ctx context.Context, s *model.PdfSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	return nil
}

func (r *memRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memRepo) FindExpired(ctx context.Context, before time.Time) ([]*model.PdfSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*model.PdfSession
	for _, s := range r.sessions {
		if s.ExpiresAt.Before(before) {
			cp := s
			list = append(list, &cp)
		}
	}
	return list, nil
}

// memBlobStore 内存文件存储，删除天然幂等
type memBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: map[string][]byte{}}
}

func (b *memBlobStore) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[name] = data
	return nil
}

func (b *memBlobStore) Get(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[name]
	if !ok {
		return nil, 0, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (b *memBlobStore) Remove(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, name)
	return nil
}

func (b *memBlobStore) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

// fakeRenderer 渲染出固定页数的全白页面
type fakeRenderer struct {
	pages   int
	openErr error
}

func (r *fakeRenderer) Open(data []byte) (pdf.Document, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	return &whiteDoc{pages: r.pages}, nil
}

type whiteDoc struct{ pages int }

func (d *whiteDoc) PageCount() int { return d.pages }

func (d *whiteDoc) RenderPage(page int, dpi float64) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	return img, nil
}

func (d *whiteDoc) Close() error { return nil }

// scriptedGenerator 按 prompt 返回预设响应的大模型替身
type scriptedGenerator struct {
	suggestionsText string
	scoreText       string
	reportText      string
	failAll         bool
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string, pdfData []byte) (string, error) {
	if g.failAll {
		return "", errors.New("generative service unavailable")
	}
	switch {
	case strings.Contains(prompt, "score out of 100"):
		return g.scoreText, nil
	case strings.Contains(prompt, "Suggest three ways"):
		return g.suggestionsText, nil
	default:
		return g.reportText, nil
	}
}

// noopLocker 永远放行的锁
type noopLocker struct{}

func (noopLocker) TryLock(ctx context.Context, id string) (func(), bool) {
	return func() {}, true
}

// heldLocker 永远拿不到锁
type heldLocker struct{}

func (heldLocker) TryLock(ctx context.Context, id string) (func(), bool) {
	return nil, false
}

// ---------------------------------------------------------------------------
// 测试装配
// ---------------------------------------------------------------------------

type fixture struct {
	svc   *PdfService
	repo  *memRepo
	blobs *memBlobStore
	gen   *scriptedGenerator
}

func newFixture(pages int) *fixture {
	repo := newMemRepo()
	blobs := newMemBlobStore()
	gen := &scriptedGenerator{
		suggestionsText: "双面打印$NEWLINE$灰度模式$NEWLINE$减小页边距",
		scoreText:       "72",
		reportText:      "<!DOCTYPE html><html><body>mimic</body></html>",
	}
	svc := NewPdfService(
		repo,
		blobs,
		&fakeRenderer{pages: pages},
		ai.NewAdvisor(gen),
		report.NewGenerator(gen),
		noopLocker{},
	)
	return &fixture{svc: svc, repo: repo, blobs: blobs, gen: gen}
}

func (f *fixture) upload(t *testing.T) *model.PdfSession {
	t.Helper()
	content := []byte("%PDF-1.4 fake")
	s, err := f.svc.Upload(context.Background(), "thesis.pdf", "user-1", bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// 用例
// ---------------------------------------------------------------------------

func TestUploadCreatesSession(t *testing.T) {
	f := newFixture(3)
	s := f.upload(t)

	if s.Status != model.StatusUploaded {
		t.Errorf("初始状态应为 UPLOADED，实际 %s", s.Status)
	}
	if !strings.HasSuffix(s.OriginalFilePath, "_original.pdf") {
		t.Errorf("原件对象名应以 _original.pdf 结尾: %s", s.OriginalFilePath)
	}
	if f.blobs.count() != 1 {
		t.Errorf("应存有 1 个对象，实际 %d", f.blobs.count())
	}
	ttl := s.ExpiresAt.Sub(s.CreatedAt)
	if ttl != 24*time.Hour {
		t.Errorf("TTL 应为 24h，实际 %s", ttl)
	}
}

func TestAnalyzeHappyPath(t *testing.T) {
	f := newFixture(3)
	s := f.upload(t)

	got, err := f.svc.Analyze(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	if got.Status != model.StatusAnalyzed {
		t.Errorf("状态应为 ANALYZED，实际 %s", got.Status)
	}
	if got.PagesBefore == nil || *got.PagesBefore != 3 {
		t.Errorf("pagesBefore 应为 3，实际 %v", got.PagesBefore)
	}
	// 全白文档墨量接近 0
	if got.InkBefore == nil || *got.InkBefore > 0.1 {
		t.Errorf("全白文档 inkBefore 应 < 0.1，实际 %v", got.InkBefore)
	}
	if got.OptimizingScore == nil || *got.OptimizingScore != 72 {
		t.Errorf("评分应为 72，实际 %v", got.OptimizingScore)
	}
	if len(got.SuggestionList()) != 3 {
		t.Errorf("应有 3 条建议，实际 %v", got.SuggestionList())
	}
}

func TestAnalyzeFailureMarksError(t *testing.T) {
	f := newFixture(3)
	s := f.upload(t)
	f.gen.failAll = true

	_, err := f.svc.Analyze(context.Background(), s.ID)
	if err == nil {
		t.Fatal("大模型失败时 analyze 应报错")
	}
	if !strings.Contains(err.Error(), "generative service unavailable") {
		t.Errorf("应保留原始错误信息: %v", err)
	}

	// ERROR 状态已落库，失败前算出的局部字段保留
	stored, _ := f.repo.FindByID(context.Background(), s.ID)
	if stored.Status != model.StatusError {
		t.Errorf("状态应为 ERROR，实际 %s", stored.Status)
	}
	if stored.PagesBefore == nil {
		t.Error("失败前写入的 pagesBefore 应保留")
	}
}

func TestAnalyzeUnknownSession(t *testing.T) {
	f := newFixture(3)
	_, err := f.svc.Analyze(context.Background(), "no-such-id")
	if !errors.Is(err, repository.ErrSessionNotFound) {
		t.Errorf("未知 id 应返回 ErrSessionNotFound，实际 %v", err)
	}
}

func TestAnalyzeReentrant(t *testing.T) {
	f := newFixture(3)
	s := f.upload(t)

	if _, err := f.svc.Analyze(context.Background(), s.ID); err != nil {
		t.Fatalf("第一次 analyze 失败: %v", err)
	}
	f.gen.scoreText = "99"
	got, err := f.svc.Analyze(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("重跑 analyze 失败: %v", err)
	}
	if *got.OptimizingScore != 99 {
		t.Errorf("重跑应覆盖评分，实际 %d", *got.OptimizingScore)
	}
}

func TestOptimizeHappyPath(t *testing.T) {
	f := newFixture(3)
	s := f.upload(t)
	if _, err := f.svc.Analyze(context.Background(), s.ID); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	level := 50
	got, err := f.svc.Optimize(context.Background(), s.ID, dto.OptimizeRequest{InkSaverLevel: &level})
	if err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	if got.Status != model.StatusComplete {
		t.Errorf("状态应为 COMPLETE，实际 %s", got.Status)
	}
	// 报告路径、after 指标、变更列表必须一起出现
	if got.OptimizedFilePath != s.ID+"_report.html" {
		t.Errorf("报告对象名不对: %s", got.OptimizedFilePath)
	}
	if got.PagesAfter == nil || *got.PagesAfter != 3 {
		t.Errorf("pagesAfter 应为原页数 3，实际 %v", got.PagesAfter)
	}
	if got.InkAfter == nil {
		t.Fatal("inkAfter 缺失")
	}
	// savings = 0.15 + 50*0.002 = 0.25
	want := *got.InkBefore * 0.75
	if diff := *got.InkAfter - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("inkAfter 应为 %f，实际 %f", want, *got.InkAfter)
	}
	if len(got.ChangeList()) == 0 {
		t.Error("changesApplied 不能为空")
	}
	if got.InkSaverLevel == nil || *got.InkSaverLevel != 50 {
		t.Errorf("优化参数应原样记录，实际 %v", got.InkSaverLevel)
	}

	// 报告内容已清洗并落库
	html, _, err := f.svc.ReportHTML(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("读报告失败: %v", err)
	}
	if !strings.HasPrefix(html, "<!DOCTYPE html>") {
		t.Errorf("报告应为清洗后的 HTML: %q", html)
	}
}

func TestOptimizeBeforeAnalyzeMarksError(t *testing.T) {
	f := newFixture(3)
	s := f.upload(t)

	_, err := f.svc.Optimize(context.Background(), s.ID, dto.OptimizeRequest{})
	if err == nil {
		t.Fatal("没有 inkBefore 时 optimize 应报错")
	}
	stored, _ := f.repo.FindByID(context.Background(), s.ID)
	if stored.Status != model.StatusError {
		t.Errorf("状态应为 ERROR，实际 %s", stored.Status)
	}
}

func TestSessionBusy(t *testing.T) {
	f := newFixture(3)
	s := f.upload(t)
	f.svc.locker = heldLocker{}

	if _, err := f.svc.Analyze(context.Background(), s.ID); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("锁被占用时应返回 ErrSessionBusy，实际 %v", err)
	}
	if _, err := f.svc.Optimize(context.Background(), s.ID, dto.OptimizeRequest{}); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("锁被占用时应返回 ErrSessionBusy，实际 %v", err)
	}
}

func TestReportNotReady(t *testing.T) {
	f := newFixture(3)
	s := f.upload(t)

	if _, _, err := f.svc.ReportHTML(context.Background(), s.ID); !errors.Is(err, ErrReportNotReady) {
		t.Errorf("报告未生成应返回 ErrReportNotReady，实际 %v", err)
	}
}

func TestDeleteRemovesBlobsAndRecord(t *testing.T) {
	f := newFixture(3)
	s := f.upload(t)
	if _, err := f.svc.Analyze(context.Background(), s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Optimize(context.Background(), s.ID, dto.OptimizeRequest{}); err != nil {
		t.Fatal(err)
	}
	if f.blobs.count() != 2 {
		t.Fatalf("optimize 后应有 2 个对象，实际 %d", f.blobs.count())
	}

	if err := f.svc.Delete(context.Background(), s.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if f.blobs.count() != 0 {
		t.Errorf("两个文件都应被删除，剩余 %d", f.blobs.count())
	}
	if _, err := f.svc.Get(context.Background(), s.ID); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Errorf("删除后查询应 not-found，实际 %v", err)
	}

	// 第二次删除: 记录已不存在
	if err := f.svc.Delete(context.Background(), s.ID); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Errorf("重复删除应返回 not-found，实际 %v", err)
	}
}

func TestDeleteWithMissingBlob(t *testing.T) {
	f := newFixture(3)
	s := f.upload(t)

	// 文件先没了 (孤儿记录)，删除仍然成功
	f.blobs.Remove(context.Background(), s.OriginalFilePath)

	if err := f.svc.Delete(context.Background(), s.ID); err != nil {
		t.Errorf("文件缺失不应让删除失败: %v", err)
	}
}

func TestCleanupExpired(t *testing.T) {
	f := newFixture(3)

	// 三个会话: 两个过期，一个未过期
	s1 := f.upload(t)
	s2 := f.upload(t)
	s3 := f.upload(t)
	expire := func(id string) {
		s, _ := f.repo.FindByID(context.Background(), id)
		s.ExpiresAt = time.Now().Add(-time.Hour)
		f.repo.Save(context.Background(), s)
	}
	expire(s1.ID)
	expire(s2.ID)

	deleted, failed := f.svc.CleanupExpired(context.Background())
	if deleted != 2 || failed != 0 {
		t.Errorf("应删除 2 个、失败 0 个，实际 %d/%d", deleted, failed)
	}

	if _, err := f.svc.Get(context.Background(), s1.ID); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Error("过期会话 s1 应已删除")
	}
	if _, err := f.svc.Get(context.Background(), s2.ID); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Error("过期会话 s2 应已删除")
	}
	if _, err := f.svc.Get(context.Background(), s3.ID); err != nil {
		t.Errorf("未过期会话 s3 不应被动: %v", err)
	}
	if f.blobs.count() != 1 {
		t.Errorf("只应剩 s3 的原件，实际 %d 个对象", f.blobs.count())
	}
}

func TestEndToEndWhiteDocument(t *testing.T) {
	// 3 页全白文档的端到端场景
	f := newFixture(3)
	s := f.upload(t)

	analyzed, err := f.svc.Analyze(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if *analyzed.PagesBefore != 3 {
		t.Errorf("pagesBefore = %d", *analyzed.PagesBefore)
	}
	if *analyzed.InkBefore >= 0.1 {
		t.Errorf("inkBefore 应接近 0，实际 %f", *analyzed.InkBefore)
	}
	if *analyzed.OptimizingScore < 0 || *analyzed.OptimizingScore > 100 {
		t.Errorf("评分越界: %d", *analyzed.OptimizingScore)
	}
	if len(analyzed.SuggestionList()) == 0 {
		t.Error("建议不能为空")
	}
	if analyzed.Status != model.StatusAnalyzed {
		t.Errorf("状态应为 ANALYZED，实际 %s", analyzed.Status)
	}
}
