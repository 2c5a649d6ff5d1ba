package worker

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/SzJasonHuang/PaperCuts/internal/service"
)

// Prometheus 指标
var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papercuts_sweep_runs_total",
		Help: "过期清理执行次数",
	})
	sweepDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papercuts_sweep_sessions_deleted_total",
		Help: "清理删除的过期会话数",
	})
	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papercuts_sweep_errors_total",
		Help: "清理过程中单会话删除失败数",
	})
)

// Sweeper 过期会话清理任务。
// 按固定周期扫描 expiresAt 已过期的会话，删文件再删记录。
// 设计为单实例运行，多副本部署时由调度方自己保证不重叠。
type Sweeper struct {
	svc      *service.PdfService
	interval time.Duration
}

func NewSweeper(svc *service.PdfService, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{svc: svc, interval: interval}
}

// Start 启动清理循环 (阻塞运行，放到 goroutine 里跑)。
func (w *Sweeper) Start(ctx context.Context) {
	log.Printf("🚀 过期清理任务已启动，周期 %s", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("过期清理任务退出")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Sweeper) runOnce(ctx context.Context) {
	sweepRunsTotal.Inc()

	deleted, failed := w.svc.CleanupExpired(ctx)
	sweepDeletedTotal.Add(float64(deleted))
	sweepErrorsTotal.Add(float64(failed))

	if deleted > 0 || failed > 0 {
		log.Printf("🧹 过期清理完成: 删除 %d 个会话, 失败 %d 个", deleted, failed)
	}
}
