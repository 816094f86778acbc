package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/models"
	"github.com/RecoveryAshes/OzonPriceCorrector/internal/utils"
)

const (
	// DefaultSourcePattern 收件箱中待处理文件的匹配模式
	DefaultSourcePattern = "bad_price_*.txt"
	// WorkFileName 工作文件名
	WorkFileName = "inwork.txt"
)

// InboxOptions 收件箱目录配置
type InboxOptions struct {
	InboxDir      string
	WorkDir       string
	ProcessedDir  string
	SourcePattern string
	StaleAfter    time.Duration // 工作文件超过该时长未更新视为过期
}

// Selection 本轮要处理的工作文件
type Selection struct {
	WorkFile string
	Source   string // 处理完成后归档的来源文件, 可为空
	Fresh    bool   // 是否刚从来源文件复制
}

// Inbox 管理 in/ → in_work/ → in/processed/ 的文件流转
type Inbox struct {
	opts InboxOptions
	now  func() time.Time
}

// NewInbox 创建收件箱
func NewInbox(opts InboxOptions) *Inbox {
	if opts.InboxDir == "" {
		opts.InboxDir = "in"
	}
	if opts.WorkDir == "" {
		opts.WorkDir = "in_work"
	}
	if opts.ProcessedDir == "" {
		opts.ProcessedDir = filepath.Join(opts.InboxDir, "processed")
	}
	if opts.SourcePattern == "" {
		opts.SourcePattern = DefaultSourcePattern
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Minute
	}
	return &Inbox{opts: opts, now: time.Now}
}

// EnsureDirs 创建所需目录
func (in *Inbox) EnsureDirs() error {
	for _, dir := range []string{in.opts.InboxDir, in.opts.WorkDir, in.opts.ProcessedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败 [%s]: %w", dir, err)
		}
	}
	return nil
}

// WorkFilePath 工作文件路径
func (in *Inbox) WorkFilePath() string {
	return filepath.Join(in.opts.WorkDir, WorkFileName)
}

// LatestSource 修改时间最新的来源文件, 没有时返回空字符串
func (in *Inbox) LatestSource() (string, time.Time, error) {
	matches, err := filepath.Glob(filepath.Join(in.opts.InboxDir, in.opts.SourcePattern))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("匹配来源文件失败: %w", err)
	}

	var latest string
	var latestMod time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest, latestMod = m, info.ModTime()
		}
	}
	return latest, latestMod, nil
}

// Prepare 决定本轮处理哪个工作文件, 没有可处理的文件时返回nil
//   - 工作文件不存在: 复制最新的来源文件
//   - 工作文件过期且有更新的来源文件: 复制该来源文件
//   - 其他情况: 继续处理现有工作文件
func (in *Inbox) Prepare() (*Selection, error) {
	if err := in.EnsureDirs(); err != nil {
		return nil, err
	}

	work := in.WorkFilePath()
	latest, latestMod, err := in.LatestSource()
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(work)
	switch {
	case errors.Is(err, os.ErrNotExist):
		utils.Info("📭 工作文件不存在")
		if latest == "" {
			utils.Info("没有待处理的文件")
			return nil, nil
		}
		return in.copySource(latest)
	case err != nil:
		return nil, fmt.Errorf("读取工作文件信息失败: %w", err)
	}

	age := in.now().Sub(info.ModTime())
	if age > in.opts.StaleAfter {
		utils.Infof("⏰ 工作文件已过期 (%s)", age.Round(time.Second))
		if latest != "" && latestMod.After(info.ModTime()) {
			utils.Infof("📬 发现更新的来源文件: %s", latest)
			return in.copySource(latest)
		}
	}

	utils.Infof("📄 继续处理现有工作文件: %s", work)
	sel := &Selection{WorkFile: work}
	if cp, err := models.LoadCheckpointFromFile(models.CheckpointPath(work)); err == nil && cp != nil && cp.SourceFile != "" {
		if _, err := os.Stat(cp.SourceFile); err == nil {
			sel.Source = cp.SourceFile
		}
	}
	return sel, nil
}

// copySource 复制来源文件为新的工作文件, 并丢弃旧检查点
func (in *Inbox) copySource(source string) (*Selection, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("读取来源文件失败: %w", err)
	}

	work := in.WorkFilePath()
	if err := models.WriteFileAtomic(work, data, 0644); err != nil {
		return nil, fmt.Errorf("创建工作文件失败: %w", err)
	}
	if err := os.Remove(models.CheckpointPath(work)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("删除旧检查点失败: %w", err)
	}

	utils.Infof("📋 已创建工作文件: %s ← %s", work, source)
	return &Selection{WorkFile: work, Source: source, Fresh: true}, nil
}

// Archive 把来源文件移动到已处理目录
func (in *Inbox) Archive(source string) error {
	if source == "" {
		return nil
	}
	if err := os.MkdirAll(in.opts.ProcessedDir, 0755); err != nil {
		return fmt.Errorf("创建归档目录失败: %w", err)
	}
	dest := filepath.Join(in.opts.ProcessedDir, filepath.Base(source))
	if err := os.Rename(source, dest); err != nil {
		return fmt.Errorf("归档来源文件失败: %w", err)
	}
	utils.Infof("📦 来源文件已归档: %s", dest)
	return nil
}

// CycleFunc 处理一个工作文件
type CycleFunc func(ctx context.Context, sel *Selection) error

// RunCycle 执行一轮: 选择文件, 处理, 归档来源
// 没有可处理的文件时返回false
func (in *Inbox) RunCycle(ctx context.Context, process CycleFunc) (bool, error) {
	sel, err := in.Prepare()
	if err != nil {
		return false, err
	}
	if sel == nil {
		return false, nil
	}

	if err := process(ctx, sel); err != nil {
		return true, err
	}
	if err := in.Archive(sel.Source); err != nil {
		utils.Errorf("❌ %v", err)
	}
	return true, nil
}

// Watch 按固定间隔重复RunCycle直到ctx取消
// 失败的一轮改用retryInterval等待
func (in *Inbox) Watch(ctx context.Context, process CycleFunc, interval, retryInterval time.Duration) error {
	return in.watch(ctx, process, interval, retryInterval, utils.Sleep)
}

func (in *Inbox) watch(ctx context.Context, process CycleFunc, interval, retryInterval time.Duration, sleep func(context.Context, time.Duration) error) error {
	utils.Infof("👀 监视模式启动, 检查间隔 %s", interval)
	for {
		wait := interval
		if _, err := in.RunCycle(ctx, process); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			utils.Errorf("❌ 本轮处理失败: %v", err)
			wait = retryInterval
		}

		utils.Infof("⏳ %s 后进行下一次检查", wait)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}
