package crawlers

import (
	"runtime"

	"github.com/RecoveryAshes/OzonPriceCorrector/internal/utils"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitorConfig 资源监控配置
type ResourceMonitorConfig struct {
	BrowserMemory       int64 // 单个浏览器进程的内存预算(字节)
	SafetyReserveMemory int64 // 为系统保留的内存(字节)
	MaxWorkersLimit     int   // 绝对上限, 0为不限制
}

// ResourceMonitor 根据可用内存和CPU核数计算worker上限
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 便于测试替换
	availableMemory func() (uint64, error)
	cpuCount        func() (int, error)
}

// NewResourceMonitor 创建资源监控器
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.BrowserMemory <= 0 {
		config.BrowserMemory = 300 * 1024 * 1024
	}
	return &ResourceMonitor{
		config: config,
		availableMemory: func() (uint64, error) {
			vm, err := mem.VirtualMemory()
			if err != nil {
				return 0, err
			}
			return vm.Available, nil
		},
		cpuCount: func() (int, error) {
			return cpu.Counts(true)
		},
	}
}

// MaxWorkers 当前允许的最大worker数, 至少为1
func (rm *ResourceMonitor) MaxWorkers() int {
	byMemory := 1
	if avail, err := rm.availableMemory(); err != nil {
		utils.Warnf("获取可用内存失败, 按1个worker计算: %v", err)
	} else {
		usable := int64(avail) - rm.config.SafetyReserveMemory
		if usable > rm.config.BrowserMemory {
			byMemory = int(usable / rm.config.BrowserMemory)
		}
	}

	byCPU, err := rm.cpuCount()
	if err != nil || byCPU < 1 {
		byCPU = runtime.NumCPU()
	}

	result := byMemory
	if byCPU < result {
		result = byCPU
	}
	if rm.config.MaxWorkersLimit > 0 && rm.config.MaxWorkersLimit < result {
		result = rm.config.MaxWorkersLimit
	}
	if result < 1 {
		result = 1
	}
	utils.Debugf("资源上限: 内存允许 %d, CPU %d → %d 个worker", byMemory, byCPU, result)
	return result
}

// ClampWorkers 把请求的worker数限制在资源上限内
func (rm *ResourceMonitor) ClampWorkers(requested int) int {
	if requested < 1 {
		requested = 1
	}
	if ceiling := rm.MaxWorkers(); requested > ceiling {
		utils.Warnf("⚠️  请求 %d 个worker, 资源只允许 %d 个", requested, ceiling)
		return ceiling
	}
	return requested
}
