package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint 工作文件的进度检查点
// 与工作文件同目录保存,NextLine之前的行都已提交
type Checkpoint struct {
	// 任务信息
	RunID      string `json:"run_id"`      // 本次工作文件的运行ID
	WorkFile   string `json:"work_file"`   // 工作文件路径
	SourceFile string `json:"source_file"` // 来源文件(可为空)

	// 进度信息
	NextLine   int `json:"next_line"`   // 下一个待处理的行号(从0开始)
	TotalLines int `json:"total_lines"` // 总行数

	// 统计信息
	Stats CorrectionStats `json:"stats"`

	// 时间戳
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckpointPath 工作文件对应的检查点路径
func CheckpointPath(workFile string) string {
	return workFile + ".checkpoint.json"
}

// NewCheckpoint 创建检查点
func NewCheckpoint(workFile, sourceFile string, totalLines int) *Checkpoint {
	now := time.Now()
	return &Checkpoint{
		RunID:      NewRunID(),
		WorkFile:   workFile,
		SourceFile: sourceFile,
		TotalLines: totalLines,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Done 是否已全部完成
func (c *Checkpoint) Done() bool {
	return c.NextLine >= c.TotalLines
}

// ToJSON 序列化为JSON
func (c *Checkpoint) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// FromJSON 从JSON反序列化
func (c *Checkpoint) FromJSON(data []byte) error {
	return json.Unmarshal(data, c)
}

// SaveToFile 原子写入文件
func (c *Checkpoint) SaveToFile(path string) error {
	c.UpdatedAt = time.Now()
	data, err := c.ToJSON()
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0644)
}

// LoadCheckpointFromFile 从文件加载,文件不存在返回(nil, nil)
func LoadCheckpointFromFile(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := cp.FromJSON(data); err != nil {
		return nil, fmt.Errorf("解析检查点失败 [%s]: %w", path, err)
	}
	return &cp, nil
}

// WriteFileAtomic 先写临时文件再rename,崩溃时不会留下半个文件
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
