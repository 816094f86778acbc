package models

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// WorkFile 工作文件,每行一个WorkItem
type WorkFile struct {
	Path  string
	Lines []string
}

// LoadWorkFile 读取工作文件
func LoadWorkFile(path string) (*WorkFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取工作文件失败: %w", err)
	}

	wf := &WorkFile{Path: path}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		wf.Lines = append(wf.Lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取工作文件失败: %w", err)
	}
	return wf, nil
}

// Save 原子重写整个文件
func (f *WorkFile) Save() error {
	var buf bytes.Buffer
	for _, line := range f.Lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := WriteFileAtomic(f.Path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("保存工作文件失败: %w", err)
	}
	return nil
}
