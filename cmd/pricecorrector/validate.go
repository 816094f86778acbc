package main

import (
	"fmt"
	"os"
	"strings"
)

// ValidateURLFile 验证URL文件路径
func ValidateURLFile(path string) error {
	if path == "" {
		return fmt.Errorf("URL文件路径不能为空")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("无法访问URL文件 [%s]: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("URL文件路径是目录: %s", path)
	}
	return nil
}

// ValidateOfferIDs 验证商品编码列表
func ValidateOfferIDs(ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("至少需要一个商品编码")
	}
	if len(ids) > 1000 {
		return fmt.Errorf("一次最多查询1000个商品, 当前: %d", len(ids))
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" || strings.ContainsAny(id, " \t") {
			return fmt.Errorf("无效的商品编码: %q", id)
		}
	}
	return nil
}
