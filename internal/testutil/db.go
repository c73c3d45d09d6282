// Package testutil 提供测试辅助工具
package testutil

import (
	"strings"
	"testing"

	"github.com/ashwinyue/rag-eval/internal/database"
)

// NewDB 创建按测试名隔离的内存数据库，测试结束时关闭
func NewDB(t *testing.T) *database.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.NewMemory(name)
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
