// disk_usage.go — ёмкость файловой системы uploads root для
// GET /api/admin/info. Платформозависимый код (Unix statfs);
// при объектном backend-е не вызывается.
package handlers

import (
	"fmt"
	"syscall"
)

// getDiskUsage возвращает total, used, available (в байтах)
// файловой системы, на которой лежит path.
func getDiskUsage(path string) (total, used, available int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, 0, fmt.Errorf("ошибка statfs %s: %w", path, err)
	}

	total = int64(stat.Blocks) * int64(stat.Bsize)
	available = int64(stat.Bavail) * int64(stat.Bsize)
	used = total - available

	return total, used, available, nil
}
