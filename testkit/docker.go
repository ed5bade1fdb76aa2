package testkit

import (
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

// RequireDocker 在 -short 模式或 Docker 不可用时跳过当前测试
func RequireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}
