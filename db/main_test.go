package db

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

var testStore Store

// TestMain 连接测试库；未配置 TEST_DB_SOURCE 时跳过本包的集成测试
func TestMain(m *testing.M) {
	source := os.Getenv("TEST_DB_SOURCE")
	if source == "" {
		os.Exit(0)
	}

	connPool, err := pgxpool.New(context.Background(), source)
	if err != nil {
		os.Exit(1)
	}
	testStore = NewStore(connPool)

	os.Exit(m.Run())
}
