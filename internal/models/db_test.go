package models

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm/logger"
)

func TestOpenDBRejectsUnknownDriver(t *testing.T) {
	if _, err := OpenDB("mysql", "dsn", DBPoolConfig{}, logger.Silent); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestAutoMigrateCreatesTables(t *testing.T) {
	dsn := fmt.Sprintf("file:models_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := OpenDB("sqlite", dsn, DBPoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, logger.Silent)
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	for _, table := range []string{"products", "cards", "coupons", "orders", "payments"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("table %s not created", table)
		}
	}
	if err := AutoMigrate(nil); err == nil {
		t.Fatalf("expected error for nil db")
	}
}
