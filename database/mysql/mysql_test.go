package mysql

import (
	"strings"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
)

func TestConfigDSN(t *testing.T) {
	cfg := Config{Host: "db", User: "ws", Password: "p@ss:word", DBName: "workspace"}
	dsn, err := cfg.DSN()
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}

	parsed, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("parse dsn %q: %v", dsn, err)
	}
	if parsed.Passwd != "p@ss:word" {
		t.Fatalf("password not preserved: %q", parsed.Passwd)
	}
	if parsed.Addr != "db:3306" {
		t.Fatalf("unexpected addr: %s", parsed.Addr)
	}
	if !parsed.ParseTime {
		t.Fatalf("expected parseTime")
	}
	if !strings.Contains(dsn, "charset=utf8mb4") {
		t.Fatalf("expected default charset in %s", dsn)
	}
}

func TestConfigDSNInvalidLoc(t *testing.T) {
	if _, err := (Config{Host: "db", Loc: "Mars/Olympus"}).DSN(); err == nil {
		t.Fatalf("expected error for unknown location")
	}
}
