package db

import (
	"strings"
	"testing"

	"github.com/garagehq/vhc/internal/config"
	"github.com/garagehq/vhc/internal/models"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "default local",
			cfg:  config.DatabaseConfig{Host: "127.0.0.1", Port: 3306, Name: "vhc", User: "root"},
			want: "root@tcp(127.0.0.1:3306)/vhc?parseTime=true&charset=utf8mb4&loc=UTC",
		},
		{
			name: "with password",
			cfg:  config.DatabaseConfig{Host: "10.0.0.5", Port: 3307, Name: "vhc_prod", User: "vhc", Password: "pw"},
			want: "vhc:pw@tcp(10.0.0.5:3307)/vhc_prod?parseTime=true&charset=utf8mb4&loc=UTC",
		},
		{
			name: "explicit dsn wins",
			cfg:  config.DatabaseConfig{Host: "ignored", DSN: "app@tcp(db:3306)/x?parseTime=true"},
			want: "app@tcp(db:3306)/x?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), `unsupported driver "postgres"`) {
		t.Errorf("error = %q", err.Error())
	}
}

func TestConnect_MysqlError(t *testing.T) {
	// Port 1 is unlikely to have a MySQL server; expect connection error.
	_, err := Connect(config.DatabaseConfig{Driver: "mysql", Host: "127.0.0.1", Port: 1, Name: "nonexistent", User: "root"})
	if err == nil {
		t.Fatal("expected error connecting to invalid port")
	}
	if !strings.Contains(err.Error(), "db: connect (mysql)") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: connect (mysql)")
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 9 {
		t.Errorf("AllModels() returned %d models, want 9", got)
	}
}

func TestAutoMigrate_Sqlite(t *testing.T) {
	gdb, err := Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, table := range []string{"health_checks", "repair_items", "repair_options", "repair_item_findings", "authorizations", "customer_signatures", "locks"} {
		if !gdb.Migrator().HasTable(table) {
			t.Errorf("table %s not created", table)
		}
	}
}

func TestSeedReasons_Idempotent(t *testing.T) {
	gdb, err := Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := SeedReasons(gdb); err != nil {
			t.Fatalf("SeedReasons (run %d): %v", i+1, err)
		}
	}

	var declined, deleted int64
	gdb.Model(&models.DeclinedReason{}).Count(&declined)
	gdb.Model(&models.DeletedReason{}).Count(&deleted)
	if declined != int64(len(DefaultDeclinedReasons)) {
		t.Errorf("declined reasons = %d, want %d", declined, len(DefaultDeclinedReasons))
	}
	if deleted != int64(len(DefaultDeletedReasons)) {
		t.Errorf("deleted reasons = %d, want %d", deleted, len(DefaultDeletedReasons))
	}

	var other models.DeclinedReason
	if err := gdb.Where("code = ?", "other").First(&other).Error; err != nil {
		t.Fatalf("load other: %v", err)
	}
	if !other.RequiresNotes {
		t.Error("other reason should require notes")
	}
}
