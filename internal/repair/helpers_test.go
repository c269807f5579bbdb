package repair

import (
	"errors"
	"testing"
	"time"

	database "github.com/garagehq/vhc/internal/db"
	"github.com/garagehq/vhc/internal/events"
	"github.com/garagehq/vhc/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

var staff = Actor{UserID: "user-1", OrganizationID: "org-1", Role: "advisor"}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	if err := database.SeedReasons(gdb); err != nil {
		t.Fatalf("seed reasons: %v", err)
	}
	return gdb
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *events.Recorder) {
	t.Helper()
	gdb := openTestDB(t)
	rec := &events.Recorder{}
	svc := NewService(gdb, Options{Publisher: rec})
	svc.now = func() time.Time { return testNow }
	return svc, gdb, rec
}

func createHealthCheck(t *testing.T, gdb *gorm.DB) *models.HealthCheck {
	t.Helper()
	hc := &models.HealthCheck{
		ID:                  uuid.NewString(),
		OrganizationID:      staff.OrganizationID,
		VehicleRegistration: "AB12 CDE",
		Status:              HealthCheckInProgress,
	}
	if err := gdb.Create(hc).Error; err != nil {
		t.Fatalf("create health check: %v", err)
	}
	return hc
}

// withToken gives hc a public token expiring at expires.
func withToken(t *testing.T, gdb *gorm.DB, hc *models.HealthCheck, expires time.Time) string {
	t.Helper()
	token := "tok-" + hc.ID
	if err := gdb.Model(hc).Updates(map[string]interface{}{
		"public_token":            token,
		"public_token_expires_at": expires,
		"status":                  HealthCheckAwaitingAuthorisation,
	}).Error; err != nil {
		t.Fatalf("set token: %v", err)
	}
	return token
}

func createFinding(t *testing.T, gdb *gorm.DB, hc *models.HealthCheck, name, severity string, order int) *models.Finding {
	t.Helper()
	f := &models.Finding{
		ID:            uuid.NewString(),
		HealthCheckID: hc.ID,
		ItemName:      name,
		Severity:      severity,
		SortOrder:     order,
	}
	if err := gdb.Create(f).Error; err != nil {
		t.Fatalf("create finding: %v", err)
	}
	return f
}

type itemOpt func(*models.RepairItem)

func ready(item *models.RepairItem) {
	item.LabourStatus = StatusComplete
	item.NoPartsRequired = true
}

func priced(total string) itemOpt {
	return func(item *models.RepairItem) {
		d := decimal.RequireFromString(total)
		item.Subtotal = d
		item.Total = d
		item.LabourAmount = d
	}
}

func createItem(t *testing.T, gdb *gorm.DB, hc *models.HealthCheck, name string, opts ...itemOpt) *models.RepairItem {
	t.Helper()
	item := &models.RepairItem{
		ID:            uuid.NewString(),
		HealthCheckID: hc.ID,
		Name:          name,
		Source:        ItemSourceManual,
		LabourStatus:  StatusPending,
		PartsStatus:   StatusPending,
	}
	for _, o := range opts {
		o(item)
	}
	if err := gdb.Omit("Findings.*").Create(item).Error; err != nil {
		t.Fatalf("create item: %v", err)
	}
	return item
}

func reloadItem(t *testing.T, gdb *gorm.DB, id string) *models.RepairItem {
	t.Helper()
	var item models.RepairItem
	if err := gdb.Preload("Options").Preload("Children").Where("id = ?", id).First(&item).Error; err != nil {
		t.Fatalf("reload item %s: %v", id, err)
	}
	return &item
}

func declinedReason(t *testing.T, gdb *gorm.DB, code string) string {
	t.Helper()
	var r models.DeclinedReason
	if err := gdb.Where("code = ?", code).First(&r).Error; err != nil {
		t.Fatalf("declined reason %s: %v", code, err)
	}
	return r.ID
}

func deletedReason(t *testing.T, gdb *gorm.DB, code string) string {
	t.Helper()
	var r models.DeletedReason
	if err := gdb.Where("code = ?", code).First(&r).Error; err != nil {
		t.Fatalf("deleted reason %s: %v", code, err)
	}
	return r.ID
}

func assertKind(t *testing.T, err error, kind ErrorKind, code string) {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("error = %v, want *repair.Error of kind %s", err, kind)
	}
	if e.Kind != kind {
		t.Errorf("kind = %s, want %s (%v)", e.Kind, kind, err)
	}
	if code != "" && e.Code != code {
		t.Errorf("code = %s, want %s (%v)", e.Code, code, err)
	}
}
