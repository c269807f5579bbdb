package repair

import (
	"context"
	"errors"
	"fmt"

	"github.com/garagehq/vhc/internal/lock"
	"github.com/garagehq/vhc/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ensureRepairItems creates one repair item per red or amber finding when
// the health check has no repair items at all. It never fails the caller:
// errors are logged and the read continues with whatever exists. Closed
// health checks are left alone.
func (s *Service) ensureRepairItems(ctx context.Context, hc *models.HealthCheck) {
	if hc.Status == HealthCheckClosed {
		return
	}
	log := s.log.WithField("health_check_id", hc.ID)
	db := s.db.WithContext(ctx)

	existing, err := countRepairItems(db, hc.ID)
	if err != nil {
		log.WithError(err).Warn("auto-generate: count repair items")
		return
	}
	if existing > 0 {
		return
	}

	var findings []models.Finding
	if err := attentionFindings(db, hc.ID).Order("sort_order, created_at, id").Find(&findings).Error; err != nil {
		log.WithError(err).Warn("auto-generate: load findings")
		return
	}
	if len(findings) == 0 {
		return
	}

	if s.locker != nil {
		lease, err := s.locker.Obtain(ctx, "autogen:"+hc.ID, autogenLockTTL)
		switch {
		case errors.Is(err, lock.ErrNotObtained):
			log.Debug("auto-generate: another reader is generating; skipped")
			return
		case err != nil:
			log.WithError(err).Warn("auto-generate: lock unavailable; generating without it")
		default:
			defer func() {
				if err := lease.Release(ctx); err != nil {
					log.WithError(err).Warn("auto-generate: release lock")
				}
			}()
		}
	}

	created := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		n, err := countRepairItems(tx, hc.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		var closed int64
		if err := tx.Model(&models.HealthCheck{}).
			Where("id = ? AND status = ?", hc.ID, HealthCheckClosed).
			Count(&closed).Error; err != nil {
			return err
		}
		if closed > 0 {
			return nil
		}
		for i, f := range findings {
			sev := f.Severity
			item := models.RepairItem{
				ID:            uuid.NewString(),
				HealthCheckID: hc.ID,
				Name:          f.ItemName,
				Description:   f.Notes,
				Source:        ItemSourceFinding,
				Severity:      &sev,
				SortOrder:     i,
				LabourStatus:  StatusPending,
				PartsStatus:   StatusPending,
				Findings:      []models.Finding{f},
			}
			if err := tx.Omit("Findings.*").Create(&item).Error; err != nil {
				return fmt.Errorf("create item for finding %s: %w", f.ID, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("auto-generate: repair items not created")
		return
	}
	if created > 0 {
		log.WithFields(logrus.Fields{"created": created}).Info("auto-generated repair items from findings")
	}
}

// attentionFindings scopes db to the red and amber findings of a health check.
func attentionFindings(db *gorm.DB, healthCheckID string) *gorm.DB {
	return db.Model(&models.Finding{}).
		Where("health_check_id = ? AND severity IN ?", healthCheckID, []string{string(SeverityRed), string(SeverityAmber)})
}

func countRepairItems(db *gorm.DB, healthCheckID string) (int64, error) {
	var n int64
	if err := db.Model(&models.RepairItem{}).Where("health_check_id = ?", healthCheckID).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
