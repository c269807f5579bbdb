// Package followup finds deferred repair work that has fallen due and
// announces it once per item.
package followup

import (
	"context"
	"fmt"
	"time"

	"github.com/garagehq/vhc/internal/events"
	"github.com/garagehq/vhc/internal/models"
	"github.com/garagehq/vhc/internal/repair"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Sweeper publishes DeferralDue for deferred items whose date has passed.
type Sweeper struct {
	db  *gorm.DB
	pub events.Publisher
	log logrus.FieldLogger
	now func() time.Time
}

// NewSweeper returns a Sweeper reading from db and publishing to pub.
func NewSweeper(db *gorm.DB, pub events.Publisher, log logrus.FieldLogger) *Sweeper {
	return &Sweeper{db: db, pub: pub, log: log, now: time.Now}
}

// Result summarises one sweep.
type Result struct {
	Notified     []string
	HealthChecks int
}

// due selects deferred, live, not yet announced items.
const due = "outcome_status = ? AND deleted_at IS NULL AND deferral_notified_at IS NULL AND deferred_until <= ?"

// Run claims every due item and publishes one event per health check.
// An item is claimed by a conditional update, so concurrent sweeps never
// announce the same item twice. If publishing fails the claims for that
// health check are released and retried on the next run.
func (s *Sweeper) Run(ctx context.Context) (*Result, error) {
	now := s.now().UTC()
	db := s.db.WithContext(ctx)

	var items []models.RepairItem
	err := db.Preload("Options").
		Where(due, string(repair.Deferred), now).
		Order("health_check_id, sort_order, id").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("followup: load due items: %w", err)
	}
	res := &Result{Notified: []string{}}
	if len(items) == 0 {
		return res, nil
	}

	byHealthCheck := map[string][]models.RepairItem{}
	var order []string
	for _, item := range items {
		if _, ok := byHealthCheck[item.HealthCheckID]; !ok {
			order = append(order, item.HealthCheckID)
		}
		byHealthCheck[item.HealthCheckID] = append(byHealthCheck[item.HealthCheckID], item)
	}

	var orgs []models.HealthCheck
	if err := db.Select("id", "organization_id").Where("id IN ?", order).Find(&orgs).Error; err != nil {
		return nil, fmt.Errorf("followup: load health checks: %w", err)
	}
	orgOf := make(map[string]string, len(orgs))
	for _, hc := range orgs {
		orgOf[hc.ID] = hc.OrganizationID
	}

	for _, hcID := range order {
		claimed, total, err := s.claim(db, byHealthCheck[hcID], now)
		if err != nil {
			return res, err
		}
		if len(claimed) == 0 {
			continue
		}

		log := s.log.WithFields(logrus.Fields{"health_check_id": hcID, "items": len(claimed)})
		err = s.pub.Publish(ctx, events.Event{
			Type:           events.DeferralDue,
			OrganizationID: orgOf[hcID],
			HealthCheckID:  hcID,
			RepairItemIDs:  claimed,
			Outcome:        string(repair.Deferred),
			Total:          total,
			OccurredAt:     now,
		})
		if err != nil {
			log.WithError(err).Warn("followup: publish failed; releasing claims")
			if rerr := s.release(db, claimed); rerr != nil {
				return res, rerr
			}
			continue
		}
		log.Info("deferred work due")
		res.Notified = append(res.Notified, claimed...)
		res.HealthChecks++
	}
	return res, nil
}

// claim marks each item notified if no one else has.
func (s *Sweeper) claim(db *gorm.DB, items []models.RepairItem, now time.Time) ([]string, decimal.Decimal, error) {
	var claimed []string
	total := decimal.Zero
	for i := range items {
		item := &items[i]
		result := db.Model(&models.RepairItem{}).
			Where("id = ?", item.ID).
			Where(due, string(repair.Deferred), now).
			Update("deferral_notified_at", now)
		if result.Error != nil {
			return nil, total, fmt.Errorf("followup: claim %s: %w", item.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}
		claimed = append(claimed, item.ID)
		total = total.Add(repair.EffectivePrice(item, nil).Total)
	}
	return claimed, total, nil
}

func (s *Sweeper) release(db *gorm.DB, ids []string) error {
	err := db.Model(&models.RepairItem{}).
		Where("id IN ?", ids).
		Update("deferral_notified_at", nil).Error
	if err != nil {
		return fmt.Errorf("followup: release claims: %w", err)
	}
	return nil
}
