// Package repair implements the repair item outcome and authorisation
// engine: severity derivation, auto-generation from findings, price
// resolution, the outcome state machine, the customer portal protocol and
// the closure gate.
package repair

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/garagehq/vhc/internal/events"
	"github.com/garagehq/vhc/internal/lock"
	"github.com/garagehq/vhc/internal/models"
	"github.com/garagehq/vhc/internal/signature"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Health check statuses.
const (
	HealthCheckDraft                 = "draft"
	HealthCheckInProgress            = "in_progress"
	HealthCheckAwaitingAuthorisation = "awaiting_authorisation"
	HealthCheckAuthorised            = "authorised"
	HealthCheckClosed                = "closed"
)

// Repair item sources.
const (
	ItemSourceManual       = "manual"
	ItemSourceFinding      = "finding"
	ItemSourceManufacturer = "manufacturer"
)

// DefaultTokenTTL is used when Options.TokenTTL is zero.
const DefaultTokenTTL = 72 * time.Hour

// autogenLockTTL bounds how long one reader may hold generation for a
// health check.
const autogenLockTTL = 10 * time.Second

// Actor is the authenticated staff member performing an action.
type Actor struct {
	UserID         string
	OrganizationID string
	Role           string
}

// Options configures a Service. Zero values select defaults.
type Options struct {
	Log        logrus.FieldLogger
	Publisher  events.Publisher
	Locker     lock.Locker
	Signatures signature.Store
	TokenTTL   time.Duration
}

// Service runs every repair-engine operation against a gorm store.
type Service struct {
	db         *gorm.DB
	log        logrus.FieldLogger
	publisher  events.Publisher
	locker     lock.Locker
	signatures signature.Store
	tokenTTL   time.Duration
	now        func() time.Time

	// beforeWrite runs inside the transaction between reading an item and
	// its conditional update.
	beforeWrite func(tx *gorm.DB, itemID string)
}

// NewService returns a Service bound to db.
func NewService(db *gorm.DB, opts Options) *Service {
	log := opts.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	pub := opts.Publisher
	if pub == nil {
		pub = events.NewLogPublisher(log)
	}
	store := opts.Signatures
	if store == nil {
		store = signature.DatabaseStore{}
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{
		db:         db,
		log:        log,
		publisher:  pub,
		locker:     opts.Locker,
		signatures: store,
		tokenTTL:   ttl,
		now:        time.Now,
	}
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) hookBeforeWrite(tx *gorm.DB, itemID string) {
	if s.beforeWrite != nil {
		s.beforeWrite(tx, itemID)
	}
}

// publish delivers e best-effort; failures are logged and dropped.
func (s *Service) publish(ctx context.Context, e events.Event) {
	e.ID = uuid.NewString()
	e.OccurredAt = s.clock()
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.WithFields(logrus.Fields{
			"event":           e.Type,
			"health_check_id": e.HealthCheckID,
		}).WithError(err).Warn("publish event failed")
	}
}

// loadHealthCheck returns the health check if it belongs to the actor's
// organization.
func loadHealthCheck(tx *gorm.DB, actor Actor, id string) (*models.HealthCheck, error) {
	var hc models.HealthCheck
	err := tx.Where("id = ? AND organization_id = ?", id, actor.OrganizationID).First(&hc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("health check", id)
	}
	if err != nil {
		return nil, fmt.Errorf("repair: load health check %s: %w", id, err)
	}
	return &hc, nil
}

// lockHealthCheck is loadHealthCheck with a row lock where the store
// supports one.
func lockHealthCheck(tx *gorm.DB, actor Actor, id string) (*models.HealthCheck, error) {
	return loadHealthCheck(tx.Clauses(clause.Locking{Strength: "UPDATE"}), actor, id)
}

func ensureOpen(hc *models.HealthCheck) error {
	if hc.Status == HealthCheckClosed {
		return conflict("HEALTH_CHECK_CLOSED", "health check %s is closed", hc.ID)
	}
	return nil
}

func orderBySort(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order, created_at, id")
}

// withItemGraph preloads options, findings and children with theirs.
func withItemGraph(q *gorm.DB) *gorm.DB {
	return q.Preload("Options", orderBySort).
		Preload("Findings").
		Preload("Children", orderBySort).
		Preload("Children.Options", orderBySort).
		Preload("Children.Findings")
}

// loadItem returns an item of the health check with its graph preloaded.
func loadItem(tx *gorm.DB, healthCheckID, itemID string) (*models.RepairItem, error) {
	var item models.RepairItem
	err := withItemGraph(tx).
		Where("id = ? AND health_check_id = ?", itemID, healthCheckID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("repair item", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("repair: load repair item %s: %w", itemID, err)
	}
	return &item, nil
}

// loadTopLevel returns every top-level item of the health check, deleted
// ones included, in display order.
func loadTopLevel(tx *gorm.DB, healthCheckID string) ([]models.RepairItem, error) {
	var items []models.RepairItem
	err := orderBySort(withItemGraph(tx)).
		Where("health_check_id = ? AND parent_repair_item_id IS NULL", healthCheckID).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("repair: load repair items for %s: %w", healthCheckID, err)
	}
	return items, nil
}

// newPublicToken returns 32 random bytes, hex encoded.
func newPublicToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("repair: generate public token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
