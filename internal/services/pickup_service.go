package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/scrapsail/scrapsail-backend/internal/apperrors"
	"github.com/scrapsail/scrapsail-backend/internal/dto"
	"github.com/scrapsail/scrapsail-backend/internal/events"
	"github.com/scrapsail/scrapsail-backend/internal/lifecycle"
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPickupNotFound   = apperrors.NotFound("Pickup request not found")
	ErrPickupForbidden  = apperrors.Forbidden("Access denied")
	ErrNotAssignee      = apperrors.Forbidden("Access denied: pickup is not assigned to you")
	ErrInvalidCollector = apperrors.Validation("Invalid collector")
)

var scheduleLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// minutesPerStop is the route planner's flat estimate per pickup.
const minutesPerStop = 30

// PickupService drives pickups through the lifecycle. Every transition is a
// compare-and-set on the current status under a row lock, so two racing
// callers cannot both move the same pickup.
type PickupService struct {
	db        *gorm.DB
	ledger    *LedgerService
	settings  *SettingsService
	publisher events.Publisher
	timeout   time.Duration
}

func NewPickupService(db *gorm.DB, ledger *LedgerService, settings *SettingsService, publisher events.Publisher, timeout time.Duration) *PickupService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &PickupService{
		db:        db,
		ledger:    ledger,
		settings:  settings,
		publisher: publisher,
		timeout:   timeout,
	}
}

// transition describes one lifecycle step run by apply.
type transition struct {
	action    lifecycle.Action
	authorize func(p *models.Pickup) error
	fields    func(p *models.Pickup) (map[string]interface{}, error)
	after     func(tx *gorm.DB, p *models.Pickup, rec *recorder) error
}

// recorder collects the events of one transaction. They are published only
// after commit.
type recorder struct {
	events []events.PickupEvent
}

func (r *recorder) record(p *models.Pickup, action lifecycle.Action) {
	r.events = append(r.events, events.PickupEvent{
		PickupID:    p.ID,
		UserID:      p.UserID,
		CollectorID: p.AssignedCollectorID,
		Action:      action,
		Status:      p.Status,
		Credits:     p.CarbonCreditsEarned,
		OccurredAt:  time.Now().UTC(),
	})
}

func (s *PickupService) Create(userID uuid.UUID, req *dto.CreatePickupRequest) (*models.Pickup, error) {
	category := lifecycle.Category(req.WasteCategory)
	if !category.Valid() {
		return nil, apperrors.Validation("Invalid waste category")
	}
	// weights are stored with two decimals; validate what will be stored
	weight := req.Weight.Round(2)
	if !weight.IsPositive() {
		return nil, apperrors.Validation("Weight must be greater than zero")
	}
	address := strings.TrimSpace(req.PickupAddress)
	if address == "" {
		return nil, apperrors.Validation("Pickup address is required")
	}
	scheduled, err := parseScheduledDate(req.ScheduledDate)
	if err != nil {
		return nil, apperrors.Validation("Invalid scheduled date")
	}

	pickup := models.Pickup{
		UserID:        userID,
		WasteCategory: category,
		Weight:        weight,
		PickupAddress: address,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		ScheduledDate: scheduled,
		Status:        lifecycle.StatusPending,
	}
	if err := s.db.Create(&pickup).Error; err != nil {
		return nil, fmt.Errorf("create pickup: %w", err)
	}

	slog.Info("pickup requested", "pickup_id", pickup.ID, "user_id", userID, "category", category, "weight", pickup.Weight.String())

	rec := &recorder{}
	rec.record(&pickup, lifecycle.ActionCreate)
	s.publish(rec.events)

	return s.Get(pickup.ID)
}

// Approve moves a pending pickup to admin-approved and, in the same
// transaction, assigns the first available collector. With no collector the
// pickup stays approved for the retry worker.
func (s *PickupService) Approve(id uuid.UUID, notes string) (*models.Pickup, error) {
	return s.apply(id, transition{
		action: lifecycle.ActionApprove,
		fields: notesField("admin_notes", notes),
		after: func(tx *gorm.DB, p *models.Pickup, rec *recorder) error {
			_, err := s.autoAssign(tx, p, rec)
			return err
		},
	})
}

func (s *PickupService) Reject(id uuid.UUID, notes string) (*models.Pickup, error) {
	return s.apply(id, transition{
		action: lifecycle.ActionReject,
		fields: notesField("admin_notes", notes),
	})
}

// AssignCollector assigns an approved pickup to a specific active collector.
func (s *PickupService) AssignCollector(id, collectorID uuid.UUID) (*models.Pickup, error) {
	var collector models.User
	if err := s.db.First(&collector, "id = ?", collectorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCollector
		}
		return nil, err
	}
	if collector.Role != models.RoleCollector || !collector.IsActive() {
		return nil, ErrInvalidCollector
	}

	return s.apply(id, transition{
		action: lifecycle.ActionAssign,
		fields: func(p *models.Pickup) (map[string]interface{}, error) {
			p.AssignedCollectorID = &collector.ID
			return map[string]interface{}{"assigned_collector_id": collector.ID}, nil
		},
	})
}

// RetryAssignment re-runs auto-assignment for an approved pickup that has no
// collector yet. It reports whether a collector was found.
func (s *PickupService) RetryAssignment(id uuid.UUID) (*models.Pickup, bool, error) {
	rec := &recorder{}
	var assigned bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		p, err := lockPickup(tx, id)
		if err != nil {
			return err
		}
		if p.Status != lifecycle.StatusAdminApproved {
			return apperrors.InvalidState("Pickup is not awaiting assignment")
		}
		assigned, err = s.autoAssign(tx, p, rec)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	s.publish(rec.events)

	p, err := s.Get(id)
	return p, assigned, err
}

// AssignDeferred retries assignment for up to limit approved pickups, oldest
// first. It stops at the first pickup for which no collector is available.
func (s *PickupService) AssignDeferred(limit int) (int, error) {
	var ids []uuid.UUID
	if err := s.db.Model(&models.Pickup{}).
		Where("status = ? AND assigned_collector_id IS NULL", lifecycle.StatusAdminApproved).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}

	n := 0
	for _, id := range ids {
		_, assigned, err := s.RetryAssignment(id)
		if err != nil {
			if errors.Is(err, apperrors.ErrInvalidState) {
				continue
			}
			return n, err
		}
		if !assigned {
			break
		}
		n++
	}
	return n, nil
}

func (s *PickupService) Accept(id, collectorID uuid.UUID, notes string) (*models.Pickup, error) {
	return s.apply(id, transition{
		action:    lifecycle.ActionAccept,
		authorize: assignee(collectorID),
		fields:    notesField("collector_notes", notes),
	})
}

func (s *PickupService) Start(id, collectorID uuid.UUID) (*models.Pickup, error) {
	return s.apply(id, transition{
		action:    lifecycle.ActionStart,
		authorize: assignee(collectorID),
	})
}

// Complete finishes an in-progress pickup, awards the owner credits at the
// current rate and adds the weight to their recycled total. All of it commits
// or none of it does.
func (s *PickupService) Complete(id, collectorID uuid.UUID, notes string) (*models.Pickup, error) {
	econ := s.settings.Current()

	return s.apply(id, transition{
		action:    lifecycle.ActionComplete,
		authorize: assignee(collectorID),
		fields: func(p *models.Pickup) (map[string]interface{}, error) {
			credits, err := econ.CreditRates.Credits(p.Weight, p.WasteCategory)
			if err != nil {
				return nil, fmt.Errorf("compute credits: %w", err)
			}
			now := time.Now()
			p.CarbonCreditsEarned = credits
			p.CompletionDate = &now

			fields := map[string]interface{}{
				"carbon_credits_earned": credits,
				"completion_date":       now,
			}
			if notes != "" {
				fields["collector_notes"] = notes
			}
			return fields, nil
		},
		after: func(tx *gorm.DB, p *models.Pickup, _ *recorder) error {
			if p.CarbonCreditsEarned > 0 {
				_, err := s.ledger.PostTx(tx, Entry{
					UserID:      p.UserID,
					Type:        models.TxCredit,
					Amount:      p.CarbonCreditsEarned,
					Description: fmt.Sprintf("Carbon credits for %s kg of %s", p.Weight.String(), p.WasteCategory),
					PickupID:    &p.ID,
					Metadata: map[string]interface{}{
						"waste_category": string(p.WasteCategory),
						"weight":         p.Weight.String(),
						"rate":           econ.CreditRates[p.WasteCategory],
					},
				})
				if err != nil {
					return err
				}
			}
			return tx.Model(&models.User{}).
				Where("id = ?", p.UserID).
				Update("total_recycled", gorm.Expr("total_recycled + ?", p.Weight)).Error
		},
	})
}

// Cancel cancels a pickup. Admins may cancel anything not yet terminal; the
// owner only while it is still pending. Collectors cannot cancel.
func (s *PickupService) Cancel(id uuid.UUID, actor Actor, reason string) (*models.Pickup, error) {
	return s.apply(id, transition{
		action: lifecycle.ActionCancel,
		authorize: func(p *models.Pickup) error {
			switch actor.Role {
			case models.RoleAdmin:
				return nil
			case models.RoleUser:
				if p.UserID != actor.ID {
					return ErrPickupForbidden
				}
				if p.Status != lifecycle.StatusPending {
					return apperrors.InvalidState("Only pending pickups can be cancelled")
				}
				return nil
			default:
				return ErrPickupForbidden
			}
		},
		fields: func(*models.Pickup) (map[string]interface{}, error) {
			if reason == "" {
				return nil, nil
			}
			return map[string]interface{}{
				"admin_notes": fmt.Sprintf("Cancelled by %s: %s", actor.Role, reason),
			}, nil
		},
	})
}

func (s *PickupService) Get(id uuid.UUID) (*models.Pickup, error) {
	var p models.Pickup
	if err := s.db.Preload("User").Preload("AssignedCollector").First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPickupNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetFor returns a pickup if actor may see it: admins see all, users their
// own, collectors those assigned to them.
func (s *PickupService) GetFor(actor Actor, id uuid.UUID) (*models.Pickup, error) {
	p, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case models.RoleAdmin:
		return p, nil
	case models.RoleUser:
		if p.UserID == actor.ID {
			return p, nil
		}
	case models.RoleCollector:
		if p.AssignedTo(actor.ID) {
			return p, nil
		}
	}
	return nil, ErrPickupForbidden
}

func (s *PickupService) ListForUser(userID uuid.UUID, status string, page, limit int) (*dto.PickupListResponse, error) {
	page, limit, offset := normalizePage(page, limit)

	query := s.db.Model(&models.Pickup{}).Where("user_id = ?", userID)
	if status != "" {
		if !lifecycle.Status(status).Valid() {
			return nil, apperrors.Validation("Invalid status filter")
		}
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	pickups := []models.Pickup{}
	if err := query.Preload("AssignedCollector").
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&pickups).Error; err != nil {
		return nil, err
	}

	pagination := newPagination(page, limit, total)
	return &dto.PickupListResponse{Success: true, Pickups: pickups, Pagination: &pagination}, nil
}

// ListPending returns pickups awaiting admin review, oldest first.
func (s *PickupService) ListPending() ([]models.Pickup, error) {
	pickups := []models.Pickup{}
	err := s.db.Preload("User").
		Where("status = ?", lifecycle.StatusPending).
		Order("created_at ASC").
		Find(&pickups).Error
	return pickups, err
}

// ListAssigned returns a collector's pickups. Without a status filter only
// active work is listed.
func (s *PickupService) ListAssigned(collectorID uuid.UUID, status string) ([]models.Pickup, error) {
	query := s.db.Preload("User").Where("assigned_collector_id = ?", collectorID)
	if status != "" {
		if !lifecycle.Status(status).Valid() {
			return nil, apperrors.Validation("Invalid status filter")
		}
		query = query.Where("status = ?", status)
	} else {
		query = query.Where("status IN ?", lifecycle.ActiveForCollector)
	}

	pickups := []models.Pickup{}
	err := query.Order("scheduled_date ASC").Find(&pickups).Error
	return pickups, err
}

// ListAssignedPaged is the collector's full history, newest first.
func (s *PickupService) ListAssignedPaged(collectorID uuid.UUID, status string, page, limit int) (*dto.PickupListResponse, error) {
	page, limit, offset := normalizePage(page, limit)

	query := s.db.Model(&models.Pickup{}).Where("assigned_collector_id = ?", collectorID)
	if status != "" {
		if !lifecycle.Status(status).Valid() {
			return nil, apperrors.Validation("Invalid status filter")
		}
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	pickups := []models.Pickup{}
	if err := query.Preload("User").
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&pickups).Error; err != nil {
		return nil, err
	}

	pagination := newPagination(page, limit, total)
	return &dto.PickupListResponse{Success: true, Pickups: pickups, Pagination: &pagination}, nil
}

// Route lists the collector's open pickups scheduled on day's UTC date, in
// visiting order.
func (s *PickupService) Route(collectorID uuid.UUID, day time.Time) (*dto.CollectorRouteResponse, error) {
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	pickups := []models.Pickup{}
	err := s.db.Preload("User").
		Where("assigned_collector_id = ? AND status IN ?", collectorID, lifecycle.ActiveForCollector).
		Where("scheduled_date >= ? AND scheduled_date < ?", start, start.Add(24*time.Hour)).
		Order("scheduled_date ASC").Order("created_at ASC").
		Find(&pickups).Error
	if err != nil {
		return nil, err
	}

	stops := make([]dto.RouteStop, 0, len(pickups))
	for i := range pickups {
		stops = append(stops, dto.RouteStop{Order: i + 1, Pickup: &pickups[i]})
	}
	return &dto.CollectorRouteResponse{
		Success:          true,
		Date:             start.Format("2006-01-02"),
		Route:            stops,
		TotalPickups:     len(stops),
		EstimatedMinutes: len(stops) * minutesPerStop,
	}, nil
}

func (s *PickupService) CollectorStats(collectorID uuid.UUID) (dto.CollectorStats, error) {
	var rows []struct {
		Status  lifecycle.Status
		Count   int64
		Weight  decimal.Decimal
		Credits int64
	}
	err := s.db.Model(&models.Pickup{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(weight), 0) AS weight, COALESCE(SUM(carbon_credits_earned), 0) AS credits").
		Where("assigned_collector_id = ?", collectorID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return dto.CollectorStats{}, err
	}

	stats := dto.CollectorStats{TotalWeight: decimal.Zero}
	for _, row := range rows {
		stats.TotalPickups += row.Count
		switch row.Status {
		case lifecycle.StatusCompleted:
			stats.CompletedPickups = row.Count
			stats.TotalWeight = row.Weight
			stats.CreditsIssued = row.Credits
		case lifecycle.StatusCollectorAssigned, lifecycle.StatusCollectorAccepted:
			stats.PendingPickups += row.Count
		case lifecycle.StatusInProgress:
			stats.InProgressPickups = row.Count
		}
	}
	return stats, nil
}

func (s *PickupService) apply(id uuid.UUID, t transition) (*models.Pickup, error) {
	rec := &recorder{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		p, err := lockPickup(tx, id)
		if err != nil {
			return err
		}
		if t.authorize != nil {
			if err := t.authorize(p); err != nil {
				return err
			}
		}

		var fields map[string]interface{}
		if t.fields != nil {
			if fields, err = t.fields(p); err != nil {
				return err
			}
		}
		if err := advance(tx, p, t.action, fields); err != nil {
			return err
		}
		rec.record(p, t.action)

		if t.after != nil {
			return t.after(tx, p, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("pickup transitioned", "pickup_id", id, "action", t.action)
	s.publish(rec.events)
	return s.Get(id)
}

// autoAssign gives an approved pickup to the longest-standing active
// collector. It returns false when none is available.
func (s *PickupService) autoAssign(tx *gorm.DB, p *models.Pickup, rec *recorder) (bool, error) {
	var collector models.User
	err := tx.Where("role = ? AND account_status = ?", models.RoleCollector, models.AccountActive).
		Order("created_at ASC").Order("id ASC").
		First(&collector).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Warn("no active collector available, assignment deferred", "pickup_id", p.ID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	p.AssignedCollectorID = &collector.ID
	if err := advance(tx, p, lifecycle.ActionAssign, map[string]interface{}{"assigned_collector_id": collector.ID}); err != nil {
		return false, err
	}
	rec.record(p, lifecycle.ActionAssign)

	slog.Info("collector auto-assigned", "pickup_id", p.ID, "user_id", collector.ID)
	return true, nil
}

func (s *PickupService) publish(evts []events.PickupEvent) {
	for _, e := range evts {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.publisher.Publish(ctx, e); err != nil {
			slog.Warn("pickup event not published", "pickup_id", e.PickupID, "action", string(e.Action), "error", err)
		}
		cancel()
	}
}

// advance compare-and-sets p from its current status along action.
func advance(tx *gorm.DB, p *models.Pickup, action lifecycle.Action, fields map[string]interface{}) error {
	next, err := lifecycle.Next(p.Status, action)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInvalidState,
			fmt.Sprintf("Cannot %s a pickup that is %s", action, p.Status), err)
	}
	if next.RequiresCollector() && p.AssignedCollectorID == nil {
		return apperrors.InvalidState("Pickup has no assigned collector")
	}

	updates := map[string]interface{}{"status": next}
	for k, v := range fields {
		updates[k] = v
	}

	result := tx.Model(&models.Pickup{}).
		Where("id = ? AND status = ?", p.ID, p.Status).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update pickup: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var current models.Pickup
		if err := tx.Select("status").First(&current, "id = ?", p.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPickupNotFound
			}
			return err
		}
		return apperrors.InvalidState(fmt.Sprintf("Pickup is already %s", current.Status))
	}

	p.Status = next
	return nil
}

func lockPickup(tx *gorm.DB, id uuid.UUID) (*models.Pickup, error) {
	var p models.Pickup
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPickupNotFound
		}
		return nil, fmt.Errorf("lock pickup: %w", err)
	}
	return &p, nil
}

func assignee(collectorID uuid.UUID) func(p *models.Pickup) error {
	return func(p *models.Pickup) error {
		if !p.AssignedTo(collectorID) {
			return ErrNotAssignee
		}
		return nil
	}
}

func notesField(column, notes string) func(*models.Pickup) (map[string]interface{}, error) {
	return func(*models.Pickup) (map[string]interface{}, error) {
		if notes == "" {
			return nil, nil
		}
		return map[string]interface{}{column: notes}, nil
	}
}

func parseScheduledDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range scheduleLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
