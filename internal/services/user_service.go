package services

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/scrapsail/scrapsail-backend/internal/apperrors"
	"github.com/scrapsail/scrapsail-backend/internal/dto"
	"github.com/scrapsail/scrapsail-backend/internal/lifecycle"
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UserService backs the admin console: account listing, status changes and
// the platform dashboard.
type UserService struct {
	db       *gorm.DB
	settings *SettingsService
}

func NewUserService(db *gorm.DB, settings *SettingsService) *UserService {
	return &UserService{db: db, settings: settings}
}

type UserFilter struct {
	Role   string
	Status string
	Search string
	Page   int
	Limit  int
}

func (s *UserService) List(f UserFilter) (*dto.UserListResponse, error) {
	page, limit, offset := normalizePage(f.Page, f.Limit)

	query := s.db.Model(&models.User{})
	if f.Role != "" {
		if !models.Role(f.Role).Valid() {
			return nil, apperrors.Validation("Invalid role filter")
		}
		query = query.Where("role = ?", f.Role)
	}
	if f.Status != "" {
		if !models.AccountStatus(f.Status).Valid() {
			return nil, apperrors.Validation("Invalid status filter")
		}
		query = query.Where("account_status = ?", f.Status)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var users []models.User
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, err
	}

	return &dto.UserListResponse{
		Success:    true,
		Users:      toUserResponses(users),
		Pagination: newPagination(page, limit, total),
	}, nil
}

// SetStatus changes an account's status. Admins cannot change their own.
func (s *UserService) SetStatus(actor Actor, userID uuid.UUID, status models.AccountStatus) (*models.User, error) {
	if !status.Valid() {
		return nil, apperrors.Validation("Invalid account status")
	}
	if actor.ID == userID {
		return nil, apperrors.Validation("You cannot change your own account status")
	}

	result := s.db.Model(&models.User{}).Where("id = ?", userID).Update("account_status", status)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}

	slog.Info("account status changed", "user_id", userID, "status", status, "admin_id", actor.ID)
	return &user, nil
}

// Update applies the fields present in req. Admins cannot change their own
// role or status.
func (s *UserService) Update(actor Actor, userID uuid.UUID, req *dto.UpdateUserRequest) (*models.User, error) {
	updates := map[string]interface{}{}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperrors.Validation("Name cannot be empty")
		}
		updates["name"] = name
	}
	if req.Email != nil {
		updates["email"] = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		if !role.Valid() {
			return nil, apperrors.Validation("Invalid role")
		}
		updates["role"] = role
	}
	if req.AccountStatus != nil {
		status := models.AccountStatus(*req.AccountStatus)
		if !status.Valid() {
			return nil, apperrors.Validation("Invalid account status")
		}
		updates["account_status"] = status
	}
	if len(updates) == 0 {
		return nil, apperrors.Validation("No fields to update")
	}

	if actor.ID == userID {
		_, role := updates["role"]
		_, status := updates["account_status"]
		if role || status {
			return nil, apperrors.Validation("You cannot change your own role or account status")
		}
	}

	var user models.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		if email, ok := updates["email"].(string); ok && email != user.Email {
			var taken int64
			if err := tx.Model(&models.User{}).Where("email = ? AND id <> ?", email, userID).Count(&taken).Error; err != nil {
				return err
			}
			if taken > 0 {
				return ErrEmailTaken
			}
		}

		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&user, "id = ?", userID).Error
	})
	if err != nil {
		return nil, err
	}

	slog.Info("user updated", "user_id", userID, "fields", len(updates), "admin_id", actor.ID)
	return &user, nil
}

// ListCollectors returns active collectors, oldest first, which is also the
// auto-assignment order.
func (s *UserService) ListCollectors() ([]dto.UserResponse, error) {
	var users []models.User
	err := s.db.Where("role = ? AND account_status = ?", models.RoleCollector, models.AccountActive).
		Order("created_at ASC").Order("id ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return toUserResponses(users), nil
}

func (s *UserService) Dashboard() (*dto.AdminDashboard, error) {
	d := &dto.AdminDashboard{Success: true}

	var roles []struct {
		Role  models.Role
		Count int64
	}
	if err := s.db.Model(&models.User{}).Select("role, COUNT(*) AS count").Group("role").Scan(&roles).Error; err != nil {
		return nil, err
	}
	for _, r := range roles {
		d.Users.Total += r.Count
		switch r.Role {
		case models.RoleUser:
			d.Users.Users = r.Count
		case models.RoleCollector:
			d.Users.Collectors = r.Count
		case models.RoleAdmin:
			d.Users.Admins = r.Count
		}
	}

	var statuses []struct {
		Status lifecycle.Status
		Count  int64
	}
	if err := s.db.Model(&models.Pickup{}).Select("status, COUNT(*) AS count").Group("status").Scan(&statuses).Error; err != nil {
		return nil, err
	}
	for _, st := range statuses {
		d.Pickups.Total += st.Count
		switch st.Status {
		case lifecycle.StatusPending:
			d.Pickups.Pending = st.Count
		case lifecycle.StatusCompleted:
			d.Pickups.Completed = st.Count
		case lifecycle.StatusAdminApproved, lifecycle.StatusCollectorAssigned,
			lifecycle.StatusCollectorAccepted, lifecycle.StatusInProgress:
			d.Pickups.InProgress += st.Count
		}
	}

	var totals struct {
		Weight  decimal.Decimal
		Credits int64
	}
	if err := s.db.Model(&models.Pickup{}).
		Select("COALESCE(SUM(weight), 0) AS weight, COALESCE(SUM(carbon_credits_earned), 0) AS credits").
		Where("status = ?", lifecycle.StatusCompleted).
		Scan(&totals).Error; err != nil {
		return nil, err
	}
	d.TotalRecycled = totals.Weight
	d.CarbonCreditsIssued = totals.Credits
	d.CashValueIssued = s.settings.Current().CashValue(totals.Credits)

	d.RecentPickups = []models.Pickup{}
	if err := s.db.Preload("User").Order("created_at DESC").Limit(5).Find(&d.RecentPickups).Error; err != nil {
		return nil, err
	}

	var recent []models.User
	if err := s.db.Order("created_at DESC").Limit(5).Find(&recent).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	d.RecentUsers = toUserResponses(recent)

	return d, nil
}

// Activity summarizes what happened in the last days, counted back from now.
func (s *UserService) Activity(days int, now time.Time) (dto.PeriodActivity, error) {
	if days < 1 || days > 365 {
		return dto.PeriodActivity{}, apperrors.Validation("Period must be between 1 and 365 days")
	}
	since := now.AddDate(0, 0, -days)
	a := dto.PeriodActivity{Days: days, Since: since, WeightRecycled: decimal.Zero}

	if err := s.db.Model(&models.User{}).Where("created_at >= ?", since).Count(&a.NewUsers).Error; err != nil {
		return a, err
	}
	if err := s.db.Model(&models.Pickup{}).Where("created_at >= ?", since).Count(&a.PickupsRequested).Error; err != nil {
		return a, err
	}

	var completed struct {
		Count  int64
		Weight decimal.Decimal
	}
	if err := s.db.Model(&models.Pickup{}).
		Select("COUNT(*) AS count, COALESCE(SUM(weight), 0) AS weight").
		Where("status = ? AND completion_date >= ?", lifecycle.StatusCompleted, since).
		Scan(&completed).Error; err != nil {
		return a, err
	}
	a.PickupsCompleted = completed.Count
	a.WeightRecycled = completed.Weight

	var credits []struct {
		Type  models.TransactionType
		Total int64
	}
	if err := s.db.Model(&models.Transaction{}).
		Select("type, COALESCE(SUM(ABS(amount)), 0) AS total").
		Where("created_at >= ?", since).
		// refunds of failed withdrawals are credits without a pickup
		Where("(type = ? AND related_pickup_id IS NOT NULL) OR type IN ?",
			models.TxCredit, []models.TransactionType{models.TxBonus, models.TxRedemption}).
		Group("type").
		Scan(&credits).Error; err != nil {
		return a, err
	}
	for _, c := range credits {
		if c.Type == models.TxRedemption {
			a.CreditsRedeemed += c.Total
		} else {
			a.CreditsIssued += c.Total
		}
	}

	return a, nil
}

func toUserResponses(users []models.User) []dto.UserResponse {
	out := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, dto.NewUserResponse(&users[i]))
	}
	return out
}
