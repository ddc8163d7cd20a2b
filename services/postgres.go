package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/medigo-health/medigo_api/model"
)

type PostgresService struct {
	context.DefaultService
	db *gorm.DB

	database string
}

const POSTGRES_SVC = "postgres_svc"

func (ds PostgresService) Id() string {
	return POSTGRES_SVC
}

func (ds PostgresService) Db() *gorm.DB {
	return ds.db
}

func (ds *PostgresService) Configure(ctx *context.Context) error {
	ds.database = os.Getenv("DATABASE_URL")
	if ds.database == "" {
		host := os.Getenv("DB_HOST")
		if host == "" {
			host = "localhost"
		}
		port := os.Getenv("DB_PORT")
		if port == "" {
			port = "5432"
		}
		user := os.Getenv("DB_USER")
		if user == "" {
			user = "postgres"
		}
		password := os.Getenv("DB_PASSWORD")
		if password == "" {
			password = "postgres"
		}
		dbname := os.Getenv("DB_NAME")
		if dbname == "" {
			dbname = "medigo_api"
		}
		sslmode := os.Getenv("DB_SSLMODE")
		if sslmode == "" {
			sslmode = "disable"
		}

		ds.database = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			host, user, password, dbname, port, sslmode)
	}

	return ds.DefaultService.Configure(ctx)
}

func (ds *PostgresService) Start() (err error) {
	maxRetries := 10
	retryDelay := time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		log.Printf("Attempting to connect to database (attempt %d/%d)...", attempt, maxRetries)

		ds.db, err = gorm.Open(postgres.Open(ds.database), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Error),
		})

		if err == nil {
			sqlDB, dbErr := ds.db.DB()
			if dbErr == nil {
				if pingErr := sqlDB.Ping(); pingErr == nil {
					break
				} else {
					err = pingErr
				}
			} else {
				err = dbErr
			}
		}

		if attempt == maxRetries {
			log.Printf("Failed to connect to database after %d attempts: %v", maxRetries, err)
			return err
		}

		log.Printf("Database connection failed: %v. Retrying in %v...", err, retryDelay)
		time.Sleep(retryDelay)

		retryDelay *= 2
		if retryDelay > 10*time.Second {
			retryDelay = 10 * time.Second
		}
	}

	models := []interface{}{
		&model.User{},
		&model.UserSession{},
		&model.RateLimitCounter{},
		&model.AuthAuditLog{},

		&model.Medicine{},
		&model.Doctor{},
		&model.Order{},
		&model.OrderItem{},
		&model.Address{},
	}

	if err = ds.db.AutoMigrate(models...); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		return err
	}

	log.Println("Database connected and migrated successfully")
	return nil
}

func (ds *PostgresService) Shutdown() {
}

func (ds *PostgresService) HandleError(err error) error {
	if err == nil {
		return nil
	}

	var statusCode int
	var errorType string

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		statusCode = http.StatusNotFound
		errorType = "NOT_FOUND"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		statusCode = http.StatusConflict
		errorType = "CONFLICT"
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		statusCode = http.StatusBadRequest
		errorType = "FOREIGN_KEY_VIOLATION"
	default:
		if strings.Contains(err.Error(), "duplicate key value") {
			statusCode = http.StatusConflict
			errorType = "UNIQUE_CONSTRAINT"
		} else {
			statusCode = http.StatusInternalServerError
			errorType = "INTERNAL_ERROR"
		}
	}

	logEntry := log.WithFields(log.Fields{
		"status_code": statusCode,
		"error_type":  errorType,
		"error":       err.Error(),
	})

	if statusCode >= 500 {
		logEntry.Error("Database error occurred")
	} else {
		logEntry.Warn("Database operation failed")
	}

	return fmt.Errorf("%s: %w", errorType, err)
}

// ==================== USER METHODS ====================

func (ds *PostgresService) CreateUser(user *model.User) (*model.User, error) {
	if user.ID == "" {
		id, _ := uuid.NewV7()
		user.ID = id.String()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	if err := ds.db.Create(user).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return user, nil
}

func (ds *PostgresService) GetUserByEmail(email string) (*model.User, error) {
	var user model.User
	err := ds.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByIDAndEmail resolves a user identity. A missing row returns
// (nil, nil); an error always means the store itself failed.
func (ds *PostgresService) GetUserByIDAndEmail(id, email string) (*model.User, error) {
	var user model.User
	err := ds.db.Where("id = ? AND email = ? AND is_active = ?", id, email, true).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (ds *PostgresService) GetAdminByIDAndEmail(id, email string) (*model.User, error) {
	var user model.User
	err := ds.db.Where("id = ? AND email = ? AND role = ? AND is_active = ?", id, email, "admin", true).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (ds *PostgresService) UpdateUserLastLogin(userID string, at time.Time) error {
	return ds.db.Model(&model.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"last_login": at, "updated_at": at}).Error
}

func (ds *PostgresService) UpdateUserPassword(userID, passwordHash string) error {
	return ds.db.Model(&model.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"password_hash": passwordHash, "updated_at": time.Now()}).Error
}

// ==================== SESSION METHODS ====================

func (ds *PostgresService) CreateSession(session *model.UserSession) (*model.UserSession, error) {
	if session.ID == "" {
		id, _ := uuid.NewV7()
		session.ID = id.String()
	}
	session.CreatedAt = time.Now()
	session.UpdatedAt = time.Now()

	if err := ds.db.Create(session).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return session, nil
}

// GetActiveSession returns the session only when it belongs to the user,
// is still flagged active and has not expired. (nil, nil) on no match.
func (ds *PostgresService) GetActiveSession(sessionID, userID string) (*model.UserSession, error) {
	var session model.UserSession
	err := ds.db.Where("id = ? AND user_id = ? AND is_active = ? AND expires_at > ?",
		sessionID, userID, true, time.Now()).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (ds *PostgresService) TouchSession(sessionID string, at time.Time) error {
	return ds.db.Model(&model.UserSession{}).Where("id = ?", sessionID).
		Updates(map[string]interface{}{"last_activity": at, "updated_at": at}).Error
}

func (ds *PostgresService) RevokeSession(sessionID, userID string) error {
	res := ds.db.Model(&model.UserSession{}).
		Where("id = ? AND user_id = ? AND is_active = ?", sessionID, userID, true).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()})
	if res.Error != nil {
		return ds.HandleError(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (ds *PostgresService) RevokeAllSessions(userID, exceptSessionID string) error {
	q := ds.db.Model(&model.UserSession{}).Where("user_id = ? AND is_active = ?", userID, true)
	if exceptSessionID != "" {
		q = q.Where("id <> ?", exceptSessionID)
	}
	return q.Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()}).Error
}

func (ds *PostgresService) GetUserSessions(userID string) ([]model.UserSession, error) {
	var sessions []model.UserSession
	err := ds.db.Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, time.Now()).
		Order("last_activity DESC").Find(&sessions).Error
	if err != nil {
		return nil, ds.HandleError(err)
	}
	return sessions, nil
}

func (ds *PostgresService) DeleteExpiredSessions() error {
	return ds.db.Where("expires_at < ?", time.Now()).Delete(&model.UserSession{}).Error
}

// ==================== RATE LIMIT COUNTER STORE ====================

// GetCounter returns the live-window row for the key, or nil when no row
// exists or the window has already passed.
func (ds *PostgresService) GetCounter(identifier, identifierType, endpoint string) (*model.RateLimitCounter, error) {
	var counter model.RateLimitCounter
	err := ds.db.Where("identifier = ? AND identifier_type = ? AND endpoint = ? AND window_end > ?",
		identifier, identifierType, endpoint, time.Now()).First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &counter, nil
}

// IncrementCounter performs the whole insert-or-increment as one SQL
// statement. Concurrent requests racing on the same key serialize inside
// postgres, so N concurrent increments always land as +N; a read-then-write
// pair here would under-count and let offenders slip past the limit. An
// expired row is reset to a fresh window by the same statement.
func (ds *PostgresService) IncrementCounter(identifier, identifierType, endpoint string, window time.Duration) error {
	id, _ := uuid.NewV7()
	now := time.Now()

	return ds.db.Exec(`
		INSERT INTO rate_limit_counters
			(id, identifier, identifier_type, endpoint, request_count, window_start, window_end, is_blocked, block_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, FALSE, '', ?, ?)
		ON CONFLICT (identifier, identifier_type, endpoint) DO UPDATE SET
			request_count = CASE WHEN rate_limit_counters.window_end > EXCLUDED.window_start
			                     THEN rate_limit_counters.request_count + 1 ELSE 1 END,
			window_start  = CASE WHEN rate_limit_counters.window_end > EXCLUDED.window_start
			                     THEN rate_limit_counters.window_start ELSE EXCLUDED.window_start END,
			window_end    = CASE WHEN rate_limit_counters.window_end > EXCLUDED.window_start
			                     THEN rate_limit_counters.window_end ELSE EXCLUDED.window_end END,
			is_blocked    = rate_limit_counters.is_blocked AND rate_limit_counters.window_end > EXCLUDED.window_start,
			block_reason  = CASE WHEN rate_limit_counters.window_end > EXCLUDED.window_start
			                     THEN rate_limit_counters.block_reason ELSE '' END,
			updated_at    = EXCLUDED.updated_at`,
		id.String(), identifier, identifierType, endpoint, now, now.Add(window), now, now).Error
}

// BlockCounter marks the live row blocked and extends its window to the
// given deadline. The window_end guard keeps the transition one-way inside
// a window: a row the cleanup already expired is simply left alone.
func (ds *PostgresService) BlockCounter(identifier, identifierType, endpoint, reason string, until time.Time) error {
	now := time.Now()
	return ds.db.Model(&model.RateLimitCounter{}).
		Where("identifier = ? AND identifier_type = ? AND endpoint = ? AND window_end > ?",
			identifier, identifierType, endpoint, now).
		Updates(map[string]interface{}{
			"is_blocked":   true,
			"block_reason": reason,
			"window_end":   until,
			"updated_at":   now,
		}).Error
}

func (ds *PostgresService) CleanupCounters() error {
	return ds.db.Where("window_end < ?", time.Now()).Delete(&model.RateLimitCounter{}).Error
}

func (ds *PostgresService) DeleteCounter(identifier, identifierType, endpoint string) error {
	return ds.db.Where("identifier = ? AND identifier_type = ? AND endpoint = ?",
		identifier, identifierType, endpoint).Delete(&model.RateLimitCounter{}).Error
}

func (ds *PostgresService) CountCounters() (total, blocked int64, err error) {
	if err = ds.db.Model(&model.RateLimitCounter{}).Count(&total).Error; err != nil {
		return
	}
	err = ds.db.Model(&model.RateLimitCounter{}).
		Where("is_blocked = ? AND window_end > ?", true, time.Now()).Count(&blocked).Error
	return
}

// ==================== AUDIT METHODS ====================

func (ds *PostgresService) CreateAuditLog(entry *model.AuthAuditLog) error {
	if entry.ID == "" {
		id, _ := uuid.NewV7()
		entry.ID = id.String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return ds.db.Create(entry).Error
}

// ==================== CATALOG METHODS ====================

func (ds *PostgresService) ListMedicines(category, search string) ([]model.Medicine, error) {
	var medicines []model.Medicine
	q := ds.db.Where("is_active = ?", true)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if search != "" {
		q = q.Where("name ILIKE ?", "%"+search+"%")
	}
	if err := q.Order("name ASC").Find(&medicines).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return medicines, nil
}

func (ds *PostgresService) GetMedicine(id string) (*model.Medicine, error) {
	var medicine model.Medicine
	if err := ds.db.Where("id = ? AND is_active = ?", id, true).First(&medicine).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &medicine, nil
}

func (ds *PostgresService) CreateMedicine(medicine *model.Medicine) (*model.Medicine, error) {
	if medicine.ID == "" {
		id, _ := uuid.NewV7()
		medicine.ID = id.String()
	}
	medicine.CreatedAt = time.Now()
	medicine.UpdatedAt = time.Now()

	if err := ds.db.Create(medicine).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return medicine, nil
}

func (ds *PostgresService) ListDoctors(specialty string) ([]model.Doctor, error) {
	var doctors []model.Doctor
	q := ds.db.Where("is_available = ?", true)
	if specialty != "" {
		q = q.Where("specialty = ?", specialty)
	}
	if err := q.Order("name ASC").Find(&doctors).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return doctors, nil
}

func (ds *PostgresService) GetDoctor(id string) (*model.Doctor, error) {
	var doctor model.Doctor
	if err := ds.db.Where("id = ?", id).First(&doctor).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &doctor, nil
}

func (ds *PostgresService) CreateDoctor(doctor *model.Doctor) (*model.Doctor, error) {
	if doctor.ID == "" {
		id, _ := uuid.NewV7()
		doctor.ID = id.String()
	}
	doctor.CreatedAt = time.Now()
	doctor.UpdatedAt = time.Now()

	if err := ds.db.Create(doctor).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return doctor, nil
}

func (ds *PostgresService) CreateOrder(order *model.Order) (*model.Order, error) {
	if order.ID == "" {
		id, _ := uuid.NewV7()
		order.ID = id.String()
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()
	for i := range order.Items {
		if order.Items[i].ID == "" {
			id, _ := uuid.NewV7()
			order.Items[i].ID = id.String()
		}
		order.Items[i].OrderID = order.ID
	}

	if err := ds.db.Create(order).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return order, nil
}

func (ds *PostgresService) GetUserOrders(userID string) ([]model.Order, error) {
	var orders []model.Order
	err := ds.db.Preload("Items").Where("user_id = ?", userID).
		Order("created_at DESC").Find(&orders).Error
	if err != nil {
		return nil, ds.HandleError(err)
	}
	return orders, nil
}

func (ds *PostgresService) CreateAddress(address *model.Address) (*model.Address, error) {
	if address.ID == "" {
		id, _ := uuid.NewV7()
		address.ID = id.String()
	}
	address.CreatedAt = time.Now()
	address.UpdatedAt = time.Now()

	if err := ds.db.Create(address).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return address, nil
}

func (ds *PostgresService) GetUserAddresses(userID string) ([]model.Address, error) {
	var addresses []model.Address
	err := ds.db.Where("user_id = ?", userID).Order("is_default DESC, created_at DESC").Find(&addresses).Error
	if err != nil {
		return nil, ds.HandleError(err)
	}
	return addresses, nil
}

func (ds *PostgresService) UpdateAddress(address *model.Address) error {
	address.UpdatedAt = time.Now()
	res := ds.db.Model(&model.Address{}).
		Where("id = ? AND user_id = ?", address.ID, address.UserID).
		Updates(address)
	if res.Error != nil {
		return ds.HandleError(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (ds *PostgresService) DeleteAddress(id, userID string) error {
	res := ds.db.Where("id = ? AND user_id = ?", id, userID).Delete(&model.Address{})
	if res.Error != nil {
		return ds.HandleError(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
