package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/coolpis/internal/models"
)

// Connect opens the database, creating it when missing, migrates the schema and
// seeds the default catalog into an empty products table.
func Connect(dsn string, log *zap.Logger) (*gorm.DB, error) {
	if err := ensureDatabase(dsn); err != nil {
		return nil, fmt.Errorf("ensure database: %w", err)
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	seeded, err := seedProducts(conn)
	if err != nil {
		return nil, fmt.Errorf("seed products: %w", err)
	}
	if seeded > 0 {
		log.Info("seeded default products", zap.Int("count", seeded))
	}
	return conn, nil
}

func migrate(conn *gorm.DB) error {
	migrations := []interface{}{
		&models.BusinessProfile{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
	}

	for _, migration := range migrations {
		if err := conn.AutoMigrate(migration); err != nil {
			return err
		}
	}

	// Stop lookups by vehicle read in sequence order.
	return conn.Exec(`CREATE INDEX IF NOT EXISTS idx_orders_vehicle_sequence ON orders (delivery_vehicle, delivery_sequence)`).Error
}

func seedProducts(conn *gorm.DB) (int, error) {
	var count int64
	if err := conn.Model(&models.Product{}).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	products := models.DefaultProducts()
	if err := conn.Create(&products).Error; err != nil {
		return 0, err
	}
	return len(products), nil
}

func ensureDatabase(dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return nil
	}

	parsed.Path = "/postgres"
	masterDSN := parsed.String()

	sqlDB, err := sql.Open("postgres", masterDSN)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return err
	}

	var exists bool
	if err := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}

	if exists {
		return nil
	}

	_, err = sqlDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName))
	return err
}
