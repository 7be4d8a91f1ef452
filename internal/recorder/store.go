// v0
// internal/recorder/store.go
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"nrgchamp/greenhouse/internal/model"
)

// Row is one persisted reading. The generator's per-batch id is not kept;
// the database assigns its own.
type Row struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	SensorID     int       `json:"sensor_id" gorm:"not null;index"`
	TimeStamp    time.Time `json:"time_stamp" gorm:"column:time_stamp;not null"`
	Temperature  float64   `json:"temperature"`
	Humidity     float64   `json:"humidity"`
	SoilMoisture int       `json:"soil_moisture"`
	IsAnomaly    bool      `json:"is_anomaly"`
}

func (Row) TableName() string { return "rawdata_from_sensors" }

// RowFromReading maps a decoded message onto a table row.
func RowFromReading(r model.SensorReading) Row {
	return Row{
		SensorID:     r.SensorID,
		TimeStamp:    r.Timestamp,
		Temperature:  r.Temperature,
		Humidity:     r.Humidity,
		SoilMoisture: r.SoilMoisture,
		IsAnomaly:    r.IsAnomaly,
	}
}

// SensorStats aggregates all stored readings of one sensor.
type SensorStats struct {
	SensorID        int     `json:"sensor_id"`
	Count           int64   `json:"count"`
	AvgTemperature  float64 `json:"avg_temperature"`
	AvgHumidity     float64 `json:"avg_humidity"`
	AvgSoilMoisture float64 `json:"avg_soil_moisture"`
	MinTemperature  float64 `json:"min_temperature"`
	MaxTemperature  float64 `json:"max_temperature"`
	Anomalies       int64   `json:"anomalies"`
}

// Store persists readings.
type Store interface {
	Insert(ctx context.Context, row *Row) error
	All(ctx context.Context) ([]Row, error)
	Stats(ctx context.Context) ([]SensorStats, error)
}

type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open connection and migrates the table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Row{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", Row{}.TableName(), err)
	}
	return &GormStore{db: db}, nil
}

// OpenPostgres connects with up to attempts tries, sleeping backoff*n after
// the n-th failure.
func OpenPostgres(ctx context.Context, dsn string, attempts int, backoff time.Duration, log *slog.Logger) (*gorm.DB, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
		if err == nil {
			log.Info("db_connected", slog.Int("attempt", i))
			return db, nil
		}
		lastErr = err
		if i == attempts {
			break
		}
		log.Warn("db_connect_retry", slog.Int("attempt", i), slog.Int("max", attempts), slog.Any("err", err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff * time.Duration(i)):
		}
	}
	return nil, fmt.Errorf("connect postgres after %d attempts: %w", attempts, lastErr)
}

func (s *GormStore) Insert(ctx context.Context, row *Row) error {
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *GormStore) All(ctx context.Context) ([]Row, error) {
	var rows []Row
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GormStore) Stats(ctx context.Context) ([]SensorStats, error) {
	var out []SensorStats
	err := s.db.WithContext(ctx).Model(&Row{}).
		Select(`sensor_id,
			COUNT(*) AS count,
			AVG(temperature) AS avg_temperature,
			AVG(humidity) AS avg_humidity,
			AVG(soil_moisture) AS avg_soil_moisture,
			MIN(temperature) AS min_temperature,
			MAX(temperature) AS max_temperature,
			SUM(CASE WHEN is_anomaly THEN 1 ELSE 0 END) AS anomalies`).
		Group("sensor_id").
		Order("sensor_id").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the underlying pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
