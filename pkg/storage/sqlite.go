package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/voltledger/voltledger/pkg/types"

	_ "modernc.org/sqlite"
)

// timestamps are stored as unix nanoseconds so they sort numerically
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS devices (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	room TEXT NOT NULL DEFAULT '',
	device_type TEXT NOT NULL DEFAULT '',
	is_controllable INTEGER NOT NULL DEFAULT 0,
	token_hash TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS devices_owner ON devices (owner_id, created_at);

CREATE TABLE IF NOT EXISTS readings (
	device_id TEXT NOT NULL,
	ts INTEGER NOT NULL,
	voltage REAL NOT NULL,
	current REAL NOT NULL,
	power REAL NOT NULL,
	energy_kwh REAL NOT NULL,
	PRIMARY KEY (device_id, ts)
);

CREATE TABLE IF NOT EXISTS user_settings (
	owner_id TEXT PRIMARY KEY,
	tariff_pkr_per_kwh REAL NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS solar_configs (
	owner_id TEXT PRIMARY KEY,
	enabled INTEGER NOT NULL,
	installed_capacity_kw REAL NOT NULL,
	latitude REAL,
	longitude REAL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS solar_generation (
	owner_id TEXT NOT NULL,
	ts INTEGER NOT NULL,
	solar_kw REAL NOT NULL,
	home_kw REAL NOT NULL,
	grid_import_kw REAL NOT NULL,
	cloud_cover REAL NOT NULL,
	PRIMARY KEY (owner_id, ts)
);

CREATE TABLE IF NOT EXISTS weather_snapshots (
	location_key TEXT PRIMARY KEY,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	cloud_cover REAL NOT NULL,
	sunrise INTEGER NOT NULL,
	sunset INTEGER NOT NULL,
	fetched_at INTEGER NOT NULL
);
`

// SQLiteProvider implements Database on an embedded SQLite file. It is meant
// for single-instance and local deployments.
type SQLiteProvider struct {
	path string
	db   *sql.DB
}

// NewSQLiteProvider returns an uninitialized provider for the file at path.
func NewSQLiteProvider(path string) *SQLiteProvider {
	return &SQLiteProvider{path: path}
}

func configuredSQLite() *SQLiteProvider {
	path := lflag.String("sqlite-path", "voltledger.db", "Path of the SQLite database file when storage-provider is sqlite")

	s := &SQLiteProvider{}
	lflag.Do(func() {
		s.path = *path
	})
	return s
}

// Validate checks if the provider is properly configured.
func (s *SQLiteProvider) Validate() error {
	if s.path == "" {
		return fmt.Errorf("sqlite-path is required")
	}
	return nil
}

// Init opens the database and creates the schema.
func (s *SQLiteProvider) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database (%s): %w", s.path, err)
	}
	// one connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to sqlite database (%s): %w", s.path, err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}
	for _, stmt := range strings.Split(sqliteSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return fmt.Errorf("failed to create sqlite schema: %w", err)
		}
	}
	s.db = db
	return nil
}

// Close closes the database.
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// CreateDevice inserts a device. It fails if the ID or token is taken.
func (s *SQLiteProvider) CreateDevice(ctx context.Context, device types.Device) error {
	if device.ID == "" || device.OwnerID == "" {
		return fmt.Errorf("device id and owner are required")
	}
	_, err := s.db.ExecContext(
		ctx,
		"INSERT INTO devices (id, owner_id, name, room, device_type, is_controllable, token_hash, created_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		device.ID,
		device.OwnerID,
		device.Name,
		device.Room,
		device.DeviceType,
		device.IsControllable,
		device.TokenHash,
		nanos(device.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create device %s: %w", device.ID, err)
	}
	return nil
}

const deviceColumns = "id, owner_id, name, room, device_type, is_controllable, token_hash, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (types.Device, error) {
	var d types.Device
	var created int64
	err := row.Scan(&d.ID, &d.OwnerID, &d.Name, &d.Room, &d.DeviceType, &d.IsControllable, &d.TokenHash, &created)
	if err != nil {
		return types.Device{}, err
	}
	d.CreatedAt = fromNanos(created)
	return d, nil
}

func (s *SQLiteProvider) getDeviceWhere(ctx context.Context, where string, arg any) (types.Device, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE "+where, arg)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Device{}, fmt.Errorf("%w: device", ErrNotFound)
	}
	if err != nil {
		return types.Device{}, fmt.Errorf("failed to get device: %w", err)
	}
	return d, nil
}

// GetDevice retrieves a device by ID.
func (s *SQLiteProvider) GetDevice(ctx context.Context, deviceID string) (types.Device, error) {
	return s.getDeviceWhere(ctx, "id = ?", deviceID)
}

// GetDeviceByTokenHash finds the device whose ingestion token hashes to tokenHash.
func (s *SQLiteProvider) GetDeviceByTokenHash(ctx context.Context, tokenHash string) (types.Device, error) {
	if tokenHash == "" {
		return types.Device{}, fmt.Errorf("%w: empty token", ErrNotFound)
	}
	return s.getDeviceWhere(ctx, "token_hash = ?", tokenHash)
}

// ListDevices returns the owner's devices ordered by creation time.
func (s *SQLiteProvider) ListDevices(ctx context.Context, ownerID string) ([]types.Device, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE owner_id = ? ORDER BY created_at, id", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []types.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// InsertReading stores a reading. A second reading with the same device and
// timestamp is rejected with ErrAlreadyExists.
func (s *SQLiteProvider) InsertReading(ctx context.Context, r types.Reading) error {
	if r.DeviceID == "" {
		return fmt.Errorf("deviceID cannot be empty")
	}
	res, err := s.db.ExecContext(
		ctx,
		"INSERT OR IGNORE INTO readings (device_id, ts, voltage, current, power, energy_kwh) VALUES (?, ?, ?, ?, ?, ?)",
		r.DeviceID,
		nanos(r.Timestamp),
		r.Voltage,
		r.Current,
		r.Power,
		r.EnergyKWH,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return insertedOne(res, "reading")
}

// insertedOne turns an ignored INSERT OR IGNORE into ErrAlreadyExists.
func insertedOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check inserted %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s with the same timestamp", ErrAlreadyExists, what)
	}
	return nil
}

func (s *SQLiteProvider) queryReadings(ctx context.Context, query string, args ...any) ([]types.Reading, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []types.Reading
	for rows.Next() {
		var r types.Reading
		var ts int64
		if err := rows.Scan(&r.DeviceID, &ts, &r.Voltage, &r.Current, &r.Power, &r.EnergyKWH); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Timestamp = fromNanos(ts)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

const readingColumns = "device_id, ts, voltage, current, power, energy_kwh"

// GetReadings retrieves readings within [start, end].
func (s *SQLiteProvider) GetReadings(ctx context.Context, deviceID string, start, end time.Time) ([]types.Reading, error) {
	return s.queryReadings(
		ctx,
		"SELECT "+readingColumns+" FROM readings WHERE device_id = ? AND ts >= ? AND ts <= ? ORDER BY ts",
		deviceID, nanos(start), nanos(end),
	)
}

// GetRecentReadings retrieves the latest limit readings within [start, end].
func (s *SQLiteProvider) GetRecentReadings(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]types.Reading, error) {
	if limit <= 0 {
		limit = -1
	}
	readings, err := s.queryReadings(
		ctx,
		"SELECT "+readingColumns+" FROM readings WHERE device_id = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?",
		deviceID, nanos(start), nanos(end), limit,
	)
	if err != nil {
		return nil, err
	}
	slices.Reverse(readings)
	return readings, nil
}

// GetLatestReading retrieves the most recent reading of a device.
func (s *SQLiteProvider) GetLatestReading(ctx context.Context, deviceID string) (types.Reading, error) {
	readings, err := s.queryReadings(
		ctx,
		"SELECT "+readingColumns+" FROM readings WHERE device_id = ? ORDER BY ts DESC LIMIT 1",
		deviceID,
	)
	if err != nil {
		return types.Reading{}, err
	}
	if len(readings) == 0 {
		return types.Reading{}, fmt.Errorf("%w: readings for device %s", ErrNotFound, deviceID)
	}
	return readings[0], nil
}

// GetFirstReadingTime retrieves the timestamp of the device's oldest reading.
func (s *SQLiteProvider) GetFirstReadingTime(ctx context.Context, deviceID string) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MIN(ts) FROM readings WHERE device_id = ?", deviceID).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get first reading time: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return fromNanos(ts.Int64), nil
}

// GetUserSettings retrieves the owner's settings. Missing settings are
// returned as the zero value.
func (s *SQLiteProvider) GetUserSettings(ctx context.Context, ownerID string) (types.UserSettings, error) {
	settings := types.UserSettings{OwnerID: ownerID}
	var updated int64
	err := s.db.QueryRowContext(
		ctx,
		"SELECT tariff_pkr_per_kwh, updated_at FROM user_settings WHERE owner_id = ?",
		ownerID,
	).Scan(&settings.TariffPKRPerKWH, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return settings, nil
	}
	if err != nil {
		return types.UserSettings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	settings.UpdatedAt = fromNanos(updated)
	return settings, nil
}

// SetUserSettings replaces the owner's settings.
func (s *SQLiteProvider) SetUserSettings(ctx context.Context, settings types.UserSettings) error {
	if settings.OwnerID == "" {
		return fmt.Errorf("ownerID cannot be empty")
	}
	_, err := s.db.ExecContext(
		ctx,
		"INSERT OR REPLACE INTO user_settings (owner_id, tariff_pkr_per_kwh, updated_at) VALUES (?, ?, ?)",
		settings.OwnerID, settings.TariffPKRPerKWH, nanos(settings.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// GetSolarConfig retrieves the owner's solar configuration.
func (s *SQLiteProvider) GetSolarConfig(ctx context.Context, ownerID string) (types.SolarConfig, error) {
	cfg := types.SolarConfig{OwnerID: ownerID}
	var lat, lon sql.NullFloat64
	var updated int64
	err := s.db.QueryRowContext(
		ctx,
		"SELECT enabled, installed_capacity_kw, latitude, longitude, updated_at FROM solar_configs WHERE owner_id = ?",
		ownerID,
	).Scan(&cfg.Enabled, &cfg.InstalledCapacityKW, &lat, &lon, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, nil
	}
	if err != nil {
		return types.SolarConfig{}, fmt.Errorf("failed to get solar config: %w", err)
	}
	if lat.Valid {
		cfg.Latitude = &lat.Float64
	}
	if lon.Valid {
		cfg.Longitude = &lon.Float64
	}
	cfg.UpdatedAt = fromNanos(updated)
	return cfg, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// SetSolarConfig replaces the owner's solar configuration.
func (s *SQLiteProvider) SetSolarConfig(ctx context.Context, cfg types.SolarConfig) error {
	if cfg.OwnerID == "" {
		return fmt.Errorf("ownerID cannot be empty")
	}
	_, err := s.db.ExecContext(
		ctx,
		"INSERT OR REPLACE INTO solar_configs (owner_id, enabled, installed_capacity_kw, latitude, longitude, updated_at) "+
			"VALUES (?, ?, ?, ?, ?, ?)",
		cfg.OwnerID,
		cfg.Enabled,
		cfg.InstalledCapacityKW,
		nullFloat(cfg.Latitude),
		nullFloat(cfg.Longitude),
		nanos(cfg.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save solar config: %w", err)
	}
	return nil
}

// InsertSolarGeneration appends a generation record for the owner.
func (s *SQLiteProvider) InsertSolarGeneration(ctx context.Context, rec types.SolarGenerationRecord) error {
	if rec.OwnerID == "" {
		return fmt.Errorf("ownerID cannot be empty")
	}
	res, err := s.db.ExecContext(
		ctx,
		"INSERT OR IGNORE INTO solar_generation (owner_id, ts, solar_kw, home_kw, grid_import_kw, cloud_cover) "+
			"VALUES (?, ?, ?, ?, ?, ?)",
		rec.OwnerID,
		nanos(rec.Timestamp),
		rec.SolarKW,
		rec.HomeKW,
		rec.GridImportKW,
		rec.CloudCoverPct,
	)
	if err != nil {
		return fmt.Errorf("failed to insert solar generation: %w", err)
	}
	return insertedOne(res, "solar generation record")
}

// GetSolarGenerationHistory retrieves the latest limit records within [start, end].
func (s *SQLiteProvider) GetSolarGenerationHistory(ctx context.Context, ownerID string, start, end time.Time, limit int) ([]types.SolarGenerationRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT owner_id, ts, solar_kw, home_kw, grid_import_kw, cloud_cover FROM solar_generation "+
			"WHERE owner_id = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?",
		ownerID, nanos(start), nanos(end), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query solar generation: %w", err)
	}
	defer rows.Close()

	var records []types.SolarGenerationRecord
	for rows.Next() {
		var rec types.SolarGenerationRecord
		var ts int64
		if err := rows.Scan(&rec.OwnerID, &ts, &rec.SolarKW, &rec.HomeKW, &rec.GridImportKW, &rec.CloudCoverPct); err != nil {
			return nil, fmt.Errorf("failed to scan solar generation: %w", err)
		}
		rec.Timestamp = fromNanos(ts)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(records)
	return records, nil
}

// GetLatestSolarGenerationTime retrieves the timestamp of the owner's last
// generation record, or the zero time if there is none.
func (s *SQLiteProvider) GetLatestSolarGenerationTime(ctx context.Context, ownerID string) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(ts) FROM solar_generation WHERE owner_id = ?", ownerID).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest solar generation time: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return fromNanos(ts.Int64), nil
}

// GetWeatherSnapshot retrieves the cached weather for a location key.
func (s *SQLiteProvider) GetWeatherSnapshot(ctx context.Context, key string) (types.WeatherSnapshot, bool, error) {
	snap := types.WeatherSnapshot{LocationKey: key}
	var sunrise, sunset, fetched int64
	err := s.db.QueryRowContext(
		ctx,
		"SELECT latitude, longitude, cloud_cover, sunrise, sunset, fetched_at FROM weather_snapshots WHERE location_key = ?",
		key,
	).Scan(&snap.Latitude, &snap.Longitude, &snap.CloudCoverPct, &sunrise, &sunset, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return types.WeatherSnapshot{}, false, nil
	}
	if err != nil {
		return types.WeatherSnapshot{}, false, fmt.Errorf("failed to get weather snapshot: %w", err)
	}
	snap.Sunrise = fromNanos(sunrise)
	snap.Sunset = fromNanos(sunset)
	snap.FetchedAt = fromNanos(fetched)
	return snap, true, nil
}

// PutWeatherSnapshot replaces the cached weather for the snapshot's key.
func (s *SQLiteProvider) PutWeatherSnapshot(ctx context.Context, snap types.WeatherSnapshot) error {
	if strings.TrimSpace(snap.LocationKey) == "" {
		return fmt.Errorf("weather snapshot missing location key")
	}
	_, err := s.db.ExecContext(
		ctx,
		"INSERT OR REPLACE INTO weather_snapshots (location_key, latitude, longitude, cloud_cover, sunrise, sunset, fetched_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?)",
		snap.LocationKey,
		snap.Latitude,
		snap.Longitude,
		snap.CloudCoverPct,
		nanos(snap.Sunrise),
		nanos(snap.Sunset),
		nanos(snap.FetchedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save weather snapshot: %w", err)
	}
	return nil
}
