package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/voltledger/voltledger/pkg/log"
	"github.com/voltledger/voltledger/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements Database using Google Cloud Firestore. Every
// document stores its value as a JSON blob in the "json" field, plus the
// fields needed for queries.
//
// Layout:
//
//	devices/{deviceID}                         json, ownerID, tokenHash
//	devices/{deviceID}/readings/{ts}           json, timestamp
//	owners/{ownerID}/config/{settings|solar}   json
//	owners/{ownerID}/solar_generation/{ts}     json, timestamp
//	weather/{locationKey}                      json
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// the firestore client only reads the emulator host from the environment
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured. An empty project
// is allowed and detected from the environment.
func (f *FirestoreProvider) Validate() error {
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) ownerCollection(ownerID, name string) (*firestore.CollectionRef, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("ownerID cannot be empty")
	}
	return f.client.Collection("owners").Doc(ownerID).Collection(name), nil
}

func (f *FirestoreProvider) readingsCollection(deviceID string) (*firestore.CollectionRef, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("deviceID cannot be empty")
	}
	return f.client.Collection("devices").Doc(deviceID).Collection("readings"), nil
}

// decodeDoc unmarshals the "json" field of doc into a T.
func decodeDoc[T any](ctx context.Context, doc *firestore.DocumentSnapshot, kind string) (T, error) {
	var v T
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "doc missing json", slog.String("kind", kind), slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return v, fmt.Errorf("%s document %s missing 'json' field: %w", kind, doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "doc json not string", slog.String("kind", kind), slog.String("docID", doc.Ref.ID))
		return v, fmt.Errorf("%s document %s 'json' field is not string", kind, doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), &v); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal doc", slog.String("kind", kind), slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return v, fmt.Errorf("failed to unmarshal %s (id=%s): %w", kind, doc.Ref.ID, err)
	}
	return v, nil
}

// collect drains iter, decoding every document into a T.
func collect[T any](ctx context.Context, iter *firestore.DocumentIterator, kind string) ([]T, error) {
	defer iter.Stop()
	var out []T
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating %s: %w", kind, err)
		}
		v, err := decodeDoc[T](ctx, doc, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// getDoc fetches ref and decodes it into a T. A missing document returns
// a nil snapshot and no error.
func getDoc[T any](ctx context.Context, ref *firestore.DocumentRef, kind string) (T, *firestore.DocumentSnapshot, error) {
	var zero T
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return zero, nil, nil
		}
		return zero, nil, fmt.Errorf("failed to fetch %s doc: %w", kind, err)
	}
	v, err := decodeDoc[T](ctx, doc, kind)
	if err != nil {
		return zero, nil, err
	}
	return v, doc, nil
}

// CreateDevice creates the device document. It fails if the ID is taken.
func (f *FirestoreProvider) CreateDevice(ctx context.Context, device types.Device) error {
	if device.ID == "" || device.OwnerID == "" {
		return fmt.Errorf("device id and owner are required")
	}
	deviceJSON, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("failed to marshal device %s: %w", device.ID, err)
	}
	_, err = f.client.Collection("devices").Doc(device.ID).Create(ctx, map[string]interface{}{
		"json":      string(deviceJSON),
		"ownerID":   device.OwnerID,
		"tokenHash": device.TokenHash,
	})
	if err != nil {
		return fmt.Errorf("failed to create device %s: %w", device.ID, err)
	}
	return nil
}

// GetDevice retrieves a device by ID.
func (f *FirestoreProvider) GetDevice(ctx context.Context, deviceID string) (types.Device, error) {
	if deviceID == "" {
		return types.Device{}, fmt.Errorf("%w: empty device id", ErrNotFound)
	}
	d, doc, err := getDoc[types.Device](ctx, f.client.Collection("devices").Doc(deviceID), "device")
	if err != nil {
		return types.Device{}, err
	}
	if doc == nil {
		return types.Device{}, fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
	}
	if h, err := doc.DataAt("tokenHash"); err == nil {
		d.TokenHash, _ = h.(string)
	}
	return d, nil
}

// GetDeviceByTokenHash finds the device whose ingestion token hashes to tokenHash.
func (f *FirestoreProvider) GetDeviceByTokenHash(ctx context.Context, tokenHash string) (types.Device, error) {
	if tokenHash == "" {
		return types.Device{}, fmt.Errorf("%w: empty token", ErrNotFound)
	}
	iter := f.client.Collection("devices").
		Where("tokenHash", "==", tokenHash).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return types.Device{}, fmt.Errorf("%w: device token", ErrNotFound)
	}
	if err != nil {
		return types.Device{}, fmt.Errorf("failed to query device by token: %w", err)
	}
	d, err := decodeDoc[types.Device](ctx, doc, "device")
	if err != nil {
		return types.Device{}, err
	}
	d.TokenHash = tokenHash
	return d, nil
}

// ListDevices returns the owner's devices ordered by creation time.
func (f *FirestoreProvider) ListDevices(ctx context.Context, ownerID string) ([]types.Device, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("ownerID cannot be empty")
	}
	iter := f.client.Collection("devices").
		Where("ownerID", "==", ownerID).
		Documents(ctx)
	devices, err := collect[types.Device](ctx, iter, "device")
	if err != nil {
		return nil, err
	}
	// sorted here to avoid needing a composite index
	slices.SortStableFunc(devices, func(a, b types.Device) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return devices, nil
}

// InsertReading stores a reading under its device. The document ID is the
// fixed-width timestamp so ranges can be queried on the document ID, and an
// existing document is never overwritten.
func (f *FirestoreProvider) InsertReading(ctx context.Context, reading types.Reading) error {
	jsonBytes, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	coll, err := f.readingsCollection(reading.DeviceID)
	if err != nil {
		return err
	}
	_, err = coll.Doc(timeDocID(reading.Timestamp)).Create(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": reading.Timestamp,
	})
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%w: reading at %s", ErrAlreadyExists, timeDocID(reading.Timestamp))
	}
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

func rangeQuery(coll *firestore.CollectionRef, start, end time.Time) firestore.Query {
	return coll.
		Where(firestore.DocumentID, ">=", coll.Doc(timeDocID(start))).
		Where(firestore.DocumentID, "<=", coll.Doc(timeDocID(end)))
}

// GetReadings retrieves readings within [start, end].
func (f *FirestoreProvider) GetReadings(ctx context.Context, deviceID string, start, end time.Time) ([]types.Reading, error) {
	coll, err := f.readingsCollection(deviceID)
	if err != nil {
		return nil, err
	}
	iter := rangeQuery(coll, start, end).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	return collect[types.Reading](ctx, iter, "reading")
}

// GetRecentReadings retrieves the latest limit readings within [start, end].
func (f *FirestoreProvider) GetRecentReadings(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]types.Reading, error) {
	coll, err := f.readingsCollection(deviceID)
	if err != nil {
		return nil, err
	}
	q := rangeQuery(coll, start, end).OrderBy(firestore.DocumentID, firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	readings, err := collect[types.Reading](ctx, q.Documents(ctx), "reading")
	if err != nil {
		return nil, err
	}
	slices.Reverse(readings)
	return readings, nil
}

// GetLatestReading retrieves the most recent reading of a device.
func (f *FirestoreProvider) GetLatestReading(ctx context.Context, deviceID string) (types.Reading, error) {
	return f.edgeReading(ctx, deviceID, firestore.Desc)
}

// GetFirstReadingTime retrieves the timestamp of the device's oldest reading.
func (f *FirestoreProvider) GetFirstReadingTime(ctx context.Context, deviceID string) (time.Time, error) {
	r, err := f.edgeReading(ctx, deviceID, firestore.Asc)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return r.Timestamp, nil
}

func (f *FirestoreProvider) edgeReading(ctx context.Context, deviceID string, dir firestore.Direction) (types.Reading, error) {
	coll, err := f.readingsCollection(deviceID)
	if err != nil {
		return types.Reading{}, err
	}
	readings, err := collect[types.Reading](ctx, coll.OrderBy(firestore.DocumentID, dir).Limit(1).Documents(ctx), "reading")
	if err != nil {
		return types.Reading{}, err
	}
	if len(readings) == 0 {
		return types.Reading{}, fmt.Errorf("%w: readings for device %s", ErrNotFound, deviceID)
	}
	return readings[0], nil
}

// GetUserSettings retrieves the owner's settings from "config/settings".
// Missing settings are returned as the zero value.
func (f *FirestoreProvider) GetUserSettings(ctx context.Context, ownerID string) (types.UserSettings, error) {
	coll, err := f.ownerCollection(ownerID, "config")
	if err != nil {
		return types.UserSettings{}, err
	}
	s, _, err := getDoc[types.UserSettings](ctx, coll.Doc("settings"), "settings")
	if err != nil {
		return types.UserSettings{}, err
	}
	s.OwnerID = ownerID
	return s, nil
}

// SetUserSettings replaces the owner's settings document.
func (f *FirestoreProvider) SetUserSettings(ctx context.Context, settings types.UserSettings) error {
	return f.setConfigDoc(ctx, settings.OwnerID, "settings", settings)
}

// GetSolarConfig retrieves the owner's solar configuration from "config/solar".
func (f *FirestoreProvider) GetSolarConfig(ctx context.Context, ownerID string) (types.SolarConfig, error) {
	coll, err := f.ownerCollection(ownerID, "config")
	if err != nil {
		return types.SolarConfig{}, err
	}
	c, _, err := getDoc[types.SolarConfig](ctx, coll.Doc("solar"), "solar config")
	if err != nil {
		return types.SolarConfig{}, err
	}
	c.OwnerID = ownerID
	return c, nil
}

// SetSolarConfig replaces the owner's solar configuration document.
func (f *FirestoreProvider) SetSolarConfig(ctx context.Context, cfg types.SolarConfig) error {
	return f.setConfigDoc(ctx, cfg.OwnerID, "solar", cfg)
}

func (f *FirestoreProvider) setConfigDoc(ctx context.Context, ownerID, name string, v any) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	coll, err := f.ownerCollection(ownerID, "config")
	if err != nil {
		return err
	}
	_, err = coll.Doc(name).Set(ctx, map[string]interface{}{
		"json": string(jsonBytes),
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	return nil
}

// InsertSolarGeneration appends a generation record for the owner.
func (f *FirestoreProvider) InsertSolarGeneration(ctx context.Context, record types.SolarGenerationRecord) error {
	jsonBytes, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal solar generation: %w", err)
	}
	coll, err := f.ownerCollection(record.OwnerID, "solar_generation")
	if err != nil {
		return err
	}
	_, err = coll.Doc(timeDocID(record.Timestamp)).Create(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": record.Timestamp,
	})
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%w: solar generation record at %s", ErrAlreadyExists, timeDocID(record.Timestamp))
	}
	if err != nil {
		return fmt.Errorf("failed to insert solar generation: %w", err)
	}
	return nil
}

// GetSolarGenerationHistory retrieves the latest limit records within [start, end].
func (f *FirestoreProvider) GetSolarGenerationHistory(ctx context.Context, ownerID string, start, end time.Time, limit int) ([]types.SolarGenerationRecord, error) {
	coll, err := f.ownerCollection(ownerID, "solar_generation")
	if err != nil {
		return nil, err
	}
	q := rangeQuery(coll, start, end).OrderBy(firestore.DocumentID, firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	records, err := collect[types.SolarGenerationRecord](ctx, q.Documents(ctx), "solar generation")
	if err != nil {
		return nil, err
	}
	slices.Reverse(records)
	return records, nil
}

// GetLatestSolarGenerationTime retrieves the timestamp of the owner's last
// generation record, or the zero time if there is none.
func (f *FirestoreProvider) GetLatestSolarGenerationTime(ctx context.Context, ownerID string) (time.Time, error) {
	coll, err := f.ownerCollection(ownerID, "solar_generation")
	if err != nil {
		return time.Time{}, err
	}
	// firestore automatically creates indexes for top-level fields
	iter := coll.
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest solar generation doc: %w", err)
	}
	ts, err := time.Parse(docIDLayout, doc.Ref.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid solar generation doc id %s: %w", doc.Ref.ID, err)
	}
	return ts, nil
}

// GetWeatherSnapshot retrieves the cached weather for a location key.
func (f *FirestoreProvider) GetWeatherSnapshot(ctx context.Context, key string) (types.WeatherSnapshot, bool, error) {
	s, doc, err := getDoc[types.WeatherSnapshot](ctx, f.client.Collection("weather").Doc(key), "weather")
	if err != nil {
		return types.WeatherSnapshot{}, false, err
	}
	return s, doc != nil, nil
}

// PutWeatherSnapshot replaces the cached weather for the snapshot's key.
func (f *FirestoreProvider) PutWeatherSnapshot(ctx context.Context, snap types.WeatherSnapshot) error {
	if snap.LocationKey == "" {
		return fmt.Errorf("weather snapshot missing location key")
	}
	jsonBytes, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal weather snapshot: %w", err)
	}
	_, err = f.client.Collection("weather").Doc(snap.LocationKey).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"fetchedAt": snap.FetchedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save weather snapshot: %w", err)
	}
	return nil
}
