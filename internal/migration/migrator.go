// Package migration copies storefront collections from one storage backend
// to another, for example from the flat-file data directory into bolt or
// postgres. Run it against a stopped server: it takes no collection locks.
package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jogardn/coffee-storefront/internal/catalog"
	"github.com/jogardn/coffee-storefront/internal/contact"
	"github.com/jogardn/coffee-storefront/internal/orders"
	"github.com/jogardn/coffee-storefront/internal/storage"
	"github.com/sirupsen/logrus"
)

// KeyFields names the field that identifies a record in each collection.
// Records are matched on it when SkipExisting merges into a populated target.
var KeyFields = map[string]string{
	catalog.CollectionName:       "id",
	orders.CollectionName:        "orderId",
	contact.MessagesCollection:   "id",
	contact.NewsletterCollection: "email",
}

type DataMigrator struct {
	source storage.Store
	target storage.Store
	logger *logrus.Logger
	config MigrationConfig
}

type MigrationConfig struct {
	Collections  []string `json:"collections"`
	Concurrency  int      `json:"concurrency"`
	DryRun       bool     `json:"dry_run"`
	SkipExisting bool     `json:"skip_existing"`
}

type MigrationResult struct {
	TotalRecords   int                `json:"total_records"`
	Migrated       int                `json:"migrated"`
	Skipped        int                `json:"skipped"`
	Failed         int                `json:"failed"`
	Collections    []CollectionResult `json:"collections"`
	ErrorDetails   []MigrationError   `json:"error_details"`
	ProcessingTime time.Duration      `json:"processing_time"`
	DryRun         bool               `json:"dry_run"`
	Timestamp      time.Time          `json:"timestamp"`
}

type CollectionResult struct {
	Name     string `json:"name"`
	Records  int    `json:"records"`
	Migrated int    `json:"migrated"`
	Skipped  int    `json:"skipped"`
	Missing  bool   `json:"missing,omitempty"`
}

type MigrationError struct {
	Collection string    `json:"collection"`
	Error      string    `json:"error"`
	Severity   string    `json:"severity"`
	Timestamp  time.Time `json:"timestamp"`
}

func DefaultCollections() []string {
	names := make([]string, 0, len(KeyFields))
	for name := range KeyFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NewDataMigrator(source, target storage.Store, logger *logrus.Logger) *DataMigrator {
	return &DataMigrator{
		source: source,
		target: target,
		logger: logger,
		config: MigrationConfig{
			Collections:  DefaultCollections(),
			Concurrency:  2,
			SkipExisting: true,
		},
	}
}

func (dm *DataMigrator) SetConfig(config MigrationConfig) {
	if len(config.Collections) == 0 {
		config.Collections = DefaultCollections()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	dm.config = config
	dm.logger.WithFields(logrus.Fields{
		"collections":   config.Collections,
		"concurrency":   config.Concurrency,
		"dry_run":       config.DryRun,
		"skip_existing": config.SkipExisting,
	}).Info("Migration configuration updated")
}

// Migrate copies every configured collection. A collection that fails is
// recorded in the result and does not stop the others.
func (dm *DataMigrator) Migrate(ctx context.Context) (*MigrationResult, error) {
	startTime := time.Now()
	dm.logger.WithField("dry_run", dm.config.DryRun).Info("Starting collection migration")

	result := &MigrationResult{
		ErrorDetails: []MigrationError{},
		DryRun:       dm.config.DryRun,
		Timestamp:    startTime,
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		semaphore = make(chan struct{}, dm.config.Concurrency)
	)
	for _, name := range dm.config.Collections {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			collResult, err := dm.migrateCollection(ctx, name)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.ErrorDetails = append(result.ErrorDetails, MigrationError{
					Collection: name,
					Error:      err.Error(),
					Severity:   "error",
					Timestamp:  time.Now(),
				})
				dm.logger.WithError(err).WithField("collection", name).Error("Failed to migrate collection")
				return
			}
			result.Collections = append(result.Collections, collResult)
			result.TotalRecords += collResult.Records
			result.Migrated += collResult.Migrated
			result.Skipped += collResult.Skipped
		}(name)
	}
	wg.Wait()

	sort.Slice(result.Collections, func(i, j int) bool {
		return result.Collections[i].Name < result.Collections[j].Name
	})
	result.ProcessingTime = time.Since(startTime)

	dm.logger.WithFields(logrus.Fields{
		"migrated": result.Migrated,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
		"duration": result.ProcessingTime.String(),
	}).Info("Migration completed")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (dm *DataMigrator) migrateCollection(ctx context.Context, name string) (CollectionResult, error) {
	res := CollectionResult{Name: name}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	records, err := loadRecords(ctx, dm.source, name)
	if errors.Is(err, storage.ErrNotExist) {
		res.Missing = true
		dm.logger.WithField("collection", name).Warn("Collection missing in source, skipping")
		return res, nil
	}
	if err != nil {
		return res, err
	}
	res.Records = len(records)

	out := records
	if dm.config.SkipExisting {
		existing, err := loadRecords(ctx, dm.target, name)
		switch {
		case errors.Is(err, storage.ErrNotExist):
		case err != nil:
			return res, fmt.Errorf("failed to read target: %w", err)
		default:
			out, res.Skipped = merge(existing, records, KeyFields[name])
		}
	}
	res.Migrated = res.Records - res.Skipped

	if dm.config.DryRun {
		dm.logger.WithFields(logrus.Fields{
			"collection": name,
			"migrate":    res.Migrated,
			"skip":       res.Skipped,
		}).Info("DRY RUN: Would migrate collection")
		return res, nil
	}

	doc, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return res, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := dm.target.Save(ctx, name, doc); err != nil {
		return res, fmt.Errorf("failed to write target: %w", err)
	}

	dm.logger.WithFields(logrus.Fields{
		"collection": name,
		"migrated":   res.Migrated,
		"skipped":    res.Skipped,
	}).Info("Collection migrated")
	return res, nil
}

// merge appends the incoming records whose key the target does not have
// yet, keeping the target's records and order in front.
func merge(existing, incoming []json.RawMessage, keyField string) ([]json.RawMessage, int) {
	seen := make(map[string]bool, len(existing))
	for _, rec := range existing {
		if key, ok := recordKey(rec, keyField); ok {
			seen[key] = true
		}
	}

	out := append([]json.RawMessage(nil), existing...)
	skipped := 0
	for _, rec := range incoming {
		key, ok := recordKey(rec, keyField)
		if ok && seen[key] {
			skipped++
			continue
		}
		if ok {
			seen[key] = true
		}
		out = append(out, rec)
	}
	return out, skipped
}

// recordKey is the compact JSON of the key field, so 7 and "7" differ.
func recordKey(rec json.RawMessage, keyField string) (string, bool) {
	if keyField == "" {
		return "", false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rec, &fields); err != nil {
		return "", false
	}
	raw, ok := fields[keyField]
	if !ok {
		return "", false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", false
	}
	return buf.String(), true
}

func loadRecords(ctx context.Context, store storage.Store, name string) ([]json.RawMessage, error) {
	doc, err := store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	var records []json.RawMessage
	if err := json.Unmarshal(doc, &records); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", name, storage.ErrCorrupt, err)
	}
	return records, nil
}

type ValidationResult struct {
	Collections    []CollectionValidation `json:"collections"`
	SyncPercentage float64                `json:"sync_percentage"`
	IsValid        bool                   `json:"is_valid"`
	ValidationTime time.Time              `json:"validation_time"`
}

type CollectionValidation struct {
	Name            string   `json:"name"`
	SourceCount     int      `json:"source_count"`
	TargetCount     int      `json:"target_count"`
	MissingInTarget []string `json:"missing_in_target,omitempty"`
}

// ValidateMigration checks that every keyed source record is present in
// the target.
func (dm *DataMigrator) ValidateMigration(ctx context.Context) (*ValidationResult, error) {
	dm.logger.Info("Starting post-migration validation")

	validation := &ValidationResult{ValidationTime: time.Now()}
	var total, present int

	for _, name := range dm.config.Collections {
		source, err := loadRecords(ctx, dm.source, name)
		if errors.Is(err, storage.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read source %s: %w", name, err)
		}
		target, err := loadRecords(ctx, dm.target, name)
		if err != nil && !errors.Is(err, storage.ErrNotExist) {
			return nil, fmt.Errorf("failed to read target %s: %w", name, err)
		}

		check := CollectionValidation{
			Name:        name,
			SourceCount: len(source),
			TargetCount: len(target),
		}

		inTarget := make(map[string]bool, len(target))
		for _, rec := range target {
			if key, ok := recordKey(rec, KeyFields[name]); ok {
				inTarget[key] = true
			}
		}
		for _, rec := range source {
			key, ok := recordKey(rec, KeyFields[name])
			if !ok {
				continue
			}
			total++
			if inTarget[key] {
				present++
			} else {
				check.MissingInTarget = append(check.MissingInTarget, key)
			}
		}
		validation.Collections = append(validation.Collections, check)
	}

	validation.SyncPercentage = 100.0
	if total > 0 {
		validation.SyncPercentage = float64(present) / float64(total) * 100.0
	}
	validation.IsValid = present == total

	dm.logger.WithFields(logrus.Fields{
		"sync_percentage":   validation.SyncPercentage,
		"validation_passed": validation.IsValid,
	}).Info("Migration validation completed")

	return validation, nil
}
