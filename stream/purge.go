// Package stream schedules the physical removal of soft-deleted items from
// DynamoDB stream events.
//
// A soft delete only sets deleted_at. Once the stream reports that change,
// the handler sets the item's ttl to deleted_at + Retention, together with
// the ttl of the relationship records linking it to its parents. DynamoDB TTL
// then removes both. Children need no work here: a cascade marks them in the
// same commit, so each child produces its own stream record.
package stream

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// Purger sets TTL attributes. *dynamostore.Store implements it.
type Purger interface {
	SchedulePurge(ctx context.Context, table string, key map[string]types.AttributeValue, ttl int64) error
	SetRelationshipTTL(ctx context.Context, childRef, parentRef string, ttl int64) error
}

// Config holds configuration for the Handler.
type Config struct {
	// Retention is how long a tombstone is kept after deleted_at.
	// Default: 30 days
	Retention time.Duration

	// Logger receives one entry per scheduled purge. Default: no-op.
	Logger *zap.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Retention: 30 * 24 * time.Hour,
		Logger:    zap.NewNop(),
	}
}

func (c *Config) validate() {
	if c.Retention <= 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Handler processes DynamoDB stream events.
type Handler struct {
	purger Purger
	config Config
}

// NewHandler creates a new stream handler.
func NewHandler(p Purger, config Config) *Handler {
	config.validate()
	return &Handler{
		purger: p,
		config: config,
	}
}

// HandlePurge is the Lambda entry point. A failing record fails the batch so
// that Lambda retries it; every step is idempotent.
func (h *Handler) HandlePurge(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.config.Logger.Error("failed to process record",
				zap.String("eventID", record.EventID),
				zap.Error(err),
			)
			return err
		}
	}
	return nil
}

// processRecord schedules the purge of an item whose deleted_at was just set.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != "MODIFY" {
		return nil
	}

	oldDeletedAt := getStringAttr(record.Change.OldImage, "deleted_at")
	newDeletedAt := getStringAttr(record.Change.NewImage, "deleted_at")
	if oldDeletedAt != "" || newDeletedAt == "" {
		return nil
	}
	// Already scheduled by an earlier delivery.
	if getNumberAttr(record.Change.NewImage, "ttl") != 0 {
		return nil
	}

	deletedAt, err := time.Parse(time.RFC3339Nano, newDeletedAt)
	if err != nil {
		return fmt.Errorf("parse deleted_at %q: %w", newDeletedAt, err)
	}
	table, err := tableName(record.EventSourceArn)
	if err != nil {
		return err
	}

	ttl := deletedAt.Add(h.config.Retention).Unix()
	entityRef := getStringAttr(record.Change.NewImage, "entity_ref")
	parentRefs := getStringListAttr(record.Change.NewImage, "_parent_refs")

	if err := h.purger.SchedulePurge(ctx, table, ConvertStreamKey(record.Change.Keys), ttl); err != nil {
		return fmt.Errorf("schedule purge of %s: %w", entityRef, err)
	}

	for _, parentRef := range parentRefs {
		if err := h.purger.SetRelationshipTTL(ctx, entityRef, parentRef, ttl); err != nil {
			h.config.Logger.Warn("failed to set relationship TTL",
				zap.String("entity", entityRef),
				zap.String("parent", parentRef),
				zap.Error(err),
			)
		}
	}

	h.config.Logger.Info("purge scheduled",
		zap.String("entity", entityRef),
		zap.String("table", table),
		zap.Int64("ttl", ttl),
		zap.Int("parents", len(parentRefs)),
	)
	return nil
}

// tableName extracts the table from a stream ARN such as
// arn:aws:dynamodb:eu-west-1:123456789012:table/orders/stream/2024-03-01T00:00:00.000.
func tableName(arn string) (string, error) {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return "", fmt.Errorf("no table in event source ARN %q", arn)
	}
	table, _, _ := strings.Cut(rest, "/")
	if table == "" {
		return "", fmt.Errorf("no table in event source ARN %q", arn)
	}
	return table, nil
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

// getStringListAttr extracts a string list attribute from a DynamoDB stream image.
func getStringListAttr(image map[string]events.DynamoDBAttributeValue, key string) []string {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeList {
			var result []string
			for _, item := range v.List() {
				if item.DataType() == events.DataTypeString {
					result = append(result, item.String())
				}
			}
			return result
		}
	}
	return nil
}

// ConvertStreamKey converts a DynamoDB stream key to an SDK key.
func ConvertStreamKey(streamKey map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(streamKey))
	for k, v := range streamKey {
		switch v.DataType() {
		case events.DataTypeString:
			result[k] = &types.AttributeValueMemberS{Value: v.String()}
		case events.DataTypeNumber:
			result[k] = &types.AttributeValueMemberN{Value: v.Number()}
		case events.DataTypeBinary:
			result[k] = &types.AttributeValueMemberB{Value: v.Binary()}
		}
	}
	return result
}
