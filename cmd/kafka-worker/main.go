package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/finaudit/audit-engine/configs"
	"github.com/finaudit/audit-engine/internal/queue"
)

// This worker does NOT analyze records (the Redis Stream worker handles
// that). It tails the Debezium CDC topic for the financial_records table
// and turns every row change into an activity event for:
//   - Audit trail / compliance logging
//   - Real-time dashboard aggregation
//   - Event replay capabilities

// DebeziumMessage represents a CDC event from Debezium
type DebeziumMessage struct {
	Before      json.RawMessage `json:"before"`
	After       json.RawMessage `json:"after"`
	Source      DebeziumSource  `json:"source"`
	Op          string          `json:"op"` // c=create, u=update, d=delete, r=read (snapshot)
	TsMs        int64           `json:"ts_ms"`
	Transaction json.RawMessage `json:"transaction"`
}

// DebeziumSource contains metadata about the change
type DebeziumSource struct {
	Version   string `json:"version"`
	Connector string `json:"connector"`
	Name      string `json:"name"`
	TsMs      int64  `json:"ts_ms"`
	Snapshot  string `json:"snapshot"`
	DB        string `json:"db"`
	Schema    string `json:"schema"`
	Table     string `json:"table"`
	TxID      int64  `json:"txId"`
	LSN       int64  `json:"lsn"`
}

// RecordCDC represents a financial record row from CDC
type RecordCDC struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	UploadedBy     string  `json:"uploaded_by"`
	FileName       string  `json:"file_name"`
	FileType       string  `json:"file_type"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      *string `json:"updated_at"`
}

// ActivityEvent represents a processed event for the dashboard feed
type ActivityEvent struct {
	EventType      string                 `json:"event_type"`
	RecordID       string                 `json:"record_id"`
	OrganizationID string                 `json:"organization_id"`
	FileName       string                 `json:"file_name"`
	FileType       string                 `json:"file_type"`
	Status         string                 `json:"status"`
	PrevStatus     string                 `json:"prev_status,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	CDCTimestamp   int64                  `json:"cdc_timestamp_ms"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// RealTimeMetrics tracks live metrics
type RealTimeMetrics struct {
	mu                   sync.RWMutex
	RecordsUploaded      int64
	AnalysesCompleted    int64
	AnalysesFailed       int64
	RecordsDeleted       int64
	FileTypeDistribution map[string]int64
	StatusTransitions    map[string]int64
	LastEventTime        time.Time
	EventsPerSecond      float64
	windowStart          time.Time
	windowCount          int64
}

func NewRealTimeMetrics() *RealTimeMetrics {
	return &RealTimeMetrics{
		FileTypeDistribution: make(map[string]int64),
		StatusTransitions:    make(map[string]int64),
		windowStart:          time.Now(),
	}
}

func (m *RealTimeMetrics) RecordEvent(event *ActivityEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastEventTime = time.Now()
	m.windowCount++

	// Calculate events per second
	elapsed := time.Since(m.windowStart).Seconds()
	if elapsed > 0 {
		m.EventsPerSecond = float64(m.windowCount) / elapsed
	}

	// Reset window every minute
	if elapsed > 60 {
		m.windowStart = time.Now()
		m.windowCount = 0
	}

	switch event.EventType {
	case "record_created":
		m.RecordsUploaded++
		m.FileTypeDistribution[event.FileType]++
	case "record_updated":
		transition := event.PrevStatus + "->" + event.Status
		m.StatusTransitions[transition]++

		switch event.Status {
		case "completed":
			m.AnalysesCompleted++
		case "failed":
			m.AnalysesFailed++
		}
	case "record_deleted":
		m.RecordsDeleted++
	}
}

func (m *RealTimeMetrics) GetSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"records_uploaded":       m.RecordsUploaded,
		"analyses_completed":     m.AnalysesCompleted,
		"analyses_failed":        m.AnalysesFailed,
		"records_deleted":        m.RecordsDeleted,
		"events_per_second":      m.EventsPerSecond,
		"file_type_distribution": m.FileTypeDistribution,
		"status_transitions":     m.StatusTransitions,
		"last_event_time":        m.LastEventTime,
	}
}

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENVIRONMENT") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Info().Msg("Starting CDC activity pipeline")
	log.Info().Msg("This pipeline captures record CDC events for audit & dashboards.")
	log.Info().Msg("Analysis is handled by Redis Stream workers (fast path).")

	// Load configuration
	cfg := configs.Load()

	brokers := strings.Split(cfg.Kafka.Brokers, ",")
	topics := strings.Split(cfg.Kafka.Topics, ",")

	// Connect to Redis (for publishing activity events)
	cacheClient, err := queue.NewCacheClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer cacheClient.Close()

	// Initialize real-time metrics
	metrics := NewRealTimeMetrics()

	// Create Kafka consumer
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true
	config.Version = sarama.V3_0_0_0

	// Retry connecting to Kafka
	var consumerGroup sarama.ConsumerGroup
	for i := 0; i < 30; i++ {
		consumerGroup, err = sarama.NewConsumerGroup(brokers, cfg.Kafka.GroupID, config)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to connect to Kafka, retrying...")
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka consumer group after retries")
	}
	defer consumerGroup.Close()

	// Create consumer handler
	handler := &ActivityPipelineHandler{
		metrics:     metrics,
		cacheClient: cacheClient,
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received, stopping activity pipeline...")
		cancel()
	}()

	// Start metrics reporter (logs every 30 seconds)
	go handler.startMetricsReporter(ctx)

	// Start consuming
	log.Info().
		Strs("brokers", brokers).
		Strs("topics", topics).
		Str("group_id", cfg.Kafka.GroupID).
		Msg("Activity pipeline started - consuming CDC events")

	for {
		if err := consumerGroup.Consume(ctx, topics, handler); err != nil {
			log.Error().Err(err).Msg("Error from consumer")
		}

		if ctx.Err() != nil {
			log.Info().Msg("Context cancelled, shutting down activity pipeline")
			return
		}
	}
}

// ActivityPipelineHandler processes CDC events for the activity feed
type ActivityPipelineHandler struct {
	metrics     *RealTimeMetrics
	cacheClient *queue.CacheClient
}

func (h *ActivityPipelineHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Activity pipeline session started")
	return nil
}

func (h *ActivityPipelineHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Activity pipeline session ended")
	return nil
}

func (h *ActivityPipelineHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			h.processMessage(session.Context(), message)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *ActivityPipelineHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	// Parse Debezium message
	var debeziumMsg DebeziumMessage
	if err := json.Unmarshal(message.Value, &debeziumMsg); err != nil {
		log.Error().Err(err).Msg("Failed to parse Debezium message")
		return
	}

	// Parse the record row
	var record RecordCDC
	var prevRecord *RecordCDC

	if debeziumMsg.After != nil {
		if err := json.Unmarshal(debeziumMsg.After, &record); err != nil {
			log.Error().Err(err).Msg("Failed to parse record from CDC payload")
			return
		}
	}

	if debeziumMsg.Before != nil {
		prevRecord = &RecordCDC{}
		if err := json.Unmarshal(debeziumMsg.Before, prevRecord); err != nil {
			prevRecord = nil // Ignore parse errors for 'before'
		}
		// On deletes there is no 'after' image
		if debeziumMsg.After == nil {
			record = *prevRecord
		}
	}

	// Create activity event
	event := h.createActivityEvent(&debeziumMsg, &record, prevRecord)

	// Record in real-time metrics
	h.metrics.RecordEvent(event)

	// Log the event with appropriate level
	h.logEvent(event)

	// Push into the cached feed for dashboard access
	h.storeActivityEvent(ctx, event)
}

func (h *ActivityPipelineHandler) createActivityEvent(msg *DebeziumMessage, record *RecordCDC, prevRecord *RecordCDC) *ActivityEvent {
	eventType := "unknown"
	switch msg.Op {
	case "c":
		eventType = "record_created"
	case "u":
		eventType = "record_updated"
	case "d":
		eventType = "record_deleted"
	case "r":
		eventType = "record_snapshot"
	}

	event := &ActivityEvent{
		EventType:      eventType,
		RecordID:       record.ID,
		OrganizationID: record.OrganizationID,
		FileName:       record.FileName,
		FileType:       record.FileType,
		Status:         record.Status,
		Timestamp:      time.Now(),
		CDCTimestamp:   msg.TsMs,
		Metadata: map[string]interface{}{
			"table":     msg.Source.Table,
			"lsn":       msg.Source.LSN,
			"txId":      msg.Source.TxID,
			"connector": msg.Source.Connector,
		},
	}

	if prevRecord != nil {
		event.PrevStatus = prevRecord.Status
	}

	return event
}

func (h *ActivityPipelineHandler) logEvent(event *ActivityEvent) {
	shortID := event.RecordID
	if len(shortID) > 8 {
		shortID = shortID[:8] + "..."
	}

	switch event.EventType {
	case "record_created":
		log.Info().
			Str("event", "NEW").
			Str("record_id", shortID).
			Str("file_name", event.FileName).
			Str("file_type", event.FileType).
			Msg("Record captured")

	case "record_updated":
		log.Info().
			Str("event", "UPDATE").
			Str("record_id", shortID).
			Str("status", event.PrevStatus+"->"+event.Status).
			Msg("Record status changed")

	case "record_deleted":
		log.Warn().
			Str("event", "DELETE").
			Str("record_id", shortID).
			Msg("Record deleted")
	}
}

func (h *ActivityPipelineHandler) storeActivityEvent(ctx context.Context, event *ActivityEvent) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return
	}

	// Store in Redis list (recent events)
	key := "activity:recent_events"
	h.cacheClient.LPush(ctx, key, string(eventJSON))
	h.cacheClient.LTrim(ctx, key, 0, 999) // Keep last 1000 events

	// Per-organization status counters for the live dashboard
	if event.EventType == "record_updated" && event.Status != "" {
		h.cacheClient.HIncrBy(ctx, "activity:status_counts:"+event.OrganizationID, event.Status, 1)
	}
}

func (h *ActivityPipelineHandler) startMetricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snapshot := h.metrics.GetSnapshot()
			log.Info().
				Int64("uploaded", snapshot["records_uploaded"].(int64)).
				Int64("completed", snapshot["analyses_completed"].(int64)).
				Int64("failed", snapshot["analyses_failed"].(int64)).
				Float64("events_per_sec", snapshot["events_per_second"].(float64)).
				Msg("Activity pipeline metrics")

		case <-ctx.Done():
			return
		}
	}
}
