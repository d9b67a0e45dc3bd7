package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/marklab/marksync/internal/conflict"
	"github.com/marklab/marksync/internal/engine"
	"github.com/marklab/marksync/internal/notify"
)

// Handler bridges engine events and the WebSocket server. It formats
// sync results, phase transitions, and conflicts as dashboard messages
// and keeps aggregate statistics across cycles.
//
// It implements notify.Notifier so it can sit on the engine's
// notification fan-out alongside the log notifier.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		logger: logger,
		stats: StatsData{
			ByProvider: make(map[string]int),
		},
	}
}

// OnSyncStarted handles cycle start events
func (h *Handler) OnSyncStarted(providerID string) {
	h.logger.Printf("Sync started: %s", providerID)
	h.broadcastData(MessageTypeSyncStarted, SyncStartedData{ProviderID: providerID})
}

// OnPhaseChange handles cycle phase transitions. Wire it to the
// engine's OnPhaseChange hook.
func (h *Handler) OnPhaseChange(providerID string, phase engine.Phase) {
	h.broadcastData(MessageTypePhaseChange, PhaseChangeData{
		ProviderID: providerID,
		Phase:      string(phase),
	})
}

// OnSyncResult handles cycle completion events
func (h *Handler) OnSyncResult(result engine.Result) {
	h.logger.Printf("Sync result: %s success=%v", result.ProviderID, result.Success)

	h.mu.Lock()
	h.stats.CyclesRun++
	h.stats.ByProvider[result.ProviderID]++
	if result.Success {
		h.stats.ItemsAdded += result.ItemsAdded
		h.stats.ItemsUpdated += result.ItemsUpdated
		h.stats.ItemsDeleted += result.ItemsDeleted
	} else {
		h.stats.CyclesFailed++
	}
	h.mu.Unlock()

	h.broadcastData(MessageTypeSyncResult, result)
	h.broadcastStats()
}

// OnConflictDetected handles conflict detection events
func (h *Handler) OnConflictDetected(c *conflict.Conflict) {
	h.logger.Printf("Conflict detected: %s (%s)", c.ID, c.Type)

	h.broadcastData(MessageTypeConflict, ConflictData{
		ConflictID: c.ID,
		ProviderID: c.ProviderID,
		Type:       string(c.Type),
		Action:     "detected",
	})
}

// OnConflictResolved handles conflict resolution events
func (h *Handler) OnConflictResolved(conflictID string, strategy conflict.Strategy) {
	h.logger.Printf("Conflict resolved: %s via %s", conflictID, strategy)

	h.broadcastData(MessageTypeConflict, ConflictData{
		ConflictID: conflictID,
		Action:     "resolved",
		Strategy:   string(strategy),
	})
}

// SetOpenConflicts refreshes the unresolved conflict count shown in
// stats broadcasts.
func (h *Handler) SetOpenConflicts(n int) {
	h.mu.Lock()
	h.stats.OpenConflicts = n
	h.mu.Unlock()
	h.broadcastStats()
}

// Notify implements notify.Notifier by relaying the notification to
// connected clients. It never fails.
func (h *Handler) Notify(ctx context.Context, n notify.Notification) error {
	h.broadcastData(MessageTypeNotification, NotificationData{
		Kind:       string(n.Type),
		Title:      n.Title,
		Message:    n.Message,
		ProviderID: n.ProviderID,
	})
	return nil
}

// GetStats returns a copy of the current statistics
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := h.stats
	stats.ByProvider = make(map[string]int, len(h.stats.ByProvider))
	for k, v := range h.stats.ByProvider {
		stats.ByProvider[k] = v
	}
	return stats
}

// broadcastStats sends current statistics to all clients
func (h *Handler) broadcastStats() {
	h.broadcastData(MessageTypeStats, h.GetStats())
}

func (h *Handler) broadcastData(typ MessageType, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}

	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
