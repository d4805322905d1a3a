// Package logging provides audit logging as JSONL event streams.
// Audit events record match runs and solution store mutations so a run can be
// reconstructed after the fact.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Match run lifecycle events
	AuditMatchStart    AuditEventType = "match_start"
	AuditMatchComplete AuditEventType = "match_complete"
	AuditMatchError    AuditEventType = "match_error"

	// Resolution events
	AuditBOMResolved AuditEventType = "bom_resolved"
	AuditBOMError    AuditEventType = "bom_error"

	// Layer events
	AuditLayerComplete AuditEventType = "layer_complete"
	AuditLayerTimeout  AuditEventType = "layer_timeout"

	// Solution store events
	AuditSolutionSaved    AuditEventType = "solution_saved"
	AuditSolutionDeleted  AuditEventType = "solution_deleted"
	AuditSolutionArchived AuditEventType = "solution_archived"
	AuditCleanupRun       AuditEventType = "cleanup_run"

	// Backend API events
	AuditLLMRequest  AuditEventType = "llm_request"
	AuditLLMResponse AuditEventType = "llm_response"
	AuditLLMError    AuditEventType = "llm_error"
	AuditEmbedCall   AuditEventType = "embed_call"
	AuditEmbedError  AuditEventType = "embed_error"
)

// =============================================================================
// AUDIT EVENT STRUCTURE
// =============================================================================

// AuditEvent represents one structured audit log entry, written as a JSON line.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`      // Unix milliseconds
	EventType  AuditEventType         `json:"event"`   // Event kind
	Category   string                 `json:"cat"`     // Log category
	RunID      string                 `json:"run"`     // Match run correlation
	Target     string                 `json:"target"`  // Target of operation (okh id, solution id, model)
	Success    bool                   `json:"success"` // Operation succeeded
	DurationMs int64                  `json:"dur_ms"`  // Duration in milliseconds
	Error      string                 `json:"error"`   // Error message if failed
	Message    string                 `json:"msg"`     // Human-readable message
	Fields     map[string]interface{} `json:"fields"`  // Additional structured fields
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger handles structured audit logging
type AuditLogger struct {
	runID    string
	category Category
}

// InitAudit initializes the audit logging system
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n# Format: one JSON event per line\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithRun creates an audit logger scoped to a match run
func AuditWithRun(runID string) *AuditLogger {
	return &AuditLogger{runID: runID}
}

// AuditWithContext creates a fully-scoped audit logger
func AuditWithContext(runID string, category Category) *AuditLogger {
	return &AuditLogger{
		runID:    runID,
		category: category,
	}
}

// =============================================================================
// AUDIT LOGGING METHODS
// =============================================================================

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	// Fill in defaults
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RunID == "" && a.runID != "" {
		event.RunID = a.runID
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}
	if event.Fields == nil {
		event.Fields = make(map[string]interface{})
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// =============================================================================
// CONVENIENCE METHODS FOR COMMON EVENTS
// =============================================================================

// MatchStart logs the start of a match run
func (a *AuditLogger) MatchStart(runID, okhID string, facilityCount int) {
	a.Log(AuditEvent{
		EventType: AuditMatchStart,
		RunID:     runID,
		Target:    okhID,
		Success:   true,
		Fields:    map[string]interface{}{"facility_count": facilityCount},
		Message:   fmt.Sprintf("Match started: %s against %d facilities", okhID, facilityCount),
	})
}

// MatchComplete logs the end of a match run
func (a *AuditLogger) MatchComplete(runID, okhID string, treeCount int, score float64, durationMs int64, success bool, errMsg string) {
	eventType := AuditMatchComplete
	if !success {
		eventType = AuditMatchError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		RunID:      runID,
		Target:     okhID,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Fields:     map[string]interface{}{"tree_count": treeCount, "score": score},
		Message:    fmt.Sprintf("Match completed: %s -> %d trees, score %.2f (%dms, success=%v)", okhID, treeCount, score, durationMs, success),
	})
}

// BOMResolved logs a completed BOM explosion
func (a *AuditLogger) BOMResolved(okhID string, componentCount, maxDepth int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditBOMResolved,
		Target:     okhID,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"components": componentCount, "max_depth": maxDepth},
		Message:    fmt.Sprintf("BOM resolved: %s -> %d components, depth %d (%dms)", okhID, componentCount, maxDepth, durationMs),
	})
}

// LayerComplete logs a layer finishing for one component/facility pair
func (a *AuditLogger) LayerComplete(layer, componentID string, confidence float64, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditLayerComplete,
		Target:     componentID,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"layer": layer, "confidence": confidence},
		Message:    fmt.Sprintf("Layer %s: %s -> %.2f (%dms)", layer, componentID, confidence, durationMs),
	})
}

// LayerTimeout logs a layer hitting its deadline
func (a *AuditLogger) LayerTimeout(layer, componentID string, timeoutMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditLayerTimeout,
		Target:     componentID,
		Success:    false,
		DurationMs: timeoutMs,
		Fields:     map[string]interface{}{"layer": layer},
		Message:    fmt.Sprintf("Layer %s timed out on %s after %dms", layer, componentID, timeoutMs),
	})
}

// SolutionSaved logs a solution store write
func (a *AuditLogger) SolutionSaved(solutionID, okhID string, sizeBytes int64) {
	a.Log(AuditEvent{
		EventType: AuditSolutionSaved,
		Target:    solutionID,
		Success:   true,
		Fields:    map[string]interface{}{"okh_id": okhID, "size": sizeBytes},
		Message:   fmt.Sprintf("Solution saved: %s (%s, %d bytes)", solutionID, okhID, sizeBytes),
	})
}

// SolutionDeleted logs a solution store delete
func (a *AuditLogger) SolutionDeleted(solutionID string, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType: AuditSolutionDeleted,
		Target:    solutionID,
		Success:   success,
		Error:     errMsg,
		Message:   fmt.Sprintf("Solution deleted: %s (success=%v)", solutionID, success),
	})
}

// SolutionArchived logs a solution being moved to the archive prefix
func (a *AuditLogger) SolutionArchived(solutionID, archiveKey string) {
	a.Log(AuditEvent{
		EventType: AuditSolutionArchived,
		Target:    solutionID,
		Success:   true,
		Fields:    map[string]interface{}{"archive_key": archiveKey},
		Message:   fmt.Sprintf("Solution archived: %s -> %s", solutionID, archiveKey),
	})
}

// CleanupRun logs a staleness cleanup pass
func (a *AuditLogger) CleanupRun(deleted int, freedBytes int64, dryRun bool, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditCleanupRun,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"deleted": deleted, "freed_bytes": freedBytes, "dry_run": dryRun},
		Message:    fmt.Sprintf("Cleanup: %d deleted, %d bytes freed (dry_run=%v, %dms)", deleted, freedBytes, dryRun, durationMs),
	})
}

// LLMCall logs an LLM API call
func (a *AuditLogger) LLMCall(model string, durationMs int64, success bool, errMsg string) {
	eventType := AuditLLMResponse
	if !success {
		eventType = AuditLLMError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     model,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("LLM call: %s (%dms, success=%v)", model, durationMs, success),
	})
}

// EmbedCall logs an embedding API call
func (a *AuditLogger) EmbedCall(provider string, textCount int, durationMs int64, success bool, errMsg string) {
	eventType := AuditEmbedCall
	if !success {
		eventType = AuditEmbedError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     provider,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Fields:     map[string]interface{}{"texts": textCount},
		Message:    fmt.Sprintf("Embed call: %s %d texts (%dms, success=%v)", provider, textCount, durationMs, success),
	})
}
