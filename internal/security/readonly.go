// Package security provides read-only access control, input checks and
// credential masking for the monitoring client.
package security

import (
	"context"
	"sync"
	"time"

	apperrors "botwatch/internal/errors"
	"botwatch/internal/models"
)

// OperationType names an operation that can be permission-checked.
type OperationType string

const (
	OpRead OperationType = "READ"

	// Mutating operations, denied in read-only mode.
	OpExecuteStrategy OperationType = "EXECUTE_STRATEGY"
	OpStopBot         OperationType = "STOP_BOT"
	OpStopMonitor     OperationType = "STOP_MONITOR"
	OpSwitchMode      OperationType = "SWITCH_MODE"

	// Session and simulation operations stay allowed.
	OpLogout     OperationType = "LOGOUT"
	OpHistorical OperationType = "HISTORICAL_REPLAY"
)

// Auditor records permission decisions.
type Auditor interface {
	SaveAction(ctx context.Context, rec models.ActionRecord) error
}

// AccessController manages read-only mode and operation permissions.
type AccessController struct {
	mu       sync.RWMutex
	readOnly bool
	auditor  Auditor
}

// NewAccessController creates a new access controller. auditor may be nil.
func NewAccessController(readOnly bool, auditor Auditor) *AccessController {
	return &AccessController{readOnly: readOnly, auditor: auditor}
}

// IsReadOnly returns whether read-only mode is enabled.
func (ac *AccessController) IsReadOnly() bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.readOnly
}

// SetReadOnly sets the read-only mode.
func (ac *AccessController) SetReadOnly(readOnly bool) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.readOnly = readOnly
}

// CheckPermission returns a *SecurityError wrapping ErrReadOnlyMode when op
// mutates the remote bot and read-only mode is on.
func (ac *AccessController) CheckPermission(ctx context.Context, op OperationType, target string) error {
	if !ac.IsReadOnly() || !IsWriteOperation(op) {
		return nil
	}

	if ac.auditor != nil {
		_ = ac.auditor.SaveAction(ctx, models.ActionRecord{
			Timestamp: time.Now(),
			Kind:      string(op),
			Target:    target,
			Outcome:   "denied",
			Message:   "read-only mode",
		})
	}
	return apperrors.NewSecurityError(string(op), "read-only mode is enabled", apperrors.ErrReadOnlyMode)
}

// IsWriteOperation reports whether op changes remote state.
func IsWriteOperation(op OperationType) bool {
	switch op {
	case OpExecuteStrategy, OpStopBot, OpStopMonitor, OpSwitchMode:
		return true
	default:
		return false
	}
}

// WriteOperations returns every operation denied in read-only mode.
func WriteOperations() []OperationType {
	return []OperationType{OpExecuteStrategy, OpStopBot, OpStopMonitor, OpSwitchMode}
}

// OperationDescription returns a human-readable description of an operation.
func OperationDescription(op OperationType) string {
	switch op {
	case OpRead:
		return "Read data"
	case OpExecuteStrategy:
		return "Run strategy"
	case OpStopBot:
		return "Stop all strategies"
	case OpStopMonitor:
		return "Stop strategy monitor"
	case OpSwitchMode:
		return "Switch trading mode"
	case OpLogout:
		return "Log out"
	case OpHistorical:
		return "Historical replay"
	default:
		return string(op)
	}
}
