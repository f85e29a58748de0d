// Package audit emits security events as structured JSON log lines so they
// can be shipped to a SIEM alongside the application log.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/auth"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when an upload hint fails the libinjection screen.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventTableDropped is logged when an administrator drops a managed table.
	EventTableDropped SecurityEventType = "table_dropped"
)

// SecurityEvent is one auditable event.
type SecurityEvent struct {
	Timestamp      time.Time         `json:"timestamp"`
	EventType      SecurityEventType `json:"event_type"`
	OrganizationID int64             `json:"organization_id,omitempty"`
	UserID         string            `json:"user_id,omitempty"`
	ClientIP       string            `json:"client_ip,omitempty"`
	Details        any               `json:"details"`
	Severity       string            `json:"severity"` // info, warning, critical
}

// InjectionDetails describes a rejected free-text field.
type InjectionDetails struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"`
	Filename    string `json:"filename,omitempty"`
}

// SecurityAuditor logs security events under the "security_audit" logger name.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates an auditor that writes through logger.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit"), now: time.Now}
}

// LogInjectionAttempt records a screened injection attempt at ERROR level.
// The caller's identity comes from the JWT claims in ctx when present.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, details InjectionDetails, clientIP string) {
	event := a.newEvent(ctx, EventSQLInjectionAttempt, "critical", clientIP, details)
	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", marshal(event)),
		zap.String("field", details.Field),
		zap.String("fingerprint", details.Fingerprint),
		zap.Int64("organization_id", event.OrganizationID),
		zap.String("user_id", event.UserID),
		zap.String("client_ip", clientIP),
		zap.String("severity", event.Severity),
	)
}

// LogTableDrop records an administrative table drop at WARN level. Dropping
// a table removes data for every organization granted to it.
func (a *SecurityAuditor) LogTableDrop(ctx context.Context, table, clientIP string) {
	event := a.newEvent(ctx, EventTableDropped, "warning", clientIP, map[string]string{"table": table})
	a.logger.Warn("Managed table dropped",
		zap.String("event_json", marshal(event)),
		zap.String("table", table),
		zap.Int64("organization_id", event.OrganizationID),
		zap.String("user_id", event.UserID),
		zap.String("client_ip", clientIP),
		zap.String("severity", event.Severity),
	)
}

func (a *SecurityAuditor) newEvent(ctx context.Context, eventType SecurityEventType, severity, clientIP string, details any) SecurityEvent {
	event := SecurityEvent{
		Timestamp: a.now().UTC(),
		EventType: eventType,
		ClientIP:  clientIP,
		Details:   details,
		Severity:  severity,
	}
	if claims, ok := auth.GetClaims(ctx); ok {
		event.UserID = claims.Subject
		event.OrganizationID = claims.OrganizationID
	}
	return event
}

// marshal ignores errors: every event field is a plain value.
func marshal(event SecurityEvent) string {
	b, _ := json.Marshal(event)
	return string(b)
}
