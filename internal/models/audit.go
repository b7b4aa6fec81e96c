package models

import "time"

type AuditResult string

const (
	AuditSucceeded    AuditResult = "succeeded"
	AuditRejected     AuditResult = "rejected"
	AuditFailed       AuditResult = "failed"
	AuditUnauthorized AuditResult = "unauthorized"
)

type AuditRecord struct {
	ID        string      `json:"id"`
	Actor     string      `json:"actor"`
	Action    string      `json:"action"`
	Target    string      `json:"target"`
	Result    AuditResult `json:"result"`
	Detail    string      `json:"detail,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
