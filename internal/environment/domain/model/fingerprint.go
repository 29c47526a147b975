package model

import (
	"time"

	"github.com/google/uuid"
)

// EnvironmentType classifies a running deployment
type EnvironmentType string

const (
	EnvironmentLocal       EnvironmentType = "local"
	EnvironmentStaging     EnvironmentType = "staging"
	EnvironmentProduction  EnvironmentType = "production"
	EnvironmentDevelopment EnvironmentType = "development"
)

// SyncStatus describes how two environments relate
type SyncStatus string

const (
	SyncSynchronized SyncStatus = "synchronized"
	SyncDrift        SyncStatus = "drift"
	SyncOutdated     SyncStatus = "outdated"
	SyncAhead        SyncStatus = "ahead"
)

// RiskLevel aggregates per-field impacts into one comparison grade
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// FieldImpact grades a single field difference
type FieldImpact string

const (
	FieldImpactLow    FieldImpact = "low"
	FieldImpactMedium FieldImpact = "medium"
	FieldImpactHigh   FieldImpact = "high"
)

// ConfigurationProfile is the config surface captured in a fingerprint
type ConfigurationProfile struct {
	FeatureToggles map[string]bool `json:"featureToggles"`
	StorageBackend string          `json:"storageBackend"`
	TLSEnabled     bool            `json:"tlsEnabled"`
}

// SecurityProfile is the security posture captured in a fingerprint
type SecurityProfile struct {
	SecretsConfigured bool `json:"secretsConfigured"`
	AuthRequired      bool `json:"authRequired"`
	RateLimiting      bool `json:"rateLimiting"`
}

// EnvironmentFingerprint is an identity+configuration snapshot of one
// deployment. Immutable once generated; regenerated on cache expiry.
type EnvironmentFingerprint struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Type          EnvironmentType      `json:"type"`
	Hostname      string               `json:"hostname"`
	Domain        string               `json:"domain"`
	Port          int                  `json:"port"`
	Version       string               `json:"version"`
	Commit        string               `json:"commit"`
	Branch        string               `json:"branch"`
	Configuration ConfigurationProfile `json:"configuration"`
	Security      SecurityProfile      `json:"security"`
	IsLive        bool                 `json:"isLive"`
	Capabilities  []string             `json:"capabilities"`
	GeneratedAt   time.Time            `json:"generatedAt"`
}

// NewFingerprintID returns a fresh fingerprint identifier.
func NewFingerprintID() string {
	return uuid.New().String()
}

// FieldDifference is one mismatched field between two fingerprints
type FieldDifference struct {
	Field  string      `json:"field"`
	Source string      `json:"source"`
	Target string      `json:"target"`
	Impact FieldImpact `json:"impact"`
}

// Comparison is the result of comparing a source fingerprint against a
// target environment
type Comparison struct {
	Source      string            `json:"source"`
	Target      string            `json:"target"`
	SyncStatus  SyncStatus        `json:"syncStatus"`
	RiskLevel   RiskLevel         `json:"riskLevel"`
	Differences []FieldDifference `json:"differences"`
	ComparedAt  time.Time         `json:"comparedAt"`
}

// AggregateRisk folds per-field impacts into one risk level. Version or
// commit mismatches count as high impact; two or more high-impact fields
// escalate to critical.
func AggregateRisk(diffs []FieldDifference) RiskLevel {
	high, medium := 0, 0
	for _, d := range diffs {
		switch d.Impact {
		case FieldImpactHigh:
			high++
		case FieldImpactMedium:
			medium++
		}
	}
	switch {
	case high >= 2:
		return RiskCritical
	case high == 1:
		return RiskHigh
	case medium > 0:
		return RiskMedium
	default:
		return RiskLow
	}
}
