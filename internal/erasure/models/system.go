package models

// SystemType identifies one of the closed set of systems that may hold
// subject data. The set is fixed: this engine encodes one erasure workflow,
// not a general integration framework.
type SystemType string

const (
	SystemPrimaryStore SystemType = "primary_store"
	SystemCache        SystemType = "cache"
	SystemLogs         SystemType = "logs"
	SystemBackups      SystemType = "backups"
	SystemPayment      SystemType = "payment_processor"
)

// AllSystems lists every system the orchestrator touches and the verifier
// checks, in execution order.
func AllSystems() []SystemType {
	return []SystemType{
		SystemPrimaryStore,
		SystemCache,
		SystemLogs,
		SystemBackups,
		SystemPayment,
	}
}

// ComplianceThreshold returns the minimum per-system pass score in percent.
// The primary store and the external payment processor admit no residue at
// all. Cache and backup anonymization tolerate propagation delay across
// distributed replicas; log checks are sampled.
func (s SystemType) ComplianceThreshold() float64 {
	switch s {
	case SystemPrimaryStore, SystemPayment:
		return 100
	case SystemCache, SystemBackups:
		return 95
	case SystemLogs:
		return 90
	}
	return 100
}
