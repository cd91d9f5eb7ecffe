package core

import "navisol/pkg/domain"

type (
	Project               = domain.Project
	ProjectStatus         = domain.ProjectStatus
	Client                = domain.Client
	Configuration         = domain.Configuration
	ConfigurationSnapshot = domain.ConfigurationSnapshot
	ConfigurationDelta    = domain.ConfigurationDelta
	Quote                 = domain.Quote
	QuoteLine             = domain.QuoteLine
	BOMSnapshot           = domain.BOMSnapshot
	BOMLine               = domain.BOMLine
	LibraryPins           = domain.LibraryPins
	LibraryEntity         = domain.LibraryEntity
	LibraryVersion        = domain.LibraryVersion
	Amendment             = domain.Amendment
	AuditEntry            = domain.AuditEntry
	Actor                 = domain.Actor
	Role                  = domain.Role
	Permission            = domain.Permission
	Change                = domain.Change
	Violation             = domain.Violation
	Result                = domain.Result
	RulesEngine           = domain.RulesEngine
	RuleViolationError    = domain.RuleViolationError
	Transaction           = domain.Transaction
	TransactionView       = domain.TransactionView
	PersistentStore       = domain.PersistentStore
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
