package printer

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navisol/pkg/domain"
)

func newTestPrinter(t *testing.T) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	previous := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = previous })
	var out, errOut bytes.Buffer
	return New(&out, &errOut), &out, &errOut
}

func TestError(t *testing.T) {
	t.Run("single suggestion", func(t *testing.T) {
		p, _, errOut := newTestPrinter(t)
		err := p.Error("Project locked", "The quote was sent.", []string{"Create an amendment."})
		require.EqualError(t, err, "Project locked")
		var reported *ReportedError
		require.ErrorAs(t, err, &reported)
		assert.Equal(t, "Project locked\n\nThe quote was sent.\n\nCreate an amendment.\n", errOut.String())
	})

	t.Run("numbered suggestions", func(t *testing.T) {
		p, _, errOut := newTestPrinter(t)
		_ = p.Error("Denied", "", []string{"first", "second"})
		assert.Contains(t, errOut.String(), "Either:\n  1. first\n  2. second\n")
	})
}

func TestDomainError(t *testing.T) {
	p, _, errOut := newTestPrinter(t)
	cause := domain.NewError(domain.KindLocked, "UpdateConfiguration", "configuration is frozen")
	err := p.DomainError(fmt.Errorf("cli: %w", cause))
	require.EqualError(t, err, "Locked")
	assert.Contains(t, errOut.String(), "configuration is frozen")
	assert.Contains(t, errOut.String(), "emergency unlock")

	p2, _, _ := newTestPrinter(t)
	require.EqualError(t, p2.DomainError(fmt.Errorf("disk full")), "Operation failed")
}

func TestProjectSummary(t *testing.T) {
	p, out, _ := newTestPrinter(t)
	project := domain.Project{
		Base:    domain.Base{ID: "p-1"},
		Number:  7,
		Title:   "Eagle 28",
		Status:  domain.StatusOrderConfirmed,
		Version: 4,
		Quotes:  []domain.Quote{{Version: 1, Status: domain.QuoteAccepted, Total: 1234567}},
		Amendments: []domain.Amendment{{
			Number: 1, Status: domain.AmendmentApproved, Type: domain.AmendmentEquipmentAdd, PriceImpact: -2500,
		}},
	}
	p.Project(project)
	text := out.String()
	assert.Contains(t, text, "#7 Eagle 28")
	assert.Contains(t, text, "ORDER_CONFIRMED")
	assert.Contains(t, text, "EUR 12345.67")
	assert.Contains(t, text, "amendment #1")
	assert.Contains(t, text, "EUR -25.00")
}

func TestAuditTable(t *testing.T) {
	p, out, _ := newTestPrinter(t)
	p.Audit([]domain.AuditEntry{{
		Sequence:    3,
		Kind:        domain.AuditAccessDenied,
		EntityType:  domain.EntityProject,
		EntityID:    "p-1",
		Description: "Transition denied",
		Actor:       domain.AuditActor{ID: "u-1", Role: domain.RoleViewer},
		Timestamp:   time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC),
	}})
	text := out.String()
	assert.Contains(t, text, "ACCESS_DENIED")
	assert.Contains(t, text, "2026-05-01 08:30:00")
	assert.Contains(t, text, "u-1 (VIEWER)")
}

func TestSuccessAndWarning(t *testing.T) {
	p, out, _ := newTestPrinter(t)
	p.Success("project %d created", 1)
	p.Warning("stream unavailable")
	p.Step("freezing configuration")
	assert.Equal(t, "✓ project 1 created\n! stream unavailable\n→ freezing configuration\n", out.String())
}
