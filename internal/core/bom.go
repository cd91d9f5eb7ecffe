package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"navisol/pkg/domain"
)

// BOMInput carries what a BOM generator may read.
type BOMInput struct {
	ProjectID      string
	Snapshot       ConfigurationSnapshot
	CatalogPayload json.RawMessage
}

// BOMGenerator derives bill-of-materials lines from a frozen configuration.
type BOMGenerator interface {
	Generate(ctx context.Context, in BOMInput) ([]BOMLine, error)
}

// BOMGeneratorFunc adapts a function to BOMGenerator.
type BOMGeneratorFunc func(ctx context.Context, in BOMInput) ([]BOMLine, error)

// Generate implements BOMGenerator.
func (f BOMGeneratorFunc) Generate(ctx context.Context, in BOMInput) ([]BOMLine, error) {
	return f(ctx, in)
}

// DefaultBOMGenerator aggregates BOM-relevant configuration items by article.
// Unit costs come from the pinned catalog's articles when present, otherwise
// from the item's unit price.
type DefaultBOMGenerator struct{}

type catalogPayload struct {
	Articles map[string]struct {
		Description string       `json:"description"`
		UnitCost    domain.Money `json:"unit_cost"`
		Unit        string       `json:"unit"`
	} `json:"articles"`
}

// Generate implements BOMGenerator.
func (DefaultBOMGenerator) Generate(_ context.Context, in BOMInput) ([]BOMLine, error) {
	var catalog catalogPayload
	if len(in.CatalogPayload) > 0 {
		if err := json.Unmarshal(in.CatalogPayload, &catalog); err != nil {
			return nil, fmt.Errorf("decode catalog payload: %w", err)
		}
	}
	byKey := map[string]*BOMLine{}
	var order []string
	for _, item := range in.Snapshot.Configuration.Items {
		if !item.BOMRelevant || item.Quantity == 0 {
			continue
		}
		key := item.ArticleID
		if key == "" {
			key = item.Code
		}
		line, ok := byKey[key]
		if !ok {
			line = &BOMLine{
				Code:        item.Code,
				Description: item.Description,
				ArticleID:   item.ArticleID,
				Category:    item.Category,
				Unit:        item.Unit,
				UnitCost:    item.UnitPrice,
			}
			if art, found := catalog.Articles[key]; found {
				line.UnitCost = art.UnitCost
				if art.Description != "" {
					line.Description = art.Description
				}
				if art.Unit != "" {
					line.Unit = art.Unit
				}
			}
			byKey[key] = line
			order = append(order, key)
		}
		line.Quantity += item.Quantity
	}
	sort.Strings(order)
	lines := make([]BOMLine, 0, len(order))
	for _, key := range order {
		line := byKey[key]
		line.ExtendedCost = domain.LineTotal(line.Quantity, line.UnitCost)
		lines = append(lines, *line)
	}
	return lines, nil
}

// generateBOM appends a BOM snapshot derived from snap.
func (t *txn) generateBOM(ctx context.Context, p *Project, snap ConfigurationSnapshot, pins *LibraryPins) (BOMSnapshot, error) {
	var catalog json.RawMessage
	if pins != nil && pins.CatalogVersionID != "" {
		version, ok, err := load[LibraryVersion](t.tx, domain.NamespaceLibraryVersions, pins.CatalogVersionID)
		if err != nil {
			return BOMSnapshot{}, err
		}
		if ok {
			catalog = version.Payload
		}
	}
	lines, err := t.svc.bom.Generate(ctx, BOMInput{ProjectID: p.ID, Snapshot: snap, CatalogPayload: catalog})
	if err != nil {
		return BOMSnapshot{}, err
	}
	bom := BOMSnapshot{
		ID:                      t.svc.newID(),
		Sequence:                len(p.BOMSnapshots) + 1,
		ConfigurationSnapshotID: snap.ID,
		Lines:                   lines,
		GeneratedAt:             t.now,
	}
	for _, l := range lines {
		bom.TotalCost += l.ExtendedCost
	}
	p.BOMSnapshots = append(p.BOMSnapshots, bom)
	return bom, nil
}
