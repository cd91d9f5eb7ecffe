package domain

import "fmt"

// DeltaOpKind tags a configuration delta operation.
type DeltaOpKind string

// Delta operations.
const (
	OpAddItem       DeltaOpKind = "add_item"
	OpRemoveItem    DeltaOpKind = "remove_item"
	OpSetQuantity   DeltaOpKind = "set_quantity"
	OpSetPrice      DeltaOpKind = "set_price"
	OpSetScope      DeltaOpKind = "set_scope"
	OpRemoveScope   DeltaOpKind = "remove_scope"
	OpSelectVersion DeltaOpKind = "select_version"
	OpAdjustPrice   DeltaOpKind = "adjust_price"
)

// DeltaOp is a single tagged change to a configuration. Only the fields
// relevant to Op are read.
type DeltaOp struct {
	Op        DeltaOpKind `json:"op"`
	Item      *ConfigItem `json:"item,omitempty"`
	Code      string      `json:"code,omitempty"`
	Quantity  float64     `json:"quantity,omitempty"`
	UnitPrice Money       `json:"unit_price,omitempty"`
	Key       string      `json:"key,omitempty"`
	Value     string      `json:"value,omitempty"`
	EntityID  string      `json:"entity_id,omitempty"`
	VersionID string      `json:"version_id,omitempty"`
	Amount    Money       `json:"amount,omitempty"`
}

// ConfigurationDelta is an ordered list of operations applied to a configuration.
type ConfigurationDelta struct {
	Ops []DeltaOp `json:"ops"`
}

// Empty reports whether the delta has no operations.
func (d ConfigurationDelta) Empty() bool { return len(d.Ops) == 0 }

// Validate checks that every operation carries the fields it needs.
func (d ConfigurationDelta) Validate() error {
	if d.Empty() {
		return NewError(KindValidation, "delta", "at least one operation is required").WithField("delta.ops")
	}
	for i, op := range d.Ops {
		field := fmt.Sprintf("delta.ops[%d]", i)
		switch op.Op {
		case OpAddItem:
			if op.Item == nil || op.Item.Code == "" {
				return NewError(KindValidation, "delta", "add_item requires an item with a code").WithField(field + ".item")
			}
			if op.Item.Quantity <= 0 {
				return NewError(KindValidation, "delta", "add_item quantity must be positive").WithField(field + ".item.quantity")
			}
		case OpRemoveItem:
			if op.Code == "" {
				return NewError(KindValidation, "delta", "remove_item requires a code").WithField(field + ".code")
			}
		case OpSetQuantity:
			if op.Code == "" {
				return NewError(KindValidation, "delta", "set_quantity requires a code").WithField(field + ".code")
			}
			if op.Quantity <= 0 {
				return NewError(KindValidation, "delta", "set_quantity requires a positive quantity").WithField(field + ".quantity")
			}
		case OpSetPrice:
			if op.Code == "" {
				return NewError(KindValidation, "delta", "set_price requires a code").WithField(field + ".code")
			}
			if op.UnitPrice < 0 {
				return NewError(KindValidation, "delta", "set_price requires a non-negative price").WithField(field + ".unit_price")
			}
		case OpSetScope, OpRemoveScope:
			if op.Key == "" {
				return NewError(KindValidation, "delta", "%s requires a key", op.Op).WithField(field + ".key")
			}
		case OpSelectVersion:
			if op.EntityID == "" || op.VersionID == "" {
				return NewError(KindValidation, "delta", "select_version requires entity_id and version_id").WithField(field)
			}
		case OpAdjustPrice:
			if op.Amount == 0 {
				return NewError(KindValidation, "delta", "adjust_price requires a non-zero amount").WithField(field + ".amount")
			}
		default:
			return NewError(KindValidation, "delta", "unknown operation %q", op.Op).WithField(field + ".op")
		}
	}
	return nil
}

// Apply returns a new configuration with the delta applied to a deep copy of base.
func (d ConfigurationDelta) Apply(base Configuration) (Configuration, error) {
	if err := d.Validate(); err != nil {
		return Configuration{}, err
	}
	out := base.Clone()
	for i, op := range d.Ops {
		field := fmt.Sprintf("delta.ops[%d]", i)
		switch op.Op {
		case OpAddItem:
			if out.FindItem(op.Item.Code) >= 0 {
				return Configuration{}, NewError(KindValidation, "delta", "item %q already configured", op.Item.Code).WithField(field + ".item.code")
			}
			out.Items = append(out.Items, *op.Item)
		case OpRemoveItem:
			idx := out.FindItem(op.Code)
			if idx < 0 {
				return Configuration{}, NewError(KindValidation, "delta", "item %q not configured", op.Code).WithField(field + ".code")
			}
			out.Items = append(out.Items[:idx], out.Items[idx+1:]...)
		case OpSetQuantity:
			idx := out.FindItem(op.Code)
			if idx < 0 {
				return Configuration{}, NewError(KindValidation, "delta", "item %q not configured", op.Code).WithField(field + ".code")
			}
			out.Items[idx].Quantity = op.Quantity
		case OpSetPrice:
			idx := out.FindItem(op.Code)
			if idx < 0 {
				return Configuration{}, NewError(KindValidation, "delta", "item %q not configured", op.Code).WithField(field + ".code")
			}
			out.Items[idx].UnitPrice = op.UnitPrice
		case OpSetScope:
			if out.Scope == nil {
				out.Scope = map[string]string{}
			}
			out.Scope[op.Key] = op.Value
		case OpRemoveScope:
			delete(out.Scope, op.Key)
		case OpSelectVersion:
			if out.VersionSelections == nil {
				out.VersionSelections = map[string]string{}
			}
			out.VersionSelections[op.EntityID] = op.VersionID
		case OpAdjustPrice:
			out.PriceAdjustment += op.Amount
		}
	}
	return out, nil
}

// AffectsBOM reports whether applying the delta to base changes any BOM-relevant line.
func (d ConfigurationDelta) AffectsBOM(base Configuration) bool {
	for _, op := range d.Ops {
		switch op.Op {
		case OpAddItem:
			if op.Item != nil && op.Item.BOMRelevant {
				return true
			}
		case OpRemoveItem, OpSetQuantity, OpSetPrice:
			if idx := base.FindItem(op.Code); idx >= 0 && base.Items[idx].BOMRelevant {
				return true
			}
		}
	}
	return false
}

// SelectsVersions reports whether the delta changes explicit library version selections.
func (d ConfigurationDelta) SelectsVersions() bool {
	for _, op := range d.Ops {
		if op.Op == OpSelectVersion {
			return true
		}
	}
	return false
}
