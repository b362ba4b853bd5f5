package scenecore

import (
	"fmt"
	"math/bits"
)

// FieldKind selects the scalar element type backing a component field's
// column.
type FieldKind uint8

const (
	// FieldF32 backs the column with a 32-bit float column.
	FieldF32 FieldKind = iota
	// FieldI32 backs the column with a 32-bit signed integer column.
	// Link fields (see FieldDef.Link) are always FieldI32.
	FieldI32
	// FieldU32 backs the column with a 32-bit unsigned integer column.
	FieldU32
)

// String renders the field kind for error messages and debug output.
func (k FieldKind) String() string {
	switch k {
	case FieldF32:
		return "f32"
	case FieldI32:
		return "i32"
	case FieldU32:
		return "u32"
	default:
		return "unknown"
	}
}

// FieldDef describes one scalar column of a component: its key, backing
// element kind, the numeric value written on row creation, and whether it
// holds entity ids that save/load must remap under densification.
type FieldDef struct {
	Key     string
	Kind    FieldKind
	Default float64
	Link    bool
}

// ComponentMeta is a stable, self-describing record of a component's name
// and ordered field schema. Field order is significant: it is the column
// layout used by serialization and GPU channels.
type ComponentMeta struct {
	Name   string
	Fields []FieldDef
}

// DefineMeta builds a ComponentMeta, failing if two fields share a key, a
// field's kind is not one of FieldF32/FieldI32/FieldU32, or a link field
// is not FieldI32 (entity ids are always signed 32-bit).
func DefineMeta(name string, fields []FieldDef) (ComponentMeta, error) {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Key] {
			return ComponentMeta{}, fmt.Errorf("scenecore: component %q: duplicate field key %q", name, f.Key)
		}
		seen[f.Key] = true
		if f.Kind > FieldU32 {
			return ComponentMeta{}, fmt.Errorf("scenecore: component %q: field %q has unknown kind %d", name, f.Key, uint8(f.Kind))
		}
		if f.Link && f.Kind != FieldI32 {
			return ComponentMeta{}, fmt.Errorf("scenecore: component %q: link field %q must be FieldI32, got %s", name, f.Key, f.Kind)
		}
	}
	cp := make([]FieldDef, len(fields))
	copy(cp, fields)
	return ComponentMeta{Name: name, Fields: cp}, nil
}

// MustDefineMeta is DefineMeta for package-level var initialization; it
// panics on error, mirroring the teacher's var-init panics in willow.go's
// init() (WhitePixel construction cannot fail either, but the pattern of
// "panic at package init, never at runtime" is the same).
func MustDefineMeta(name string, fields []FieldDef) ComponentMeta {
	meta, err := DefineMeta(name, fields)
	if err != nil {
		panic(err)
	}
	return meta
}

// KindMask returns a bitmask with bit FieldF32/FieldI32/FieldU32 set for
// each distinct FieldKind present among m.Fields, letting callers probe
// "does this component carry any FieldI32 columns" or similar questions
// in one comparison instead of scanning Fields. It does not tell link
// columns apart from other FieldI32 columns.
func (m ComponentMeta) KindMask() uint8 {
	var mask uint8
	for _, f := range m.Fields {
		mask |= 1 << uint(f.Kind)
	}
	return mask
}

// KindCount returns the number of distinct FieldKinds m.Fields uses.
func (m ComponentMeta) KindCount() int {
	return bits.OnesCount8(m.KindMask())
}

// FieldIndex returns the index of key within m.Fields, or -1 if absent.
func (m ComponentMeta) FieldIndex(key string) int {
	for i, f := range m.Fields {
		if f.Key == key {
			return i
		}
	}
	return -1
}

// hierarchyFieldNames is the fixed five-field schema a node meta must
// carry, in the order spec.md §3 lists them.
var hierarchyFieldNames = [5]string{"parent", "firstChild", "lastChild", "nextSibling", "prevSibling"}

// IsHierarchyMeta reports whether m's fields are exactly the five
// required NONE-defaulted, link-flagged, signed-32-bit hierarchy fields
// (in any order; extra or missing fields disqualify it).
func IsHierarchyMeta(m ComponentMeta) bool {
	if len(m.Fields) != len(hierarchyFieldNames) {
		return false
	}
	want := make(map[string]bool, len(hierarchyFieldNames))
	for _, n := range hierarchyFieldNames {
		want[n] = true
	}
	for _, f := range m.Fields {
		if !want[f.Key] {
			return false
		}
		if f.Kind != FieldI32 || !f.Link || f.Default != float64(NONE) {
			return false
		}
		delete(want, f.Key)
	}
	return len(want) == 0
}

// HierarchyMeta builds a ComponentMeta satisfying IsHierarchyMeta, for use
// as the node meta of a Tree/TransformTree.
func HierarchyMeta(name string) ComponentMeta {
	fields := make([]FieldDef, len(hierarchyFieldNames))
	for i, n := range hierarchyFieldNames {
		fields[i] = FieldDef{Key: n, Kind: FieldI32, Default: float64(NONE), Link: true}
	}
	return MustDefineMeta(name, fields)
}
