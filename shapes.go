package scenecore

// ShapeMeta is the schema for a render-tree leaf: an integer shape kind,
// an optional material id, and up to six float parameters. RenderChannel
// packs shapeType into a Shape row's kind lane and the material id and
// parameters into its payload lanes.
var ShapeMeta = MustDefineMeta("Shape", []FieldDef{
	{Key: "shapeType", Kind: FieldI32},
	{Key: "materialId", Kind: FieldI32, Default: -1},
	{Key: "p0", Kind: FieldF32},
	{Key: "p1", Kind: FieldF32},
	{Key: "p2", Kind: FieldF32},
	{Key: "p3", Kind: FieldF32},
	{Key: "p4", Kind: FieldF32},
	{Key: "p5", Kind: FieldF32},
})

// OperationMeta is the schema for a render-tree interior node: an integer
// operation kind. The child count RenderChannel packs alongside it is
// derived from the render tree's own structure, not stored here.
var OperationMeta = MustDefineMeta("Operation", []FieldDef{
	{Key: "opType", Kind: FieldI32},
})
