package project

// SimpleStatement is a minimal Statement for wiring up in-memory CFGs in
// tests and examples.
type SimpleStatement struct {
	id, internalName, blockID string
	args                      []string
}

// NewSimpleStatement constructs a SimpleStatement with no operands.
// blockID is normally assigned by SimpleBlock construction rather than set
// directly.
func NewSimpleStatement(id, internalName string) *SimpleStatement {
	return &SimpleStatement{id: id, internalName: internalName}
}

// NewSimpleStatementWithArgs constructs a SimpleStatement whose operands
// are the given register names, in handler-expected order.
func NewSimpleStatementWithArgs(id, internalName string, args ...string) *SimpleStatement {
	return &SimpleStatement{id: id, internalName: internalName, args: args}
}

func (s *SimpleStatement) ID() string           { return s.id }
func (s *SimpleStatement) InternalName() string { return s.internalName }
func (s *SimpleStatement) BlockID() string      { return s.blockID }
func (s *SimpleStatement) Args() []string       { return s.args }

// SimpleBlock is a minimal, mutable Block for building small test CFGs.
// Build the block graph by constructing SimpleBlocks (which stamps
// statement->block ownership), wiring Succ via AddSucc, and designating the
// fallthrough edge with SetFallthrough.
type SimpleBlock struct {
	id         string
	statements []*SimpleStatement
	succ       []Block
	fallthru   Block
}

// NewSimpleBlock constructs a block whose id is, by convention, the id of
// its first statement.
func NewSimpleBlock(id string, stmts ...*SimpleStatement) *SimpleBlock {
	b := &SimpleBlock{id: id, statements: stmts}
	for _, s := range stmts {
		s.blockID = id
	}
	return b
}

// AddSucc appends a CFG successor.
func (b *SimpleBlock) AddSucc(s Block) { b.succ = append(b.succ, s) }

// SetFallthrough designates which of Succ() is the fallthrough edge. Must
// be one of the blocks already added via AddSucc.
func (b *SimpleBlock) SetFallthrough(s Block) { b.fallthru = s }

func (b *SimpleBlock) ID() string               { return b.id }
func (b *SimpleBlock) Statements() []Statement {
	out := make([]Statement, len(b.statements))
	for i, s := range b.statements {
		out[i] = s
	}
	return out
}
func (b *SimpleBlock) Succ() []Block { return b.succ }
func (b *SimpleBlock) FirstIns() Statement {
	if len(b.statements) == 0 {
		return nil
	}
	return b.statements[0]
}
func (b *SimpleBlock) FallthroughEdge() Block { return b.fallthru }
