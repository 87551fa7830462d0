package cfg

// Path is a realized sequence of basic blocks, as produced by following one
// concrete execution through the procedure.
type Path []Block

// NewPath starts a path at the given block.
func NewPath(start Block) Path {
	return Path{start}
}

// Append extends the path with a block.
func (p Path) Append(block Block) Path {
	return append(p, block)
}

// Start returns the first block of the path.
func (p Path) Start() Block {
	return p[0]
}

// End returns the last block of the path.
func (p Path) End() Block {
	return p[len(p)-1]
}

// SuccessorOf returns the block following the first occurrence of block in
// the path, and whether such a successor exists.
func (p Path) SuccessorOf(block Block) (Block, bool) {
	for i, b := range p {
		if b == block && i < len(p)-1 {
			return p[i+1], true
		}
	}
	return 0, false
}
