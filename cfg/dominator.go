package cfg

// Dominator computation using the Cooper-Harvey-Kennedy iterative algorithm
// over reverse postorder. The dominator tree is needed only to classify
// back-edges, so it is computed once per Body on first use.

func (b *Body) ensureDominators() {
	if b.idom != nil {
		return
	}
	n := len(b.succs)
	order := b.postorder()
	index := make([]int, n) // block -> postorder index
	for i := range index {
		index[i] = -1
	}
	for i, blk := range order {
		index[blk] = i
	}

	idom := make([]Block, n)
	for i := range idom {
		idom[i] = -1
	}
	idom[b.Entry()] = b.Entry()

	intersect := func(x, y Block) Block {
		for x != y {
			for index[x] < index[y] {
				x = idom[x]
			}
			for index[y] < index[x] {
				y = idom[y]
			}
		}
		return x
	}

	for changed := true; changed; {
		changed = false
		// reverse postorder, skipping the entry
		for i := len(order) - 1; i >= 0; i-- {
			blk := order[i]
			if blk == b.Entry() {
				continue
			}
			var newIdom Block = -1
			for _, pred := range b.preds[blk] {
				if idom[pred] < 0 {
					continue // unreachable or not yet processed
				}
				if newIdom < 0 {
					newIdom = pred
				} else {
					newIdom = intersect(pred, newIdom)
				}
			}
			if newIdom >= 0 && idom[blk] != newIdom {
				idom[blk] = newIdom
				changed = true
			}
		}
	}
	b.idom = idom
}

// postorder returns the blocks reachable from the entry in postorder.
func (b *Body) postorder() []Block {
	visited := make([]bool, len(b.succs))
	var order []Block
	type frame struct {
		block Block
		next  int
	}
	stack := []frame{{block: b.Entry()}}
	visited[b.Entry()] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := b.succs[top.block]
		if top.next < len(succs) {
			next := succs[top.next]
			top.next++
			if !visited[next] {
				visited[next] = true
				stack = append(stack, frame{block: next})
			}
			continue
		}
		order = append(order, top.block)
		stack = stack[:len(stack)-1]
	}
	return order
}
