package network

// RenumberMap records an old-index -> new-index mapping produced by a
// delete (or junction insert) pass. A -1 entry marks a removed index.
// Every structure holding an index is updated from the same map in one
// transactional pass, so back-references cannot drift apart.
type RenumberMap struct {
	Nodes []int
	Links []int
}

// identity returns the identity mapping over n indices.
func identity(n int) []int {
	m := make([]int, n)
	for i := range m {
		m[i] = i
	}
	return m
}

// renumberNodes rewrites every stored node index through remap.
// Entries mapped to -1 must already have had their owners removed.
func (n *Network) renumberNodes(remap []int) {
	for _, l := range n.Links {
		l.N1 = remap[l.N1]
		l.N2 = remap[l.N2]
	}
	for _, t := range n.Tanks {
		t.Node = remap[t.Node]
	}
	for _, c := range n.Controls {
		if c.Node >= 0 {
			c.Node = remap[c.Node]
		}
	}
	for _, r := range n.Rules {
		for i := range r.Premises {
			if r.Premises[i].Object == RuleNode {
				r.Premises[i].Index = remap[r.Premises[i].Index]
			}
		}
	}
	n.nodeIndex = make(map[string]int, len(n.Nodes))
	for i, node := range n.Nodes {
		n.nodeIndex[node.ID] = i
	}
}

// renumberLinks rewrites every stored link index through remap.
func (n *Network) renumberLinks(remap []int) {
	for _, p := range n.Pumps {
		p.Link = remap[p.Link]
	}
	for _, v := range n.Valves {
		v.Link = remap[v.Link]
	}
	for _, c := range n.Controls {
		c.Link = remap[c.Link]
	}
	for _, r := range n.Rules {
		for i := range r.Premises {
			if r.Premises[i].Object == RuleLink {
				r.Premises[i].Index = remap[r.Premises[i].Index]
			}
		}
		for i := range r.Then {
			r.Then[i].Link = remap[r.Then[i].Link]
		}
		for i := range r.Else {
			r.Else[i].Link = remap[r.Else[i].Link]
		}
	}
	n.linkIndex = make(map[string]int, len(n.Links))
	for i, link := range n.Links {
		n.linkIndex[link.ID] = i
	}
	for i, link := range n.Links {
		if link.Pump >= 0 {
			n.Pumps[link.Pump].Link = i
		}
		if link.Valve >= 0 {
			n.Valves[link.Valve].Link = i
		}
	}
}

// DeleteLink removes the link at index k along with any pump or valve
// record it owns, dropping controls and rule clauses that reference it,
// and compacts link indices. It returns the applied renumber map.
func (n *Network) DeleteLink(k int) (*RenumberMap, error) {
	if k < 0 || k >= len(n.Links) {
		return nil, newIndexError("DeleteLink", "link", k, ErrInvalidIndex)
	}
	link := n.Links[k]

	// Drop the owned sub-record and compact its index space.
	if link.Pump >= 0 {
		n.Pumps = append(n.Pumps[:link.Pump], n.Pumps[link.Pump+1:]...)
		for _, l := range n.Links {
			if l.Pump > link.Pump {
				l.Pump--
			}
		}
	}
	if link.Valve >= 0 {
		n.Valves = append(n.Valves[:link.Valve], n.Valves[link.Valve+1:]...)
		for _, l := range n.Links {
			if l.Valve > link.Valve {
				l.Valve--
			}
		}
	}

	// Drop controls and rule clauses that reference the link.
	n.dropLinkReferences(k)

	delete(n.linkIndex, link.ID)
	n.Links = append(n.Links[:k], n.Links[k+1:]...)

	remap := make([]int, len(n.Links)+1)
	for old := range remap {
		switch {
		case old < k:
			remap[old] = old
		case old == k:
			remap[old] = -1
		default:
			remap[old] = old - 1
		}
	}
	n.renumberLinks(remap)
	return &RenumberMap{Nodes: identity(len(n.Nodes)), Links: remap}, nil
}

// DeleteNode removes the node at index i. Links incident to the node,
// controls triggered by it, and rule premises inspecting it are removed
// first; a rule stripped of all premises or THEN actions is dropped.
// It returns the combined renumber map of the pass.
func (n *Network) DeleteNode(i int) (*RenumberMap, error) {
	if i < 0 || i >= len(n.Nodes) {
		return nil, newIndexError("DeleteNode", "node", i, ErrInvalidIndex)
	}

	linkMap := identity(len(n.Links))
	for k := len(n.Links) - 1; k >= 0; k-- {
		if n.Links[k].N1 == i || n.Links[k].N2 == i {
			m, err := n.DeleteLink(k)
			if err != nil {
				return nil, err
			}
			linkMap = composeMaps(linkMap, m.Links)
		}
	}

	node := n.Nodes[i]
	if node.Tank >= 0 {
		n.Tanks = append(n.Tanks[:node.Tank], n.Tanks[node.Tank+1:]...)
		for _, other := range n.Nodes {
			if other.Tank > node.Tank {
				other.Tank--
			}
		}
	}
	n.dropNodeReferences(i)

	delete(n.nodeIndex, node.ID)
	n.Nodes = append(n.Nodes[:i], n.Nodes[i+1:]...)
	if i < n.Njunctions {
		n.Njunctions--
	}

	remap := make([]int, len(n.Nodes)+1)
	for old := range remap {
		switch {
		case old < i:
			remap[old] = old
		case old == i:
			remap[old] = -1
		default:
			remap[old] = old - 1
		}
	}
	n.renumberNodes(remap)
	return &RenumberMap{Nodes: remap, Links: linkMap}, nil
}

// dropLinkReferences removes controls and rule clauses tied to link k.
func (n *Network) dropLinkReferences(k int) {
	kept := n.Controls[:0]
	for _, c := range n.Controls {
		if c.Link != k {
			kept = append(kept, c)
		}
	}
	n.Controls = kept

	rules := n.Rules[:0]
	for _, r := range n.Rules {
		prem := r.Premises[:0]
		for _, p := range r.Premises {
			if !(p.Object == RuleLink && p.Index == k) {
				prem = append(prem, p)
			}
		}
		r.Premises = prem
		r.Then = dropActions(r.Then, k)
		r.Else = dropActions(r.Else, k)
		if len(r.Premises) > 0 && len(r.Then) > 0 {
			rules = append(rules, r)
		}
	}
	n.Rules = rules
}

// dropNodeReferences removes controls and rule premises tied to node i.
func (n *Network) dropNodeReferences(i int) {
	kept := n.Controls[:0]
	for _, c := range n.Controls {
		if c.Node != i {
			kept = append(kept, c)
		}
	}
	n.Controls = kept

	rules := n.Rules[:0]
	for _, r := range n.Rules {
		prem := r.Premises[:0]
		for _, p := range r.Premises {
			if !(p.Object == RuleNode && p.Index == i) {
				prem = append(prem, p)
			}
		}
		r.Premises = prem
		if len(r.Premises) > 0 {
			rules = append(rules, r)
		}
	}
	n.Rules = rules
}

func dropActions(actions []RuleAction, link int) []RuleAction {
	kept := actions[:0]
	for _, a := range actions {
		if a.Link != link {
			kept = append(kept, a)
		}
	}
	return kept
}

// composeMaps chains two renumber maps: first maps into the index space
// that second then maps out of.
func composeMaps(first, second []int) []int {
	out := make([]int, len(first))
	for i, mid := range first {
		if mid < 0 {
			out[i] = -1
		} else {
			out[i] = second[mid]
		}
	}
	return out
}
