package visibility

// PVS is a cluster bitset: cluster c is visible when bit c&7 of byte c>>3 is set.
type PVS []byte

func NewPVS(clusters int) PVS {
	return make(PVS, (clusters+7)>>3)
}

func (p PVS) Set(cluster int) {
	if cluster < 0 || cluster>>3 >= len(p) {
		return
	}
	p[cluster>>3] |= 1 << (cluster & 7)
}

func (p PVS) Has(cluster int) bool {
	if cluster < 0 || cluster>>3 >= len(p) {
		return false
	}
	return p[cluster>>3]&(1<<(cluster&7)) != 0
}

func (p PVS) Clear() {
	for i := range p {
		p[i] = 0
	}
}

// Count returns the number of visible clusters.
func (p PVS) Count() int {
	n := 0
	for _, b := range p {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}
