package graph

import (
	"sort"

	"github.com/minio/highwayhash"
)

var fingerprintKey = []byte("0123456789ABCDEF0123456789ABCDEF")

// Fingerprint hashes the graph's canonical form: sorted edge kind keys with
// their condition keys. Two graphs have equal fingerprints iff Equal holds,
// which is what the fixpoint loop checks between loop iterations.
func (g *Graph) Fingerprint() (uint64, error) {
	lines := make([]string, 0, len(g.edges))
	for key, edge := range g.edges {
		lines = append(lines, key+"#"+edge.Conditions.Key())
	}
	sort.Strings(lines)
	hash, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		return 0, err
	}
	for _, line := range lines {
		if _, err = hash.Write([]byte(line)); err != nil {
			return 0, err
		}
		if _, err = hash.Write([]byte{'\n'}); err != nil {
			return 0, err
		}
	}
	return hash.Sum64(), nil
}
