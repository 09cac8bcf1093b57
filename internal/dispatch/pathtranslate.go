package dispatch

import "strings"

// PrefixMapping is one (serverPrefix, remotePrefix) pair from the
// environment-driven path translation config.
type PrefixMapping struct {
	ServerPrefix string
	RemotePrefix string
}

// Translator applies path translation at the dispatch boundary (§4.5,
// invariant 7): mappings are consulted longest-server-prefix-first so a more
// specific mapping always wins over a shorter, broader one.
type Translator struct {
	mappings []PrefixMapping
}

// NewTranslator sorts mappings longest-prefix-first once, up front, so
// ToRemote/ToServer never need to re-sort on the hot path.
func NewTranslator(mappings []PrefixMapping) *Translator {
	sorted := append([]PrefixMapping{}, mappings...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && len(sorted[j].ServerPrefix) > len(sorted[j-1].ServerPrefix); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return &Translator{mappings: sorted}
}

// ToRemote translates an absolute server-side path to the encoder's view.
func (t *Translator) ToRemote(serverPath string) string {
	for _, m := range t.mappings {
		if strings.HasPrefix(serverPath, m.ServerPrefix) {
			return m.RemotePrefix + strings.TrimPrefix(serverPath, m.ServerPrefix)
		}
	}
	return serverPath
}

// ToServer translates a remote (encoder-side) path back to the server's view.
func (t *Translator) ToServer(remotePath string) string {
	longest := -1
	var match PrefixMapping
	found := false
	for _, m := range t.mappings {
		if strings.HasPrefix(remotePath, m.RemotePrefix) && len(m.RemotePrefix) > longest {
			longest = len(m.RemotePrefix)
			match = m
			found = true
		}
	}
	if !found {
		return remotePath
	}
	return match.ServerPrefix + strings.TrimPrefix(remotePath, match.RemotePrefix)
}
