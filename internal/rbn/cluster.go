package rbn

import (
	"fmt"
	"math/rand"
	"net"
	"sort"
	"strconv"
	"strings"
)

// Candidate is one server endpoint.
type Candidate struct {
	Host string
	Port int
}

// Address returns host:port.
func (c Candidate) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Cluster is a named pool of interchangeable servers.
type Cluster struct {
	Name       string
	Candidates []Candidate
}

// Catalog maps upper-case cluster names to their servers.
type Catalog map[string][]Candidate

// RBN server pool and the local relay port bases.
const (
	rbnPort    = 7000
	masterBase = 50000
	slaveBase  = 60000
)

// DefaultCatalog returns the built-in clusters: the public RBN servers and
// the loopback relays used for local testing.
func DefaultCatalog() Catalog {
	local := func(base int) []Candidate {
		return []Candidate{
			{Host: "127.0.0.1", Port: base},
			{Host: "127.0.0.1", Port: base + 1},
			{Host: "127.0.0.1", Port: base + 2},
		}
	}
	return Catalog{
		"RBN": {
			{Host: "telnet.reversebeacon.net", Port: rbnPort},
			{Host: "arcluster.reversebeacon.net", Port: rbnPort},
			{Host: "relay2.reversebeacon.net", Port: rbnPort},
		},
		"LOCALHOST_SLAVE":  local(slaveBase),
		"LOCALHOST_MASTER": local(masterBase),
	}
}

// Names returns the catalog's cluster names, sorted.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a new catalog with extra entries added. Entries in extra
// replace same-named entries in c.
func (c Catalog) Merge(extra Catalog) Catalog {
	out := make(Catalog, len(c)+len(extra))
	for name, cands := range c {
		out[name] = cands
	}
	for name, cands := range extra {
		out[strings.ToUpper(name)] = cands
	}
	return out
}

// Resolve looks up names in order. Unknown names return an
// *UnknownClusterError; an empty selection is an error too.
func (c Catalog) Resolve(names []string) ([]Cluster, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("resolve clusters: %w", ErrNoClusters)
	}
	clusters := make([]Cluster, 0, len(names))
	for _, name := range names {
		key := strings.ToUpper(name)
		cands, ok := c[key]
		if !ok {
			return nil, &UnknownClusterError{Name: key, Known: c.Names()}
		}
		clusters = append(clusters, Cluster{Name: key, Candidates: append([]Candidate(nil), cands...)})
	}
	return clusters, nil
}

// ParseClusterList splits a selection such as "RBN,LOCALHOST_SLAVE" or
// "rbn localhost_slave" into upper-case names. Commas take precedence over
// whitespace when both are present.
func ParseClusterList(s string) []string {
	s = strings.ToUpper(s)
	var parts []string
	if strings.Contains(s, ",") {
		parts = strings.Split(s, ",")
	} else {
		parts = strings.Fields(s)
	}
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return names
}

// attempt is one entry of the flattened connect order.
type attempt struct {
	cluster   string
	candidate Candidate
}

// attemptOrder flattens clusters in order, shuffling candidates within each
// cluster. Cluster order is never changed and the input is not modified.
func attemptOrder(clusters []Cluster, rng *rand.Rand) []attempt {
	var out []attempt
	for _, cl := range clusters {
		cands := append([]Candidate(nil), cl.Candidates...)
		rng.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })
		for _, cand := range cands {
			out = append(out, attempt{cluster: cl.Name, candidate: cand})
		}
	}
	return out
}
