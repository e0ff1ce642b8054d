// Package queries holds the SQL sent to the metadata service, per dialect.
//
// The iris dialect targets the %Dictionary compiled-class tables and the
// pxw_xref cross-reference index of a live server. The sqlite dialect targets
// the local metastore schema and returns the same column aliases, so row
// decoding does not depend on the dialect.
package queries

import (
	"fmt"
	"sort"

	"clslens/internal/remote"
)

// Statement names, used as metric and log labels.
const (
	NameOrigins   = "origins"
	NameCrossRefs = "crossrefs"
	NameCallSites = "callsites"
)

// Catalog builds the three statements for one dialect.
type Catalog interface {
	Dialect() string
	// Origins lists members inherited from the class's direct superclasses
	// with the ancestor that first declared them.
	Origins(className string) remote.Request
	// CrossRefs aggregates override and call-site counts per member.
	CrossRefs(namespace, className string) remote.Request
	// CallSites lists the call-sites of one member.
	CallSites(namespace, className, memberName string) remote.Request
}

var catalogs = map[string]Catalog{
	"iris":   irisCatalog{},
	"sqlite": sqliteCatalog{},
}

// ForDialect returns the catalog for dialect.
func ForDialect(dialect string) (Catalog, error) {
	c, ok := catalogs[dialect]
	if !ok {
		return nil, fmt.Errorf("unknown query dialect %q (known: %v)", dialect, Dialects())
	}
	return c, nil
}

// Dialects lists the known dialects.
func Dialects() []string {
	out := make([]string, 0, len(catalogs))
	for d := range catalogs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func params(values ...string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
