package queries

import "clslens/internal/remote"

type sqliteCatalog struct{}

func (sqliteCatalog) Dialect() string { return "sqlite" }

// ' ' || upper(x) mirrors %SQLUPPER, which prefixes a space.
const sqliteOrigins = `
SELECT ' ' || upper(m.parent) AS Parent,
       ' ' || upper(m.name)   AS Name,
       m.description          AS Description,
       m.origin               AS Origin,
       m.member_type          AS MemberType,
       m.name                 AS MemberName
  FROM compiled_member m
 WHERE m.parent IN (SELECT s.super FROM class_super s WHERE s.class = ?)
 ORDER BY m.rowid
`

const sqliteCrossRefs = `
SELECT ' ' || upper(x.item_key2) AS MemberName,
       CASE WHEN x.called_by_command = '_Override' THEN 'Overridden' ELSE 'Xref' END AS XrefType,
       count(*) AS xCount
  FROM xref_data x
 WHERE x.item_type = 'CLS'
   AND x.namespace = (SELECT upper(n.xref_namespace) FROM namespace_map n WHERE n.namespace = ?)
   AND x.item_key1 = ?
 GROUP BY x.item_key2, XrefType
`

const sqliteCallSites = `
SELECT x.called_by_key1 AS CalledByKey1,
       x.called_by_key2 AS CalledByKey2,
       x.line_number    AS LineNumber
  FROM xref_data x
 WHERE x.namespace = (SELECT upper(n.xref_namespace) FROM namespace_map n WHERE n.namespace = ? LIMIT 1)
   AND x.item_type = 'CLS'
   AND x.item_key1 = ?
   AND x.item_key2 = ?
 ORDER BY x.called_by_key1, x.line_number
`

func (sqliteCatalog) Origins(className string) remote.Request {
	return remote.Request{Name: NameOrigins, Query: sqliteOrigins, Parameters: params(className)}
}

func (sqliteCatalog) CrossRefs(namespace, className string) remote.Request {
	return remote.Request{Name: NameCrossRefs, Query: sqliteCrossRefs, Parameters: params(namespace, className)}
}

func (sqliteCatalog) CallSites(namespace, className, memberName string) remote.Request {
	return remote.Request{Name: NameCallSites, Query: sqliteCallSites, Parameters: params(namespace, className, memberName)}
}
