package queries

import "clslens/internal/remote"

type irisCatalog struct{}

func (irisCatalog) Dialect() string { return "iris" }

const irisOrigins = `
select %SQLUPPER(parent) as Parent, %SQLUPPER(name) as Name, Description, Origin, MemberType, Name as MemberName
from (          SELECT Parent, Name, Description, Origin, 'method' AS MemberType FROM %Dictionary.CompiledMethod WHERE Stub IS NULL
      UNION ALL SELECT Parent, Name, Description, Origin, 'query' AS MemberType FROM %Dictionary.CompiledQuery
      UNION ALL SELECT Parent, Name, Description, Origin, 'projection' AS MemberType FROM %Dictionary.CompiledProjection
      UNION ALL SELECT Parent, Name, Description, Origin, 'index' AS MemberType FROM %Dictionary.CompiledIndex
      UNION ALL SELECT Parent, Name, Description, Origin, 'foreignkey' AS MemberType FROM %Dictionary.CompiledForeignKey
      UNION ALL SELECT Parent, Name, Description, Origin, 'trigger' AS MemberType FROM %Dictionary.CompiledTrigger
      UNION ALL SELECT Parent, Name, Description, Origin, 'xdata' AS MemberType FROM %Dictionary.CompiledXData
      UNION ALL SELECT Parent, Name, Description, Origin, 'property' AS MemberType FROM %Dictionary.CompiledProperty
      UNION ALL SELECT Parent, Name, Description, Origin, 'parameter' AS MemberType FROM %Dictionary.CompiledParameter
) as items
where items.parent %INLIST (select $LISTFROMSTRING(Super) from %Dictionary.CompiledClass where name=?) SIZE ((10))
`

const irisCrossRefs = `
SELECT %SQLUPPER(ItemKey2) as MemberName,
       case when CalledByCommand='_Override' then 'Overridden' else 'Xref' end as XrefType,
       count(*) as xCount
  FROM pxw_xref."Data" AS xd
 WHERE xd.ItemType = 'CLS'
   AND xd.NameSpace = %SQLUPPER(PXW_DEV_Dictionary.ClassDefinitionObject_FindNamespaceFromIRISNameSpace(?))
   AND xd.ItemKey1 = ?
 GROUP BY ItemKey2, xreftype
`

const irisCallSites = `
select CalledByKey1, CalledByKey2, LineNumber from pxw_xref.data
 where namespace = (select top 1 ID from PXW_DEV_Dictionary.AtelierSettings as ns1 where ns1.Namespace = ?)
   and itemtype = 'CLS'
   and itemkey1 = ?
   and itemkey2 = ?
`

func (irisCatalog) Origins(className string) remote.Request {
	return remote.Request{Name: NameOrigins, Query: irisOrigins, Parameters: params(className)}
}

func (irisCatalog) CrossRefs(namespace, className string) remote.Request {
	return remote.Request{Name: NameCrossRefs, Query: irisCrossRefs, Parameters: params(namespace, className)}
}

func (irisCatalog) CallSites(namespace, className, memberName string) remote.Request {
	return remote.Request{Name: NameCallSites, Query: irisCallSites, Parameters: params(namespace, className, memberName)}
}
