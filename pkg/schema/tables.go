package schema

import (
	"schemacore/pkg/catalog/systable"
)

// System tables of the catalog. Database rows live under the system table
// pseudo database; every other row under the database that owns it.
var (
	databaseTable = systable.NewDescriptor("Database", systable.TableDatabase,
		databaseDefinitions, func() *Database { return &Database{} }, (*Database).ID)

	areaTable = systable.NewDescriptor("Area", systable.TableArea,
		areaDefinitions, func() *Area { return &Area{} }, (*Area).ID)

	areaContentTable = systable.NewDescriptor("AreaContent", systable.TableAreaContent,
		areaContentDefinitions, func() *AreaContent { return &AreaContent{} }, (*AreaContent).ID)

	privilegeTable = systable.NewDescriptor("Privilege", systable.TablePrivilege,
		privilegeDefinitions, func() *Privilege { return &Privilege{} }, (*Privilege).ID)
)
