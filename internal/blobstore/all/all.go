// Package all registers every built-in blob store backend. Importing it
// for side effects gives blobstore.Open the full set of kinds:
//
//	import _ "cpstats/internal/blobstore/all"
package all

import (
	_ "cpstats/internal/blobstore/fs"
	_ "cpstats/internal/blobstore/mssql"
	_ "cpstats/internal/blobstore/postgres"
	_ "cpstats/internal/blobstore/sqlite"
)
