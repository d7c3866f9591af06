package dialect

import (
	"errors"
	"strings"
)

// ErrUnsupported marks operations a vendor adapter does not implement.
// The document and graph adapters return it for every schema operation.
var ErrUnsupported = errors.New("operation not supported for this vendor")

// ErrDefinitionUnavailable marks objects whose DDL text cannot be
// introspected. An object that cannot be introspected cannot be
// synchronized.
var ErrDefinitionUnavailable = errors.New("definition unavailable")

// isMissingObjectError reports whether err is a vendor's way of saying
// the addressed object does not exist. Drop treats these as success so
// rollback and re-sync stay idempotent.
func isMissingObjectError(err error, vendor Vendor) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch vendor {
	case VendorMySQL:
		// Error 1146: Table 'db.t' doesn't exist
		// Error 1051: Unknown table 'db.t'
		// Error 1305: PROCEDURE db.p does not exist
		// Error 1091: Can't DROP '...'; check that it exists
		return strings.Contains(msg, "doesn't exist") ||
			strings.Contains(msg, "unknown table") ||
			strings.Contains(msg, "does not exist") ||
			strings.Contains(msg, "check that it exists") ||
			strings.Contains(msg, "check that column/key exists")
	case VendorPostgres:
		// relation "t" does not exist / index "i" does not exist
		return strings.Contains(msg, "does not exist")
	case VendorSQLite:
		// no such table: t / no such view: v / no such index: i
		return strings.Contains(msg, "no such")
	case VendorSQLServer:
		// Cannot drop the table 't', because it does not exist or you do not have permission.
		return strings.Contains(msg, "does not exist or you do not have permission") ||
			strings.Contains(msg, "cannot find the object")
	case VendorOracle:
		// ORA-00942: table or view does not exist
		// ORA-04043: object X does not exist
		// ORA-01418: specified index does not exist
		return strings.Contains(msg, "ora-00942") ||
			strings.Contains(msg, "ora-04043") ||
			strings.Contains(msg, "ora-01418") ||
			strings.Contains(msg, "does not exist")
	}
	return false
}
