package usbdevice

// overrideRow is one (vid, pid) → configuration forcing entry, keyed on the
// little-endian decoded vendor/product IDs per spec.md §9.
type overrideRow struct {
	vendorID      uint16
	productID     uint16
	configuration uint8
}

// defaultOverrideTable is the baseline table spec.md §6 requires be
// preserved: the Realtek 0x0BDA:0x8153 dongle forced to configuration 2,
// terminated by a zero row. Callers may extend it via WithOverrideTable;
// a caller-supplied table is used as given, and lookup also stops at the
// end of the slice, so a table without a zero row still works.
var defaultOverrideTable = []overrideRow{
	{vendorID: 0x0BDA, productID: 0x8153, configuration: 2},
	{},
}

// overrideTable looks up a forced configuration value for (vid, pid). A
// zero row (vendorID == 0 && productID == 0) never matches and only marks
// the end of an explicitly constructed table; lookups never depend on
// table order beyond that terminator.
type overrideTable struct {
	rows []overrideRow
}

func newOverrideTable(rows []overrideRow) *overrideTable {
	if rows == nil {
		rows = defaultOverrideTable
	}
	return &overrideTable{rows: rows}
}

// lookup returns the forced configuration value and true if (vid, pid)
// matches a non-terminator row.
func (t *overrideTable) lookup(vendorID, productID uint16) (uint8, bool) {
	for _, row := range t.rows {
		if row.vendorID == 0 && row.productID == 0 {
			break
		}
		if row.vendorID == vendorID && row.productID == productID {
			return row.configuration, true
		}
	}
	return 0, false
}
