package tools

// OpSet marks which operations a family supports.
type OpSet struct {
	Create, Get, Update, Delete, Search bool
}

var allOps = OpSet{Create: true, Get: true, Update: true, Delete: true, Search: true}
var noDelete = OpSet{Create: true, Get: true, Update: true, Search: true}

// Family describes one entity family: naming, supported operations and
// delete semantics. Customers and vendors are never hard-deleted, the
// backend deactivates them by flipping the Active flag instead.
type Family struct {
	Name       string // tool name segment, e.g. "journal_entry"
	Plural     string // search tool segment, e.g. "journal_entries"
	Entity     string // backend entity name, e.g. "JournalEntry"
	Display    string // human-readable name for messages, e.g. "journal entry"
	Ops        OpSet
	Deactivate bool // delete flips Active=false via update instead of a true delete
}

// Families is the canonical table all tools are generated from.
var Families = []Family{
	{Name: "customer", Plural: "customers", Entity: "Customer", Display: "customer", Ops: allOps, Deactivate: true},
	{Name: "invoice", Plural: "invoices", Entity: "Invoice", Display: "invoice", Ops: noDelete},
	{Name: "estimate", Plural: "estimates", Entity: "Estimate", Display: "estimate", Ops: allOps},
	{Name: "bill", Plural: "bills", Entity: "Bill", Display: "bill", Ops: allOps},
	{Name: "vendor", Plural: "vendors", Entity: "Vendor", Display: "vendor", Ops: allOps, Deactivate: true},
	{Name: "employee", Plural: "employees", Entity: "Employee", Display: "employee", Ops: noDelete},
	{Name: "journal_entry", Plural: "journal_entries", Entity: "JournalEntry", Display: "journal entry", Ops: allOps},
	{Name: "bill_payment", Plural: "bill_payments", Entity: "BillPayment", Display: "bill payment", Ops: allOps},
	{Name: "purchase", Plural: "purchases", Entity: "Purchase", Display: "purchase", Ops: allOps},
	{Name: "account", Plural: "accounts", Entity: "Account", Display: "account",
		Ops: OpSet{Create: true, Update: true, Search: true}},
	{Name: "item", Plural: "items", Entity: "Item", Display: "item", Ops: noDelete},
}
