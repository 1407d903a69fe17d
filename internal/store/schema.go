package store

// ColumnType controls how a column's JSON value is checked, stored and read
// back.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeBool
	TypeInt
	TypeDecimal
	TypeTime
	TypeJSON
)

type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
	// Required columns must be present and non-empty on insert.
	Required bool
	// Default is used on insert when the column is absent.
	Default any
	// Immutable columns can't be patched.
	Immutable bool
}

// Table describes a collection served by the collection API.
type Table struct {
	Name    string
	Columns []Column
	// OrderBy is the SELECT ordering.
	OrderBy string
	// Realtime tables publish their row changes.
	Realtime bool
}

func (t Table) column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t Table) names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Tables lists every collection served.
var Tables = []Table{
	{
		Name:     "items",
		OrderBy:  "created_at DESC",
		Realtime: true,
		Columns: []Column{
			{Name: "id", Type: TypeText, Required: true, Immutable: true},
			{Name: "name", Type: TypeText, Required: true},
			{Name: "category", Type: TypeText, Default: "Uncategorized"},
			{Name: "quantity", Type: TypeText, Default: ""},
			{Name: "price", Type: TypeDecimal, Nullable: true},
			{Name: "in_pantry", Type: TypeBool, Default: false},
			{Name: "created_by", Type: TypeText, Default: "", Immutable: true},
			{Name: "bought_by", Type: TypeText, Nullable: true},
			{Name: "household_id", Type: TypeText, Required: true, Immutable: true},
			{Name: "list_id", Type: TypeText, Nullable: true},
			{Name: "created_at", Type: TypeTime, Immutable: true},
			{Name: "updated_at", Type: TypeTime},
			{Name: "deleted_at", Type: TypeTime, Nullable: true},
		},
	},
	{
		Name: "categories",
		// Categorization takes the first keyword match, so household
		// categories go first and system ones keep their seeded order.
		OrderBy: "household_id IS NULL, rowid",
		Columns: []Column{
			{Name: "id", Type: TypeText, Required: true, Immutable: true},
			{Name: "name", Type: TypeText, Required: true},
			{Name: "icon", Type: TypeText, Default: ""},
			{Name: "keywords", Type: TypeJSON, Default: []any{}},
			{Name: "household_id", Type: TypeText, Nullable: true, Immutable: true},
			{Name: "is_system", Type: TypeBool, Default: false, Immutable: true},
		},
	},
	{
		Name:    "household_products",
		OrderBy: "name ASC",
		Columns: []Column{
			{Name: "id", Type: TypeText, Required: true, Immutable: true},
			{Name: "household_id", Type: TypeText, Required: true, Immutable: true},
			{Name: "name", Type: TypeText, Required: true},
			{Name: "last_price", Type: TypeDecimal, Nullable: true},
			{Name: "category_name", Type: TypeText, Nullable: true},
			{Name: "last_bought_at", Type: TypeTime, Nullable: true},
			{Name: "times_bought", Type: TypeInt, Default: 0},
			{Name: "recurrence_interval", Type: TypeInt, Nullable: true},
			{Name: "next_occurrence", Type: TypeTime, Nullable: true},
		},
	},
	{
		Name:    "lists",
		OrderBy: "created_at ASC",
		Columns: []Column{
			{Name: "id", Type: TypeText, Required: true, Immutable: true},
			{Name: "name", Type: TypeText, Required: true},
			{Name: "icon", Type: TypeText, Default: ""},
			{Name: "household_id", Type: TypeText, Required: true, Immutable: true},
			{Name: "created_at", Type: TypeTime},
		},
	},
	{
		Name:    "households",
		OrderBy: "created_at ASC",
		Columns: []Column{
			{Name: "id", Type: TypeText, Required: true, Immutable: true},
			{Name: "name", Type: TypeText, Required: true},
			{Name: "invite_code", Type: TypeText, Default: ""},
			{Name: "created_at", Type: TypeTime},
		},
	},
}
