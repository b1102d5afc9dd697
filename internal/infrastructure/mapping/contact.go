package mapping

import "github.com/erp/connector/internal/domain/integration"

// StreetSeparator joins the local street lines into the single remote street field
const StreetSeparator = " // "

// ContactSchema is the local contact record
var ContactSchema = Schema{
	Fields: []string{
		"firstname", "lastname", "title", "company_name", "function", "website",
		"email", "phone", "mobile", "fax",
		"street", "street2", "street3", "zip", "city", "state", "country",
		"comment",
	},
	LocalOnly: []string{"comment"},
}

// ContactTable returns the contact mapping
func ContactTable() *Table {
	return NewTable(integration.EntityTypeContact, ContactSchema, []Rule{
		{Local: "firstname", Remote: "given_name", ToRemote: Text, ToLocal: Text, Validate: "omitempty,max=255"},
		{Local: "lastname", Remote: "surname", ToRemote: Text, ToLocal: Text, Validate: "omitempty,max=255"},
		{Local: "title", Remote: "title", ToRemote: Text, ToLocal: Text, Validate: "omitempty,max=64"},
		{Local: "company_name", Remote: "company_name", ToRemote: Text, ToLocal: Text},
		{Local: "function", Remote: "job_title", ToRemote: Text, ToLocal: Text},
		{Local: "website", Remote: "business_home_page", Validate: "omitempty,url"},
		{Local: "email", Remote: "email", ToRemote: Email, ToLocal: Email, Validate: "omitempty,email"},
		{Local: "phone", Remote: "business_phone", Validate: "omitempty,max=64"},
		{Local: "mobile", Remote: "mobile_phone", Validate: "omitempty,max=64"},
		{Local: "fax", Remote: "business_fax", Validate: "omitempty,max=64"},
		{Local: "zip", Remote: "postal_code", Validate: "omitempty,max=32"},
		{Local: "city", Remote: "city", ToRemote: Text, ToLocal: Text},
		{Local: "state", Remote: "state", ToRemote: Text, ToLocal: Text},
		{Local: "country", Remote: "country_region", ToRemote: Text, ToLocal: Text},
	}, Composite{
		Locals: []string{"street", "street2", "street3"},
		Remote: "street",
		Sep:    StreetSeparator,
	})
}
