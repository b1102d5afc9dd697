package mapping

import "github.com/erp/connector/internal/domain/integration"

const timestampTag = "omitempty,datetime=2006-01-02T15:04:05Z07:00"

// CalendarEventSchema is the local calendar event record
var CalendarEventSchema = Schema{
	Fields: []string{
		"name", "location", "description", "start", "stop", "allday", "class", "show_as",
		"alarm_minutes",
	},
}

// local privacy class -> remote sensitivity
var sensitivityToRemote = map[string]string{
	"public":       "normal",
	"private":      "private",
	"confidential": "confidential",
}

// remote sensitivity -> local privacy class; personal collapses into private
var sensitivityToLocal = map[string]string{
	"normal":       "public",
	"personal":     "private",
	"private":      "private",
	"confidential": "confidential",
}

var freeBusyToRemote = map[string]string{
	"free": "free",
	"busy": "busy",
}

var freeBusyToLocal = map[string]string{
	"free":      "free",
	"nodata":    "free",
	"busy":      "busy",
	"oof":       "busy",
	"tentative": "busy",
}

// CalendarEventTable returns the calendar event mapping
func CalendarEventTable() *Table {
	return NewTable(integration.EntityTypeCalendarEvent, CalendarEventSchema, []Rule{
		{Local: "name", Remote: "subject", ToRemote: Text, ToLocal: Text, Validate: "omitempty,max=512"},
		{Local: "location", Remote: "location", ToRemote: Text, ToLocal: Text},
		{Local: "description", Remote: "body"},
		{Local: "start", Remote: "start", ToRemote: Timestamp, ToLocal: Timestamp, Validate: timestampTag},
		{Local: "stop", Remote: "end", ToRemote: Timestamp, ToLocal: Timestamp, Validate: timestampTag},
		{Local: "allday", Remote: "is_all_day", ToRemote: Bool, ToLocal: Bool, Validate: "omitempty,boolean"},
		{
			Local:    "class",
			Remote:   integration.FieldSensitivity,
			ToRemote: Enum(sensitivityToRemote),
			ToLocal:  Enum(sensitivityToLocal),
			Validate: "omitempty,oneof=public private confidential",
		},
		{
			Local:    "show_as",
			Remote:   "free_busy_status",
			ToRemote: Enum(freeBusyToRemote),
			ToLocal:  Enum(freeBusyToLocal),
			Validate: "omitempty,oneof=free busy",
		},
		// the remote keeps a single reminder; empty means none is set
		{Local: "alarm_minutes", Remote: "reminder_minutes_before_start", ToRemote: Minutes, ToLocal: Minutes, Validate: "omitempty,number"},
	})
}
