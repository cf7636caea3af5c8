package forms

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind names a record kind stored by the client.
type Kind string

const (
	KindPatient        Kind = "patient"
	KindOutcomes       Kind = "outcomes"
	KindCradleTraining Kind = "cradle_training"
	KindFacilityBpInfo Kind = "facility_bp_info"
)

// UploadOrder lists kinds in the order a sync must upload them.
// Outcomes reference patients, so patients go first.
var UploadOrder = []Kind{KindPatient, KindOutcomes, KindCradleTraining, KindFacilityBpInfo}

// ParseKind accepts a kind name, case-insensitively, with a few short aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "patient", "patients":
		return KindPatient, nil
	case "outcomes", "outcome":
		return KindOutcomes, nil
	case "cradle_training", "training", "cradletrainingform":
		return KindCradleTraining, nil
	case "facility_bp_info", "bpinfo", "facilitybpinfo":
		return KindFacilityBpInfo, nil
	}
	return "", fmt.Errorf("unknown record kind %q", s)
}

// Control is a single form field.
type Control struct {
	Number   int
	Name     string
	Required bool
	// Enum names the server enumeration the value must come from, if any.
	Enum string
}

// ID returns the wire key of the control, e.g. "Control1381".
func (c Control) ID() string {
	return ControlID(c.Number)
}

// ControlID formats a control number as its wire key.
func ControlID(n int) string {
	return "Control" + strconv.Itoa(n)
}

// Form is a server-defined schema.
type Form struct {
	ID       int64
	Kind     Kind
	Title    string
	Controls []Control
	// HasParent is set for forms whose objects hang off another object.
	HasParent bool
}

var registry = []Form{
	{
		ID: 49, Kind: KindPatient, Title: "Patient registration",
		Controls: []Control{
			{Number: 1381, Name: "Initials", Required: true},
			{Number: 1382, Name: "Patient ID", Required: true},
			{Number: 1383, Name: "Date of birth"},
			{Number: 1384, Name: "Age"},
			{Number: 1385, Name: "Age unknown"},
			{Number: 1386, Name: "Last menstrual period"},
			{Number: 1387, Name: "Village", Required: true},
			{Number: 1388, Name: "Health facility", Required: true, Enum: "facilities"},
			{Number: 1389, Name: "District", Required: true, Enum: "districts"},
			{Number: 1390, Name: "Phone number"},
			{Number: 1391, Name: "Notes"},
		},
	},
	{
		ID: 50, Kind: KindOutcomes, Title: "Outcomes", HasParent: true,
		Controls: []Control{
			{Number: 1401, Name: "Date of eclampsia fit"},
			{Number: 1402, Name: "Date of hysterectomy"},
			{Number: 1403, Name: "Date of HDU/ITU admission"},
			{Number: 1404, Name: "Date of maternal death"},
			{Number: 1405, Name: "Birth outcome", Enum: "BirthOutcome"},
			{Number: 1406, Name: "Perinatal outcome", Enum: "PerinatalOutcome"},
		},
	},
	{
		ID: 51, Kind: KindCradleTraining, Title: "CRADLE training",
		Controls: []Control{
			{Number: 1421, Name: "District", Required: true, Enum: "districts"},
			{Number: 1422, Name: "Health facility", Required: true, Enum: "facilities"},
			{Number: 1423, Name: "Record date", Required: true},
			{Number: 1424, Name: "Midwives trained"},
			{Number: 1425, Name: "Nurses trained"},
			{Number: 1426, Name: "Doctors trained"},
			{Number: 1427, Name: "Community health workers trained"},
			{Number: 1428, Name: "Other staff trained"},
			{Number: 1429, Name: "Working BP devices available"},
			{Number: 1430, Name: "Total staff working", Required: true},
		},
	},
	{
		ID: 52, Kind: KindFacilityBpInfo, Title: "Facility BP information",
		Controls: []Control{
			{Number: 1441, Name: "District", Required: true, Enum: "districts"},
			{Number: 1442, Name: "Health facility", Required: true, Enum: "facilities"},
			{Number: 1443, Name: "Date of data collection", Required: true},
			{Number: 1444, Name: "BP readings taken on women", Required: true},
			{Number: 1445, Name: "Readings ending in 0 or 5"},
			{Number: 1446, Name: "Readings with colour and arrow recorded"},
		},
	},
}

var (
	byKind    = map[Kind]Form{}
	byID      = map[int64]Form{}
	nameTable = map[string]string{}
)

func init() {
	for _, f := range registry {
		byKind[f.Kind] = f
		byID[f.ID] = f
		for _, c := range f.Controls {
			nameTable[c.ID()] = c.Name
		}
	}
}

// ByKind returns the form used for records of kind k.
func ByKind(k Kind) (Form, bool) {
	f, ok := byKind[k]
	return f, ok
}

// ByID returns the form with the given server ID.
func ByID(id int64) (Form, bool) {
	f, ok := byID[id]
	return f, ok
}

// All returns every known form in upload order.
func All() []Form {
	out := make([]Form, 0, len(UploadOrder))
	for _, k := range UploadOrder {
		out = append(out, byKind[k])
	}
	return out
}

// FieldName maps a control ID to its human-readable name. Unknown IDs are
// returned unchanged.
func FieldName(controlID string) string {
	if n, ok := nameTable[controlID]; ok {
		return n
	}
	return controlID
}

// Control returns the control with number n.
func (f Form) Control(n int) (Control, bool) {
	for _, c := range f.Controls {
		if c.Number == n {
			return c, true
		}
	}
	return Control{}, false
}
