package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cradle5/cradlesync/internal/forms"
)

var ErrIncompleteForm = errors.New("form is incomplete")

// Form is implemented by every record payload.
type Form interface {
	Kind() forms.Kind
	// Title is a short human label used in listings.
	Title() string
	// Check validates the payload locally before it is saved.
	Check() error
}

// Envelope is the JSON document sealed into a record's payload column.
type Envelope struct {
	Kind forms.Kind      `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func Wrap(f Form) (Envelope, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: f.Kind(), Data: b}, nil
}

func (e Envelope) Unwrap() (Form, error) {
	var f Form
	switch e.Kind {
	case forms.KindPatient:
		f = &Patient{}
	case forms.KindOutcomes:
		f = &Outcomes{}
	case forms.KindCradleTraining:
		f = &CradleTrainingForm{}
	case forms.KindFacilityBpInfo:
		f = &FacilityBpInfo{}
	default:
		return nil, fmt.Errorf("unknown record kind %q", e.Kind)
	}
	if err := json.Unmarshal(e.Data, f); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return f, nil
}

// NewForm returns an empty payload of the given kind.
func NewForm(k forms.Kind) (Form, error) {
	return Envelope{Kind: k, Data: []byte("{}")}.Unwrap()
}

func missing(fields ...string) error {
	return fmt.Errorf("%w: missing %s", ErrIncompleteForm, strings.Join(fields, ", "))
}

// Patient is the registration form.
type Patient struct {
	Initials    string     `json:"initials" control:"1381"`
	PatientID   string     `json:"patientId" control:"1382"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty" control:"1383"`
	Age         *int       `json:"age,omitempty" control:"1384"`
	AgeUnknown  bool       `json:"ageUnknown" control:"1385,omitempty"`
	LMP         *time.Time `json:"lmp,omitempty" control:"1386"`
	Village     string     `json:"village" control:"1387"`
	Facility    string     `json:"facility" control:"1388"`
	District    string     `json:"district" control:"1389"`
	Phone       string     `json:"phone,omitempty" control:"1390,omitempty"`
	Notes       string     `json:"notes,omitempty" control:"1391,omitempty"`
}

func (p *Patient) Kind() forms.Kind { return forms.KindPatient }

func (p *Patient) Title() string { return p.Initials + " " + p.PatientID }

func (p *Patient) Check() error {
	var m []string
	if strings.TrimSpace(p.Initials) == "" {
		m = append(m, "initials")
	}
	if strings.TrimSpace(p.PatientID) == "" {
		m = append(m, "patient ID")
	}
	if strings.TrimSpace(p.Village) == "" {
		m = append(m, "village")
	}
	if p.Facility == "" {
		m = append(m, "health facility")
	}
	if p.District == "" {
		m = append(m, "district")
	}
	if p.DateOfBirth == nil && p.Age == nil && !p.AgeUnknown {
		m = append(m, "date of birth, age or age unknown")
	}
	if len(m) > 0 {
		return missing(m...)
	}
	if p.Age != nil && (*p.Age < 10 || *p.Age > 60) {
		return fmt.Errorf("%w: age %d out of range", ErrIncompleteForm, *p.Age)
	}
	return nil
}

// Outcomes records what happened to a registered patient. The parent
// patient is kept in the record's sync state, not in the payload.
type Outcomes struct {
	EclampsiaFitDate  *time.Time `json:"eclampsiaFitDate,omitempty" control:"1401"`
	HysterectomyDate  *time.Time `json:"hysterectomyDate,omitempty" control:"1402"`
	HduItuAdmission   *time.Time `json:"hduItuAdmission,omitempty" control:"1403"`
	MaternalDeathDate *time.Time `json:"maternalDeathDate,omitempty" control:"1404"`
	BirthOutcome      *int       `json:"birthOutcome,omitempty" control:"1405"`
	PerinatalOutcome  *int       `json:"perinatalOutcome,omitempty" control:"1406"`
}

func (o *Outcomes) Kind() forms.Kind { return forms.KindOutcomes }

func (o *Outcomes) Title() string {
	if o.MaternalDeathDate != nil {
		return "Outcomes (maternal death)"
	}
	return "Outcomes"
}

func (o *Outcomes) Check() error {
	if o.EclampsiaFitDate == nil && o.HysterectomyDate == nil && o.HduItuAdmission == nil &&
		o.MaternalDeathDate == nil && o.BirthOutcome == nil && o.PerinatalOutcome == nil {
		return missing("at least one outcome")
	}
	return nil
}

// CradleTrainingForm records staff trained at a facility.
type CradleTrainingForm struct {
	District          string    `json:"district" control:"1421"`
	Facility          string    `json:"facility" control:"1422"`
	RecordDate        time.Time `json:"recordDate" control:"1423,omitempty"`
	MidwivesTrained   int       `json:"midwivesTrained" control:"1424"`
	NursesTrained     int       `json:"nursesTrained" control:"1425"`
	DoctorsTrained    int       `json:"doctorsTrained" control:"1426"`
	CHWsTrained       int       `json:"chwsTrained" control:"1427"`
	OtherTrained      int       `json:"otherTrained" control:"1428"`
	BpDevices         int       `json:"bpDevices" control:"1429"`
	TotalStaffWorking *int      `json:"totalStaffWorking,omitempty" control:"1430"`
}

func (c *CradleTrainingForm) Kind() forms.Kind { return forms.KindCradleTraining }

func (c *CradleTrainingForm) Title() string {
	return c.Facility + " " + c.RecordDate.Format(forms.DateLayout)
}

func (c *CradleTrainingForm) Check() error {
	var m []string
	if c.District == "" {
		m = append(m, "district")
	}
	if c.Facility == "" {
		m = append(m, "health facility")
	}
	if c.RecordDate.IsZero() {
		m = append(m, "record date")
	}
	if c.TotalStaffWorking == nil {
		m = append(m, "total staff working")
	}
	if len(m) > 0 {
		return missing(m...)
	}
	trained := c.MidwivesTrained + c.NursesTrained + c.DoctorsTrained + c.CHWsTrained + c.OtherTrained
	if trained > *c.TotalStaffWorking {
		return fmt.Errorf("%w: %d staff trained but only %d working", ErrIncompleteForm, trained, *c.TotalStaffWorking)
	}
	return nil
}

// FacilityBpInfo records blood-pressure measurement quality at a facility.
type FacilityBpInfo struct {
	District            string    `json:"district" control:"1441"`
	Facility            string    `json:"facility" control:"1442"`
	DataCollectionDate  time.Time `json:"dataCollectionDate" control:"1443,omitempty"`
	ReadingsTaken       *int      `json:"readingsTaken,omitempty" control:"1444"`
	ReadingsEndIn0or5   int       `json:"readingsEndIn0or5" control:"1445"`
	ReadingsColourArrow int       `json:"readingsColourArrow" control:"1446"`
}

func (f *FacilityBpInfo) Kind() forms.Kind { return forms.KindFacilityBpInfo }

func (f *FacilityBpInfo) Title() string {
	return f.Facility + " " + f.DataCollectionDate.Format(forms.DateLayout)
}

func (f *FacilityBpInfo) Check() error {
	var m []string
	if f.District == "" {
		m = append(m, "district")
	}
	if f.Facility == "" {
		m = append(m, "health facility")
	}
	if f.DataCollectionDate.IsZero() {
		m = append(m, "data collection date")
	}
	if f.ReadingsTaken == nil {
		m = append(m, "BP readings taken")
	}
	if len(m) > 0 {
		return missing(m...)
	}
	if f.ReadingsEndIn0or5 > *f.ReadingsTaken || f.ReadingsColourArrow > *f.ReadingsTaken {
		return fmt.Errorf("%w: counts exceed readings taken", ErrIncompleteForm)
	}
	return nil
}
