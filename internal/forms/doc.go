// Package forms describes the CRADLE5 data-collection forms as the forms API
// sees them: numeric form IDs, Control<N>-keyed fields, which controls are
// required, and the human-readable name of every control.
//
// The same tables are used by the sync client (to build POST bodies and to
// translate server validation errors) and by the reference server (to
// validate submissions), so the two cannot drift apart.
package forms
