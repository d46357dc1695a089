// Package render produces review overlay images: the original sheet with
// each scan box outlined, colored by its interpreted state so a human
// reviewer can spot misreads at a glance.
//
// Marked bubbles are outlined on a red-to-green ramp keyed to the field's
// confidence, unmarked bubbles in gray, and unreadable fields in blue.
package render
