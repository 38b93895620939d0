// Package utmp decodes the fixed-size login accounting records found in
// /var/run/utmp, /var/log/wtmp and /var/log/btmp.
//
// Records are read in chunks of exactly Width.Size() bytes. The narrow
// layout (384 bytes) stores session and time as 32-bit values, the wide
// layout (400 bytes) as 64-bit values; narrow records are widened before
// they are classified so both share one classification path.
//
//	entries, err := utmp.ReadFile("/var/log/wtmp")
//
// or, one record at a time:
//
//	dec := utmp.NewDecoder(r, utmp.WithWidth(utmp.Wide))
//	for entry, err := range dec.All() {
//		...
//	}
package utmp
