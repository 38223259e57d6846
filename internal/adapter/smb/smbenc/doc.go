// Package smbenc reads and writes the little-endian structures used on the
// SMB1 and SMB2 wires.
//
// Both Reader and Writer remember the first error and turn every later call
// into a no-op, so a decoder checks once at the end:
//
//	r := smbenc.NewReader(body)
//	size := r.ReadUint16()
//	count := r.ReadUint16()
//	r.Skip(4)
//	if err := r.Err(); err != nil {
//	    return err
//	}
//
// Writer supports alignment padding and backpatching of offset fields that
// are only known after the variable-length tail has been written.
package smbenc
