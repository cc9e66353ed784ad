// Package securemem keeps secrets such as the session password in
// memguard-protected memory so they do not end up in swap or core dumps.
//
// Import it from the main package so memguard is set up before any secret
// is created:
//
//	import _ "github.com/codefionn/chatline/internal/securemem"
package securemem

import "github.com/awnumar/memguard"

func init() {
	Init()
}

// Init installs memguard's interrupt handler, which wipes protected memory
// when the process is interrupted.
func Init() {
	memguard.CatchInterrupt()
}

// Purge destroys every protected buffer. Call it right before exiting.
func Purge() {
	memguard.Purge()
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	memguard.WipeBytes(b)
}
