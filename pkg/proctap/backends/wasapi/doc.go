// Package wasapi implements a capture backend on top of the process
// loopback mode of WASAPI: the audio engine duplicates everything a
// process tree renders into a virtual capture device.
//
// Only compiled on Windows; the capability itself appeared in
// Windows 10 2004.
package wasapi
