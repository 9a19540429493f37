// Package ephemeris computes a low-precision geocentric position of the Moon
// and renders it in the sexagesimal notation used on the wire.
//
// The model uses mean orbital elements referenced to J2000 with a single
// equation-of-centre term. It is good to roughly a degree, which is plenty
// for a display feed and keeps the computation allocation-free.
package ephemeris
