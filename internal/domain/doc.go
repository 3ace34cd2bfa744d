// Package domain models earthquake catalogs, continuous seismic traces and
// the templates cut from them for matched-filter detection.
//
// # Units of Work
//
// Extraction is organized in (station, day) units. A unit owns one merged,
// filtered day stream for one station and processes every catalog event
// whose origin falls on that day. Inside a unit each (event, channel)
// combination either produces one template or is skipped at a named
// [Stage]. Units never share mutable state; only the catalog is shared and
// it is read-only.
//
// # Day Codes
//
// Days are identified by six-digit YYMMDD codes as produced by listing the
// continuous archive, e.g.:
//
//	"100305"  →  2010-03-05
//
// The century is always 20xx. See [ParseDay].
//
// # Origin Times
//
// The ZMAP catalog stores the origin second as a decimal token such as
// "3.5". The integer seconds and the fraction are reconstructed separately
// and the fraction is truncated to the configured number of decimal digits
// (6 by default, i.e. microseconds). See [OriginTime].
//
// # Geometry
//
// Epicentral distance is the WGS84 geodesic distance between epicenter and
// station, converted to degrees with a spherical proportion:
//
//	degrees = km / (2π·R / 360),  R = 6371 km
//
// Focal depths shallower than [MinDepthKm] are raised to it before the
// travel-time query.
//
// # Windows
//
// A template window is centered on the earliest S-family arrival:
//
//	start = origin + arrival − before
//	end   = origin + arrival + after
//
// All arithmetic is done on integer nanoseconds so end − start always
// equals before + after.
//
// # File Naming
//
// Templates are written as miniSEED, one file per (event, network,
// station, channel):
//
//	<event index>.<network>.<station>..<channel>.mseed
//
// The network code is whatever the source trace reports.
package domain
