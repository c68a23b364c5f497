// Package diskspace reports capacity of the volume holding the work
// directory. Ingestion refuses uploads when free space drops below the
// configured floor, and the health endpoint and metrics collector publish
// the same figures.
package diskspace
