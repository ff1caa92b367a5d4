// Package capture manages the external audio collaborators: the arecord
// capture process, the sox encoder process, and sox-based file operations
// (trim, concatenate, duration probe). Every operation reports an explicit
// outcome so the recorder's state machine can react without exceptions.
package capture
