// Package recorder implements the sound-activated segment recorder: a
// state machine that waits for speech, encodes everything it hears into
// a temp file, stops on sustained silence or a duration cap, and
// finalizes segments atomically with cross-segment overlap continuity.
package recorder
