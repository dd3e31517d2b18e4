// Package config loads the demo configuration from CUE.
//
// A configuration file is unified with an embedded #Config schema that
// carries every default, so only the fields that differ need to be written:
//
//	api: {
//		delay:      "200ms"
//		fail_every: 0
//	}
//	journal: "flowstate.db"
//
// Errors are *LoadError values positioned in the user's file.
package config
