// Package dataset loads the read fixtures the harness verifies against. A
// fixture maps an ECU address to a set of DIDs and the value the simulated ECU
// is expected to report for each of them. Every expected value is resolved once
// at load time into a Value whose canonical string is the single form compared
// against both tool stdout and MQTT payloads.
package dataset
