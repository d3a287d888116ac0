// Command m365ctl drives the m365dash core from a terminal: health probes,
// tenant management, one-shot dashboard refreshes and report exports.
package main

func main() {
	Execute()
}
