// conclave — bounded multi-round deliberation engine.
// Proposals are evaluated by a fixed roster, gated by non-compensatory
// tiers, and always terminate within the configured round cap.
package main

import "github.com/ppiankov/conclave/internal/cli"

func main() {
	cli.Execute()
}
