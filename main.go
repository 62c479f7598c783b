// Command tilescheduler runs the streaming tile scheduler daemon described
// in DESIGN.md: camera-driven quadtree refinement, rate/slot-limited HTTP
// fetches against remote tile services, layer/quad assembly, and bounded
// RAM/GPU/disk caches.
package main

import "github.com/alpinemaps/tilescheduler/internal/cmd"

func main() {
	cmd.Execute()
}
