package launch

// shapeProfile pins CPU and memory for shapes that are not configurable.
// Flexible shapes take the requested sizing or the platform defaults.
type shapeProfile struct {
	OCPUs    int
	MemoryGB int
}

var fixedShapeProfiles = map[string]shapeProfile{
	"VM.Standard2.1":   {OCPUs: 1, MemoryGB: 15},
	"VM.Standard2.2":   {OCPUs: 2, MemoryGB: 30},
	"VM.Standard2.4":   {OCPUs: 4, MemoryGB: 60},
	"VM.Standard.E2.1": {OCPUs: 1, MemoryGB: 8},
	"VM.Standard.E2.2": {OCPUs: 2, MemoryGB: 16},
	"VM.Standard.E2.4": {OCPUs: 4, MemoryGB: 32},
}

const (
	defaultOCPUs    = 1
	defaultMemoryGB = 8
	defaultBootGB   = 50
)

// trialOrder is the requested shape followed by the platform fallback
// priority, duplicates removed.
func trialOrder(requested string, fallbacks []string) []string {
	order := []string{requested}
	seen := map[string]bool{requested: true}
	for _, shape := range fallbacks {
		if !seen[shape] {
			order = append(order, shape)
			seen[shape] = true
		}
	}
	return order
}

// sizingFor resolves the CPU/memory to launch with for a given shape.
func sizingFor(shape string, requestedOCPUs, requestedMemoryGB int) (int, int) {
	if profile, fixed := fixedShapeProfiles[shape]; fixed {
		return profile.OCPUs, profile.MemoryGB
	}
	ocpus := requestedOCPUs
	if ocpus <= 0 {
		ocpus = defaultOCPUs
	}
	memory := requestedMemoryGB
	if memory <= 0 {
		memory = defaultMemoryGB
	}
	return ocpus, memory
}
