package claimrace

// Claim response classes.
const (
	resultGranted  = "granted"
	resultConflict = "conflict"
	resultFailed   = "failed"
)

const (
	channelMultiplier = 2
	percentage        = 100
	minPrice          = 5_000
	priceSpread       = 95_000
)

// skillPool seeds worker and job skills. Jobs draw a subset small enough
// that most workers qualify.
var skillPool = []string{"piano", "packing", "assembly", "fragile", "heavy_lift"}
