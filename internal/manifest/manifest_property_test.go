package manifest

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Any sequence of Add/Upsert/Remove operations must leave the manifest
// with unique logo IDs and a valid document.
func TestManifestMutationsPreserveUniqueness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	genID := gen.OneConstOf("a", "b", "c", "d", "e")
	genOp := gen.OneConstOf("add", "upsert", "remove")

	genOps := gen.SliceOf(gopter.CombineGens(genOp, genID).Map(
		func(vals []interface{}) [2]string {
			return [2]string{vals[0].(string), vals[1].(string)}
		}))

	properties.Property("ids stay unique under mutation", prop.ForAll(
		func(ops [][2]string) bool {
			m := New()
			now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			for _, op := range ops {
				logo := Logo{ID: op[1], Name: op[1] + ".png", UploadedAt: now}
				switch op[0] {
				case "add":
					_ = m.Add(logo) // duplicate adds must fail, not corrupt
				case "upsert":
					_ = m.Upsert(logo)
				case "remove":
					_ = m.Remove(op[1], now)
				}
			}
			return m.Validate() == nil
		},
		genOps,
	))

	properties.Property("slug ids are idempotent", prop.ForAll(
		func(name string) bool {
			slug := SlugID(name)
			return SlugID(slug+".png") == slug
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
