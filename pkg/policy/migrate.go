package policy

import "fmt"

// migrationStep transforms a document from one schema version to the
// next. Steps are applied in order and chained: 1.0 -> 1.1 -> 2.0.
type migrationStep struct {
	from, to SchemaVersion
	apply    func(doc *Document) error
}

// migrationChain is the ordered list of supported transforms, spec.md
// §4.E "policies migrate forward one version at a time".
var migrationChain = []migrationStep{
	{
		from: V1_0,
		to:   V1_1,
		apply: func(doc *Document) error {
			// 1.1 introduced continueOnMatch on actions, defaulting to
			// false for rules authored against 1.0 (first match wins).
			for i := range doc.Rules {
				doc.Rules[i].Action.ContinueOnMatch = false
			}
			doc.Version = V1_1
			return nil
		},
	},
	{
		from: V1_1,
		to:   V2_0,
		apply: func(doc *Document) error {
			// 2.0 introduced explicit inheritance modes; 1.1 documents
			// had no such concept and behaved like "override".
			if doc.Inheritance == "" {
				doc.Inheritance = InheritOverride
			}
			doc.Version = V2_0
			return nil
		},
	},
}

// runMigrations walks migrationChain starting at doc.Version, applying
// every step whose `from` matches the document's current version,
// until no further step applies. Returns the migrated document and
// whether any migration ran.
func runMigrations(doc *Document) (*Document, bool, error) {
	working := *doc
	migrated := false

	for {
		step, ok := stepFor(working.Version)
		if !ok {
			break
		}
		if err := step.apply(&working); err != nil {
			return nil, false, fmt.Errorf("migrate %s -> %s: %w", step.from, step.to, err)
		}
		migrated = true
	}

	return &working, migrated, nil
}

func stepFor(v SchemaVersion) (migrationStep, bool) {
	for _, s := range migrationChain {
		if s.from == v {
			return s, true
		}
	}
	return migrationStep{}, false
}
