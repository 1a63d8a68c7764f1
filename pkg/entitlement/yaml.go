package entitlement

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

// LoadYAML reads a plan catalog document:
//
//	plans:
//	  - id: free
//	    type: FREE
//	    supplier_limit: 5
//	    features:
//	      messagesPerMonth: 50
//
// Every plan is resolved once up front so a broken catalog fails at startup.
func LoadYAML(r io.Reader) (*InMemCatalog, error) {
	var doc catalogFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if len(doc.Plans) == 0 {
		return nil, errors.Join(ErrFailedToLoadPlans, errors.New("catalog has no plans"))
	}

	seen := make(map[string]struct{}, len(doc.Plans))
	for _, p := range doc.Plans {
		if p.ID == "" {
			return nil, errors.Join(ErrInvalidPlanConfiguration, errors.New("plan id is required"))
		}
		if _, dup := seen[p.ID]; dup {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("duplicate plan id %s", p.ID))
		}
		seen[p.ID] = struct{}{}

		if p.TrialDays < 0 {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has negative trial days: %d", p.ID, p.TrialDays))
		}
		if _, err := Resolve(p); err != nil {
			return nil, errors.Join(ErrInvalidPlanConfiguration, err)
		}
	}

	return NewInMemCatalog(doc.Plans...), nil
}

// LoadYAMLFile is LoadYAML over a file on disk.
func LoadYAMLFile(path string) (*InMemCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	defer f.Close()
	return LoadYAML(f)
}
