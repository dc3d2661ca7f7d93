package coursedb

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Validate checks the course for problems a sync would reject: duplicate tag
// names, questions listing a tag twice and questions using tags the course
// does not define. All problems are returned together.
func (c *Course) Validate() error {
	var result *multierror.Error

	known := make(map[string]int, len(c.Tags))
	for i, tag := range c.Tags {
		if tag.Name == "" {
			result = multierror.Append(result, fmt.Errorf("course tag %d has no name", i+1))
			continue
		}
		if first, ok := known[tag.Name]; ok {
			result = multierror.Append(result, fmt.Errorf("course tag %q listed at %d and %d", tag.Name, first, i+1))
			continue
		}
		known[tag.Name] = i + 1
	}

	seenQIDs := make(map[string]bool, len(c.Questions))
	for _, q := range c.Questions {
		if seenQIDs[q.QID] {
			result = multierror.Append(result, fmt.Errorf("question %s defined twice", q.QID))
		}
		seenQIDs[q.QID] = true

		seen := make(map[string]bool, len(q.Tags))
		for _, name := range q.Tags {
			if seen[name] {
				result = multierror.Append(result, fmt.Errorf("question %s lists tag %q twice", q.QID, name))
				continue
			}
			seen[name] = true
			if _, ok := known[name]; !ok {
				result = multierror.Append(result, fmt.Errorf("question %s, unknown tag: %s", q.QID, name))
			}
		}
	}

	return result.ErrorOrNil()
}

// TagNames returns the catalog's tag names in order.
func (c *Course) TagNames() []string {
	names := make([]string, len(c.Tags))
	for i, tag := range c.Tags {
		names[i] = tag.Name
	}
	return names
}
