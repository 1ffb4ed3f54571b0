// Package policy renders IAM user and bucket policy documents from static
// templates by literal placeholder substitution.
package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dmitrijs2005/gophbucket/internal/common"
)

// Placeholders understood by the bundled templates.
const (
	ResourceName = "__RESOURCE_NAME__"
	ResourceARN  = "__RESOURCE_ARN__"
	AccountID    = "__ACCOUNT_ID__"
)

// Render loads the template at path and replaces every occurrence of each
// placeholder with its value. Placeholders missing from subs are left in the
// document as-is. An unreadable template yields common.ErrTemplateUnavailable.
func Render(path string, subs map[string]string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrTemplateUnavailable, err)
	}
	return substitute(string(data), subs), nil
}

// substitute applies longer placeholders first so a placeholder that
// contains another one is never partially replaced.
func substitute(doc string, subs map[string]string) string {
	if len(subs) == 0 {
		return doc
	}
	keys := make([]string, 0, len(subs))
	for k := range subs {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, subs[k])
	}
	return strings.NewReplacer(pairs...).Replace(doc)
}
