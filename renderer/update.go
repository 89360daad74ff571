package renderer

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/etnz/vtrade/rates"
)

// RenderUpdate renders the outcome of a rates update.
func RenderUpdate(r rates.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Rates update\n\n")
	fmt.Fprintf(&b, "Updated %d pair(s) at %s UTC", r.Updated, r.At.UTC().Format(time.DateTime))
	if len(r.Sources) > 0 {
		fmt.Fprintf(&b, " from %s", strings.Join(r.Sources, ", "))
	}
	fmt.Fprintf(&b, ".\n")
	conditionalBlock(&b, func(w io.Writer) bool { return renderFailures(w, r.Failed) })
	return b.String()
}

// renderFailures lists failing sources, if any.
func renderFailures(w io.Writer, failed map[string]error) bool {
	if len(failed) == 0 {
		return false
	}
	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "\n## Failed sources\n\n")
	for _, name := range names {
		fmt.Fprintf(w, "* %s: %v\n", name, failed[name])
	}
	return true
}

// conditionalBlock copies what block writes to w only if block returns true.
func conditionalBlock(w io.Writer, block func(io.Writer) bool) {
	var b bytes.Buffer
	if block(&b) {
		io.Copy(w, &b)
	}
}
