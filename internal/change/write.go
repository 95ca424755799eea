package change

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/thiagokokada/simplegit/internal/graph"
)

const dateLayout = "Mon Jan 2 15:04:05 2006 -0700"

type RenderOptions struct {
	// RelativeDates appends "(3 days ago)" style hints to dates.
	RelativeDates bool
	// Now anchors relative dates; zero means time.Now.
	Now time.Time
	// Fuller prints the committer and both dates on their own lines.
	Fuller bool
}

// WriteRecord renders r as a log header followed by one raw line per change.
func WriteRecord(w io.Writer, r Record, opts RenderOptions) error {
	var b strings.Builder
	fmt.Fprintf(&b, "commit %s\n", r.Hash)
	if len(r.Parents) > 1 {
		b.WriteString("Merge:")
		for _, p := range r.Parents {
			fmt.Fprintf(&b, " %s", p.String()[:7])
		}
		b.WriteByte('\n')
	}
	if opts.Fuller {
		fmt.Fprintf(&b, "Author:     %s\n", r.Author)
		fmt.Fprintf(&b, "AuthorDate: %s\n", formatDate(r.Author, opts))
		fmt.Fprintf(&b, "Commit:     %s\n", r.Committer)
		fmt.Fprintf(&b, "CommitDate: %s\n\n", formatDate(r.Committer, opts))
	} else {
		fmt.Fprintf(&b, "Author: %s\n", r.Author)
		fmt.Fprintf(&b, "Date:   %s\n\n", formatDate(r.Author, opts))
	}

	message := strings.TrimRight(r.Subject+"\n\n"+r.Body, "\n")
	if strings.TrimSpace(message) == "" {
		b.WriteString("    (no commit message)\n")
	} else {
		for line := range strings.SplitSeq(message, "\n") {
			if line == "" {
				b.WriteString("\n")
				continue
			}
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	if len(r.Changes) > 0 {
		b.WriteString("\n")
		for _, ch := range r.Changes {
			if ch.Kind == Renamed {
				fmt.Fprintf(&b, ":%c\t%s\t%s\n", ch.Kind.Letter(), ch.From, ch.Path)
				continue
			}
			fmt.Fprintf(&b, ":%c\t%s\n", ch.Kind.Letter(), ch.Path)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func formatDate(sig graph.Signature, opts RenderOptions) string {
	date := sig.When.Format(dateLayout)
	if !opts.RelativeDates {
		return date
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	return fmt.Sprintf("%s (%s)", date, humanize.RelTime(sig.When, now, "ago", "from now"))
}
