package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cdnsync/internal/config"
	"cdnsync/internal/deploy"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func formatUnix(ts int64) string {
	return time.Unix(ts, 0).Local().Format(timeLayout)
}

func renderPlan(plan *deploy.Plan) string {
	c := plan.Classification

	t := newTable("Action", "Files")
	t.Row("upload", strconv.Itoa(len(c.Upload)))
	t.Row("overwrite", strconv.Itoa(len(c.Overwrite)))
	t.Row("unchanged", strconv.Itoa(len(c.Omit)))
	t.Row("excluded", strconv.Itoa(len(c.Excluded)))

	var b strings.Builder
	b.WriteString(titleStyle.Render("Deploy plan"))
	b.WriteString("\n")
	b.WriteString(t.String())

	for _, rec := range c.Overwrite {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render("overwrite " + rec.Filename))
	}

	if plan.Expiry == nil {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("No retention policy: the full history is kept."))
		return b.String()
	}

	expired := plan.Log.Len() - plan.Expiry.Index
	fmt.Fprintf(&b, "\nVersions kept: %d, expired: %d", plan.Expiry.Index, expired)
	if clean := plan.CleanFiles(); len(clean) > 0 {
		fmt.Fprintf(&b, "\nFiles to delete: %d", len(clean))
		for _, rec := range clean {
			b.WriteString("\n")
			b.WriteString(mutedStyle.Render("  " + rec.Filename))
		}
	}
	return b.String()
}

func renderResult(result *deploy.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Uploaded %d file(s), deleted %d file(s), %d version(s) in the log.",
		len(result.Uploaded), len(result.Deleted), result.Versions)
	for _, rec := range result.Mismatched {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render("store hash differs for " + rec.Filename))
	}
	return b.String()
}

func renderVersions(report *deploy.VersionsReport) string {
	t := newTable("#", "Deployed", "Uploaded", "Unchanged", "State")
	for i, snap := range report.Snapshots {
		state := "kept"
		if i >= report.FirstExpired {
			state = "expired"
		}
		t.Row(
			strconv.Itoa(i),
			formatUnix(snap.Timestamp),
			strconv.Itoa(len(snap.Upload)),
			strconv.Itoa(len(snap.Omit)),
			state,
		)
	}
	return t.String()
}

func renderLocate(entries []*deploy.FileHistoryEntry) string {
	t := newTable("#", "Deployed", "Hash", "Action")
	for _, e := range entries {
		action := "unchanged"
		if e.Uploaded {
			action = "upload"
		}
		if e.IsCurrent {
			action += " (current)"
		}
		t.Row(strconv.Itoa(e.VersionIndex), e.DeployedAt.Local().Format(timeLayout), e.Hash, action)
	}
	return t.String()
}

func renderRuns(runs []*deploy.Run) string {
	t := newTable("Run", "Operation", "Started", "Status", "Up", "Over", "Same", "Excl", "Del")
	for _, r := range runs {
		status := r.Status
		if r.Error != "" {
			status = errorStyle.Render(status)
		}
		t.Row(
			r.RunID,
			r.Operation,
			r.StartedAt.Local().Format(timeLayout),
			status,
			strconv.Itoa(r.Uploaded),
			strconv.Itoa(r.Overwritten),
			strconv.Itoa(r.Omitted),
			strconv.Itoa(r.Excluded),
			strconv.Itoa(r.Deleted),
		)
	}
	return t.String()
}

func renderConfig(cfg *config.Config) string {
	versions := "unbounded"
	if cfg.Retention.Versions != nil {
		versions = strconv.Itoa(*cfg.Retention.Versions)
	}
	maxAge := cfg.Retention.MaxAge
	if maxAge == "" {
		maxAge = "unbounded"
	}
	creds := "not set"
	if cfg.Credentials.AccessKey != "" && cfg.Credentials.SecretKey != "" {
		creds = "set"
	}

	t := newTable("Setting", "Value")
	t.Row("base_dir", cfg.BaseDir)
	t.Row("log_dir", cfg.LogDir)
	t.Row("source", cfg.Source)
	t.Row("host", cfg.Host)
	t.Row("prefix", cfg.Prefix)
	t.Row("log_key", cfg.ResolvedLogKey())
	t.Row("exclude", strings.Join(cfg.Exclude, ", "))
	t.Row("retention.versions", versions)
	t.Row("retention.max_age", maxAge)
	t.Row("store", cfg.Store.Type+" "+cfg.Store.Name)
	t.Row("cdn", cfg.CDN.Type)
	t.Row("database", cfg.Database.Type)
	t.Row("credentials", creds)
	return t.String()
}
