package planner

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const icsDateLayout = "20060102"

// WriteICS renders a month view as an iCalendar document of all-day events.
func WriteICS(w io.Writer, v MonthView, owner int64, now time.Time) error {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//dayboard//Calendar Export//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		fmt.Sprintf("X-WR-CALNAME:dayboard %04d-%02d", v.Year, int(v.Month)),
	}
	stamp := now.UTC().Format("20060102T150405Z")
	for i, e := range v.Entries {
		uid := fmt.Sprintf("cal-%d-%d@dayboard", owner, e.ID)
		if e.Recurring {
			uid = fmt.Sprintf("rec-%d-%d-%s@dayboard", owner, e.TemplateID, e.Date.Format(icsDateLayout))
		} else if e.ID == 0 {
			uid = fmt.Sprintf("entry-%d-%d-%d@dayboard", owner, now.UnixNano(), i)
		}
		lines = append(lines,
			"BEGIN:VEVENT",
			"UID:"+escapeICSText(uid),
			"DTSTAMP:"+stamp,
			"SUMMARY:"+escapeICSText(e.Title),
			"DTSTART;VALUE=DATE:"+e.Date.Format(icsDateLayout),
			"DTEND;VALUE=DATE:"+e.Date.AddDays(1).Format(icsDateLayout),
		)
		if e.Category != "" {
			lines = append(lines, "CATEGORIES:"+escapeICSText(e.Category))
		}
		lines = append(lines, "END:VEVENT")
	}
	lines = append(lines, "END:VCALENDAR", "")
	_, err := io.WriteString(w, strings.Join(lines, "\r\n"))
	return err
}

func escapeICSText(s string) string {
	repl := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\r\n", "\\n",
		"\n", "\\n",
		"\r", "\\n",
	)
	return repl.Replace(s)
}
