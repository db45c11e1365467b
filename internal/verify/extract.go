package verify

import (
	"regexp"
	"strings"

	"github.com/obikwelu/resulthawk/pkg/models"
)

// extractRowsJS collects every table on the page as trimmed cell text. The
// worker picks the result table out of the returned rows; doing the shape
// detection in Go keeps the in-page script dumb and portable across portals.
const extractRowsJS = `(() => {
	const rows = [];
	for (const tr of document.querySelectorAll('table tr')) {
		const cells = Array.from(tr.querySelectorAll('td, th')).map(c => c.innerText.trim());
		if (cells.length > 0) rows.push(cells);
	}
	return rows;
})()`

var gradePattern = regexp.MustCompile(`^[A-F][1-9]?$|^(PASS|FAIL|CREDIT|DISTINCTION|ABS|AR)$`)

// ParseSubjects turns raw table rows into subject/grade pairs. It tolerates
// the two layouts seen in the wild: ["SUBJECT", "GRADE"] and
// ["SN", "SUBJECT", "GRADE", "REMARK"]. Header rows and rows that do not
// look like a graded subject are skipped.
func ParseSubjects(rows [][]string) []models.SubjectGrade {
	var subjects []models.SubjectGrade

	for _, row := range rows {
		if isHeaderRow(row) {
			continue
		}

		var sg models.SubjectGrade
		switch {
		case len(row) == 2:
			sg = models.SubjectGrade{Subject: row[0], Grade: row[1]}
		case len(row) >= 4:
			sg = models.SubjectGrade{Subject: row[1], Grade: row[2], Remark: row[3]}
		case len(row) == 3:
			// Serial + subject + grade, no remark column.
			sg = models.SubjectGrade{Subject: row[1], Grade: row[2]}
		default:
			continue
		}

		sg.Subject = strings.TrimSpace(sg.Subject)
		sg.Grade = strings.ToUpper(strings.TrimSpace(sg.Grade))
		if sg.Subject == "" || !gradePattern.MatchString(sg.Grade) {
			continue
		}
		subjects = append(subjects, sg)
	}

	return subjects
}

func isHeaderRow(row []string) bool {
	joined := strings.ToLower(strings.Join(row, " "))
	return strings.Contains(joined, "subject") && strings.Contains(joined, "grade")
}

var candidateNamePattern = regexp.MustCompile(`(?i)candidate\s*name\s*[:\-]?\s*([A-Z][A-Za-z .,'\-]+)`)

// ExtractCandidateName pulls the candidate's name out of the page text.
// Returns "" when no recognizable label is present.
func ExtractCandidateName(text string) string {
	m := candidateNamePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	name := strings.TrimSpace(m[1])
	// The match runs to end of line; drop anything after a double space,
	// which on these portals separates the next label on the same line.
	if idx := strings.Index(name, "  "); idx > 0 {
		name = name[:idx]
	}
	return strings.TrimSpace(name)
}
