package verify

import (
	"testing"

	"github.com/obikwelu/resulthawk/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestClassifyText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "card exhausted is error not not_found",
			text: "Your result cannot be found. Card usage has exceeded the maximum number of times.",
			want: models.OutcomeError,
		},
		{
			name: "invalid pin",
			text: "Invalid PIN supplied. Please check your scratch card.",
			want: models.OutcomeError,
		},
		{
			name: "used token",
			text: "This token has been used on another registration number.",
			want: models.OutcomeError,
		},
		{
			name: "no result",
			text: "No result found for the candidate details supplied.",
			want: models.OutcomeNotFound,
		},
		{
			name: "no record",
			text: "NO RECORD FOUND",
			want: models.OutcomeNotFound,
		},
		{
			name: "result page",
			text: "Candidate Name: ADAEZE JOHNSON\nSubject Grade\nENGLISH LANGUAGE B2",
			want: models.OutcomeVerified,
		},
		{
			name: "single signal is not enough",
			text: "Choose a subject to continue",
			want: models.OutcomeError,
		},
		{
			name: "garbage page",
			text: "502 Bad Gateway",
			want: models.OutcomeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, msg := ClassifyText(tt.text)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestClassifyText_MessageEchoesPortalLine(t *testing.T) {
	_, msg := ClassifyText("Dear user,\nCard usage has exceeded 5 times.\nBuy a new card.")
	assert.Equal(t, "Card usage has exceeded 5 times.", msg)
}

func TestParseSubjects_TwoColumnLayout(t *testing.T) {
	rows := [][]string{
		{"SUBJECT", "GRADE"},
		{"ENGLISH LANGUAGE", "B2"},
		{"MATHEMATICS", "A1"},
		{"", "C4"}, // no subject, skipped
	}

	subjects := ParseSubjects(rows)
	assert.Equal(t, []models.SubjectGrade{
		{Subject: "ENGLISH LANGUAGE", Grade: "B2"},
		{Subject: "MATHEMATICS", Grade: "A1"},
	}, subjects)
}

func TestParseSubjects_FourColumnLayout(t *testing.T) {
	rows := [][]string{
		{"SN", "SUBJECT", "GRADE", "REMARK"},
		{"1", "BIOLOGY", "C4", "CREDIT"},
		{"2", "PHYSICS", "A1", "EXCELLENT"},
	}

	subjects := ParseSubjects(rows)
	assert.Equal(t, []models.SubjectGrade{
		{Subject: "BIOLOGY", Grade: "C4", Remark: "CREDIT"},
		{Subject: "PHYSICS", Grade: "A1", Remark: "EXCELLENT"},
	}, subjects)
}

func TestParseSubjects_ThreeColumnLayout(t *testing.T) {
	rows := [][]string{
		{"1", "CHEMISTRY", "B3"},
	}
	subjects := ParseSubjects(rows)
	assert.Equal(t, []models.SubjectGrade{{Subject: "CHEMISTRY", Grade: "B3"}}, subjects)
}

func TestParseSubjects_RejectsNonGradeRows(t *testing.T) {
	rows := [][]string{
		{"Registration Number", "4250101001"},
		{"Centre", "COMMUNITY SEC SCH"},
		{"ECONOMICS", "PASS"},
	}
	subjects := ParseSubjects(rows)
	assert.Equal(t, []models.SubjectGrade{{Subject: "ECONOMICS", Grade: "PASS"}}, subjects)
}

func TestExtractCandidateName(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Candidate Name: ADAEZE JOHNSON\nExam Year: 2023", "ADAEZE JOHNSON"},
		{"CANDIDATE NAME - Musa Ibrahim", "Musa Ibrahim"},
		{"Candidate Name: OKORO CHINEDU  Exam Number: 4250101001", "OKORO CHINEDU"},
		{"Welcome to the portal", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractCandidateName(tt.text), "text: %s", tt.text)
	}
}

func TestSamePage(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://www.waecdirect.org", "https://www.waecdirect.org", true},
		{"https://www.waecdirect.org/", "https://www.waecdirect.org", true},
		{"https://www.waecdirect.org/?ref=1", "https://www.waecdirect.org", true},
		{"HTTPS://WWW.WAECDIRECT.ORG", "https://www.waecdirect.org", true},
		{"https://www.waecdirect.org/DisplayResult.aspx", "https://www.waecdirect.org", false},
		{"", "https://www.waecdirect.org", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, samePage(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}
